// Package billing holds billing provider configuration shared by the webhook
// adapter and the server wiring.
package billing

import (
	"fmt"
	"strings"

	"github.com/mvstudio/backend/internal/domain/billing"
)

// Checkout session metadata keys written by the frontend when it opens a session
const (
	MetadataUserID = "userId"
	MetadataType   = "type"
	MetadataPackID = "packId"
	MetadataPlanID = "planId"
)

// ProviderStripe is the provider name used in idempotency keys
const ProviderStripe = "stripe"

// StripeConfig holds configuration for the Stripe integration
type StripeConfig struct {
	// SecretKey is the Stripe secret API key (sk_test_xxx or sk_live_xxx)
	SecretKey string `json:"secret_key" mapstructure:"secret_key"`

	// WebhookSecret is the secret for verifying webhook signatures (whsec_xxx)
	WebhookSecret string `json:"webhook_secret" mapstructure:"webhook_secret"`

	IsTestMode bool `json:"is_test_mode" mapstructure:"is_test_mode"`

	// IgnoreAPIVersionMismatch accepts events rendered with another API version
	IgnoreAPIVersionMismatch bool `json:"ignore_api_version_mismatch" mapstructure:"ignore_api_version_mismatch"`

	// PriceIDs maps plan tiers to Stripe Price IDs
	PriceIDs map[string]string `json:"price_ids" mapstructure:"price_ids"`
}

// DefaultStripeConfig returns a configuration for development
func DefaultStripeConfig() *StripeConfig {
	return &StripeConfig{
		IsTestMode: true,
		PriceIDs: map[string]string{
			string(billing.PlanPro):        "price_pro_monthly",
			string(billing.PlanEnterprise): "price_enterprise_monthly",
		},
	}
}

// Validate validates the Stripe configuration
func (c *StripeConfig) Validate() error {
	if c.WebhookSecret == "" {
		return fmt.Errorf("stripe: webhook secret is required")
	}
	if c.SecretKey != "" {
		prefix := "sk_live"
		if c.IsTestMode {
			prefix = "sk_test"
		}
		if !strings.HasPrefix(c.SecretKey, prefix) {
			return fmt.Errorf("stripe: secret key does not match mode, expected %s key", prefix)
		}
	}
	for plan := range c.PriceIDs {
		if !billing.PlanTier(plan).IsPaid() {
			return fmt.Errorf("stripe: price configured for unpaid plan: %s", plan)
		}
	}
	return nil
}

// GetPriceID returns the Stripe Price ID for a plan
func (c *StripeConfig) GetPriceID(plan billing.PlanTier) (string, error) {
	priceID := c.PriceIDs[string(plan)]
	if priceID == "" {
		return "", fmt.Errorf("stripe: no price ID configured for plan: %s", plan)
	}
	return priceID, nil
}

// PlanForPrice resolves a Stripe Price ID back to a plan tier
func (c *StripeConfig) PlanForPrice(priceID string) (billing.PlanTier, bool) {
	if priceID == "" {
		return "", false
	}
	for plan, id := range c.PriceIDs {
		if id == priceID {
			return billing.PlanTier(plan), true
		}
	}
	return "", false
}
