package billing

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBillingEvent_Validate(t *testing.T) {
	valid := BillingEvent{ID: "evt_1", Provider: "stripe", Kind: EventInvoicePaid, CustomerID: "cus_1"}
	assert.NoError(t, valid.Validate())
	assert.Equal(t, "stripe:evt_1", valid.IdempotencyKey())

	tests := []struct {
		name  string
		event BillingEvent
	}{
		{"missing id", BillingEvent{Provider: "stripe", Kind: EventRefund, UserID: "u1"}},
		{"unknown kind", BillingEvent{ID: "evt_1", Provider: "stripe", Kind: "charge.dispute", UserID: "u1"}},
		{"no subject", BillingEvent{ID: "evt_1", Provider: "stripe", Kind: EventRefund}},
		{"negative credits", BillingEvent{ID: "evt_1", Provider: "stripe", Kind: EventRefund, UserID: "u1", Credits: -1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Error(t, tt.event.Validate())
		})
	}
}
