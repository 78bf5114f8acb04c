// Package billing provides the plan catalog and the subscription-facing state of an account.
//
// This package is the single source of truth for:
//   - Plan tiers with their monthly allowance, prices and per-feature free-use caps
//   - Per-action credit costs charged by the ledger
//   - One-off credit packs sold through checkout
//
// Key Aggregates:
//   - Account: the user's current plan and billing provider references
//   - UsageCounter: per-feature usage within the current billing cycle
//   - ProcessedEvent: durable log of billing provider events that were applied
//
// The catalog is immutable at runtime. Both the server and the catalog HTTP
// endpoint read from it, so costs shown to clients never drift from costs charged.
package billing
