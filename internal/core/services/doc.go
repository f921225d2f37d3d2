// Package services implements the driving port interfaces.
// Services contain the core business logic — event parsing and
// deduplication, conversation context, answer formatting, and document
// reconciliation — and orchestrate calls to driven ports (adapters).
package services
