// Package driven provides interfaces for infrastructure adapters
// (secondary/outbound ports): the RAG assistant backend, the object
// store, the chat platform messenger, the idempotency table, the
// analytics sink, secret resolution, and document sources. The core
// services depend only on these interfaces; concrete clients live
// under internal/adapters/driven and internal/connectors.
package driven
