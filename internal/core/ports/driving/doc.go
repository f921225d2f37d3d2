// Package driving provides interfaces for the application's entry
// points (primary/inbound ports): the per-event chat pipeline and the
// document update orchestrator. Driving adapters (CLI, webhook server)
// depend on these interfaces rather than on concrete services.
package driving
