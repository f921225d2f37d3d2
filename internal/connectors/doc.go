// Package connectors provides implementations of the DocumentSource
// interface. Each connector knows how to fetch documentation from one
// upstream (the internal wiki API, the published llms-full feed, a
// local directory) into a working directory of tagged records.
package connectors
