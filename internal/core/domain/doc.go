// Package domain contains the core business types for the Perch bridge:
// canonical chat events, conversation context with reaction reputation,
// normalised documents with content hashes, sync plans, and citation
// structures. Types here have no dependencies on adapters or transports.
package domain
