// Package normalisers provides implementations of the Normaliser
// interface. A normaliser rewrites one fetched document into the plain
// text form the assistant indexes and stamps it with a content hash.
package normalisers
