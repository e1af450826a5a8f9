// Package packet owns the signed wire envelope.
//
// Ownership boundary:
// - header/metadata/content sections
// - xdr encoding of one datagram
// - signature attachment and verification
//
// One UDP datagram carries exactly one packet:
//
//	magic:u32 | version:u32 | body:opaque | signature:opaque
//	body := header | metadata | content
//
// The signature covers the body bytes only.
package packet
