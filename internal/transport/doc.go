// Package transport owns the UDP client and server endpoints.
//
// Ownership boundary:
// - endpoint lifecycle (idle -> connecting -> running -> closed)
// - datagram send/receive
// - decode -> verify -> message pipeline for inbound datagrams
//
// Decode and signature failures never stop an endpoint. They are reported to
// the Sink as text and the signature result is handed to the Handler as data.
package transport
