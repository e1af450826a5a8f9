// Package filesync is the application layer on top of transport.
//
// Service routes decoded messages for a server: directory listings, chunked
// file retrieval and change broadcast fan-out within a session. Assembler and
// Retrier are the client-side counterparts used by remotectl.
package filesync
