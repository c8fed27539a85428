// Package protocol owns the wire contract between launch clients and a
// service manager endpoint.
//
// Ownership boundary:
// - frame/header primitives (frame)
// - Node: the exported form of a launch handle tree
// - CBOR payload codec for nodes and faults
// - request/reply frame helpers
package protocol
