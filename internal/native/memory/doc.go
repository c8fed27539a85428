// Package memory is an in-process launch.Native backed by a handle table.
//
// Ownership boundary:
// - handle allocation, attachment and recursive free
// - alloc/free accounting and invalid-free detection
// - fault injection for allocation, insertion and send
// - export/import of handle trees to protocol.Node for Send
package memory
