// File: pool/doc.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

// Package pool implements the double-mapped lock-free ring that backs the
// client slot free list.
//
// The ring's storage is one physical region visible through two adjacent
// virtual mappings, so an element slot reached past the logical capacity
// boundary aliases its reduced position and no per-element wrap branch is
// needed. See internal/memmap for the mapping itself.
package pool
