// Package models defines the core domain models for Tableside.
//
// # Entities
//
//   - Order: a guest check or takeaway/delivery ticket with line items
//   - OrderItem: one line of an order, carrying its kitchen status
//   - Payment: an append-only ledger entry against an order
//   - Table: a physical table; its occupancy is derived, never stored
//
// # Design Principles
//
// 1. **Derived fields are never authored**: totals, AmountPaid and table
// occupancy are recomputed from the authoritative record.
// 2. **Versioned records**: orders and tables carry a Version that the store
// bumps on every write, so stale writes are detected.
// 3. **Explicit context**: the terminal issuing a request is an Actor passed
// into each operation.
// 4. **IDs instead of pointers**: relationships are expressed with ID strings
// (orders reference tables by number within a venue).
package models
