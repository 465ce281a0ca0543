package models

// TableStatus is what a terminal displays for a table.
type TableStatus string

const (
	TableAvailable TableStatus = "available"
	TableReserved  TableStatus = "reserved"
	TableCleaning  TableStatus = "cleaning"

	// TableOccupied is only ever derived, never stored.
	TableOccupied TableStatus = "occupied"
)

// Explicit reports whether s may be set by an operator.
func (s TableStatus) Explicit() bool {
	switch s {
	case TableAvailable, TableReserved, TableCleaning:
		return true
	}
	return false
}

// Table is a physical table in a venue.
type Table struct {
	ID       string `json:"id"`
	VenueID  string `json:"venue_id"`
	Number   int    `json:"number"`
	Capacity int    `json:"capacity"`
	Section  string `json:"section,omitempty"`

	// ExplicitStatus is operator-set and never "occupied".
	ExplicitStatus TableStatus `json:"explicit_status"`

	CurrentGuests int    `json:"current_guests"`
	CustomerName  string `json:"customer_name,omitempty"`
	SeatedAt      int64  `json:"seated_at,omitempty"`

	Version   int64 `json:"version"`
	UpdatedAt int64 `json:"updated_at"`
}
