package models

// Role is the kind of terminal issuing a request.
type Role string

const (
	RoleKitchen   Role = "kitchen"
	RoleWaiter    Role = "waiter"
	RoleCashier   Role = "cashier"
	RoleReception Role = "reception"
)

// Actor identifies the terminal on whose behalf an operation runs. It is
// passed explicitly into every operation instead of living in global state.
type Actor struct {
	VenueID    string
	TerminalID string
	Role       Role
}
