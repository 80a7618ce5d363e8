package provider

import (
	"context"
	"time"
)

// AllEmployees is the employee filter that selects every provider employee.
const AllEmployees = "ALL"

// Client is the read-only contract of the external time-and-attendance API.
type Client interface {
	// Roster returns the full provider employee roster.
	Roster(ctx context.Context) ([]Employee, error)

	// PunchesBetween returns punches in [from, to] for the given employee filter.
	PunchesBetween(ctx context.Context, from, to time.Time, employeeFilter string) ([]PunchEvent, error)

	// PunchesSince returns punches recorded after cursor together with the
	// cursor to resume from.
	PunchesSince(ctx context.Context, cursor Cursor, employeeFilter string) (PunchPage, error)
}
