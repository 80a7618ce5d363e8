package provider

import (
	"encoding/json"
	"time"
)

// Employee is one row of the provider roster. It is refreshed wholesale on
// every roster sync.
type Employee struct {
	Code  string
	Name  string
	Email string
	Raw   json.RawMessage
}

// PunchEvent is a single biometric punch reported by the provider.
// A zero Timestamp means the provider row could not be parsed.
type PunchEvent struct {
	EmployeeCode string
	Timestamp    time.Time
	Raw          json.RawMessage
}

// PunchPage is the result of an incremental punch query.
type PunchPage struct {
	Events []PunchEvent
	Next   Cursor
}
