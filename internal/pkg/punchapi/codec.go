package punchapi

import (
	"encoding/base64"
	"strings"
	"time"
)

const (
	// rangeLayout is the dd/mm/yyyy_HH:MM encoding of range query bounds.
	rangeLayout = "02/01/2006_15:04"
)

// punchLayouts are the timestamp shapes the provider uses in PunchDate.
var punchLayouts = []string{
	"02/01/2006 15:04:05",
	"02/01/2006 15:04",
	"02/01/2006_15:04",
}

// FormatRangeDate encodes a range bound in loc.
func FormatRangeDate(t time.Time, loc *time.Location) string {
	return t.In(loc).Format(rangeLayout)
}

// ParsePunchDate decodes a punch timestamp reported in loc.
func ParsePunchDate(s string, loc *time.Location) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range punchLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// AuthHeader builds the Authorization value from the colon-joined
// credential tuple.
func AuthHeader(corporateID, username, password string) string {
	tuple := strings.Join([]string{corporateID, username, password, "true"}, ":")
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(tuple))
}
