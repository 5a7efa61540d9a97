package analytics

import (
	"sort"
	"strings"

	"github.com/addiskers/dispatch--sub001/internal/crm"
)

// ContactRow is a contact with its derived columns.
type ContactRow struct {
	crm.Contact
	Touchpoints      int     `json:"touchpoints"`
	OutgoingEmails   int     `json:"outgoing_emails"`
	IncomingEmails   int     `json:"incoming_emails"`
	OutgoingCalls    int     `json:"outgoing_calls"`
	ConnectedCalls   int     `json:"connected_calls"`
	SampleSentTiming *string `json:"sample_sent_timing"`
	FirstCallTiming  *string `json:"first_call_timing"`
	IsActive         string  `json:"is_active"`

	sampleHours float64
	callMinutes float64
}

// DeriveRow computes the derived columns of one contact. Timing
// columns are nil unless the event falls in its validity window.
func DeriveRow(c crm.Contact) ContactRow {
	a := c.Analytics
	r := ContactRow{
		Contact:        c,
		Touchpoints:    a.Touchpoints,
		OutgoingEmails: a.OutgoingEmails,
		IncomingEmails: a.IncomingEmails,
		OutgoingCalls:  a.OutgoingCalls,
		ConnectedCalls: a.ConnectedCalls,
		IsActive:       "No",
	}
	if c.IsActive() {
		r.IsActive = "Yes"
	}
	if h, ok := SampleTimingHours(c); ok {
		s := format1(h)
		r.SampleSentTiming = &s
		r.sampleHours = h
	}
	if m, ok := FirstCallTimingMinutes(c); ok {
		s := format1(m)
		r.FirstCallTiming = &s
		r.callMinutes = m
	}
	return r
}

// DeriveRows maps DeriveRow over contacts.
func DeriveRows(contacts []crm.Contact) []ContactRow {
	rows := make([]ContactRow, len(contacts))
	for i, c := range contacts {
		rows[i] = DeriveRow(c)
	}
	return rows
}

// rowLess compares two rows on one column ascending. Rows
// without a value sort after rows with one.
type rowLess func(a, b ContactRow) (less, ok bool)

func byString(v func(ContactRow) string) rowLess {
	return func(a, b ContactRow) (bool, bool) {
		return strings.ToLower(v(a)) < strings.ToLower(v(b)), true
	}
}

func byInt(v func(ContactRow) int) rowLess {
	return func(a, b ContactRow) (bool, bool) {
		return v(a) < v(b), true
	}
}

func byOptional(
	set func(ContactRow) bool, v func(ContactRow) float64,
) rowLess {
	return func(a, b ContactRow) (bool, bool) {
		if !set(a) || !set(b) {
			return false, false
		}
		return v(a) < v(b), true
	}
}

var rowSorts = map[string]rowLess{
	"created_at": byString(func(r ContactRow) string { return r.CreatedAt }),
	"last_contacted": byString(func(r ContactRow) string {
		return r.LastContactedAt
	}),
	"display_name":   byString(func(r ContactRow) string { return r.DisplayName }),
	"email":          byString(func(r ContactRow) string { return r.Email }),
	"country":        byString(func(r ContactRow) string { return r.Country }),
	"owner_name":     byString(func(r ContactRow) string { return r.OwnerName }),
	"territory_name": byString(func(r ContactRow) string { return r.TerritoryName }),
	"status_name":    byString(func(r ContactRow) string { return r.StatusName }),
	"is_active":      byString(func(r ContactRow) string { return r.IsActive }),
	"touchpoints":    byInt(func(r ContactRow) int { return r.Touchpoints }),
	"outgoing_emails": byInt(func(r ContactRow) int {
		return r.OutgoingEmails
	}),
	"incoming_emails": byInt(func(r ContactRow) int {
		return r.IncomingEmails
	}),
	"outgoing_calls": byInt(func(r ContactRow) int { return r.OutgoingCalls }),
	"connected_calls": byInt(func(r ContactRow) int {
		return r.ConnectedCalls
	}),
	"sample_sent_timing": byOptional(
		func(r ContactRow) bool { return r.SampleSentTiming != nil },
		func(r ContactRow) float64 { return r.sampleHours },
	),
	"first_call_timing": byOptional(
		func(r ContactRow) bool { return r.FirstCallTiming != nil },
		func(r ContactRow) float64 { return r.callMinutes },
	),
}

// DefaultSort is the column used when sortBy is unknown.
const DefaultSort = "created_at"

// SortRows sorts rows in place on column, stably. Unknown columns
// fall back to DefaultSort. Rows lacking an optional value go
// last in both directions.
func SortRows(rows []ContactRow, column string, desc bool) {
	less, ok := rowSorts[column]
	if !ok {
		less = rowSorts[DefaultSort]
	}
	sort.SliceStable(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		if lt, ok := less(a, b); ok {
			if desc {
				gt, _ := less(b, a)
				return gt
			}
			return lt
		}
		// At least one side has no value: valued rows first.
		_, aSet := less(a, a)
		_, bSet := less(b, b)
		return aSet && !bSet
	})
}
