// Package filter compiles raw query parameters into an immutable
// Spec and evaluates it against contacts, both as a storage
// predicate and in memory.
package filter

import (
	"strings"
	"time"

	"github.com/addiskers/dispatch--sub001/internal/crm"
	"github.com/addiskers/dispatch--sub001/internal/db"
	"github.com/addiskers/dispatch--sub001/internal/timeutil"
)

// MultiSelect is one categorical selection. The zero value
// selects everything.
type MultiSelect struct {
	Values     []string `json:"values,omitempty"`
	Unassigned bool     `json:"unassigned,omitempty"`
}

// Active reports whether the selection restricts anything.
func (m MultiSelect) Active() bool {
	return len(m.Values) > 0 || m.Unassigned
}

// Matches reports whether v passes the selection. Placeholder
// values (including "" for absent) pass when Unassigned is set.
func (m MultiSelect) Matches(v string) bool {
	if !m.Active() {
		return true
	}
	if m.Unassigned && crm.IsPlaceholder(v) {
		return true
	}
	for _, want := range m.Values {
		if v == want {
			return true
		}
	}
	return false
}

// Cond builds the storage predicate for field f, or nil when the
// selection is inactive.
func (m MultiSelect) Cond(f db.Field) db.Cond {
	var parts []db.Cond
	if len(m.Values) > 0 {
		parts = append(parts, db.In(f, m.Values...))
	}
	if m.Unassigned {
		parts = append(parts,
			db.In(f, crm.Placeholders...),
			db.Missing(f),
		)
	}
	if len(parts) == 0 {
		return nil
	}
	return db.Or(parts...)
}

// Window is an inclusive time range. A zero bound is open.
type Window struct {
	From time.Time
	To   time.Time
}

// IsZero reports whether neither bound is set.
func (w Window) IsZero() bool {
	return w.From.IsZero() && w.To.IsZero()
}

// Contains reports From <= t <= To.
func (w Window) Contains(t time.Time) bool {
	if !w.From.IsZero() && t.Before(w.From) {
		return false
	}
	if !w.To.IsZero() && t.After(w.To) {
		return false
	}
	return true
}

// ContainsString parses ts best-effort and tests it. Unparseable
// timestamps fall outside any non-empty window.
func (w Window) ContainsString(ts string) bool {
	if w.IsZero() {
		return true
	}
	t, ok := timeutil.Parse(ts)
	if !ok {
		return false
	}
	return w.Contains(t)
}

// Bounds returns the window in stored form for range predicates.
func (w Window) Bounds() (gte, lte string) {
	return timeutil.Format(w.From), timeutil.Format(w.To)
}

// ActivityType selects which activities a query covers.
type ActivityType string

const (
	ActivityAll   ActivityType = "all"
	ActivityEmail ActivityType = "email"
	ActivityCall  ActivityType = "call"
)

// ParseActivityType maps unrecognized input to ActivityAll.
func ParseActivityType(s string) ActivityType {
	switch t := ActivityType(strings.ToLower(strings.TrimSpace(s))); t {
	case ActivityEmail, ActivityCall:
		return t
	}
	return ActivityAll
}

// IncludesEmail reports whether email activities are selected.
func (t ActivityType) IncludesEmail() bool { return t != ActivityCall }

// IncludesCall reports whether call activities are selected.
func (t ActivityType) IncludesCall() bool { return t != ActivityEmail }

// Activeness filters on Contact.IsActive.
type Activeness string

const (
	ActiveAny Activeness = ""
	ActiveYes Activeness = "yes"
	ActiveNo  Activeness = "no"
)

// ParseActiveness maps unrecognized input to ActiveAny.
func ParseActiveness(s string) Activeness {
	switch a := Activeness(strings.ToLower(strings.TrimSpace(s))); a {
	case ActiveYes, ActiveNo:
		return a
	}
	return ActiveAny
}

// Dimension is a categorical contact attribute that can be
// multi-selected.
type Dimension struct {
	Param string
	Field db.Field
	Value func(crm.Contact) string
}

// Dimensions lists the contact dimensions in predicate order.
var Dimensions = []Dimension{
	{"owners", db.FieldOwner,
		func(c crm.Contact) string { return c.OwnerName }},
	{"territories", db.FieldTerritory,
		func(c crm.Contact) string { return c.TerritoryName }},
	{"statuses", db.FieldStatus,
		func(c crm.Contact) string { return c.StatusName }},
	{"countries", db.FieldCountry,
		func(c crm.Contact) string { return c.Country }},
	{"leadLevels", db.FieldLeadLevel,
		func(c crm.Contact) string { return c.CustomFields.LeadLevel }},
	{"categories", db.FieldContactCategory,
		func(c crm.Contact) string { return c.CustomFields.ContactCategory }},
	{"markets", db.FieldMarket,
		func(c crm.Contact) string { return c.CustomFields.Market }},
}

// searchFields are the contact fields a search term is tested
// against.
var searchFields = []struct {
	field db.Field
	value func(crm.Contact) string
}{
	{db.FieldDisplayName, func(c crm.Contact) string { return c.DisplayName }},
	{db.FieldEmail, func(c crm.Contact) string { return c.Email }},
	{db.FieldOwner, func(c crm.Contact) string { return c.OwnerName }},
}

// Spec is a compiled filter. It is built once per request by
// Compile and not modified afterwards.
type Spec struct {
	// Selected holds the active contact dimensions keyed by
	// Dimension.Param.
	Selected map[string]MultiSelect
	// Users narrows activities by user id.
	Users MultiSelect
	// AnalyticsCountries narrows only the engagement part of
	// contact statistics.
	AnalyticsCountries MultiSelect

	Window       Window
	ActivityType ActivityType
	Search       []string
	Active       Activeness
}

// Selection returns the selection for a dimension param.
func (s Spec) Selection(param string) MultiSelect {
	return s.Selected[param]
}

// MatchContact evaluates every contact-level predicate in
// memory: dimensions, search and activeness. The date window is
// not applied here since its meaning depends on the caller.
func (s Spec) MatchContact(c crm.Contact) bool {
	for _, d := range Dimensions {
		if !s.Selected[d.Param].Matches(d.Value(c)) {
			return false
		}
	}
	for _, term := range s.Search {
		if !matchesTerm(c, term) {
			return false
		}
	}
	switch s.Active {
	case ActiveYes:
		return c.IsActive()
	case ActiveNo:
		return !c.IsActive()
	}
	return true
}

func matchesTerm(c crm.Contact, term string) bool {
	needle := strings.ToLower(term)
	for _, sf := range searchFields {
		if strings.Contains(strings.ToLower(sf.value(c)), needle) {
			return true
		}
	}
	return false
}

// MatchCreated reports whether the contact's creation time falls
// in the window.
func (s Spec) MatchCreated(c crm.Contact) bool {
	return s.Window.ContainsString(c.CreatedAt)
}

// ContactPredicate is the storage pushdown of the dimension and
// search filters. Results must still pass MatchContact.
func (s Spec) ContactPredicate() db.Cond {
	var conds []db.Cond
	for _, d := range Dimensions {
		if c := s.Selected[d.Param].Cond(d.Field); c != nil {
			conds = append(conds, c)
		}
	}
	for _, term := range s.Search {
		alts := make([]db.Cond, len(searchFields))
		for i, sf := range searchFields {
			alts[i] = db.Contains(sf.field, term)
		}
		conds = append(conds, db.Or(alts...))
	}
	if len(conds) == 0 {
		return nil
	}
	return db.And(conds...)
}

// CreatedPredicate restricts contact creation time to the window,
// or returns nil when there is none.
func (s Spec) CreatedPredicate() db.Cond {
	if s.Window.IsZero() {
		return nil
	}
	gte, lte := s.Window.Bounds()
	return db.Range(db.FieldCreatedAt, gte, lte)
}

// ConversationPredicate selects the conversations that can yield
// activities: the requested types, and with a window, calls
// created inside it or email threads overlapping it.
func (s Spec) ConversationPredicate() db.Cond {
	phone := string(crm.ConversationPhone)
	email := string(crm.ConversationEmailThread)

	var calls, threads db.Cond
	if s.ActivityType.IncludesCall() {
		calls = db.Eq(db.FieldType, phone)
	}
	if s.ActivityType.IncludesEmail() {
		threads = db.Eq(db.FieldType, email)
	}
	if !s.Window.IsZero() {
		gte, lte := s.Window.Bounds()
		if calls != nil {
			calls = db.And(calls, db.Range(db.FieldCreatedAt, gte, lte))
		}
		if threads != nil {
			threads = db.And(threads,
				db.Range(db.FieldLastMessageAt, gte, ""),
				db.Range(db.FieldFirstMessageAt, "", lte),
			)
		}
	}
	return db.Or(calls, threads)
}
