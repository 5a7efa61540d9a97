package filter

import (
	"net/url"
	"strings"
	"time"

	"github.com/google/shlex"
	"github.com/tidwall/gjson"

	"github.com/addiskers/dispatch--sub001/internal/crm"
	"github.com/addiskers/dispatch--sub001/internal/timeutil"
)

// Query parameter names shared with the HTTP layer.
const (
	ParamUsers              = "users"
	ParamAnalyticsCountries = "analyticsCountries"
	ParamStartDate          = "startDate"
	ParamEndDate            = "endDate"
	ParamActivityType       = "activityType"
	ParamSearch             = "search"
	ParamIsActive           = "isActive"
)

// Options tune compilation for a particular query path.
type Options struct {
	// DefaultToday substitutes the current local calendar day
	// when no valid date bound is supplied.
	DefaultToday bool
	// Now returns the current time. Nil means time.Now.
	Now func() time.Time
	// Location is used for date-only input and the default day.
	// Nil means time.Local.
	Location *time.Location
}

func (o Options) now() time.Time {
	if o.Now != nil {
		return o.Now()
	}
	return time.Now()
}

func (o Options) location() *time.Location {
	if o.Location != nil {
		return o.Location
	}
	return time.Local
}

// Compile builds a Spec from raw query parameters. It never
// fails: malformed multi-select JSON compiles to no filter and
// unparseable dates are dropped.
func Compile(q url.Values, opts Options) Spec {
	s := Spec{
		Selected:           make(map[string]MultiSelect),
		Users:              ParseMultiSelect(q.Get(ParamUsers)),
		AnalyticsCountries: ParseMultiSelect(q.Get(ParamAnalyticsCountries)),
		ActivityType:       ParseActivityType(q.Get(ParamActivityType)),
		Search:             parseSearch(q.Get(ParamSearch)),
		Active:             ParseActiveness(q.Get(ParamIsActive)),
	}
	for _, d := range Dimensions {
		if m := ParseMultiSelect(q.Get(d.Param)); m.Active() {
			s.Selected[d.Param] = m
		}
	}

	loc := opts.location()
	if t, ok := timeutil.ParseIn(q.Get(ParamStartDate), loc); ok {
		s.Window.From = t
	}
	if raw := q.Get(ParamEndDate); raw != "" {
		if t, ok := timeutil.ParseIn(raw, loc); ok {
			if timeutil.IsDateOnly(raw) {
				t = t.AddDate(0, 0, 1).Add(-time.Millisecond)
			}
			s.Window.To = t
		}
	}
	if s.Window.IsZero() && opts.DefaultToday {
		s.Window = Today(opts.now().In(loc))
	}
	return s
}

// Today returns the default activity window for the day holding
// now: local midnight through the next midnight, inclusive.
func Today(now time.Time) Window {
	from := timeutil.StartOfDay(now)
	return Window{From: from, To: from.AddDate(0, 0, 1)}
}

// ParseMultiSelect decodes a JSON array of strings. Anything
// that is not a valid array yields the zero selection. Values
// starting with crm.UnassignedPrefix select the unassigned
// bucket.
func ParseMultiSelect(raw string) MultiSelect {
	var m MultiSelect
	raw = strings.TrimSpace(raw)
	if raw == "" || !gjson.Valid(raw) {
		return m
	}
	arr := gjson.Parse(raw)
	if !arr.IsArray() {
		return m
	}
	seen := make(map[string]bool)
	arr.ForEach(func(_, v gjson.Result) bool {
		if v.Type != gjson.String && v.Type != gjson.Number {
			return true
		}
		val := v.String()
		switch {
		case strings.HasPrefix(val, crm.UnassignedPrefix):
			m.Unassigned = true
		case !seen[val]:
			seen[val] = true
			m.Values = append(m.Values, val)
		}
		return true
	})
	return m
}

// parseSearch splits search text into terms with shell-style
// quoting. Unbalanced quotes fall back to the whole string.
func parseSearch(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	terms, err := shlex.Split(raw)
	if err != nil {
		return []string{raw}
	}
	out := terms[:0]
	for _, t := range terms {
		if t != "" {
			out = append(out, t)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
