package analytics

import (
	"sort"

	"github.com/addiskers/dispatch--sub001/internal/crm"
	"github.com/addiskers/dispatch--sub001/internal/filter"
)

// Bucket is one value of a categorical breakdown.
type Bucket struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// ContactStats are aggregate statistics over a contact set. Rate
// and average fields are strings with one decimal so a zero
// denominator reads "0.0" like any other value.
type ContactStats struct {
	TotalContacts     int `json:"totalContacts"`
	AnalyticsContacts int `json:"analyticsContacts"`
	ActiveContacts    int `json:"activeContacts"`

	AvgTouchpoints           string `json:"avgTouchpoints"`
	AvgEmails                string `json:"avgEmails"`
	AvgCalls                 string `json:"avgCalls"`
	AvgConnectedCalls        string `json:"avgConnectedCalls"`
	AvgSampleSentTiming      string `json:"avgSampleSentTiming"`
	AvgFirstCallTiming       string `json:"avgFirstCallTiming"`
	TotalClientEmails        int    `json:"totalClientEmails"`
	AvgCallDuration          string `json:"avgCallDuration"`
	AvgConnectedCallDuration string `json:"avgConnectedCallDuration"`
	ResponseRate             string `json:"responseRate"`

	CountryBreakdown   []Bucket `json:"countryBreakdown"`
	TerritoryBreakdown []Bucket `json:"territoryBreakdown"`
	LeadLevelBreakdown []Bucket `json:"leadLevelBreakdown"`
	CategoryBreakdown  []Bucket `json:"categoryBreakdown"`
	PriorityCountries  []Bucket `json:"priorityCountries"`
}

// CalculateStats computes statistics over an already-filtered
// contact set. Breakdowns cover every contact; engagement
// averages and rates cover only contacts whose country passes
// narrow.
func CalculateStats(
	contacts []crm.Contact, narrow filter.MultiSelect,
) ContactStats {
	s := ContactStats{TotalContacts: len(contacts)}

	countries := make(map[string]int)
	territories := make(map[string]int)
	levels := make(map[string]int)
	categories := make(map[string]int)

	var n, touchpoints, emails, incoming int
	var calls, connected, callers, callDuration int
	var sampleSum, callSum, connDurSum float64
	var sampleN, callN, connDurN int
	for _, c := range contacts {
		countries[crm.Label(c.Country)]++
		territories[crm.Label(c.TerritoryName)]++
		levels[crm.Label(c.CustomFields.LeadLevel)]++
		categories[crm.Label(c.CustomFields.ContactCategory)]++
		if c.IsActive() {
			s.ActiveContacts++
		}

		if !narrow.Matches(c.Country) {
			continue
		}
		a := c.Analytics
		n++
		touchpoints += a.Touchpoints
		emails += a.OutgoingEmails
		incoming += a.IncomingEmails
		if a.OutgoingCalls > 0 {
			callers++
			calls += a.OutgoingCalls
			connected += a.ConnectedCalls
			callDuration += a.TotalCallDuration
		}
		if a.ConnectedCalls > 0 {
			if a.AvgConnectedCallDuration != nil {
				connDurSum += *a.AvgConnectedCallDuration *
					float64(a.ConnectedCalls)
			} else {
				connDurSum += float64(a.TotalCallDuration)
			}
			connDurN += a.ConnectedCalls
		}
		if h, ok := SampleTimingHours(c); ok {
			sampleSum += h
			sampleN++
		}
		if m, ok := FirstCallTimingMinutes(c); ok {
			callSum += m
			callN++
		}
	}

	s.AnalyticsContacts = n
	s.AvgTouchpoints = ratio(float64(touchpoints), n)
	s.AvgEmails = ratio(float64(emails), n)
	s.AvgCalls = ratio(float64(calls), callers)
	s.AvgConnectedCalls = ratio(float64(connected), callers)
	s.AvgSampleSentTiming = ratio(sampleSum, sampleN)
	s.AvgFirstCallTiming = ratio(callSum, callN)
	s.TotalClientEmails = incoming
	s.AvgCallDuration = ratio(float64(callDuration), calls)
	s.AvgConnectedCallDuration = ratio(connDurSum, connDurN)
	s.ResponseRate = ratio(float64(incoming)*100, emails)

	s.CountryBreakdown = breakdown(countries)
	s.TerritoryBreakdown = breakdown(territories)
	s.LeadLevelBreakdown = breakdown(levels)
	s.CategoryBreakdown = breakdown(categories)

	s.PriorityCountries = make([]Bucket, len(crm.PriorityCountries))
	for i, name := range crm.PriorityCountries {
		s.PriorityCountries[i] = Bucket{Name: name, Count: countries[name]}
	}
	return s
}

// breakdown sorts counts by count descending, then name.
func breakdown(counts map[string]int) []Bucket {
	out := make([]Bucket, 0, len(counts))
	for name, n := range counts {
		out = append(out, Bucket{Name: name, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Name < out[j].Name
	})
	return out
}
