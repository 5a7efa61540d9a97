// Package analytics computes contact-level statistics and
// period-bucketed chart series over a filtered contact set.
package analytics

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/addiskers/dispatch--sub001/internal/crm"
	"github.com/addiskers/dispatch--sub001/internal/filter"
	"github.com/addiskers/dispatch--sub001/internal/timeutil"
)

// ErrUnknownChart is returned for chart names with no aggregation.
var ErrUnknownChart = errors.New("unknown chart type")

// Chart names a time-series aggregation.
type Chart string

const (
	ChartPerformanceByOwner        Chart = "performanceByOwner"
	ChartAvgTouchpointsByOwner     Chart = "avgTouchpointsByOwner"
	ChartResponseRateByOwner       Chart = "responseRateByOwner"
	ChartAvgSampleTimingByOwner    Chart = "avgSampleTimingByOwner"
	ChartAvgFirstCallTimingByOwner Chart = "avgFirstCallTimingByOwner"
	ChartLeadLevelsByOwner         Chart = "leadLevelsByOwner"
	ChartContactCategories         Chart = "contactCategories"
	ChartTerritoryDistribution     Chart = "territoryDistribution"
)

// Charts lists every supported chart.
var Charts = []Chart{
	ChartPerformanceByOwner,
	ChartAvgTouchpointsByOwner,
	ChartResponseRateByOwner,
	ChartAvgSampleTimingByOwner,
	ChartAvgFirstCallTimingByOwner,
	ChartLeadLevelsByOwner,
	ChartContactCategories,
	ChartTerritoryDistribution,
}

// ParseChart validates a chart name.
func ParseChart(s string) (Chart, error) {
	for _, c := range Charts {
		if string(c) == s {
			return c, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownChart, s)
}

// Granularity is the period size of a series.
type Granularity string

const (
	Daily   Granularity = "daily"
	Monthly Granularity = "monthly"
)

// ParseGranularity defaults to Monthly.
func ParseGranularity(s string) Granularity {
	if strings.EqualFold(strings.TrimSpace(s), string(Daily)) {
		return Daily
	}
	return Monthly
}

func (g Granularity) layout() string {
	if g == Daily {
		return timeutil.DateLayout
	}
	return "2006-01"
}

// Top territories kept by territoryDistribution.
const topTerritories = 5

// SeriesOptions control bucketing.
type SeriesOptions struct {
	Granularity Granularity
	// Now anchors the default trailing window. Zero means
	// time.Now.
	Now time.Time
	// Location for period boundaries. Nil means time.Local.
	Location *time.Location
}

// accumulator gathers one metric for one dimension value in one
// period.
type accumulator struct {
	sum   float64
	count int
}

func (a *accumulator) add(v float64) {
	a.sum += v
	a.count++
}

func (a *accumulator) mean() float64 {
	if a.count == 0 {
		return 0
	}
	return round1(a.sum / float64(a.count))
}

// period is the working form of a Row: dimension value -> metric
// -> accumulator.
type period struct {
	total  int
	groups map[string]map[string]*accumulator
}

func (p *period) acc(group, metric string) *accumulator {
	m := p.groups[group]
	if m == nil {
		m = make(map[string]*accumulator)
		p.groups[group] = m
	}
	a := m[metric]
	if a == nil {
		a = &accumulator{}
		m[metric] = a
	}
	return a
}

// chartDef describes how one chart folds a contact into a period
// and how the period is reduced to values.
type chartDef struct {
	prefix  string
	metrics []string
	total   bool
	add     func(p *period, c crm.Contact)
	value   func(m map[string]*accumulator, metric string) float64
}

func countValue(m map[string]*accumulator, metric string) float64 {
	if a := m[metric]; a != nil {
		return a.sum
	}
	return 0
}

func meanValue(m map[string]*accumulator, metric string) float64 {
	if a := m[metric]; a != nil {
		return a.mean()
	}
	return 0
}

func countBy(value func(crm.Contact) string) func(*period, crm.Contact) {
	return func(p *period, c crm.Contact) {
		p.acc(crm.Label(value(c)), "").add(1)
	}
}

func owner(c crm.Contact) string { return c.OwnerName }

var charts = map[Chart]chartDef{
	ChartPerformanceByOwner: {
		prefix:  "owner_",
		metrics: []string{""},
		total:   true,
		add:     countBy(owner),
		value:   countValue,
	},
	ChartAvgTouchpointsByOwner: {
		prefix:  "owner_",
		metrics: []string{"emails", "calls"},
		add: func(p *period, c crm.Contact) {
			g := crm.Label(c.OwnerName)
			p.acc(g, "emails").add(float64(c.Analytics.OutgoingEmails))
			p.acc(g, "calls").add(float64(c.Analytics.OutgoingCalls))
		},
		value: meanValue,
	},
	ChartResponseRateByOwner: {
		prefix:  "owner_",
		metrics: []string{""},
		add: func(p *period, c crm.Contact) {
			g := crm.Label(c.OwnerName)
			p.acc(g, "in").add(float64(c.Analytics.IncomingEmails))
			p.acc(g, "out").add(float64(c.Analytics.OutgoingEmails))
		},
		value: func(m map[string]*accumulator, _ string) float64 {
			out := countValue(m, "out")
			if out == 0 {
				return 0
			}
			return round1(countValue(m, "in") / out * 100)
		},
	},
	ChartAvgSampleTimingByOwner: {
		prefix:  "owner_",
		metrics: []string{""},
		add: func(p *period, c crm.Contact) {
			if h, ok := SampleTimingHours(c); ok {
				p.acc(crm.Label(c.OwnerName), "").add(h)
			}
		},
		value: meanValue,
	},
	ChartAvgFirstCallTimingByOwner: {
		prefix:  "owner_",
		metrics: []string{""},
		add: func(p *period, c crm.Contact) {
			if m, ok := FirstCallTimingMinutes(c); ok {
				p.acc(crm.Label(c.OwnerName), "").add(m)
			}
		},
		value: meanValue,
	},
	ChartLeadLevelsByOwner: {
		prefix:  "level_",
		metrics: []string{""},
		add: countBy(func(c crm.Contact) string {
			return c.CustomFields.LeadLevel
		}),
		value: countValue,
	},
	ChartContactCategories: {
		prefix:  "category_",
		metrics: []string{""},
		add: countBy(func(c crm.Contact) string {
			return c.CustomFields.ContactCategory
		}),
		value: countValue,
	},
	ChartTerritoryDistribution: {
		prefix:  "territory_",
		metrics: []string{""},
		add: countBy(func(c crm.Contact) string {
			return c.TerritoryName
		}),
		value: countValue,
	},
}

// DefaultWindow is the chart window used when a request gives no
// dates: the twelve months ending at now.
func DefaultWindow(now time.Time) filter.Window {
	return filter.Window{From: now.AddDate(-1, 0, 0), To: now}
}

// TimeSeries buckets the contacts matching spec by creation
// period and reduces each bucket per dimension value. Contacts
// are bucketed only when their creation time parses and falls in
// spec.Window, or in the trailing 12 months when no window is
// set. Every row carries the same key set.
func TimeSeries(
	contacts []crm.Contact, chart Chart, spec filter.Spec,
	opts SeriesOptions,
) ([]Row, error) {
	def, ok := charts[chart]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownChart, chart)
	}

	loc := opts.Location
	if loc == nil {
		loc = time.Local
	}
	now := opts.Now
	if now.IsZero() {
		now = time.Now()
	}
	window := spec.Window
	if window.IsZero() {
		window = DefaultWindow(now)
	}
	layout := opts.Granularity.layout()

	type dated struct {
		c   crm.Contact
		key string
	}
	var in []dated
	for _, c := range contacts {
		if !spec.MatchContact(c) {
			continue
		}
		t, ok := timeutil.Parse(c.CreatedAt)
		if !ok || !window.Contains(t) {
			continue
		}
		in = append(in, dated{c, t.In(loc).Format(layout)})
	}

	var keep map[string]bool
	if chart == ChartTerritoryDistribution {
		all := make([]crm.Contact, len(in))
		for i, d := range in {
			all[i] = d.c
		}
		keep = topValues(all, func(c crm.Contact) string {
			return crm.Label(c.TerritoryName)
		}, topTerritories)
	}

	periods := make(map[string]*period)
	for _, d := range in {
		if keep != nil && !keep[crm.Label(d.c.TerritoryName)] {
			continue
		}
		p := periods[d.key]
		if p == nil {
			p = &period{groups: make(map[string]map[string]*accumulator)}
			periods[d.key] = p
		}
		p.total++
		def.add(p, d.c)
	}

	groupSet := make(map[string]bool)
	for _, p := range periods {
		for g := range p.groups {
			groupSet[g] = true
		}
	}
	groups := make([]string, 0, len(groupSet))
	for g := range groupSet {
		groups = append(groups, g)
	}
	sort.Strings(groups)

	rows := make([]Row, 0, len(periods))
	for key, p := range periods {
		row := Row{
			Period:  key,
			Prefix:  def.prefix,
			Groups:  groups,
			Metrics: def.metrics,
			Values:  make(map[string]map[string]float64, len(groups)),
		}
		if def.total {
			total := p.total
			row.Total = &total
		}
		for _, g := range groups {
			vals := make(map[string]float64, len(def.metrics))
			for _, m := range def.metrics {
				vals[m] = def.value(p.groups[g], m)
			}
			row.Values[g] = vals
		}
		rows = append(rows, row)
	}
	sort.Slice(rows, func(i, j int) bool {
		return rows[i].Period < rows[j].Period
	})
	return rows, nil
}

// topValues returns the n most frequent values, ties broken by
// value.
func topValues(
	contacts []crm.Contact, value func(crm.Contact) string, n int,
) map[string]bool {
	counts := make(map[string]int)
	for _, c := range contacts {
		counts[value(c)]++
	}
	vals := make([]string, 0, len(counts))
	for v := range counts {
		vals = append(vals, v)
	}
	sort.Slice(vals, func(i, j int) bool {
		if counts[vals[i]] != counts[vals[j]] {
			return counts[vals[i]] > counts[vals[j]]
		}
		return vals[i] < vals[j]
	})
	if len(vals) > n {
		vals = vals[:n]
	}
	keep := make(map[string]bool, len(vals))
	for _, v := range vals {
		keep[v] = true
	}
	return keep
}
