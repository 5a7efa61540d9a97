package analytics

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/addiskers/dispatch--sub001/internal/crm"
	"github.com/addiskers/dispatch--sub001/internal/filter"
)

var seriesNow = time.Date(2024, 7, 15, 12, 0, 0, 0, time.UTC)

func seriesOpts(g Granularity) SeriesOptions {
	return SeriesOptions{Granularity: g, Now: seriesNow, Location: time.UTC}
}

func contactAt(id int64, owner, created string) crm.Contact {
	return crm.Contact{
		ID:        id,
		OwnerName: owner,
		CreatedAt: created,
	}
}

// flatten serializes rows and decodes them back to plain maps.
func flatten(t *testing.T, rows []Row) []map[string]any {
	t.Helper()
	data, err := json.Marshal(rows)
	require.NoError(t, err)
	var out []map[string]any
	require.NoError(t, json.Unmarshal(data, &out))
	return out
}

func TestParseChart(t *testing.T) {
	for _, c := range Charts {
		got, err := ParseChart(string(c))
		require.NoError(t, err)
		assert.Equal(t, c, got)
	}
	_, err := ParseChart("revenueByPlanet")
	assert.True(t, errors.Is(err, ErrUnknownChart))

	_, err = TimeSeries(nil, "revenueByPlanet", filter.Spec{},
		seriesOpts(Monthly))
	assert.True(t, errors.Is(err, ErrUnknownChart))
}

func TestParseGranularity(t *testing.T) {
	assert.Equal(t, Daily, ParseGranularity("daily"))
	assert.Equal(t, Daily, ParseGranularity("DAILY"))
	assert.Equal(t, Monthly, ParseGranularity(""))
	assert.Equal(t, Monthly, ParseGranularity("weekly"))
}

func TestPerformanceByOwnerBackfill(t *testing.T) {
	contacts := []crm.Contact{
		contactAt(1, "Ana", "2024-05-03T10:00:00Z"),
		contactAt(2, "Ben", "2024-05-04T10:00:00Z"),
		contactAt(3, "Ana", "2024-06-01T10:00:00Z"),
		contactAt(4, "Ana", "2024-06-20T10:00:00Z"),
	}
	rows, err := TimeSeries(contacts, ChartPerformanceByOwner,
		filter.Spec{}, seriesOpts(Monthly))
	require.NoError(t, err)

	want := []map[string]any{
		{"period": "2024-05", "total": 2.0, "owner_Ana": 1.0, "owner_Ben": 1.0},
		{"period": "2024-06", "total": 2.0, "owner_Ana": 2.0, "owner_Ben": 0.0},
	}
	if diff := cmp.Diff(want, flatten(t, rows)); diff != "" {
		t.Errorf("rows mismatch (-want +got):\n%s", diff)
	}
}

func TestDailyGranularity(t *testing.T) {
	contacts := []crm.Contact{
		contactAt(1, "Ana", "2024-06-01T10:00:00Z"),
		contactAt(2, "Ana", "2024-06-01T23:00:00Z"),
		contactAt(3, "Ana", "2024-06-03T01:00:00Z"),
	}
	rows, err := TimeSeries(contacts, ChartPerformanceByOwner,
		filter.Spec{}, seriesOpts(Daily))
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "2024-06-01", rows[0].Period)
	assert.Equal(t, 2, *rows[0].Total)
	assert.Equal(t, "2024-06-03", rows[1].Period)
}

func TestDefaultWindowExcludesOldAndUnparseable(t *testing.T) {
	contacts := []crm.Contact{
		contactAt(1, "Ana", "2023-07-14T10:00:00Z"),
		contactAt(2, "Ana", "2023-07-16T10:00:00Z"),
		contactAt(3, "Ana", "last tuesday"),
		contactAt(4, "Ana", ""),
		contactAt(5, "Ana", "2024-07-20T10:00:00Z"),
	}
	rows, err := TimeSeries(contacts, ChartPerformanceByOwner,
		filter.Spec{}, seriesOpts(Monthly))
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "2023-07", rows[0].Period)
	assert.Equal(t, 1, *rows[0].Total)
}

func TestDefaultWindow(t *testing.T) {
	w := DefaultWindow(seriesNow)
	assert.Equal(t, time.Date(2023, 7, 15, 12, 0, 0, 0, time.UTC), w.From)
	assert.Equal(t, seriesNow, w.To)
	assert.False(t, w.IsZero())
}

func TestExplicitWindowAndFilter(t *testing.T) {
	contacts := []crm.Contact{
		contactAt(1, "Ana", "2020-01-05T10:00:00Z"),
		contactAt(2, "Ben", "2020-01-06T10:00:00Z"),
		contactAt(3, "Ana", "2024-06-01T10:00:00Z"),
	}
	spec := filter.Spec{
		Selected: map[string]filter.MultiSelect{
			"owners": {Values: []string{"Ana"}},
		},
		Window: filter.Window{
			From: time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC),
			To:   time.Date(2020, 12, 31, 0, 0, 0, 0, time.UTC),
		},
	}
	rows, err := TimeSeries(contacts, ChartPerformanceByOwner, spec,
		seriesOpts(Monthly))
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, []string{"Ana"}, rows[0].Groups)
}

func TestAvgTouchpointsByOwner(t *testing.T) {
	a := contactAt(1, "Ana", "2024-06-01T10:00:00Z")
	a.Analytics = crm.Analytics{OutgoingEmails: 3, OutgoingCalls: 1}
	b := contactAt(2, "Ana", "2024-06-02T10:00:00Z")
	b.Analytics = crm.Analytics{OutgoingEmails: 4, OutgoingCalls: 0}

	rows, err := TimeSeries([]crm.Contact{a, b},
		ChartAvgTouchpointsByOwner, filter.Spec{}, seriesOpts(Monthly))
	require.NoError(t, err)
	got := flatten(t, rows)
	require.Len(t, got, 1)
	assert.Equal(t, 3.5, got[0]["owner_Ana_emails"])
	assert.Equal(t, 0.5, got[0]["owner_Ana_calls"])
	assert.NotContains(t, got[0], "total")
}

func TestResponseRateByOwner(t *testing.T) {
	a := contactAt(1, "Ana", "2024-06-01T10:00:00Z")
	a.Analytics = crm.Analytics{OutgoingEmails: 3, IncomingEmails: 1}
	b := contactAt(2, "Ben", "2024-06-01T10:00:00Z")
	b.Analytics = crm.Analytics{IncomingEmails: 2}

	rows, err := TimeSeries([]crm.Contact{a, b},
		ChartResponseRateByOwner, filter.Spec{}, seriesOpts(Monthly))
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, 33.3, rows[0].Value("Ana", ""))
	assert.Equal(t, 0.0, rows[0].Value("Ben", ""), "no outgoing email")
}

func TestTimingChartsValidityWindow(t *testing.T) {
	created := "2024-06-01T00:00:00Z"
	valid := contactAt(1, "Ana", created)
	valid.Analytics.FirstSampleSentAt = "2024-06-01T10:00:00Z"
	valid.Analytics.FirstCallAt = "2024-06-01T00:30:00Z"

	before := contactAt(2, "Ana", created)
	before.Analytics.FirstSampleSentAt = "2024-05-31T10:00:00Z"
	before.Analytics.FirstCallAt = "2024-06-01T00:00:00Z"

	tooLate := contactAt(3, "Ana", created)
	tooLate.Analytics.FirstSampleSentAt = "2025-06-03T00:00:00Z"

	other := contactAt(4, "Ben", created)
	other.Analytics.FirstSampleSentAt = "2024-06-01T20:00:00Z"

	contacts := []crm.Contact{valid, before, tooLate, other}

	rows, err := TimeSeries(contacts, ChartAvgSampleTimingByOwner,
		filter.Spec{}, seriesOpts(Monthly))
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, 10.0, rows[0].Value("Ana", ""),
		"out-of-window values are excluded, not clamped")
	assert.Equal(t, 20.0, rows[0].Value("Ben", ""))

	rows, err = TimeSeries(contacts, ChartAvgFirstCallTimingByOwner,
		filter.Spec{}, seriesOpts(Monthly))
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, []string{"Ana"}, rows[0].Groups)
	assert.Equal(t, 30.0, rows[0].Value("Ana", ""))
}

func TestCategoricalCharts(t *testing.T) {
	mk := func(id int64, level, category, territory, created string) crm.Contact {
		c := contactAt(id, "Ana", created)
		c.CustomFields.LeadLevel = level
		c.CustomFields.ContactCategory = category
		c.TerritoryName = territory
		return c
	}
	contacts := []crm.Contact{
		mk(1, "Hot", "Enterprise", "North America", "2024-05-01T00:00:00Z"),
		mk(2, "N/A", "SMB", "Europe", "2024-06-01T00:00:00Z"),
		mk(3, "Hot", "", "-", "2024-06-02T00:00:00Z"),
	}

	rows, err := TimeSeries(contacts, ChartLeadLevelsByOwner,
		filter.Spec{}, seriesOpts(Monthly))
	require.NoError(t, err)
	got := flatten(t, rows)
	assert.Equal(t, map[string]any{
		"period": "2024-06", "level_Hot": 1.0, "level_Unassigned": 1.0,
	}, got[1])

	rows, err = TimeSeries(contacts, ChartContactCategories,
		filter.Spec{}, seriesOpts(Monthly))
	require.NoError(t, err)
	got = flatten(t, rows)
	assert.Equal(t, map[string]any{
		"period":              "2024-05",
		"category_Enterprise": 1.0,
		"category_SMB":        0.0,
		"category_Unassigned": 0.0,
	}, got[0])
}

func TestTerritoryDistributionTopFive(t *testing.T) {
	var contacts []crm.Contact
	add := func(territory string, n int, created string) {
		for range n {
			c := contactAt(int64(len(contacts)+1), "Ana", created)
			c.TerritoryName = territory
			contacts = append(contacts, c)
		}
	}
	// Counts over the whole set decide the top five even though
	// "Tiny" leads in June.
	add("A", 5, "2024-05-01T00:00:00Z")
	add("B", 4, "2024-05-01T00:00:00Z")
	add("C", 3, "2024-05-01T00:00:00Z")
	add("D", 2, "2024-05-01T00:00:00Z")
	add("E", 2, "2024-05-01T00:00:00Z")
	add("Tiny", 1, "2024-06-01T00:00:00Z")
	add("A", 1, "2024-06-01T00:00:00Z")

	rows, err := TimeSeries(contacts, ChartTerritoryDistribution,
		filter.Spec{}, seriesOpts(Monthly))
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, []string{"A", "B", "C", "D", "E"}, rows[0].Groups)
	got := flatten(t, rows)
	assert.Equal(t, 1.0, got[1]["territory_A"])
	assert.Equal(t, 0.0, got[1]["territory_E"])
	assert.NotContains(t, got[1], "territory_Tiny")
}

func TestRowKeysSanitizeAndDisambiguate(t *testing.T) {
	assert.Equal(t, "Jane_O_Neil", SanitizeKey("Jane O'Neil"))
	assert.Equal(t, "a_b_c", SanitizeKey("a.b-c"))

	r := Row{
		Period:  "2024-06",
		Prefix:  "owner_",
		Groups:  []string{"A B", "A-B"},
		Metrics: []string{""},
		Values: map[string]map[string]float64{
			"A B": {"": 1},
			"A-B": {"": 2},
		},
	}
	data, err := json.Marshal(r)
	require.NoError(t, err)
	assert.JSONEq(t,
		`{"period":"2024-06","owner_A_B":1,"owner_A_B_2":2}`,
		string(data))
}

func TestEmptySeries(t *testing.T) {
	rows, err := TimeSeries(nil, ChartContactCategories,
		filter.Spec{}, seriesOpts(Monthly))
	require.NoError(t, err)
	assert.NotNil(t, rows)
	assert.Empty(t, rows)
}
