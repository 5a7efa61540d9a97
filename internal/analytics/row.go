package analytics

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
)

// Row is one period of a chart series. Values is keyed by raw
// dimension value, then metric name. Keys are sanitized and
// flattened only when the row is serialized.
type Row struct {
	Period  string
	Total   *int
	Prefix  string
	Groups  []string
	Metrics []string
	Values  map[string]map[string]float64
}

// Value returns one metric of one dimension value.
func (r Row) Value(group, metric string) float64 {
	return r.Values[group][metric]
}

// SanitizeKey replaces every character outside [A-Za-z0-9] with
// an underscore.
func SanitizeKey(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z',
			r >= '0' && r <= '9':
			return r
		}
		return '_'
	}, s)
}

// Keys returns the flattened field names of the row paired with
// their group and metric, in output order. Colliding sanitized
// names get a numeric suffix in group order.
func (r Row) Keys() []FlatKey {
	used := map[string]bool{"period": true, "total": true}
	var keys []FlatKey
	for _, g := range r.Groups {
		base := r.Prefix + SanitizeKey(g)
		name := base
		for n := 2; used[name]; n++ {
			name = base + "_" + strconv.Itoa(n)
		}
		used[name] = true
		for _, m := range r.Metrics {
			k := name
			if m != "" {
				k += "_" + m
			}
			keys = append(keys, FlatKey{Name: k, Group: g, Metric: m})
		}
	}
	return keys
}

// FlatKey maps one serialized field back to its group and metric.
type FlatKey struct {
	Name   string
	Group  string
	Metric string
}

// MarshalJSON writes {"period": ..., "total": ..., <keys>...}
// with keys in group order.
func (r Row) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(`{"period":`)
	p, err := json.Marshal(r.Period)
	if err != nil {
		return nil, err
	}
	buf.Write(p)
	if r.Total != nil {
		buf.WriteString(`,"total":`)
		buf.WriteString(strconv.Itoa(*r.Total))
	}
	for _, k := range r.Keys() {
		name, err := json.Marshal(k.Name)
		if err != nil {
			return nil, err
		}
		buf.WriteByte(',')
		buf.Write(name)
		buf.WriteByte(':')
		buf.WriteString(strconv.FormatFloat(
			r.Value(k.Group, k.Metric), 'f', -1, 64,
		))
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
