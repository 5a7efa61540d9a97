package analytics

import (
	"fmt"
	"math"

	"github.com/addiskers/dispatch--sub001/internal/crm"
	"github.com/addiskers/dispatch--sub001/internal/timeutil"
)

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

// format1 renders v with one decimal. NaN and infinities render
// as zero.
func format1(v float64) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		v = 0
	}
	return fmt.Sprintf("%.1f", v)
}

// ratio returns num/den formatted with one decimal, "0.0" when
// den is zero.
func ratio(num float64, den int) string {
	if den == 0 {
		return format1(0)
	}
	return format1(num / float64(den))
}

// SampleTimingHours returns the hours from contact creation to
// the first sample sent. ok is false unless the sample strictly
// postdates creation and the delay is at most
// crm.MaxSampleTimingHours.
func SampleTimingHours(c crm.Contact) (float64, bool) {
	created, ok1 := timeutil.Parse(c.CreatedAt)
	sent, ok2 := timeutil.Parse(c.Analytics.FirstSampleSentAt)
	if !ok1 || !ok2 {
		return 0, false
	}
	h := sent.Sub(created).Hours()
	if h <= 0 || h > crm.MaxSampleTimingHours {
		return 0, false
	}
	return h, true
}

// FirstCallTimingMinutes returns the minutes from contact
// creation to the first call, with the same rules as
// SampleTimingHours bounded by crm.MaxFirstCallTimingMinutes.
func FirstCallTimingMinutes(c crm.Contact) (float64, bool) {
	created, ok1 := timeutil.Parse(c.CreatedAt)
	called, ok2 := timeutil.Parse(c.Analytics.FirstCallAt)
	if !ok1 || !ok2 {
		return 0, false
	}
	m := called.Sub(created).Minutes()
	if m <= 0 || m > crm.MaxFirstCallTimingMinutes {
		return 0, false
	}
	return m, true
}
