package crm

import "strings"

// Literal thresholds that drive classification. They are part of
// the reporting contract and are not configurable.
const (
	// ConnectedCallSeconds: a call is connected when its duration
	// is strictly greater than this.
	ConnectedCallSeconds = 90

	// AutomatedPhraseMatches is how many AutomatedEmailPhrases a
	// body must contain to be treated as automated.
	AutomatedPhraseMatches = 4

	// MaxSampleTimingHours bounds the creation-to-sample delay.
	MaxSampleTimingHours = 8760

	// MaxFirstCallTimingMinutes bounds the creation-to-first-call
	// delay.
	MaxFirstCallTimingMinutes = 525600
)

// Safety caps on storage fetches, independent of pagination.
const (
	ConversationFetchLimit = 10000
	ContactFetchLimit      = 10000
	NarrowFetchLimit       = 1000
)

// AutomatedEmailPhrases fingerprint the sample-report template
// sent by the outbound automation.
var AutomatedEmailPhrases = [5]string{
	"thank you for your interest in our research",
	"please find the sample report attached",
	"this is an automatically generated email",
	"please do not reply to this email",
	"to unsubscribe from these emails",
}

// UnassignedPrefix marks a multi-select value as the unassigned
// bucket, e.g. "Unassigned (3)".
const UnassignedPrefix = "Unassigned"

// UnassignedLabel is the display name for missing values.
const UnassignedLabel = "Unassigned"

// Placeholders are the stored strings that mean "no value". A
// NULL or absent field is treated the same way.
var Placeholders = []string{"", "-", "NA", "na", "N/A", "n/a"}

// PriorityCountries is the watch list reported separately in
// contact analytics.
var PriorityCountries = []string{
	"United States",
	"United Kingdom",
	"Germany",
	"France",
	"Japan",
	"India",
	"China",
	"Canada",
}

// IsPlaceholder reports whether v is one of the Placeholders.
// Matching is exact: "Na" is a real value.
func IsPlaceholder(v string) bool {
	for _, p := range Placeholders {
		if v == p {
			return true
		}
	}
	return false
}

// IsConnected applies the connected-call threshold.
func IsConnected(durationSeconds int) bool {
	return durationSeconds > ConnectedCallSeconds
}

// IsAutomatedEmail reports whether body matches at least
// AutomatedPhraseMatches of the AutomatedEmailPhrases.
func IsAutomatedEmail(body string) bool {
	if body == "" {
		return false
	}
	lower := strings.ToLower(body)
	matches := 0
	for _, phrase := range AutomatedEmailPhrases {
		if strings.Contains(lower, phrase) {
			matches++
		}
	}
	return matches >= AutomatedPhraseMatches
}

// Label returns v, or UnassignedLabel when v is a placeholder.
func Label(v string) string {
	if IsPlaceholder(v) {
		return UnassignedLabel
	}
	return v
}
