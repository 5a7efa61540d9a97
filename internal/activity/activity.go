// Package activity turns conversations into canonical Email and
// Call activities and aggregates them into per-user rollups,
// daily buckets and summary metrics.
package activity

import (
	"math"
	"time"
)

// Type is the canonical activity kind.
type Type string

const (
	TypeEmail Type = "Email"
	TypeCall  Type = "Call"
)

// Activity is one outgoing email message or one phone call. It
// exists only for the duration of a request.
type Activity struct {
	ID             string `json:"id"`
	ConversationID string `json:"conversationId"`
	ContactID      int64  `json:"contactId"`

	UserID    string `json:"userId"`
	UserName  string `json:"userName"`
	UserEmail string `json:"userEmail"`

	// Date is the calendar day in the request location.
	Date      string `json:"activityDate"`
	Timestamp string `json:"timestamp"`
	Type      Type   `json:"activityType"`

	ContactName  string `json:"contactName"`
	ContactEmail string `json:"contactEmail"`
	Country      string `json:"country"`
	Company      string `json:"company"`
	Market       string `json:"market"`
	LeadLevel    string `json:"leadLevel"`
	Category     string `json:"category"`
	Territory    string `json:"territory"`

	// Call fields.
	Duration    int    `json:"duration,omitempty"`
	IsConnected bool   `json:"isConnected"`
	Direction   string `json:"direction,omitempty"`
	Outcome     string `json:"outcome,omitempty"`

	// Email fields.
	Subject  string `json:"subject,omitempty"`
	Opened   bool   `json:"opened"`
	Bounced  bool   `json:"bounced"`
	OpenedAt string `json:"openedAt,omitempty"`

	at       time.Time
	openedAt time.Time
	body     string
	isHTML   bool
}

// Time returns the parsed activity timestamp.
func (a Activity) Time() time.Time { return a.at }

// round1 rounds to one decimal place.
func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

// percent returns num/den*100 to one decimal, or 0 when den is 0.
func percent(num, den int) float64 {
	if den == 0 {
		return 0
	}
	return round1(float64(num) / float64(den) * 100)
}

// average returns sum/n to one decimal, or 0 when n is 0.
func average(sum, n int) float64 {
	if n == 0 {
		return 0
	}
	return round1(float64(sum) / float64(n))
}
