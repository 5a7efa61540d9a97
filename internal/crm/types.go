// Package crm defines the contact and conversation records read
// by the analytics pipeline.
package crm

import "strings"

// ConversationType discriminates the Conversation variants.
type ConversationType string

const (
	ConversationPhone       ConversationType = "phone"
	ConversationEmailThread ConversationType = "email_thread"
	ConversationNote        ConversationType = "note"
	ConversationChat        ConversationType = "chat"
)

// Message and call directions.
const (
	DirectionIncoming = "incoming"
	DirectionOutgoing = "outgoing"
)

// CustomFields holds the free-form custom field map synced from
// the upstream CRM. Keys follow the upstream cf_ naming.
type CustomFields struct {
	LeadLevel           string `json:"cf_lead_level,omitempty"`
	ContactCategory     string `json:"cf_contact_category,omitempty"`
	CustomTags          string `json:"cf_custom_tags,omitempty"`
	CompanyName         string `json:"cf_company_name,omitempty"`
	Market              string `json:"cf_market,omitempty"`
	ResearchRequirement string `json:"cf_research_requirement,omitempty"`
}

// UserActivity is one user's rollup inside a contact snapshot.
type UserActivity struct {
	UserName       string `json:"user_name,omitempty"`
	UserEmail      string `json:"user_email,omitempty"`
	Emails         int    `json:"emails"`
	Calls          int    `json:"calls"`
	ConnectedCalls int    `json:"connected_calls"`
	LastActivityAt string `json:"last_activity_at,omitempty"`
}

// Analytics is the crm_analytics snapshot embedded in a contact.
type Analytics struct {
	OutgoingEmails    int `json:"outgoing_emails"`
	IncomingEmails    int `json:"incoming_emails"`
	OutgoingCalls     int `json:"outgoing_calls"`
	ConnectedCalls    int `json:"connected_calls"`
	TotalCallDuration int `json:"total_call_duration"`
	// AvgConnectedCallDuration is absent on snapshots written
	// before connected-call durations were tracked.
	AvgConnectedCallDuration *float64 `json:"avg_connected_call_duration,omitempty"`
	Touchpoints              int      `json:"touchpoints"`

	FirstSampleSentAt string `json:"first_sample_sent_at,omitempty"`
	FirstCallAt       string `json:"first_call_at,omitempty"`
	FirstContactAt    string `json:"first_contact_at,omitempty"`
	FirstContactMode  string `json:"first_contact_mode,omitempty"`
	LastContactAt     string `json:"last_contact_at,omitempty"`
	LastContactMode   string `json:"last_contact_mode,omitempty"`

	Users map[string]UserActivity `json:"users,omitempty"`
}

// Contact is a person record. It is read-only to the pipeline.
type Contact struct {
	ID                int64        `json:"id"`
	DisplayName       string       `json:"display_name"`
	Email             string       `json:"email"`
	Country           string       `json:"country"`
	TerritoryName     string       `json:"territory_name"`
	OwnerName         string       `json:"owner_name"`
	StatusName        string       `json:"status_name"`
	CustomFields      CustomFields `json:"custom_field"`
	CreatedAt         string       `json:"created_at"`
	LastContactedAt   string       `json:"last_contacted,omitempty"`
	LastContactedMode string       `json:"last_contacted_mode,omitempty"`
	Analytics         Analytics    `json:"crm_analytics"`
}

// IsActive reports whether the contact has replied at least once
// or taken at least one connected call.
func (c Contact) IsActive() bool {
	return c.Analytics.IncomingEmails >= 1 ||
		c.Analytics.ConnectedCalls >= 1
}

// Attachment is a file attached to an email message.
type Attachment struct {
	FileName    string `json:"file_name"`
	ContentType string `json:"content_type,omitempty"`
	Size        int64  `json:"size,omitempty"`
}

// Message is one email inside an email thread.
type Message struct {
	ID          string       `json:"id,omitempty"`
	Direction   string       `json:"direction"`
	Timestamp   string       `json:"timestamp"`
	SenderID    string       `json:"sender_id,omitempty"`
	SenderName  string       `json:"sender_name,omitempty"`
	SenderEmail string       `json:"sender_email,omitempty"`
	Subject     string       `json:"subject,omitempty"`
	Body        string       `json:"body,omitempty"`
	HTMLBody    string       `json:"html_body,omitempty"`
	Opened      bool         `json:"opened"`
	Clicked     bool         `json:"clicked"`
	Bounced     bool         `json:"bounced"`
	OpenedAt    string       `json:"opened_at,omitempty"`
	Attachments []Attachment `json:"attachments,omitempty"`
}

// Content returns the plain body, falling back to the HTML body.
func (m Message) Content() string {
	if m.Body != "" {
		return m.Body
	}
	return m.HTMLBody
}

// IsOutgoing reports whether the message was sent by a user.
func (m Message) IsOutgoing() bool {
	return strings.EqualFold(m.Direction, DirectionOutgoing)
}

// IsIncoming reports whether the message came from the contact.
func (m Message) IsIncoming() bool {
	return strings.EqualFold(m.Direction, DirectionIncoming)
}

// Conversation is one interaction thread with a contact.
type Conversation struct {
	ID        string           `json:"id"`
	ContactID int64            `json:"contact_id"`
	Type      ConversationType `json:"type"`
	UserID    string           `json:"user_id,omitempty"`
	UserName  string           `json:"user_name,omitempty"`
	UserEmail string           `json:"user_email,omitempty"`

	// Phone fields.
	Duration  *int   `json:"duration,omitempty"`
	Direction string `json:"direction,omitempty"`
	Outcome   string `json:"outcome,omitempty"`
	CreatedAt string `json:"created_at,omitempty"`

	// Email-thread fields.
	Subject        string    `json:"subject,omitempty"`
	Messages       []Message `json:"messages,omitempty"`
	FirstMessageAt string    `json:"first_message_at,omitempty"`
	LastMessageAt  string    `json:"last_message_at,omitempty"`
}

// CallDuration returns the call length in seconds, 0 when absent.
func (c Conversation) CallDuration() int {
	if c.Duration == nil || *c.Duration < 0 {
		return 0
	}
	return *c.Duration
}

// IsOutgoingCall reports whether a phone conversation was placed
// by a user. A missing direction counts as outgoing.
func (c Conversation) IsOutgoingCall() bool {
	return c.Type == ConversationPhone &&
		!strings.EqualFold(c.Direction, DirectionIncoming)
}
