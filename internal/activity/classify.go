package activity

import (
	"fmt"
	"time"

	"github.com/addiskers/dispatch--sub001/internal/crm"
	"github.com/addiskers/dispatch--sub001/internal/filter"
	"github.com/addiskers/dispatch--sub001/internal/timeutil"
)

// Classifier maps conversations to activities under the
// activity-level parts of a filter: the date window, the type
// selector and the user selector. It holds no state.
type Classifier struct {
	Window   filter.Window
	Types    filter.ActivityType
	Users    filter.MultiSelect
	Location *time.Location
}

// NewClassifier builds a Classifier from a compiled filter.
// Activity dates are bucketed in loc; nil means time.Local.
func NewClassifier(spec filter.Spec, loc *time.Location) Classifier {
	if loc == nil {
		loc = time.Local
	}
	return Classifier{
		Window:   spec.Window,
		Types:    spec.ActivityType,
		Users:    spec.Users,
		Location: loc,
	}
}

// Classify returns the activities of one conversation. Phone
// calls yield at most one activity, email threads one per
// qualifying outgoing message, other types none.
func (c Classifier) Classify(
	conv crm.Conversation, contact crm.Contact,
) []Activity {
	switch conv.Type {
	case crm.ConversationPhone:
		if !c.Types.IncludesCall() {
			return nil
		}
		if a, ok := c.classifyCall(conv, contact); ok {
			return []Activity{a}
		}
	case crm.ConversationEmailThread:
		if !c.Types.IncludesEmail() {
			return nil
		}
		return c.classifyThread(conv, contact)
	}
	return nil
}

func (c Classifier) classifyCall(
	conv crm.Conversation, contact crm.Contact,
) (Activity, bool) {
	if conv.UserID == "" || !c.Users.Matches(conv.UserID) {
		return Activity{}, false
	}
	at, ok := c.inWindow(conv.CreatedAt)
	if !ok {
		return Activity{}, false
	}
	duration := conv.CallDuration()
	a := c.base(conv, contact, at)
	a.ID = conv.ID
	a.Type = TypeCall
	a.UserID = conv.UserID
	a.UserName = conv.UserName
	a.UserEmail = conv.UserEmail
	a.Duration = duration
	a.IsConnected = crm.IsConnected(duration)
	a.Direction = conv.Direction
	a.Outcome = conv.Outcome
	return a, true
}

func (c Classifier) classifyThread(
	conv crm.Conversation, contact crm.Contact,
) []Activity {
	var out []Activity
	for i, m := range conv.Messages {
		if !m.IsOutgoing() || m.SenderID == "" {
			continue
		}
		if crm.IsAutomatedEmail(m.Content()) {
			continue
		}
		if !c.Users.Matches(m.SenderID) {
			continue
		}
		at, ok := c.inWindow(m.Timestamp)
		if !ok {
			continue
		}

		a := c.base(conv, contact, at)
		a.ID = fmt.Sprintf("%s:%d", conv.ID, i)
		a.Type = TypeEmail
		a.UserID = m.SenderID
		a.UserName = firstNonEmpty(m.SenderName, conv.UserName)
		a.UserEmail = firstNonEmpty(m.SenderEmail, conv.UserEmail)
		a.Subject = firstNonEmpty(m.Subject, conv.Subject)
		a.Opened = m.Opened
		a.Bounced = m.Bounced
		if t, ok := timeutil.Parse(m.OpenedAt); ok {
			a.openedAt = t
			a.OpenedAt = timeutil.Format(t)
		}
		a.body = m.Content()
		a.isHTML = m.Body == "" && m.HTMLBody != ""
		out = append(out, a)
	}
	return out
}

// inWindow parses ts and checks it against the window. A
// timestamp that cannot be parsed is rejected whenever a window
// is set.
func (c Classifier) inWindow(ts string) (time.Time, bool) {
	t, ok := timeutil.Parse(ts)
	if !ok {
		return time.Time{}, c.Window.IsZero()
	}
	return t, c.Window.Contains(t)
}

func (c Classifier) base(
	conv crm.Conversation, contact crm.Contact, at time.Time,
) Activity {
	a := Activity{
		ConversationID: conv.ID,
		ContactID:      contact.ID,
		ContactName:    contact.DisplayName,
		ContactEmail:   contact.Email,
		Country:        contact.Country,
		Company:        contact.CustomFields.CompanyName,
		Market:         contact.CustomFields.Market,
		LeadLevel:      contact.CustomFields.LeadLevel,
		Category:       contact.CustomFields.ContactCategory,
		Territory:      contact.TerritoryName,
		at:             at,
	}
	if !at.IsZero() {
		loc := c.Location
		if loc == nil {
			loc = time.Local
		}
		a.Timestamp = timeutil.Format(at)
		a.Date = at.In(loc).Format(timeutil.DateLayout)
	}
	return a
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
