package activity

import (
	"time"

	"github.com/addiskers/dispatch--sub001/internal/crm"
	"github.com/addiskers/dispatch--sub001/internal/timeutil"
)

// Contact modes recorded on first/last contact markers.
const (
	ModeEmail = "email"
	ModeCall  = "call"
)

type marker struct {
	at   time.Time
	mode string
}

func (m *marker) earliest(t time.Time, mode string) {
	if m.at.IsZero() || t.Before(m.at) {
		m.at, m.mode = t, mode
	}
}

func (m *marker) latest(t time.Time, mode string) {
	if m.at.IsZero() || t.After(m.at) {
		m.at, m.mode = t, mode
	}
}

// BuildSnapshot computes the crm_analytics snapshot of a contact
// from its conversations. Automated emails count as outgoing
// emails here; samples are outgoing messages with attachments.
func BuildSnapshot(convs []crm.Conversation) crm.Analytics {
	var a crm.Analytics
	var firstSample, firstCall, firstContact, lastContact marker
	var connectedSum int
	users := make(map[string]*crm.UserActivity)
	lastActivity := make(map[string]time.Time)

	touch := func(id, name, email string, at time.Time) *crm.UserActivity {
		u := users[id]
		if u == nil {
			u = &crm.UserActivity{}
			users[id] = u
		}
		if u.UserName == "" {
			u.UserName = name
		}
		if u.UserEmail == "" {
			u.UserEmail = email
		}
		if at.After(lastActivity[id]) {
			lastActivity[id] = at
			u.LastActivityAt = timeutil.Format(at)
		}
		return u
	}

	for _, conv := range convs {
		switch conv.Type {
		case crm.ConversationPhone:
			d := conv.CallDuration()
			a.TotalCallDuration += d
			if crm.IsConnected(d) {
				a.ConnectedCalls++
				connectedSum += d
			}
			if !conv.IsOutgoingCall() {
				continue
			}
			a.OutgoingCalls++
			at, ok := timeutil.Parse(conv.CreatedAt)
			if ok {
				firstCall.earliest(at, ModeCall)
				firstContact.earliest(at, ModeCall)
				lastContact.latest(at, ModeCall)
			}
			if conv.UserID != "" {
				u := touch(conv.UserID, conv.UserName, conv.UserEmail, at)
				u.Calls++
				if crm.IsConnected(d) {
					u.ConnectedCalls++
				}
			}

		case crm.ConversationEmailThread:
			for _, m := range conv.Messages {
				at, ok := timeutil.Parse(m.Timestamp)
				switch {
				case m.IsIncoming():
					a.IncomingEmails++
				case m.IsOutgoing():
					a.OutgoingEmails++
					if ok {
						firstContact.earliest(at, ModeEmail)
						lastContact.latest(at, ModeEmail)
						if len(m.Attachments) > 0 {
							firstSample.earliest(at, ModeEmail)
						}
					}
					if m.SenderID != "" {
						u := touch(m.SenderID,
							firstNonEmpty(m.SenderName, conv.UserName),
							firstNonEmpty(m.SenderEmail, conv.UserEmail),
							at)
						u.Emails++
					}
				}
			}
		}
	}

	a.Touchpoints = a.OutgoingEmails + a.OutgoingCalls
	if a.ConnectedCalls > 0 {
		avg := round1(float64(connectedSum) / float64(a.ConnectedCalls))
		a.AvgConnectedCallDuration = &avg
	}
	a.FirstSampleSentAt = timeutil.Format(firstSample.at)
	a.FirstCallAt = timeutil.Format(firstCall.at)
	a.FirstContactAt = timeutil.Format(firstContact.at)
	a.FirstContactMode = firstContact.mode
	a.LastContactAt = timeutil.Format(lastContact.at)
	a.LastContactMode = lastContact.mode
	if len(users) > 0 {
		a.Users = make(map[string]crm.UserActivity, len(users))
		for id, u := range users {
			a.Users[id] = *u
		}
	}
	return a
}

// ApplySnapshot recomputes the snapshot and the last-contacted
// markers of c from its conversations.
func ApplySnapshot(c *crm.Contact, convs []crm.Conversation) {
	c.Analytics = BuildSnapshot(convs)
	if c.Analytics.LastContactAt != "" {
		c.LastContactedAt = c.Analytics.LastContactAt
		c.LastContactedMode = c.Analytics.LastContactMode
	}
}
