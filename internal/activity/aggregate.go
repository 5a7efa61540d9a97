package activity

import (
	"sort"
	"strings"
	"time"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
)

// previewLen caps the plain-text body preview in email details.
const previewLen = 200

// Summary holds the global totals of an activity report.
type Summary struct {
	TotalUsers        int     `json:"totalUsers"`
	TotalActivities   int     `json:"totalActivities"`
	TotalEmails       int     `json:"totalEmails"`
	TotalCalls        int     `json:"totalCalls"`
	ConnectedCalls    int     `json:"connectedCalls"`
	NotConnectedCalls int     `json:"notConnectedCalls"`
	UniqueContacts    int     `json:"uniqueContacts"`
	TotalCallDuration int     `json:"totalCallDuration"`
	AvgCallDuration   float64 `json:"avgCallDuration"`
	ConnectionRate    float64 `json:"connectionRate"`
	EmailOpenRate     float64 `json:"emailOpenRate"`
	OpenedEmails      int     `json:"openedEmails"`
	BouncedEmails     int     `json:"bouncedEmails"`
}

// UserRollup is one user's share of an activity report.
type UserRollup struct {
	UserID            string  `json:"userId"`
	UserName          string  `json:"userName"`
	UserEmail         string  `json:"userEmail"`
	TotalActivities   int     `json:"totalActivities"`
	Emails            int     `json:"emails"`
	Calls             int     `json:"calls"`
	ConnectedCalls    int     `json:"connectedCalls"`
	NotConnectedCalls int     `json:"notConnectedCalls"`
	TotalCallDuration int     `json:"totalCallDuration"`
	AvgCallDuration   float64 `json:"avgCallDuration"`
	ConnectionRate    float64 `json:"connectionRate"`
	OpenedEmails      int     `json:"openedEmails"`
	BouncedEmails     int     `json:"bouncedEmails"`
	EmailOpenRate     float64 `json:"emailOpenRate"`
	ContactsReached   int     `json:"contactsReached"`
	LastActivityAt    string  `json:"lastActivityAt,omitempty"`
}

// DailyBucket counts activities on one calendar day.
type DailyBucket struct {
	Date   string `json:"date"`
	Emails int    `json:"emails"`
	Calls  int    `json:"calls"`
	Total  int    `json:"total"`
}

// EmailDetail describes one opened or bounced email.
type EmailDetail struct {
	ActivityID   string `json:"activityId"`
	UserID       string `json:"userId"`
	UserName     string `json:"userName"`
	ContactID    int64  `json:"contactId"`
	ContactName  string `json:"contactName"`
	ContactEmail string `json:"contactEmail"`
	Subject      string `json:"subject"`
	SentAt       string `json:"sentAt"`
	OpenedAt     string `json:"openedAt,omitempty"`
	Preview      string `json:"preview,omitempty"`
}

// Report is the finalized output of an Aggregator.
type Report struct {
	Summary       Summary       `json:"summary"`
	Users         []UserRollup  `json:"users"`
	Daily         []DailyBucket `json:"dailyStats"`
	OpenedEmails  []EmailDetail `json:"openedEmails"`
	BouncedEmails []EmailDetail `json:"bouncedEmails"`
	// Activities is sorted newest first.
	Activities []Activity `json:"-"`
}

type userAcc struct {
	rollup   UserRollup
	contacts map[int64]struct{}
	last     time.Time
}

// Aggregator accumulates activities for one request. The zero
// value is not usable; call NewAggregator.
type Aggregator struct {
	users     map[string]*userAcc
	userOrder []string
	daily     map[string]*DailyBucket
	contacts  map[int64]struct{}
	acts      []Activity
}

// NewAggregator returns an empty Aggregator.
func NewAggregator() *Aggregator {
	return &Aggregator{
		users:    make(map[string]*userAcc),
		daily:    make(map[string]*DailyBucket),
		contacts: make(map[int64]struct{}),
	}
}

// Add folds one activity into the user rollup and daily bucket.
func (g *Aggregator) Add(a Activity) {
	g.acts = append(g.acts, a)
	g.contacts[a.ContactID] = struct{}{}

	u, ok := g.users[a.UserID]
	if !ok {
		u = &userAcc{
			rollup: UserRollup{
				UserID:    a.UserID,
				UserName:  a.UserName,
				UserEmail: a.UserEmail,
			},
			contacts: make(map[int64]struct{}),
		}
		g.users[a.UserID] = u
		g.userOrder = append(g.userOrder, a.UserID)
	}
	if u.rollup.UserName == "" {
		u.rollup.UserName = a.UserName
	}
	if u.rollup.UserEmail == "" {
		u.rollup.UserEmail = a.UserEmail
	}
	u.contacts[a.ContactID] = struct{}{}
	u.rollup.TotalActivities++
	if a.at.After(u.last) {
		u.last = a.at
		u.rollup.LastActivityAt = a.Timestamp
	}

	var day *DailyBucket
	if a.Date != "" {
		day = g.daily[a.Date]
		if day == nil {
			day = &DailyBucket{Date: a.Date}
			g.daily[a.Date] = day
		}
		day.Total++
	}

	switch a.Type {
	case TypeCall:
		u.rollup.Calls++
		u.rollup.TotalCallDuration += a.Duration
		if a.IsConnected {
			u.rollup.ConnectedCalls++
		}
		if day != nil {
			day.Calls++
		}
	case TypeEmail:
		u.rollup.Emails++
		if a.Opened {
			u.rollup.OpenedEmails++
		}
		if a.Bounced {
			u.rollup.BouncedEmails++
		}
		if day != nil {
			day.Emails++
		}
	}
}

// Report finalizes the accumulated state. Sorts are stable so
// equal keys keep the order activities were added in.
func (g *Aggregator) Report() Report {
	r := Report{
		Users:         make([]UserRollup, 0, len(g.users)),
		Daily:         make([]DailyBucket, 0, len(g.daily)),
		OpenedEmails:  []EmailDetail{},
		BouncedEmails: []EmailDetail{},
	}

	s := &r.Summary
	for _, id := range g.userOrder {
		u := g.users[id]
		ro := u.rollup
		ro.ContactsReached = len(u.contacts)
		ro.NotConnectedCalls = ro.Calls - ro.ConnectedCalls
		ro.AvgCallDuration = average(ro.TotalCallDuration, ro.Calls)
		ro.ConnectionRate = percent(ro.ConnectedCalls, ro.Calls)
		ro.EmailOpenRate = percent(ro.OpenedEmails, ro.Emails)
		r.Users = append(r.Users, ro)

		s.TotalActivities += ro.TotalActivities
		s.TotalEmails += ro.Emails
		s.TotalCalls += ro.Calls
		s.ConnectedCalls += ro.ConnectedCalls
		s.TotalCallDuration += ro.TotalCallDuration
		s.OpenedEmails += ro.OpenedEmails
		s.BouncedEmails += ro.BouncedEmails
	}
	s.TotalUsers = len(g.users)
	s.UniqueContacts = len(g.contacts)
	s.NotConnectedCalls = s.TotalCalls - s.ConnectedCalls
	s.AvgCallDuration = average(s.TotalCallDuration, s.TotalCalls)
	s.ConnectionRate = percent(s.ConnectedCalls, s.TotalCalls)
	s.EmailOpenRate = percent(s.OpenedEmails, s.TotalEmails)

	sort.SliceStable(r.Users, func(i, j int) bool {
		a, b := r.Users[i], r.Users[j]
		if a.TotalActivities != b.TotalActivities {
			return a.TotalActivities > b.TotalActivities
		}
		return a.UserName < b.UserName
	})

	for _, d := range g.daily {
		r.Daily = append(r.Daily, *d)
	}
	sort.SliceStable(r.Daily, func(i, j int) bool {
		return r.Daily[i].Date < r.Daily[j].Date
	})

	r.Activities = make([]Activity, len(g.acts))
	copy(r.Activities, g.acts)
	sort.SliceStable(r.Activities, func(i, j int) bool {
		return r.Activities[i].at.After(r.Activities[j].at)
	})

	var opened, bounced []Activity
	for _, a := range r.Activities {
		if a.Type != TypeEmail {
			continue
		}
		if a.Opened {
			opened = append(opened, a)
		}
		if a.Bounced {
			bounced = append(bounced, a)
		}
	}
	// r.Activities is already newest first, which is the bounced
	// order. Opened emails sort by open time when known.
	sort.SliceStable(opened, func(i, j int) bool {
		return openedOrSent(opened[i]).After(openedOrSent(opened[j]))
	})

	pv := newPreviewer()
	for _, a := range opened {
		r.OpenedEmails = append(r.OpenedEmails, pv.detail(a))
	}
	for _, a := range bounced {
		r.BouncedEmails = append(r.BouncedEmails, pv.detail(a))
	}
	return r
}

func openedOrSent(a Activity) time.Time {
	if !a.openedAt.IsZero() {
		return a.openedAt
	}
	return a.at
}

// previewer renders short plain-text previews of message bodies.
// HTML bodies are converted to markdown first.
type previewer struct {
	conv *converter.Converter
}

func newPreviewer() *previewer {
	return &previewer{
		conv: converter.NewConverter(
			converter.WithPlugins(
				base.NewBasePlugin(),
				commonmark.NewCommonmarkPlugin(),
			),
		),
	}
}

func (p *previewer) detail(a Activity) EmailDetail {
	return EmailDetail{
		ActivityID:   a.ID,
		UserID:       a.UserID,
		UserName:     a.UserName,
		ContactID:    a.ContactID,
		ContactName:  a.ContactName,
		ContactEmail: a.ContactEmail,
		Subject:      a.Subject,
		SentAt:       a.Timestamp,
		OpenedAt:     a.OpenedAt,
		Preview:      p.preview(a.body, a.isHTML),
	}
}

func (p *previewer) preview(body string, isHTML bool) string {
	text := body
	if isHTML {
		md, err := p.conv.ConvertString(body)
		if err == nil {
			text = md
		}
	}
	text = strings.Join(strings.Fields(text), " ")
	if r := []rune(text); len(r) > previewLen {
		text = string(r[:previewLen]) + "…"
	}
	return text
}
