package main

import (
	"flag"
	"fmt"
	"log"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/addiskers/dispatch--sub001/internal/crm"
	"github.com/addiskers/dispatch--sub001/internal/ingest"
	"github.com/addiskers/dispatch--sub001/internal/testjsonl"
)

type user struct {
	id, name string
}

var (
	users = []user{
		{"u-ana", "Ana Ruiz"},
		{"u-ben", "Ben Okafor"},
		{"u-chloe", "Chloe Martin"},
		{"u-dev", "Dev Patel"},
	}
	territories = []string{
		"North America", "Europe", "APAC", "LATAM", "-", "",
	}
	countries = append(append([]string{}, crm.PriorityCountries[:]...),
		"Brazil", "Singapore", "N/A")
	statuses   = []string{"New", "Open", "Qualified", "Won", "Lost"}
	leadLevels = []string{"Hot", "Warm", "Cold", ""}
	categories = []string{"Enterprise", "SMB", "Agency", "NA"}
	markets    = []string{"Healthcare", "Automotive", "Chemicals", "Energy"}
)

// fixture generates a deterministic export directory.
type fixture struct {
	rng      *rand.Rand
	end      time.Time
	days     int
	contacts []string
	convs    []string
	nextConv int
}

func main() {
	out := flag.String("out", "", "output directory")
	n := flag.Int("contacts", 200, "number of contacts")
	days := flag.Int("days", 120, "days of history ending at -end")
	endStr := flag.String("end", "", "last day of history, YYYY-MM-DD (default today)")
	seed := flag.Uint64("seed", 1, "random seed")
	flag.Parse()
	if *out == "" {
		fmt.Fprintln(os.Stderr, "usage: testfixture -out <dir> [-contacts N] [-days N]")
		os.Exit(1)
	}

	end := time.Now().UTC()
	if *endStr != "" {
		t, err := time.Parse(time.DateOnly, *endStr)
		if err != nil {
			log.Fatalf("parsing -end: %v", err)
		}
		end = t.Add(18 * time.Hour)
	}

	f := &fixture{
		rng:  rand.New(rand.NewPCG(*seed, *seed^0x5eed)),
		end:  end,
		days: max(*days, 1),
	}
	for i := range *n {
		f.addContact(int64(1000 + i))
	}

	if err := os.MkdirAll(*out, 0o755); err != nil {
		log.Fatalf("creating output dir: %v", err)
	}
	write := func(name string, lines []string) {
		path := filepath.Join(*out, name)
		if err := os.WriteFile(path, []byte(testjsonl.JSONL(lines...)), 0o644); err != nil {
			log.Fatalf("writing %s: %v", name, err)
		}
		fmt.Printf("  %s: %d records\n", name, len(lines))
	}
	write(ingest.ContactsFile, f.contacts)
	write(ingest.ConversationsFile, f.convs)
	fmt.Printf("Fixture exports written to %s\n", *out)
}

func pick[T any](r *rand.Rand, xs []T) T {
	return xs[r.IntN(len(xs))]
}

func stamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func (f *fixture) convID(prefix string) string {
	f.nextConv++
	return fmt.Sprintf("%s-%05d", prefix, f.nextConv)
}

func (f *fixture) addContact(id int64) {
	r := f.rng
	created := f.end.Add(-time.Duration(r.IntN(f.days*24)) * time.Hour)
	owner := pick(r, users)
	name := fmt.Sprintf("Contact%d", id)

	c := testjsonl.Contact(id, name, owner.name, stamp(created))
	c["territory_name"] = pick(r, territories)
	c["country"] = pick(r, countries)
	c["status_name"] = pick(r, statuses)
	c["custom_field"] = map[string]any{
		"cf_lead_level":       pick(r, leadLevels),
		"cf_contact_category": pick(r, categories),
		"cf_market":           pick(r, markets),
		"cf_company_name":     "Company " + strings.ToUpper(name[len(name)-2:]),
	}

	line := testjsonl.Marshal(c)
	// Some exporters wrap records; exercise both shapes.
	if id%7 == 0 {
		line = testjsonl.Envelope("record", line)
	}
	f.contacts = append(f.contacts, line)

	for range r.IntN(4) {
		f.addCall(id, created)
	}
	if r.IntN(3) > 0 {
		f.addThread(id, created, owner)
	}
}

// after returns a time between t and the end of history.
func (f *fixture) after(t time.Time) time.Time {
	span := f.end.Sub(t)
	if span <= 0 {
		return t
	}
	return t.Add(time.Duration(f.rng.Int64N(int64(span))))
}

func (f *fixture) addCall(contactID int64, created time.Time) {
	r := f.rng
	u := pick(r, users)
	duration := r.IntN(60)
	if r.IntN(2) == 0 {
		duration = 60 + r.IntN(900)
	}
	call := testjsonl.PhoneCall(f.convID("call"), contactID, u.id,
		duration, stamp(f.after(created)))
	call["user_name"] = u.name
	if r.IntN(5) == 0 {
		call["direction"] = "incoming"
	}
	f.convs = append(f.convs, testjsonl.Marshal(call))
}

func (f *fixture) addThread(contactID int64, created time.Time, owner user) {
	r := f.rng
	at := f.after(created)
	var msgs []map[string]any

	if r.IntN(4) == 0 {
		// Automated sample mail: never an activity.
		auto := testjsonl.EmailMsg("outgoing", stamp(at), owner.id,
			strings.Join(crm.AutomatedEmailPhrases[:], ". "))
		msgs = append(msgs, testjsonl.WithAttachment(auto, "sample-report.pdf"))
		at = f.after(at)
	}

	for i := range 1 + r.IntN(3) {
		body := fmt.Sprintf("<p>Hi, following up on our research (%d).</p>", i)
		m := testjsonl.EmailMsg("outgoing", stamp(at), owner.id, "")
		m["html_body"] = body
		m["sender_name"] = owner.name
		switch r.IntN(6) {
		case 0:
			m["bounced"] = true
		case 1, 2, 3:
			m["opened"] = true
			m["opened_at"] = stamp(at.Add(time.Duration(1+r.IntN(48)) * time.Hour))
		}
		if i == 0 && r.IntN(3) == 0 {
			m = testjsonl.WithAttachment(m, "sample.pdf")
		}
		msgs = append(msgs, m)
		at = f.after(at)

		if r.IntN(4) == 0 {
			msgs = append(msgs, testjsonl.EmailMsg(
				"incoming", stamp(at), "", "Thanks, tell me more."))
			at = f.after(at)
		}
	}

	thread := testjsonl.EmailThread(f.convID("thread"), contactID,
		owner.id, "Research follow-up", msgs...)
	thread["user_name"] = owner.name
	f.convs = append(f.convs, testjsonl.Marshal(thread))
}
