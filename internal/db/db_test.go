package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/go-cmp/cmp"

	"github.com/addiskers/dispatch--sub001/internal/crm"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "test.db")
	d, err := Open(path)
	if err != nil {
		t.Fatalf("opening test db: %v", err)
	}
	t.Cleanup(func() { d.Close() })
	return d
}

// requireErrContains fails if err is nil or doesn't contain
// substr.
func requireErrContains(
	t *testing.T, err error, substr string,
) {
	t.Helper()
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if !strings.Contains(err.Error(), substr) {
		t.Errorf("error %q does not contain %q",
			err.Error(), substr)
	}
}

// canceledCtx returns an already-canceled context.
func canceledCtx() context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	return ctx
}

// insertContact upserts a contact with sensible defaults.
// Override any field via the opts functions.
func insertContact(
	t *testing.T, d *DB, id int64, opts ...func(*crm.Contact),
) crm.Contact {
	t.Helper()
	c := crm.Contact{
		ID:            id,
		DisplayName:   fmt.Sprintf("Contact %d", id),
		Email:         fmt.Sprintf("c%d@example.com", id),
		Country:       "US",
		TerritoryName: "North America",
		OwnerName:     "Ana",
		StatusName:    "New",
		CreatedAt:     "2024-06-01T10:00:00.000Z",
	}
	for _, opt := range opts {
		opt(&c)
	}
	if err := d.UpsertContacts([]crm.Contact{c}); err != nil {
		t.Fatalf("insertContact %d: %v", id, err)
	}
	return c
}

// execRaw runs a write statement directly, for states the
// upsert path never produces.
func execRaw(t *testing.T, d *DB, query string, args ...any) {
	t.Helper()
	err := d.Update(func(tx *sql.Tx) error {
		_, err := tx.Exec(query, args...)
		return err
	})
	if err != nil {
		t.Fatalf("exec %q: %v", query, err)
	}
}

func contactIDs(contacts []crm.Contact) []int64 {
	ids := make([]int64, len(contacts))
	for i, c := range contacts {
		ids[i] = c.ID
	}
	return ids
}

func TestOpenCreatesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "subdir", "test.db")
	d, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer d.Close()

	if _, err := os.Stat(path); err != nil {
		t.Fatalf("db file not created: %v", err)
	}
	if err := d.Ping(); err != nil {
		t.Fatalf("Ping: %v", err)
	}
}

func TestContactRoundTrip(t *testing.T) {
	d := testDB(t)
	avg := 120.5
	want := insertContact(t, d, 7, func(c *crm.Contact) {
		c.CustomFields = crm.CustomFields{
			LeadLevel:       "Hot",
			ContactCategory: "Enterprise",
			CompanyName:     "Acme",
			Market:          "Chemicals",
		}
		c.LastContactedAt = "2024-06-02T08:00:00.000Z"
		c.LastContactedMode = "email"
		c.Analytics = crm.Analytics{
			OutgoingEmails:           3,
			IncomingEmails:           1,
			ConnectedCalls:           2,
			AvgConnectedCallDuration: &avg,
			Users: map[string]crm.UserActivity{
				"u1": {UserName: "Ana", Emails: 3},
			},
		}
	})

	got, err := d.GetContact(context.Background(), 7)
	if err != nil {
		t.Fatalf("GetContact: %v", err)
	}
	if got == nil {
		t.Fatal("contact 7 should exist")
	}
	if diff := cmp.Diff(want, *got); diff != "" {
		t.Errorf("contact mismatch (-want +got):\n%s", diff)
	}

	missing, err := d.GetContact(context.Background(), 99)
	if err != nil {
		t.Fatalf("GetContact missing: %v", err)
	}
	if missing != nil {
		t.Errorf("contact 99 = %+v, want nil", missing)
	}
}

func TestUpsertContactsNormalizesTimestamps(t *testing.T) {
	d := testDB(t)
	insertContact(t, d, 1, func(c *crm.Contact) {
		c.CreatedAt = "2024-06-01T10:00:00Z"
	})
	got, err := d.GetContact(context.Background(), 1)
	if err != nil {
		t.Fatalf("GetContact: %v", err)
	}
	if got.CreatedAt != "2024-06-01T10:00:00.000Z" {
		t.Errorf("CreatedAt = %q", got.CreatedAt)
	}
}

func TestFindContactsUnassignedTerritory(t *testing.T) {
	d := testDB(t)
	territories := []string{
		"North America", "", "-", "NA", "na", "N/A", "n/a",
		"Europe", "Na",
	}
	for i, terr := range territories {
		insertContact(t, d, int64(i+1), func(c *crm.Contact) {
			c.TerritoryName = terr
		})
	}
	insertContact(t, d, 100)
	execRaw(t, d,
		"UPDATE contacts SET territory_name = NULL WHERE id = 100")

	cond := Or(
		In(FieldTerritory, "North America"),
		In(FieldTerritory, crm.Placeholders...),
		Missing(FieldTerritory),
	)

	got, err := d.FindContacts(context.Background(), Query{
		Where: cond,
		Sort:  []Sort{{Field: FieldContactID}},
	})
	if err != nil {
		t.Fatalf("FindContacts: %v", err)
	}
	want := []int64{1, 2, 3, 4, 5, 6, 7, 100}
	if diff := cmp.Diff(want, contactIDs(got)); diff != "" {
		t.Errorf("ids mismatch (-want +got):\n%s", diff)
	}

	n, err := d.CountContacts(context.Background(), cond)
	if err != nil {
		t.Fatalf("CountContacts: %v", err)
	}
	if n != len(want) {
		t.Errorf("count = %d, want %d", n, len(want))
	}
}

func TestFindContactsCustomFieldAndSearch(t *testing.T) {
	d := testDB(t)
	insertContact(t, d, 1, func(c *crm.Contact) {
		c.CustomFields.LeadLevel = "Hot"
		c.DisplayName = "Priya 50% Off"
	})
	insertContact(t, d, 2, func(c *crm.Contact) {
		c.CustomFields.LeadLevel = "Cold"
		c.DisplayName = "Priya 500 Off"
	})
	insertContact(t, d, 3)
	insertContact(t, d, 4, func(c *crm.Contact) {
		c.DisplayName = "ÉLODIE Durand"
	})

	tests := []struct {
		name string
		cond Cond
		want []int64
	}{
		{"LeadLevel", Eq(FieldLeadLevel, "Hot"), []int64{1}},
		{"LeadLevelMissing", Missing(FieldLeadLevel), []int64{3, 4}},
		{"ContainsIsCaseInsensitive",
			Contains(FieldDisplayName, "PRIYA"), []int64{1, 2}},
		{"ContainsFoldsNonASCII",
			Contains(FieldDisplayName, "élodie"), []int64{4}},
		{"ContainsEscapesWildcards",
			Contains(FieldDisplayName, "50%"), []int64{1}},
		{"EmptyIn", In[string](FieldOwner), []int64{}},
		{"EmptyAnd", And(), []int64{1, 2, 3, 4}},
		{"EmptyOr", Or(), []int64{}},
		{"NilSkipped", And(nil, Eq(FieldContactID, 2)), []int64{2}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := d.FindContacts(context.Background(),
				Query{Where: tt.cond})
			if err != nil {
				t.Fatalf("FindContacts: %v", err)
			}
			if diff := cmp.Diff(tt.want, contactIDs(got)); diff != "" {
				t.Errorf("ids mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestFindContactsSortAndLimit(t *testing.T) {
	d := testDB(t)
	for i, ts := range []string{
		"2024-06-03T00:00:00.000Z",
		"2024-06-01T00:00:00.000Z",
		"2024-06-02T00:00:00.000Z",
		"2024-06-02T00:00:00.000Z",
	} {
		insertContact(t, d, int64(i+1), func(c *crm.Contact) {
			c.CreatedAt = ts
		})
	}
	got, err := d.FindContacts(context.Background(), Query{
		Sort:  []Sort{{Field: FieldCreatedAt, Desc: true}},
		Limit: 3,
	})
	if err != nil {
		t.Fatalf("FindContacts: %v", err)
	}
	want := []int64{1, 3, 4}
	if diff := cmp.Diff(want, contactIDs(got)); diff != "" {
		t.Errorf("ids mismatch (-want +got):\n%s", diff)
	}
}

func TestUnknownField(t *testing.T) {
	d := testDB(t)
	_, err := d.FindContacts(context.Background(), Query{
		Where: Eq(FieldLastMessageAt, "x"),
	})
	if !errors.Is(err, ErrUnknownField) {
		t.Errorf("err = %v, want ErrUnknownField", err)
	}
	_, err = d.FindConversations(context.Background(), Query{
		Sort: []Sort{{Field: FieldOwner}},
	})
	if !errors.Is(err, ErrUnknownField) {
		t.Errorf("err = %v, want ErrUnknownField", err)
	}
}

func TestDistinctContactValues(t *testing.T) {
	d := testDB(t)
	for i, owner := range []string{"Ben", "Ana", "Ben", "-", ""} {
		insertContact(t, d, int64(i+1), func(c *crm.Contact) {
			c.OwnerName = owner
		})
	}
	insertContact(t, d, 10)
	execRaw(t, d,
		"UPDATE contacts SET owner_name = NULL WHERE id = 10")

	got, err := d.DistinctContactValues(
		context.Background(), FieldOwner, nil,
	)
	if err != nil {
		t.Fatalf("DistinctContactValues: %v", err)
	}
	want := []string{"", "-", "Ana", "Ben"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("values mismatch (-want +got):\n%s", diff)
	}

	got, err = d.DistinctContactValues(
		context.Background(), FieldOwner, Eq(FieldOwner, "Ana"),
	)
	if err != nil {
		t.Fatalf("DistinctContactValues filtered: %v", err)
	}
	if diff := cmp.Diff([]string{"Ana"}, got); diff != "" {
		t.Errorf("filtered mismatch (-want +got):\n%s", diff)
	}
}

func TestContactsByIDChunks(t *testing.T) {
	d := testDB(t)
	batch := make([]crm.Contact, 0, 1200)
	for i := range 1200 {
		batch = append(batch, crm.Contact{ID: int64(i + 1)})
	}
	if err := d.UpsertContacts(batch); err != nil {
		t.Fatalf("UpsertContacts: %v", err)
	}

	ids := make([]int64, 0, 1201)
	for i := range 1201 {
		ids = append(ids, int64(i+1))
	}
	got, err := d.ContactsByID(context.Background(), ids)
	if err != nil {
		t.Fatalf("ContactsByID: %v", err)
	}
	if len(got) != 1200 {
		t.Errorf("got %d contacts, want 1200", len(got))
	}
	if _, ok := got[1201]; ok {
		t.Error("id 1201 should be absent")
	}
}

func TestConversationsRoundTrip(t *testing.T) {
	d := testDB(t)
	dur := 95
	convs := []crm.Conversation{
		{
			ID: "call-1", ContactID: 1, Type: crm.ConversationPhone,
			UserID: "u1", Duration: &dur,
			CreatedAt: "2024-06-01T09:00:00Z",
		},
		{
			ID: "mail-1", ContactID: 1,
			Type:   crm.ConversationEmailThread,
			UserID: "u1",
			Messages: []crm.Message{
				{Direction: "outgoing", Timestamp: "2024-06-02T10:00:00Z"},
				{Direction: "incoming", Timestamp: "2024-06-01T12:00:00Z"},
			},
		},
		{
			ID: "note-1", ContactID: 2, Type: crm.ConversationNote,
			CreatedAt: "2024-06-03T09:00:00Z",
		},
	}
	if err := d.UpsertConversations(convs); err != nil {
		t.Fatalf("UpsertConversations: %v", err)
	}

	got, err := d.ConversationsForContact(context.Background(), 1)
	if err != nil {
		t.Fatalf("ConversationsForContact: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d conversations, want 2", len(got))
	}
	// NULL created_at sorts first.
	if got[0].ID != "mail-1" || got[1].ID != "call-1" {
		t.Fatalf("order = %s, %s", got[0].ID, got[1].ID)
	}
	if got[1].CallDuration() != 95 {
		t.Errorf("duration = %d, want 95", got[1].CallDuration())
	}
	if len(got[0].Messages) != 2 {
		t.Errorf("messages = %d, want 2", len(got[0].Messages))
	}

	// Thread bounds are derived from messages.
	threads, err := d.FindConversations(context.Background(), Query{
		Where: And(
			Eq(FieldType, string(crm.ConversationEmailThread)),
			Range(FieldLastMessageAt, "2024-06-02T00:00:00.000Z", ""),
			Range(FieldFirstMessageAt, "", "2024-06-01T23:59:59.999Z"),
		),
	})
	if err != nil {
		t.Fatalf("FindConversations: %v", err)
	}
	if len(threads) != 1 || threads[0].ID != "mail-1" {
		t.Errorf("threads = %+v, want [mail-1]", threads)
	}
}

func TestMessageBounds(t *testing.T) {
	tests := []struct {
		name      string
		conv      crm.Conversation
		wantFirst string
		wantLast  string
	}{
		{
			name: "explicit first, last from messages",
			conv: crm.Conversation{
				FirstMessageAt: "2024-01-01T00:00:00Z",
				Messages: []crm.Message{
					{Timestamp: "2024-03-01T00:00:00Z"},
					{Timestamp: "not a time"},
					{Timestamp: "2024-02-01T00:00:00Z"},
				},
			},
			wantFirst: "2024-01-01T00:00:00.000Z",
			wantLast:  "2024-03-01T00:00:00.000Z",
		},
		{
			name: "junk sorting before digits",
			conv: crm.Conversation{
				Messages: []crm.Message{
					{Timestamp: "!!!"},
					{Timestamp: "2024-02-01T00:00:00Z"},
					{Timestamp: "zzz"},
				},
			},
			wantFirst: "2024-02-01T00:00:00.000Z",
			wantLast:  "2024-02-01T00:00:00.000Z",
		},
		{
			name: "unparseable explicit bounds fall back",
			conv: crm.Conversation{
				FirstMessageAt: "soon",
				LastMessageAt:  "later",
				Messages: []crm.Message{
					{Timestamp: "2024-02-01T00:00:00Z"},
					{Timestamp: "2024-02-03T00:00:00Z"},
				},
			},
			wantFirst: "2024-02-01T00:00:00.000Z",
			wantLast:  "2024-02-03T00:00:00.000Z",
		},
		{
			name: "nothing parseable",
			conv: crm.Conversation{
				Messages: []crm.Message{{Timestamp: "zzz"}},
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			first, last := messageBounds(tt.conv)
			if first != tt.wantFirst {
				t.Errorf("first = %q, want %q", first, tt.wantFirst)
			}
			if last != tt.wantLast {
				t.Errorf("last = %q, want %q", last, tt.wantLast)
			}
		})
	}
}

func TestCanceledContext(t *testing.T) {
	d := testDB(t)
	insertContact(t, d, 1)
	ctx := canceledCtx()

	tests := []struct {
		name string
		fn   func() error
	}{
		{"FindContacts", func() error {
			_, err := d.FindContacts(ctx, Query{})
			return err
		}},
		{"FindConversations", func() error {
			_, err := d.FindConversations(ctx, Query{})
			return err
		}},
		{"CountContacts", func() error {
			_, err := d.CountContacts(ctx, nil)
			return err
		}},
		{"GetStats", func() error {
			_, err := d.GetStats(ctx)
			return err
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.fn()
			if !errors.Is(err, context.Canceled) {
				t.Errorf("expected context.Canceled, got: %v", err)
			}
		})
	}
}

func TestStorageErrorsAreWrapped(t *testing.T) {
	conn, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer conn.Close()
	d := NewWithConn(conn)
	boom := errors.New("disk I/O error")

	mock.ExpectQuery("FROM contacts").WillReturnError(boom)
	_, err = d.FindContacts(context.Background(), Query{})
	if !errors.Is(err, boom) {
		t.Errorf("err = %v, want wrapped boom", err)
	}
	requireErrContains(t, err, "querying contacts")

	mock.ExpectQuery("SELECT payload FROM conversations").
		WillReturnError(boom)
	_, err = d.FindConversations(context.Background(), Query{})
	requireErrContains(t, err, "querying conversations")

	mock.ExpectQuery("SELECT COUNT").WillReturnError(boom)
	_, err = d.CountContacts(context.Background(), nil)
	requireErrContains(t, err, "counting contacts")

	mock.ExpectQuery("SELECT payload FROM conversations").
		WillReturnRows(sqlmock.NewRows([]string{"payload"}).
			AddRow("{not json"))
	_, err = d.FindConversations(context.Background(), Query{})
	requireErrContains(t, err, "decoding conversation")

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestStats(t *testing.T) {
	d := testDB(t)
	insertContact(t, d, 1)
	insertContact(t, d, 2, func(c *crm.Contact) {
		c.OwnerName = "Ben"
	})
	err := d.UpsertConversations([]crm.Conversation{
		{ID: "c1", ContactID: 1, Type: crm.ConversationNote},
	})
	if err != nil {
		t.Fatalf("UpsertConversations: %v", err)
	}

	got, err := d.GetStats(context.Background())
	if err != nil {
		t.Fatalf("GetStats: %v", err)
	}
	want := Stats{
		ContactCount:      2,
		ConversationCount: 1,
		OwnerCount:        2,
		TerritoryCount:    1,
	}
	if got != want {
		t.Errorf("stats = %+v, want %+v", got, want)
	}
}

func TestImportedFiles(t *testing.T) {
	d := testDB(t)
	if err := d.MarkImported("/in/contacts.jsonl", 10); err != nil {
		t.Fatalf("MarkImported: %v", err)
	}
	if err := d.MarkImported("/in/contacts.jsonl", 20); err != nil {
		t.Fatalf("MarkImported again: %v", err)
	}
	if err := d.MarkImported("/in/conversations.jsonl", 5); err != nil {
		t.Fatalf("MarkImported: %v", err)
	}
	if err := d.ForgetImported("/in/conversations.jsonl"); err != nil {
		t.Fatalf("ForgetImported: %v", err)
	}

	got, err := d.LoadImportedFiles()
	if err != nil {
		t.Fatalf("LoadImportedFiles: %v", err)
	}
	want := map[string]int64{"/in/contacts.jsonl": 20}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("imported mismatch (-want +got):\n%s", diff)
	}
}

func TestUpdateSnapshots(t *testing.T) {
	d := testDB(t)
	before := insertContact(t, d, 1)

	c := before
	c.DisplayName = "ignored"
	c.Analytics = crm.Analytics{OutgoingEmails: 4, Touchpoints: 4}
	c.LastContactedAt = "2024-03-01T09:00:00Z"
	c.LastContactedMode = "email"
	if err := d.UpdateSnapshots([]crm.Contact{c}); err != nil {
		t.Fatalf("UpdateSnapshots: %v", err)
	}

	got, err := d.GetContact(context.Background(), 1)
	if err != nil {
		t.Fatalf("GetContact: %v", err)
	}
	if diff := cmp.Diff(c.Analytics, got.Analytics); diff != "" {
		t.Errorf("analytics mismatch (-want +got):\n%s", diff)
	}
	if got.LastContactedAt != "2024-03-01T09:00:00.000Z" {
		t.Errorf("LastContactedAt = %q", got.LastContactedAt)
	}
	if got.LastContactedMode != "email" {
		t.Errorf("LastContactedMode = %q", got.LastContactedMode)
	}
	if got.DisplayName != before.DisplayName {
		t.Errorf("DisplayName = %q, want unchanged %q",
			got.DisplayName, before.DisplayName)
	}
}
