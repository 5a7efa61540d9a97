package testjsonl

import (
	"testing"

	"github.com/tidwall/gjson"
)

func TestEnvelopeKeepsRecord(t *testing.T) {
	line := Envelope("record", ContactJSON(7, "Ada", "Ana", "2024-06-01T00:00:00Z"))
	if got := gjson.Get(line, "record.id").Int(); got != 7 {
		t.Errorf("record.id = %d, want 7", got)
	}
	if got := gjson.Get(line, "record.email").String(); got != "ada@example.com" {
		t.Errorf("record.email = %q", got)
	}
}

func TestEmailThreadMessages(t *testing.T) {
	line := EmailThreadJSON("t1", 3, "u1", "Intro",
		WithAttachment(
			EmailMsg("outgoing", "2024-06-01T10:00:00Z", "u1", "hi"),
			"sample.pdf",
		),
		EmailMsg("incoming", "2024-06-02T10:00:00Z", "", "thanks"),
	)
	msgs := gjson.Get(line, "messages").Array()
	if len(msgs) != 2 {
		t.Fatalf("messages = %d, want 2", len(msgs))
	}
	if got := msgs[0].Get("attachments.0.file_name").String(); got != "sample.pdf" {
		t.Errorf("attachment = %q", got)
	}
	if msgs[1].Get("sender_id").Exists() {
		t.Error("incoming message should have no sender_id")
	}
}

func TestJSONL(t *testing.T) {
	if got := JSONL("a", "b"); got != "a\nb\n" {
		t.Errorf("JSONL = %q", got)
	}
}
