// Package testjsonl provides JSONL builders for contact and
// conversation export lines. Used by the ingest tests and the
// testfixture command.
package testjsonl

import (
	"encoding/json"
	"strings"
)

// Contact returns a contact record object.
func Contact(id int64, name, owner, createdAt string) map[string]any {
	return map[string]any{
		"id":           id,
		"display_name": name,
		"email":        strings.ToLower(name) + "@example.com",
		"owner_name":   owner,
		"created_at":   createdAt,
	}
}

// ContactJSON returns a minimal contact line.
func ContactJSON(id int64, name, owner, createdAt string) string {
	return mustMarshal(Contact(id, name, owner, createdAt))
}

// ContactWithAnalyticsJSON returns a contact line carrying an
// exported crm_analytics snapshot.
func ContactWithAnalyticsJSON(
	id int64, name, owner, createdAt string,
	analytics map[string]any,
) string {
	c := Contact(id, name, owner, createdAt)
	c["crm_analytics"] = analytics
	return mustMarshal(c)
}

// PhoneCall returns a phone conversation object.
func PhoneCall(
	id string, contactID int64, userID string,
	duration int, createdAt string,
) map[string]any {
	return map[string]any{
		"id":         id,
		"contact_id": contactID,
		"type":       "phone",
		"user_id":    userID,
		"duration":   duration,
		"direction":  "outgoing",
		"created_at": createdAt,
	}
}

// PhoneCallJSON returns a phone conversation line.
func PhoneCallJSON(
	id string, contactID int64, userID string,
	duration int, createdAt string,
) string {
	return mustMarshal(PhoneCall(id, contactID, userID, duration, createdAt))
}

// EmailMsg builds one message of an email thread. Outgoing
// messages are attributed to senderID; pass "" for incoming.
func EmailMsg(
	direction, timestamp, senderID, body string,
) map[string]any {
	m := map[string]any{
		"direction": direction,
		"timestamp": timestamp,
		"body":      body,
	}
	if senderID != "" {
		m["sender_id"] = senderID
	}
	return m
}

// WithAttachment adds a file attachment to msg and returns it.
func WithAttachment(msg map[string]any, fileName string) map[string]any {
	atts, _ := msg["attachments"].([]map[string]any)
	msg["attachments"] = append(atts, map[string]any{"file_name": fileName})
	return msg
}

// EmailThread returns an email_thread conversation object.
func EmailThread(
	id string, contactID int64, userID, subject string,
	msgs ...map[string]any,
) map[string]any {
	return map[string]any{
		"id":         id,
		"contact_id": contactID,
		"type":       "email_thread",
		"user_id":    userID,
		"subject":    subject,
		"messages":   msgs,
	}
}

// EmailThreadJSON returns an email_thread conversation line.
func EmailThreadJSON(
	id string, contactID int64, userID, subject string,
	msgs ...map[string]any,
) string {
	return mustMarshal(EmailThread(id, contactID, userID, subject, msgs...))
}

// Envelope wraps a record line under key ("record" or "data"),
// the shape some exporters write.
func Envelope(key, line string) string {
	return mustMarshal(map[string]any{
		"exported_at": "2024-06-02T00:00:00Z",
		key:           json.RawMessage(line),
	})
}

// Marshal encodes v as a single JSONL line. It panics on error.
func Marshal(v any) string { return mustMarshal(v) }

// JSONL joins lines into file content with a trailing newline.
func JSONL(lines ...string) string {
	return strings.Join(lines, "\n") + "\n"
}

func mustMarshal(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return string(b)
}
