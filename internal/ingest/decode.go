package ingest

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/tidwall/gjson"

	"github.com/addiskers/dispatch--sub001/internal/crm"
)

var errNotObject = errors.New("line is not a JSON object")

// envelopeKeys are the wrapper keys used by CRM export tools.
// A line is either a bare record or {"record": {...}} /
// {"data": {...}} with metadata alongside.
var envelopeKeys = []string{"record", "data"}

// unwrap returns the raw record object carried by a JSONL line.
func unwrap(line string) (string, error) {
	if !gjson.Valid(line) {
		return "", errors.New("invalid JSON")
	}
	root := gjson.Parse(line)
	if !root.IsObject() {
		return "", errNotObject
	}
	for _, key := range envelopeKeys {
		if r := root.Get(key); r.IsObject() {
			return r.Raw, nil
		}
	}
	return line, nil
}

func decodeContact(line string) (crm.Contact, error) {
	raw, err := unwrap(line)
	if err != nil {
		return crm.Contact{}, err
	}
	if !gjson.Get(raw, "id").Exists() {
		return crm.Contact{}, errors.New("contact has no id")
	}
	var c crm.Contact
	if err := json.Unmarshal([]byte(raw), &c); err != nil {
		return crm.Contact{}, fmt.Errorf("decoding contact: %w", err)
	}
	if c.ID == 0 {
		return crm.Contact{}, errors.New("contact id is zero")
	}
	return c, nil
}

func decodeConversation(line string) (crm.Conversation, error) {
	raw, err := unwrap(line)
	if err != nil {
		return crm.Conversation{}, err
	}
	var conv crm.Conversation
	if err := json.Unmarshal([]byte(raw), &conv); err != nil {
		return crm.Conversation{}, fmt.Errorf(
			"decoding conversation: %w", err,
		)
	}
	switch {
	case conv.ID == "":
		return crm.Conversation{}, errors.New("conversation has no id")
	case conv.ContactID == 0:
		return crm.Conversation{}, fmt.Errorf(
			"conversation %s has no contact_id", conv.ID,
		)
	case conv.Type == "":
		return crm.Conversation{}, fmt.Errorf(
			"conversation %s has no type", conv.ID,
		)
	}
	return conv, nil
}
