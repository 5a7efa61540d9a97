package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/addiskers/dispatch--sub001/internal/crm"
	"github.com/addiskers/dispatch--sub001/internal/timeutil"
)

// FindConversations returns conversations matching q.Where,
// ordered by q.Sort and capped at q.Limit. The full record is
// decoded from the stored payload.
func (db *DB) FindConversations(
	ctx context.Context, q Query,
) ([]crm.Conversation, error) {
	where, args, err := whereClause(q.Where, conversationColumns)
	if err != nil {
		return nil, fmt.Errorf("building conversation filter: %w", err)
	}
	tail, err := q.orderLimit(conversationColumns, "id")
	if err != nil {
		return nil, fmt.Errorf("building conversation sort: %w", err)
	}

	rows, err := db.reader.QueryContext(ctx,
		"SELECT payload FROM conversations WHERE "+where+tail,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("querying conversations: %w", err)
	}
	defer rows.Close()

	convs := []crm.Conversation{}
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scanning conversation: %w", err)
		}
		var conv crm.Conversation
		if err := json.Unmarshal([]byte(payload), &conv); err != nil {
			return nil, fmt.Errorf("decoding conversation: %w", err)
		}
		convs = append(convs, conv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating conversations: %w", err)
	}
	return convs, nil
}

// ConversationsForContact returns every conversation of one
// contact in creation order.
func (db *DB) ConversationsForContact(
	ctx context.Context, contactID int64,
) ([]crm.Conversation, error) {
	return db.FindConversations(ctx, Query{
		Where: Eq(FieldContactRef, contactID),
		Sort:  []Sort{{Field: FieldCreatedAt}},
		Limit: crm.ConversationFetchLimit,
	})
}

// UpsertConversations inserts or replaces conversations in one
// transaction. The indexed columns are derived from the record;
// email threads without explicit bounds get them from their
// messages.
func (db *DB) UpsertConversations(convs []crm.Conversation) error {
	return db.Update(func(tx *sql.Tx) error {
		stmt, err := tx.Prepare(`
			INSERT INTO conversations (id, contact_id, type,
				user_id, created_at, first_message_at,
				last_message_at, payload)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				contact_id = excluded.contact_id,
				type = excluded.type,
				user_id = excluded.user_id,
				created_at = excluded.created_at,
				first_message_at = excluded.first_message_at,
				last_message_at = excluded.last_message_at,
				payload = excluded.payload`)
		if err != nil {
			return fmt.Errorf("preparing conversation upsert: %w", err)
		}
		defer stmt.Close()

		for _, conv := range convs {
			first, last := messageBounds(conv)
			payload, err := json.Marshal(conv)
			if err != nil {
				return fmt.Errorf("encoding conversation %s: %w",
					conv.ID, err)
			}
			if _, err := stmt.Exec(
				conv.ID, conv.ContactID, string(conv.Type),
				nullString(conv.UserID),
				nullString(timeutil.Normalize(conv.CreatedAt)),
				nullString(first), nullString(last),
				string(payload),
			); err != nil {
				return fmt.Errorf("upserting conversation %s: %w",
					conv.ID, err)
			}
		}
		return nil
	})
}

// messageBounds returns the normalized first/last message
// timestamps of a conversation. Unparseable timestamps are
// ignored.
func messageBounds(conv crm.Conversation) (string, string) {
	first := boundTime(conv.FirstMessageAt)
	last := boundTime(conv.LastMessageAt)
	if first != "" && last != "" {
		return first, last
	}
	var lo, hi string
	for _, m := range conv.Messages {
		ts := boundTime(m.Timestamp)
		if ts == "" {
			continue
		}
		if lo == "" || ts < lo {
			lo = ts
		}
		if hi == "" || ts > hi {
			hi = ts
		}
	}
	if first == "" {
		first = lo
	}
	if last == "" {
		last = hi
	}
	return first, last
}

func boundTime(s string) string {
	t, ok := timeutil.Parse(s)
	if !ok {
		return ""
	}
	return timeutil.Format(t)
}
