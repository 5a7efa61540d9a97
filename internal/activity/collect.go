package activity

import (
	"context"
	"fmt"
	"time"

	"github.com/addiskers/dispatch--sub001/internal/crm"
	"github.com/addiskers/dispatch--sub001/internal/db"
	"github.com/addiskers/dispatch--sub001/internal/filter"
)

// Store is the storage capability the activity pipeline needs.
type Store interface {
	FindConversations(ctx context.Context, q db.Query) ([]crm.Conversation, error)
	ContactsByID(ctx context.Context, ids []int64) (map[int64]crm.Contact, error)
}

// Collect runs the activity pipeline for one request: fetch the
// conversations selected by spec (capped at
// crm.ConversationFetchLimit), drop those whose contact fails
// spec.MatchContact, classify the rest and aggregate.
func Collect(
	ctx context.Context, store Store, spec filter.Spec,
	loc *time.Location,
) (Report, error) {
	convs, err := store.FindConversations(ctx, db.Query{
		Where: spec.ConversationPredicate(),
		Sort:  []db.Sort{{Field: db.FieldCreatedAt, Desc: true}},
		Limit: crm.ConversationFetchLimit,
	})
	if err != nil {
		return Report{}, fmt.Errorf("fetching conversations: %w", err)
	}

	seen := make(map[int64]bool)
	ids := make([]int64, 0, len(convs))
	for _, c := range convs {
		if !seen[c.ContactID] {
			seen[c.ContactID] = true
			ids = append(ids, c.ContactID)
		}
	}
	contacts, err := store.ContactsByID(ctx, ids)
	if err != nil {
		return Report{}, fmt.Errorf("fetching contacts: %w", err)
	}

	cls := NewClassifier(spec, loc)
	agg := NewAggregator()
	for _, conv := range convs {
		contact, ok := contacts[conv.ContactID]
		if !ok || !spec.MatchContact(contact) {
			continue
		}
		for _, a := range cls.Classify(conv, contact) {
			agg.Add(a)
		}
	}
	return agg.Report(), nil
}
