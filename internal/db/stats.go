package db

import (
	"context"
	"fmt"
)

// Stats holds store-wide record counts.
type Stats struct {
	ContactCount      int `json:"contact_count"`
	ConversationCount int `json:"conversation_count"`
	OwnerCount        int `json:"owner_count"`
	TerritoryCount    int `json:"territory_count"`
}

// GetStats returns record counts for the health endpoint.
func (db *DB) GetStats(ctx context.Context) (Stats, error) {
	const query = `
		SELECT
			(SELECT COUNT(*) FROM contacts),
			(SELECT COUNT(*) FROM conversations),
			(SELECT COUNT(DISTINCT owner_name) FROM contacts),
			(SELECT COUNT(DISTINCT territory_name) FROM contacts)`

	var s Stats
	err := db.reader.QueryRowContext(ctx, query).Scan(
		&s.ContactCount,
		&s.ConversationCount,
		&s.OwnerCount,
		&s.TerritoryCount,
	)
	if err != nil {
		return Stats{}, fmt.Errorf("fetching stats: %w", err)
	}
	return s, nil
}
