package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/addiskers/dispatch--sub001/internal/crm"
	"github.com/addiskers/dispatch--sub001/internal/timeutil"
)

// contactCols is the column list for contact queries. Keep in
// sync with scanContactRow.
const contactCols = `id, display_name, email, country,
	territory_name, owner_name, status_name, custom_fields,
	created_at, last_contacted, last_contacted_mode, crm_analytics`

// rowScanner is satisfied by both *sql.Row and *sql.Rows,
// allowing a single scan helper for both.
type rowScanner interface {
	Scan(dest ...any) error
}

// scanContactRow scans contactCols into a Contact. NULL text
// columns come back as "".
func scanContactRow(rs rowScanner) (crm.Contact, error) {
	var c crm.Contact
	var name, email, country, territory sql.NullString
	var owner, status, created, lastContacted, lastMode sql.NullString
	var customJSON, analyticsJSON string
	err := rs.Scan(
		&c.ID, &name, &email, &country,
		&territory, &owner, &status, &customJSON,
		&created, &lastContacted, &lastMode, &analyticsJSON,
	)
	if err != nil {
		return c, err
	}
	c.DisplayName = name.String
	c.Email = email.String
	c.Country = country.String
	c.TerritoryName = territory.String
	c.OwnerName = owner.String
	c.StatusName = status.String
	c.CreatedAt = created.String
	c.LastContactedAt = lastContacted.String
	c.LastContactedMode = lastMode.String

	if customJSON != "" {
		if err := json.Unmarshal(
			[]byte(customJSON), &c.CustomFields,
		); err != nil {
			return c, fmt.Errorf(
				"decoding custom fields for contact %d: %w",
				c.ID, err,
			)
		}
	}
	if analyticsJSON != "" {
		if err := json.Unmarshal(
			[]byte(analyticsJSON), &c.Analytics,
		); err != nil {
			return c, fmt.Errorf(
				"decoding analytics for contact %d: %w",
				c.ID, err,
			)
		}
	}
	return c, nil
}

// FindContacts returns contacts matching q.Where, ordered by
// q.Sort and capped at q.Limit.
func (db *DB) FindContacts(
	ctx context.Context, q Query,
) ([]crm.Contact, error) {
	where, args, err := whereClause(q.Where, contactColumns)
	if err != nil {
		return nil, fmt.Errorf("building contact filter: %w", err)
	}
	tail, err := q.orderLimit(contactColumns, "id")
	if err != nil {
		return nil, fmt.Errorf("building contact sort: %w", err)
	}

	rows, err := db.reader.QueryContext(ctx,
		"SELECT "+contactCols+" FROM contacts WHERE "+where+tail,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("querying contacts: %w", err)
	}
	defer rows.Close()

	contacts := []crm.Contact{}
	for rows.Next() {
		c, err := scanContactRow(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning contact: %w", err)
		}
		contacts = append(contacts, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating contacts: %w", err)
	}
	return contacts, nil
}

// CountContacts counts contacts matching where.
func (db *DB) CountContacts(
	ctx context.Context, where Cond,
) (int, error) {
	clause, args, err := whereClause(where, contactColumns)
	if err != nil {
		return 0, fmt.Errorf("building contact filter: %w", err)
	}
	var n int
	err = db.reader.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM contacts WHERE "+clause, args...,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting contacts: %w", err)
	}
	return n, nil
}

// DistinctContactValues returns the sorted distinct non-NULL
// values of f among contacts matching where. Placeholder values
// are included; callers decide how to present them.
func (db *DB) DistinctContactValues(
	ctx context.Context, f Field, where Cond,
) ([]string, error) {
	col, err := contactColumns.column(f)
	if err != nil {
		return nil, err
	}
	clause, args, err := whereClause(where, contactColumns)
	if err != nil {
		return nil, fmt.Errorf("building contact filter: %w", err)
	}
	rows, err := db.reader.QueryContext(ctx,
		"SELECT DISTINCT "+col+" FROM contacts WHERE "+clause+
			" AND "+col+" IS NOT NULL",
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("querying distinct %s: %w", f, err)
	}
	defer rows.Close()

	values := []string{}
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("scanning distinct %s: %w", f, err)
		}
		values = append(values, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating distinct %s: %w", f, err)
	}
	sort.Strings(values)
	return values, nil
}

// ContactsByID loads the contacts with the given ids. Missing ids
// are absent from the result.
func (db *DB) ContactsByID(
	ctx context.Context, ids []int64,
) (map[int64]crm.Contact, error) {
	out := make(map[int64]crm.Contact, len(ids))
	err := queryChunked(ids, func(chunk []int64) error {
		args := make([]any, len(chunk))
		for i, id := range chunk {
			args[i] = id
		}
		rows, err := db.reader.QueryContext(ctx,
			"SELECT "+contactCols+" FROM contacts WHERE id IN "+
				placeholders(len(chunk)),
			args...,
		)
		if err != nil {
			return fmt.Errorf("querying contacts by id: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			c, err := scanContactRow(rows)
			if err != nil {
				return fmt.Errorf("scanning contact: %w", err)
			}
			out[c.ID] = c
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// GetContact returns one contact, or nil if it does not exist.
func (db *DB) GetContact(
	ctx context.Context, id int64,
) (*crm.Contact, error) {
	row := db.reader.QueryRowContext(ctx,
		"SELECT "+contactCols+" FROM contacts WHERE id = ?", id,
	)
	c, err := scanContactRow(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting contact %d: %w", id, err)
	}
	return &c, nil
}

// UpsertContacts inserts or replaces contacts in one transaction.
func (db *DB) UpsertContacts(contacts []crm.Contact) error {
	return db.Update(func(tx *sql.Tx) error {
		stmt, err := tx.Prepare(`
			INSERT INTO contacts (` + contactCols + `)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				display_name = excluded.display_name,
				email = excluded.email,
				country = excluded.country,
				territory_name = excluded.territory_name,
				owner_name = excluded.owner_name,
				status_name = excluded.status_name,
				custom_fields = excluded.custom_fields,
				created_at = excluded.created_at,
				last_contacted = excluded.last_contacted,
				last_contacted_mode = excluded.last_contacted_mode,
				crm_analytics = excluded.crm_analytics,
				synced_at = strftime('%Y-%m-%dT%H:%M:%fZ', 'now')`)
		if err != nil {
			return fmt.Errorf("preparing contact upsert: %w", err)
		}
		defer stmt.Close()

		for _, c := range contacts {
			custom, err := json.Marshal(c.CustomFields)
			if err != nil {
				return fmt.Errorf("encoding custom fields: %w", err)
			}
			analytics, err := json.Marshal(c.Analytics)
			if err != nil {
				return fmt.Errorf("encoding analytics: %w", err)
			}
			if _, err := stmt.Exec(
				c.ID, c.DisplayName, c.Email, c.Country,
				c.TerritoryName, c.OwnerName, c.StatusName,
				string(custom),
				nullString(timeutil.Normalize(c.CreatedAt)),
				nullString(timeutil.Normalize(c.LastContactedAt)),
				nullString(c.LastContactedMode),
				string(analytics),
			); err != nil {
				return fmt.Errorf("upserting contact %d: %w", c.ID, err)
			}
		}
		return nil
	})
}

// UpdateSnapshots writes the crm_analytics snapshot and
// last-contacted marker of each contact, leaving the synced
// profile fields alone.
func (db *DB) UpdateSnapshots(contacts []crm.Contact) error {
	return db.Update(func(tx *sql.Tx) error {
		stmt, err := tx.Prepare(`
			UPDATE contacts SET
				crm_analytics = ?,
				last_contacted = ?,
				last_contacted_mode = ?
			WHERE id = ?`)
		if err != nil {
			return fmt.Errorf("preparing snapshot update: %w", err)
		}
		defer stmt.Close()

		for _, c := range contacts {
			data, err := json.Marshal(c.Analytics)
			if err != nil {
				return fmt.Errorf("encoding analytics: %w", err)
			}
			if _, err := stmt.Exec(
				string(data),
				nullString(timeutil.Normalize(c.LastContactedAt)),
				nullString(c.LastContactedMode),
				c.ID,
			); err != nil {
				return fmt.Errorf(
					"updating snapshot for %d: %w", c.ID, err,
				)
			}
		}
		return nil
	})
}
