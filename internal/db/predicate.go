package db

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownField is returned when a predicate names a field the
// collection does not expose.
var ErrUnknownField = errors.New("unknown field")

// Field names a filterable record attribute.
type Field string

// Contact fields.
const (
	FieldContactID       Field = "id"
	FieldDisplayName     Field = "display_name"
	FieldEmail           Field = "email"
	FieldCountry         Field = "country"
	FieldTerritory       Field = "territory_name"
	FieldOwner           Field = "owner_name"
	FieldStatus          Field = "status_name"
	FieldLeadLevel       Field = "cf_lead_level"
	FieldContactCategory Field = "cf_contact_category"
	FieldMarket          Field = "cf_market"
	FieldCompany         Field = "cf_company_name"
	FieldCreatedAt       Field = "created_at"
	FieldLastContacted   Field = "last_contacted"
)

// Conversation fields. created_at is shared with contacts.
const (
	FieldConversationID Field = "conversation_id"
	FieldContactRef     Field = "contact_id"
	FieldType           Field = "type"
	FieldUserID         Field = "user_id"
	FieldFirstMessageAt Field = "first_message_at"
	FieldLastMessageAt  Field = "last_message_at"
)

// collection maps fields to SQL expressions for one table.
type collection map[Field]string

var contactColumns = collection{
	FieldContactID:       "id",
	FieldDisplayName:     "display_name",
	FieldEmail:           "email",
	FieldCountry:         "country",
	FieldTerritory:       "territory_name",
	FieldOwner:           "owner_name",
	FieldStatus:          "status_name",
	FieldLeadLevel:       "json_extract(custom_fields, '$.cf_lead_level')",
	FieldContactCategory: "json_extract(custom_fields, '$.cf_contact_category')",
	FieldMarket:          "json_extract(custom_fields, '$.cf_market')",
	FieldCompany:         "json_extract(custom_fields, '$.cf_company_name')",
	FieldCreatedAt:       "created_at",
	FieldLastContacted:   "last_contacted",
}

var conversationColumns = collection{
	FieldConversationID: "id",
	FieldContactRef:     "contact_id",
	FieldType:           "type",
	FieldUserID:         "user_id",
	FieldCreatedAt:      "created_at",
	FieldFirstMessageAt: "first_message_at",
	FieldLastMessageAt:  "last_message_at",
}

func (c collection) column(f Field) (string, error) {
	col, ok := c[f]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownField, f)
	}
	return col, nil
}

// Cond is one node of a storage predicate. Conditions are built
// with the constructors below and compiled per collection.
type Cond interface {
	compile(c collection) (string, []any, error)
}

type eqCond struct {
	field Field
	value any
}

type inCond struct {
	field  Field
	values []any
}

type rangeCond struct {
	field    Field
	gte, lte string
}

type containsCond struct {
	field  Field
	substr string
}

type missingCond struct {
	field Field
}

type boolCond struct {
	op    string
	conds []Cond
}

// Eq matches records whose field equals v.
func Eq(f Field, v any) Cond { return eqCond{field: f, value: v} }

// In matches records whose field is one of values. An empty set
// matches nothing.
func In[T any](f Field, values ...T) Cond {
	vals := make([]any, len(values))
	for i, v := range values {
		vals[i] = v
	}
	return inCond{field: f, values: vals}
}

// Range matches gte <= field <= lte on the stored string form.
// An empty bound is open.
func Range(f Field, gte, lte string) Cond {
	return rangeCond{field: f, gte: gte, lte: lte}
}

// Contains is a case-insensitive substring match.
func Contains(f Field, substr string) Cond {
	return containsCond{field: f, substr: substr}
}

// Missing matches NULL or absent fields.
func Missing(f Field) Cond { return missingCond{field: f} }

// And matches when every condition matches. Nil conditions are
// skipped; an empty And matches everything.
func And(conds ...Cond) Cond { return boolCond{op: "AND", conds: conds} }

// Or matches when any condition matches. Nil conditions are
// skipped; an empty Or matches nothing.
func Or(conds ...Cond) Cond { return boolCond{op: "OR", conds: conds} }

func (e eqCond) compile(c collection) (string, []any, error) {
	col, err := c.column(e.field)
	if err != nil {
		return "", nil, err
	}
	return col + " = ?", []any{e.value}, nil
}

func (in inCond) compile(c collection) (string, []any, error) {
	col, err := c.column(in.field)
	if err != nil {
		return "", nil, err
	}
	if len(in.values) == 0 {
		return "0", nil, nil
	}
	return col + " IN " + placeholders(len(in.values)), in.values, nil
}

func (r rangeCond) compile(c collection) (string, []any, error) {
	col, err := c.column(r.field)
	if err != nil {
		return "", nil, err
	}
	var preds []string
	var args []any
	if r.gte != "" {
		preds = append(preds, col+" >= ?")
		args = append(args, r.gte)
	}
	if r.lte != "" {
		preds = append(preds, col+" <= ?")
		args = append(args, r.lte)
	}
	if len(preds) == 0 {
		return "1", nil, nil
	}
	return strings.Join(preds, " AND "), args, nil
}

// likeEscaper escapes LIKE wildcards so the needle is literal.
var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func (s containsCond) compile(c collection) (string, []any, error) {
	col, err := c.column(s.field)
	if err != nil {
		return "", nil, err
	}
	pattern := "%" + likeEscaper.Replace(strings.ToLower(s.substr)) + "%"
	return "unicode_lower(" + col + `) LIKE ? ESCAPE '\'`, []any{pattern}, nil
}

func (m missingCond) compile(c collection) (string, []any, error) {
	col, err := c.column(m.field)
	if err != nil {
		return "", nil, err
	}
	return col + " IS NULL", nil, nil
}

func (b boolCond) compile(c collection) (string, []any, error) {
	var preds []string
	var args []any
	for _, cond := range b.conds {
		if cond == nil {
			continue
		}
		sql, a, err := cond.compile(c)
		if err != nil {
			return "", nil, err
		}
		preds = append(preds, sql)
		args = append(args, a...)
	}
	switch len(preds) {
	case 0:
		if b.op == "OR" {
			return "0", nil, nil
		}
		return "1", nil, nil
	case 1:
		return preds[0], args, nil
	}
	return "(" + strings.Join(preds, ") "+b.op+" (") + ")", args, nil
}

// whereClause compiles cond for a collection; nil means no filter.
func whereClause(cond Cond, c collection) (string, []any, error) {
	if cond == nil {
		return "1", nil, nil
	}
	return cond.compile(c)
}

// Sort orders query results by one field.
type Sort struct {
	Field Field
	Desc  bool
}

// Query is a predicate plus ordering and a safety cap.
type Query struct {
	Where Cond
	Sort  []Sort
	Limit int
}

// orderLimit renders the ORDER BY and LIMIT tail of a query. A
// trailing tiebreak on the primary key keeps results stable.
func (q Query) orderLimit(c collection, idCol string) (string, error) {
	var parts []string
	for _, s := range q.Sort {
		col, err := c.column(s.Field)
		if err != nil {
			return "", err
		}
		dir := "ASC"
		if s.Desc {
			dir = "DESC"
		}
		parts = append(parts, col+" "+dir)
	}
	parts = append(parts, idCol+" ASC")
	tail := " ORDER BY " + strings.Join(parts, ", ")
	if q.Limit > 0 {
		tail += fmt.Sprintf(" LIMIT %d", q.Limit)
	}
	return tail, nil
}
