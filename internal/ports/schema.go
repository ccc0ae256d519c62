package ports

import (
	"encoding/json"
	"fmt"
	"math"
)

// FieldKind is the wire type of an updatable column
type FieldKind int

const (
	KindString FieldKind = iota
	KindNullableString
	KindInt
	KindFloat
	KindBool
	KindStringList
)

// TableSchema lists the columns a table exposes to filters, orderings and updates.
type TableSchema struct {
	Filterable map[string]bool
	Orderable  map[string]bool
	Updatable  map[string]FieldKind
}

var schemas = map[Table]TableSchema{
	TableBoards: {
		Filterable: set("id", "owner_id"),
		Orderable:  set("updated_at", "created_at", "title"),
		Updatable: map[string]FieldKind{
			"title":            KindString,
			"background_color": KindString,
			"view_mode":        KindString,
			"is_locked":        KindBool,
			"is_public":        KindBool,
		},
	},
	TableColumns: {
		Filterable: set("id", "board_id"),
		Orderable:  set("position", "created_at"),
		Updatable: map[string]FieldKind{
			"title":    KindString,
			"color":    KindString,
			"position": KindInt,
		},
	},
	TablePosts: {
		Filterable: set("id", "board_id", "author_id"),
		Orderable:  set("column_position", "created_at", "z_index"),
		Updatable: map[string]FieldKind{
			"content":         KindString,
			"color":           KindString,
			"pos_x":           KindFloat,
			"pos_y":           KindFloat,
			"z_index":         KindInt,
			"column_id":       KindNullableString,
			"column_position": KindInt,
			"labels":          KindStringList,
		},
	},
	TableReactions: {
		// board_id is resolved through the owning post
		Filterable: set("id", "post_id", "user_id", "board_id"),
		Orderable:  set("created_at"),
		Updatable:  map[string]FieldKind{},
	},
	TableComments: {
		Filterable: set("id", "post_id", "author_id"),
		Orderable:  set("created_at"),
		Updatable:  map[string]FieldKind{},
	},
	TableProfiles: {
		Filterable: set("id"),
		Orderable:  set("created_at"),
		Updatable:  map[string]FieldKind{},
	},
}

func set(items ...string) map[string]bool {
	m := make(map[string]bool, len(items))
	for _, item := range items {
		m[item] = true
	}
	return m
}

// SchemaFor returns the column rules for a table
func SchemaFor(table Table) TableSchema {
	return schemas[table]
}

// CheckQuery rejects filters or orderings on columns the table does not expose
func CheckQuery(table Table, q Query) error {
	schema := SchemaFor(table)
	for column := range q.Filter {
		if !schema.Filterable[column] {
			return fmt.Errorf("%s: cannot filter on %q", table, column)
		}
	}
	for _, o := range q.Order {
		if !schema.Orderable[o.Column] {
			return fmt.Errorf("%s: cannot order by %q", table, o.Column)
		}
	}
	return nil
}

// NormalizeFields coerces decoded JSON values onto the column kinds of table and rejects
// columns that are not updatable.
func NormalizeFields(table Table, fields Fields) (Fields, error) {
	schema := SchemaFor(table)
	out := make(Fields, len(fields))
	for column, value := range fields {
		kind, ok := schema.Updatable[column]
		if !ok {
			return nil, fmt.Errorf("%s: column %q is not updatable", table, column)
		}
		v, err := coerce(kind, value)
		if err != nil {
			return nil, fmt.Errorf("%s.%s: %w", table, column, err)
		}
		out[column] = v
	}
	return out, nil
}

func coerce(kind FieldKind, value interface{}) (interface{}, error) {
	switch kind {
	case KindString:
		if s, ok := value.(string); ok {
			return s, nil
		}
	case KindNullableString:
		switch v := value.(type) {
		case nil:
			return (*string)(nil), nil
		case string:
			return &v, nil
		case *string:
			return v, nil
		}
	case KindBool:
		if b, ok := value.(bool); ok {
			return b, nil
		}
	case KindInt:
		switch v := value.(type) {
		case int:
			return v, nil
		case int64:
			return int(v), nil
		case float64:
			if v == math.Trunc(v) {
				return int(v), nil
			}
		case json.Number:
			n, err := v.Int64()
			if err == nil {
				return int(n), nil
			}
		}
	case KindFloat:
		switch v := value.(type) {
		case float64:
			return v, nil
		case int:
			return float64(v), nil
		case json.Number:
			return v.Float64()
		}
	case KindStringList:
		switch v := value.(type) {
		case nil:
			return []string{}, nil
		case []string:
			return v, nil
		case []interface{}:
			out := make([]string, 0, len(v))
			for _, item := range v {
				s, ok := item.(string)
				if !ok {
					return nil, fmt.Errorf("list item %v is not a string", item)
				}
				out = append(out, s)
			}
			return out, nil
		}
	}
	return nil, fmt.Errorf("unexpected value %v (%T)", value, value)
}

// ApplyFields overlays fields onto a row by its JSON column names.
func ApplyFields[T any](row T, fields Fields) (T, error) {
	raw, err := json.Marshal(row)
	if err != nil {
		return row, fmt.Errorf("encode row: %w", err)
	}
	var m map[string]interface{}
	if err := json.Unmarshal(raw, &m); err != nil {
		return row, fmt.Errorf("decode row: %w", err)
	}
	for k, v := range fields {
		m[k] = v
	}
	raw, err = json.Marshal(m)
	if err != nil {
		return row, fmt.Errorf("encode fields: %w", err)
	}
	var out T
	if err := json.Unmarshal(raw, &out); err != nil {
		return row, fmt.Errorf("apply fields: %w", err)
	}
	return out, nil
}
