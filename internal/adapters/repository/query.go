package repository

import (
	"fmt"
	"sort"
	"strings"

	"github.com/lib/pq"

	"github.com/classboard/core/internal/ports"
)

type joinDef struct {
	clause string
	column string
}

// tableDef maps a table onto SQL. Every table is aliased as t.
type tableDef struct {
	from    string
	columns string
	joins   map[string]joinDef
	// touch bumps updated_at on every update
	touch bool
}

var tableDefs = map[ports.Table]tableDef{
	ports.TableBoards: {
		from:    "boards t",
		columns: "t.id, t.owner_id, t.title, t.background_color, t.view_mode, t.is_locked, t.is_public, t.created_at, t.updated_at",
		touch:   true,
	},
	ports.TableColumns: {
		from:    "columns t",
		columns: "t.id, t.board_id, t.title, t.color, t.position, t.created_at",
	},
	ports.TablePosts: {
		from: "posts t",
		columns: "t.id, t.board_id, t.author_id, t.content, t.color, t.pos_x, t.pos_y, t.z_index, " +
			"t.column_id, t.column_position, t.labels, t.created_at, t.updated_at",
		touch: true,
	},
	ports.TableReactions: {
		from:    "reactions t",
		columns: "t.id, t.post_id, t.user_id, t.emoji, t.created_at",
		joins: map[string]joinDef{
			"board_id": {clause: "JOIN posts p ON p.id = t.post_id", column: "p.board_id"},
		},
	},
	ports.TableComments: {
		from: "comments t LEFT JOIN profiles a ON a.id = t.author_id",
		columns: "t.id, t.post_id, t.author_id, t.content, t.created_at, " +
			"a.email AS author_email, a.display_name AS author_display_name, a.created_at AS author_created_at",
	},
	ports.TableProfiles: {
		from:    "profiles t",
		columns: "t.id, t.email, t.display_name, t.created_at",
	},
}

// BuildSelect renders a select over whitelisted filter and order columns
func BuildSelect(table ports.Table, q ports.Query) (string, []interface{}, error) {
	def, ok := tableDefs[table]
	if !ok {
		return "", nil, fmt.Errorf("select %s: unknown table", table)
	}
	if err := ports.CheckQuery(table, q); err != nil {
		return "", nil, err
	}

	var (
		sb    strings.Builder
		where []string
		args  []interface{}
	)
	sb.WriteString("SELECT ")
	sb.WriteString(def.columns)
	sb.WriteString(" FROM ")
	sb.WriteString(def.from)

	for _, column := range sortedKeys(q.Filter) {
		qualified := "t." + column
		if join, ok := def.joins[column]; ok {
			sb.WriteString(" ")
			sb.WriteString(join.clause)
			qualified = join.column
		}
		args = append(args, q.Filter[column])
		where = append(where, fmt.Sprintf("%s = $%d", qualified, len(args)))
	}
	if len(where) > 0 {
		sb.WriteString(" WHERE ")
		sb.WriteString(strings.Join(where, " AND "))
	}

	if len(q.Order) > 0 {
		keys := make([]string, len(q.Order))
		for i, o := range q.Order {
			keys[i] = "t." + o.Column
			if o.Descending {
				keys[i] += " DESC"
			}
		}
		sb.WriteString(" ORDER BY ")
		sb.WriteString(strings.Join(keys, ", "))
	}

	return sb.String(), args, nil
}

// BuildUpdate renders an update of the given columns of one row
func BuildUpdate(table ports.Table, id string, fields ports.Fields) (string, []interface{}, error) {
	def, ok := tableDefs[table]
	if !ok {
		return "", nil, fmt.Errorf("update %s: unknown table", table)
	}
	normalized, err := ports.NormalizeFields(table, fields)
	if err != nil {
		return "", nil, err
	}
	if len(normalized) == 0 {
		return "", nil, fmt.Errorf("update %s: no fields", table)
	}

	var (
		sets []string
		args []interface{}
	)
	for _, column := range sortedKeys(normalized) {
		value := normalized[column]
		if list, ok := value.([]string); ok {
			value = pq.Array(list)
		}
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	if def.touch {
		sets = append(sets, "updated_at = now()")
	}
	args = append(args, id)

	query := fmt.Sprintf("UPDATE %s SET %s WHERE id = $%d", table, strings.Join(sets, ", "), len(args))
	return query, args, nil
}

func sortedKeys[M ~map[string]V, V any](m M) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
