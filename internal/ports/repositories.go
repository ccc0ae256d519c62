package ports

import (
	"context"
	"time"

	"github.com/classboard/core/internal/domain/entities"
)

// Table names the entity tables of the store of record
type Table string

const (
	TableBoards    Table = "boards"
	TableColumns   Table = "columns"
	TablePosts     Table = "posts"
	TableReactions Table = "reactions"
	TableComments  Table = "comments"
	TableProfiles  Table = "profiles"
)

// ParseTable maps a wire name onto a known table
func ParseTable(name string) (Table, error) {
	switch t := Table(name); t {
	case TableBoards, TableColumns, TablePosts, TableReactions, TableComments, TableProfiles:
		return t, nil
	}
	return "", entities.ErrUnknownTable
}

// Filter is a set of column equality predicates
type Filter map[string]string

// Order is one sort key
type Order struct {
	Column     string
	Descending bool
}

// Query describes a select: equality filters plus an ordering
type Query struct {
	Filter Filter
	Order  []Order
}

// Where returns a copy of q with an extra equality predicate
func (q Query) Where(column, value string) Query {
	f := make(Filter, len(q.Filter)+1)
	for k, v := range q.Filter {
		f[k] = v
	}
	f[column] = value
	q.Filter = f
	return q
}

// OrderBy returns a copy of q with an extra sort key
func (q Query) OrderBy(column string, descending bool) Query {
	q.Order = append(append([]Order(nil), q.Order...), Order{Column: column, Descending: descending})
	return q
}

// Fields is a partial row used by updates
type Fields map[string]interface{}

// Repository is the per-table contract the synchronization core needs from the store of record.
type Repository[T any] interface {
	Select(ctx context.Context, q Query) ([]T, error)
	Insert(ctx context.Context, row T) (T, error)
	Update(ctx context.Context, id string, fields Fields) error
	Delete(ctx context.Context, id string) error
}

// ProfileRepository resolves public user projections
type ProfileRepository interface {
	GetByIDs(ctx context.Context, ids []string) ([]entities.Profile, error)
	Upsert(ctx context.Context, profile entities.Profile) error
}

// Storage groups the tables of one store of record
type Storage interface {
	Boards() Repository[entities.Board]
	Columns() Repository[entities.Column]
	Posts() Repository[entities.Post]
	Reactions() Repository[entities.Reaction]
	Comments() Repository[entities.Comment]
	Profiles() ProfileRepository
}

// CacheRepository defines the interface for caching operations
type CacheRepository interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	Get(ctx context.Context, key string, dest interface{}) error
	Delete(ctx context.Context, key string) error
}
