package remote

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/classboard/core/internal/domain/entities"
	"github.com/classboard/core/internal/ports"
)

const apiPrefix = "/api/v1/"

// Storage implements ports.Storage against a gateway
type Storage struct {
	boards    *table[entities.Board]
	columns   *table[entities.Column]
	posts     *table[entities.Post]
	reactions *table[entities.Reaction]
	comments  *table[entities.Comment]
	profiles  *profiles
}

// NewStorage creates a remote store of record
func NewStorage(client *Client) *Storage {
	return &Storage{
		boards:    &table[entities.Board]{client: client, name: ports.TableBoards},
		columns:   &table[entities.Column]{client: client, name: ports.TableColumns},
		posts:     &table[entities.Post]{client: client, name: ports.TablePosts},
		reactions: &table[entities.Reaction]{client: client, name: ports.TableReactions},
		comments:  &table[entities.Comment]{client: client, name: ports.TableComments},
		profiles:  &profiles{client: client},
	}
}

func (s *Storage) Boards() ports.Repository[entities.Board]       { return s.boards }
func (s *Storage) Columns() ports.Repository[entities.Column]     { return s.columns }
func (s *Storage) Posts() ports.Repository[entities.Post]         { return s.posts }
func (s *Storage) Reactions() ports.Repository[entities.Reaction] { return s.reactions }
func (s *Storage) Comments() ports.Repository[entities.Comment]   { return s.comments }
func (s *Storage) Profiles() ports.ProfileRepository              { return s.profiles }

// EncodeQuery renders a query the way the gateway parses it
func EncodeQuery(q ports.Query) url.Values {
	values := url.Values{}
	for column, value := range q.Filter {
		values.Set(column, value)
	}
	for _, o := range q.Order {
		key := o.Column
		if o.Descending {
			key += ".desc"
		}
		values.Add("order", key)
	}
	return values
}

type table[T any] struct {
	client *Client
	name   ports.Table
}

func (t *table[T]) Select(ctx context.Context, q ports.Query) ([]T, error) {
	var rows []T
	if err := t.client.do(ctx, http.MethodGet, apiPrefix+string(t.name), EncodeQuery(q), nil, &rows); err != nil {
		return nil, err
	}
	if rows == nil {
		rows = []T{}
	}
	return rows, nil
}

func (t *table[T]) Insert(ctx context.Context, row T) (T, error) {
	var created T
	err := t.client.do(ctx, http.MethodPost, apiPrefix+string(t.name), nil, row, &created)
	return created, err
}

func (t *table[T]) Update(ctx context.Context, id string, fields ports.Fields) error {
	return t.client.do(ctx, http.MethodPatch, apiPrefix+string(t.name)+"/"+url.PathEscape(id), nil, fields, nil)
}

func (t *table[T]) Delete(ctx context.Context, id string) error {
	return t.client.do(ctx, http.MethodDelete, apiPrefix+string(t.name)+"/"+url.PathEscape(id), nil, nil, nil)
}

type profiles struct {
	client *Client
}

func (p *profiles) GetByIDs(ctx context.Context, ids []string) ([]entities.Profile, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var out []entities.Profile
	query := url.Values{"id": {strings.Join(ids, ",")}}
	if err := p.client.do(ctx, http.MethodGet, apiPrefix+string(ports.TableProfiles), query, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (p *profiles) Upsert(ctx context.Context, profile entities.Profile) error {
	return p.client.do(ctx, http.MethodPost, apiPrefix+string(ports.TableProfiles), nil, profile, nil)
}
