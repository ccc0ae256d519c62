package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/classboard/core/internal/domain/entities"
	"github.com/classboard/core/internal/ports"
)

// Storage is the Postgres store of record
type Storage struct {
	db *sqlx.DB

	boards    *tableRepository[entities.Board]
	columns   *tableRepository[entities.Column]
	posts     *tableRepository[entities.Post]
	reactions *tableRepository[entities.Reaction]
	comments  *commentRepository
	profiles  *ProfileRepositoryImpl
}

// NewStorage creates the Postgres-backed storage
func NewStorage(db *sqlx.DB) *Storage {
	return &Storage{
		db: db,
		boards: &tableRepository[entities.Board]{db: db, table: ports.TableBoards, insertSQL: `
			INSERT INTO boards (owner_id, title, background_color, view_mode, is_locked, is_public)
			VALUES (:owner_id, :title, :background_color, :view_mode, :is_locked, :is_public)
			RETURNING id, owner_id, title, background_color, view_mode, is_locked, is_public, created_at, updated_at`},
		columns: &tableRepository[entities.Column]{db: db, table: ports.TableColumns, insertSQL: `
			INSERT INTO columns (board_id, title, color, position)
			VALUES (:board_id, :title, :color, :position)
			RETURNING id, board_id, title, color, position, created_at`},
		posts: &tableRepository[entities.Post]{db: db, table: ports.TablePosts, insertSQL: `
			INSERT INTO posts (board_id, author_id, content, color, pos_x, pos_y, z_index, column_id, column_position, labels)
			VALUES (:board_id, :author_id, :content, :color, :pos_x, :pos_y, :z_index, :column_id, :column_position, :labels)
			RETURNING id, board_id, author_id, content, color, pos_x, pos_y, z_index, column_id, column_position, labels, created_at, updated_at`},
		reactions: &tableRepository[entities.Reaction]{db: db, table: ports.TableReactions, insertSQL: `
			INSERT INTO reactions (post_id, user_id, emoji)
			VALUES (:post_id, :user_id, :emoji)
			RETURNING id, post_id, user_id, emoji, created_at`},
		comments: &commentRepository{tableRepository[entities.Comment]{db: db, table: ports.TableComments, insertSQL: `
			INSERT INTO comments (post_id, author_id, content)
			VALUES (:post_id, :author_id, :content)
			RETURNING id, post_id, author_id, content, created_at`}},
		profiles: &ProfileRepositoryImpl{db: db},
	}
}

func (s *Storage) Boards() ports.Repository[entities.Board]       { return s.boards }
func (s *Storage) Columns() ports.Repository[entities.Column]     { return s.columns }
func (s *Storage) Posts() ports.Repository[entities.Post]         { return s.posts }
func (s *Storage) Reactions() ports.Repository[entities.Reaction] { return s.reactions }
func (s *Storage) Comments() ports.Repository[entities.Comment]   { return s.comments }
func (s *Storage) Profiles() ports.ProfileRepository              { return s.profiles }

// tableRepository implements ports.Repository over one table
type tableRepository[T any] struct {
	db        *sqlx.DB
	table     ports.Table
	insertSQL string
}

func (r *tableRepository[T]) Select(ctx context.Context, q ports.Query) ([]T, error) {
	query, args, err := BuildSelect(r.table, q)
	if err != nil {
		return nil, err
	}

	rows := []T{}
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("select %s: %w", r.table, err)
	}
	return rows, nil
}

func (r *tableRepository[T]) Insert(ctx context.Context, row T) (T, error) {
	var created T

	stmt, err := r.db.PrepareNamedContext(ctx, r.insertSQL)
	if err != nil {
		return created, fmt.Errorf("prepare insert %s: %w", r.table, err)
	}
	defer stmt.Close()

	if err := stmt.GetContext(ctx, &created, row); err != nil {
		return created, fmt.Errorf("insert %s: %w", r.table, err)
	}
	return created, nil
}

func (r *tableRepository[T]) Update(ctx context.Context, id string, fields ports.Fields) error {
	query, args, err := BuildUpdate(r.table, id, fields)
	if err != nil {
		return err
	}

	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update %s: %w", r.table, err)
	}
	return checkAffected(result, r.table, id)
}

func (r *tableRepository[T]) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s WHERE id = $1", r.table), id)
	if err != nil {
		return fmt.Errorf("delete %s: %w", r.table, err)
	}
	return checkAffected(result, r.table, id)
}

func checkAffected(result sql.Result, table ports.Table, id string) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check affected rows: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("%s %s: %w", table, id, entities.ErrNotFound)
	}
	return nil
}

// commentRow carries the joined author projection
type commentRow struct {
	entities.Comment
	AuthorEmail       sql.NullString `db:"author_email"`
	AuthorDisplayName sql.NullString `db:"author_display_name"`
	AuthorCreatedAt   sql.NullTime   `db:"author_created_at"`
}

type commentRepository struct {
	tableRepository[entities.Comment]
}

func (r *commentRepository) Select(ctx context.Context, q ports.Query) ([]entities.Comment, error) {
	query, args, err := BuildSelect(r.table, q)
	if err != nil {
		return nil, err
	}

	var rows []commentRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("select %s: %w", r.table, err)
	}

	comments := make([]entities.Comment, 0, len(rows))
	for _, row := range rows {
		c := row.Comment
		if row.AuthorEmail.Valid {
			c.Author = &entities.Profile{
				ID:        c.AuthorID,
				Email:     row.AuthorEmail.String,
				CreatedAt: row.AuthorCreatedAt.Time,
			}
			if row.AuthorDisplayName.Valid {
				name := row.AuthorDisplayName.String
				c.Author.DisplayName = &name
			}
		}
		comments = append(comments, c)
	}
	return comments, nil
}

// ProfileRepositoryImpl implements ports.ProfileRepository
type ProfileRepositoryImpl struct {
	db *sqlx.DB
}

// NewProfileRepository creates a new profile repository
func NewProfileRepository(db *sqlx.DB) ports.ProfileRepository {
	return &ProfileRepositoryImpl{db: db}
}

func (r *ProfileRepositoryImpl) GetByIDs(ctx context.Context, ids []string) ([]entities.Profile, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	query, args, err := sqlx.In(`SELECT id, email, display_name, created_at FROM profiles WHERE id IN (?)`, ids)
	if err != nil {
		return nil, fmt.Errorf("build profile query: %w", err)
	}

	var profiles []entities.Profile
	if err := r.db.SelectContext(ctx, &profiles, r.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("get profiles: %w", err)
	}
	return profiles, nil
}

func (r *ProfileRepositoryImpl) Upsert(ctx context.Context, profile entities.Profile) error {
	query := `
		INSERT INTO profiles (id, email, display_name, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET email = EXCLUDED.email, display_name = EXCLUDED.display_name`

	if profile.CreatedAt.IsZero() {
		profile.CreatedAt = time.Now().UTC()
	}
	if _, err := r.db.ExecContext(ctx, query, profile.ID, profile.Email, profile.DisplayName, profile.CreatedAt); err != nil {
		return fmt.Errorf("upsert profile: %w", err)
	}
	return nil
}

// IsNotFound reports whether err means the row does not exist
func IsNotFound(err error) bool {
	return errors.Is(err, entities.ErrNotFound) || errors.Is(err, sql.ErrNoRows)
}
