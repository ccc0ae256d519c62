package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/oklog/ulid/v2"

	"github.com/classboard/core/internal/domain/entities"
	"github.com/classboard/core/internal/infrastructure/logger"
	"github.com/classboard/core/internal/ports"
)

const tempIDPrefix = "temp-"

// OpState is the lifecycle of one optimistic record
type OpState string

const (
	OpPending    OpState = "pending"
	OpConfirmed  OpState = "confirmed"
	OpRolledBack OpState = "rolled_back"
)

// Write outcomes reported to SyncMetrics
const (
	outcomeConfirmed  = "confirmed"
	outcomeRolledBack = "rolled_back"
	outcomeRefetched  = "refetched"
)

func newTempID() string {
	return tempIDPrefix + ulid.Make().String()
}

// IsTempID reports whether id was generated locally for an unconfirmed record
func IsTempID(id string) bool {
	return strings.HasPrefix(id, tempIDPrefix)
}

// entityKind describes how one entity type plugs into EntityStore
type entityKind[T any] struct {
	name  string
	table ports.Table
	idOf  func(T) string
	// withID returns a copy of the row carrying id
	withID func(T, string) T
	// query builds the select for a scope key
	query func(scope string) ports.Query
	// less is the canonical order applied after every fetch
	less func(a, b T) bool
	// prepend places new records at the head of the list
	prepend bool
	// reconcile merges local-only fields of the draft into the confirmed row
	reconcile func(draft, confirmed T) T
}

// EntityStore is an in-memory ordered collection of one entity type for one scope key. Every
// mutation is applied locally first and then confirmed against the store of record.
type EntityStore[T any] struct {
	kind    entityKind[T]
	repo    ports.Repository[T]
	pending *PendingWrites
	logger  *logger.Logger
	metrics ports.SyncMetrics

	mu         sync.RWMutex
	scope      string
	generation uint64
	items      []T
	states     map[string]OpState
	loading    bool
	err        error
}

func newEntityStore[T any](kind entityKind[T], repo ports.Repository[T], pending *PendingWrites, log *logger.Logger, metrics ports.SyncMetrics) *EntityStore[T] {
	if pending == nil {
		pending = NewPendingWrites()
	}
	if log == nil {
		log = logger.NewNop()
	}
	if metrics == nil {
		metrics = ports.NopMetrics{}
	}
	return &EntityStore[T]{
		kind:    kind,
		repo:    repo,
		pending: pending,
		logger:  log.WithComponent(kind.name + "_store"),
		metrics: metrics,
		states:  make(map[string]OpState),
	}
}

// Fetch replaces the collection with the rows of scope. Switching scope invalidates any fetch
// still in flight for the previous one; its result is dropped when it lands.
func (s *EntityStore[T]) Fetch(ctx context.Context, scope string) error {
	s.mu.Lock()
	s.generation++
	gen := s.generation
	if scope != s.scope {
		s.scope = scope
		s.items = nil
		s.states = make(map[string]OpState)
	}
	s.err = nil
	if scope == "" {
		s.loading = false
		s.mu.Unlock()
		return nil
	}
	s.loading = true
	s.mu.Unlock()

	rows, err := s.repo.Select(ctx, s.kind.query(scope))

	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.generation {
		s.logger.Debugw("Discarding stale fetch", "scope", scope)
		return nil
	}
	s.loading = false
	if err != nil {
		s.err = err
		s.logger.Warnw("Fetch failed", "scope", scope, "error", err.Error())
		return fmt.Errorf("fetch %s: %w", s.kind.table, err)
	}
	sortStable(rows, s.kind.less)
	s.items = rows
	return nil
}

// Refetch reloads the current scope
func (s *EntityStore[T]) Refetch(ctx context.Context) error {
	return s.Fetch(ctx, s.Scope())
}

// Scope returns the current scope key
func (s *EntityStore[T]) Scope() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.scope
}

// Err returns the last fetch failure for the current scope
func (s *EntityStore[T]) Err() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.err
}

// Loading reports whether a fetch for the current scope is in flight
func (s *EntityStore[T]) Loading() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loading
}

// Snapshot returns a copy of the collection in list order
func (s *EntityStore[T]) Snapshot() []T {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]T, len(s.items))
	copy(out, s.items)
	return out
}

// Len returns the number of records
func (s *EntityStore[T]) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

// Get returns the record with id
func (s *EntityStore[T]) Get(id string) (T, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if i := s.indexOf(id); i >= 0 {
		return s.items[i], true
	}
	var zero T
	return zero, false
}

// State returns the lifecycle of an optimistic record created in the current scope
func (s *EntityStore[T]) State(id string) (OpState, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.states[id]
	return st, ok
}

func sortStable[T any](items []T, less func(a, b T) bool) {
	if less == nil {
		return
	}
	sort.SliceStable(items, func(i, j int) bool { return less(items[i], items[j]) })
}

func (s *EntityStore[T]) indexOf(id string) int {
	for i, item := range s.items {
		if s.kind.idOf(item) == id {
			return i
		}
	}
	return -1
}

func (s *EntityStore[T]) removeAt(i int) {
	s.items = append(s.items[:i:i], s.items[i+1:]...)
}

// create inserts draft under a temporary id, then swaps it for the confirmed row in place
func (s *EntityStore[T]) create(ctx context.Context, draft T) (T, error) {
	tempID := newTempID()
	local := s.kind.withID(draft, tempID)

	s.mu.Lock()
	if s.kind.prepend {
		s.items = append([]T{local}, s.items...)
	} else {
		s.items = append(s.items, local)
	}
	s.states[tempID] = OpPending
	s.mu.Unlock()

	confirmed, err := s.repo.Insert(ctx, s.kind.withID(draft, ""))
	s.logger.LogRemoteWrite(s.kind.name, "create", tempID, err)

	s.mu.Lock()
	defer s.mu.Unlock()

	if err != nil {
		if i := s.indexOf(tempID); i >= 0 {
			s.removeAt(i)
		}
		s.states[tempID] = OpRolledBack
		s.metrics.RemoteWrite(s.kind.name, "create", outcomeRolledBack)
		var zero T
		return zero, fmt.Errorf("%s: %w: %w", s.kind.name, entities.ErrCreateFailed, err)
	}

	if s.kind.reconcile != nil {
		confirmed = s.kind.reconcile(draft, confirmed)
	}
	id := s.kind.idOf(confirmed)
	if i := s.indexOf(tempID); i >= 0 {
		if s.indexOf(id) >= 0 {
			// the realtime insert beat the response
			s.removeAt(i)
		} else {
			s.items[i] = confirmed
		}
	}
	s.states[tempID] = OpConfirmed
	s.states[id] = OpConfirmed
	s.metrics.RemoteWrite(s.kind.name, "create", outcomeConfirmed)
	return confirmed, nil
}

// Update applies fields locally and writes them back. The id is held in the pending-write
// tracker for exactly the remote round-trip. On failure the scope is re-fetched.
func (s *EntityStore[T]) Update(ctx context.Context, id string, fields ports.Fields) error {
	if IsTempID(id) {
		return fmt.Errorf("%s %s: %w", s.kind.name, id, entities.ErrPendingCreate)
	}
	if len(fields) == 0 {
		return nil
	}

	s.mu.Lock()
	i := s.indexOf(id)
	if i < 0 {
		s.mu.Unlock()
		return fmt.Errorf("%s %s: %w", s.kind.name, id, entities.ErrNotFound)
	}
	updated, err := ports.ApplyFields(s.items[i], fields)
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("%s %s: %w", s.kind.name, id, err)
	}
	s.items[i] = updated
	s.mu.Unlock()

	err = func() error {
		defer s.pending.Begin(id)()
		return s.repo.Update(ctx, id, fields)
	}()

	s.logger.LogRemoteWrite(s.kind.name, "update", id, err)
	if err != nil {
		s.metrics.RemoteWrite(s.kind.name, "update", outcomeRefetched)
		s.resync(ctx)
		return fmt.Errorf("update %s %s: %w", s.kind.name, id, err)
	}
	s.metrics.RemoteWrite(s.kind.name, "update", outcomeConfirmed)
	return nil
}

// Delete removes the record locally and in the store of record. On failure the scope is
// re-fetched.
func (s *EntityStore[T]) Delete(ctx context.Context, id string) error {
	if IsTempID(id) {
		return fmt.Errorf("%s %s: %w", s.kind.name, id, entities.ErrPendingCreate)
	}

	s.mu.Lock()
	if i := s.indexOf(id); i >= 0 {
		s.removeAt(i)
	}
	s.mu.Unlock()

	err := s.repo.Delete(ctx, id)
	s.logger.LogRemoteWrite(s.kind.name, "delete", id, err)
	if err != nil {
		s.metrics.RemoteWrite(s.kind.name, "delete", outcomeRefetched)
		s.resync(ctx)
		return fmt.Errorf("delete %s %s: %w", s.kind.name, id, err)
	}
	s.metrics.RemoteWrite(s.kind.name, "delete", outcomeConfirmed)
	return nil
}

// discardLocal drops a record from the collection without touching the store of record
func (s *EntityStore[T]) discardLocal(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexOf(id)
	if i < 0 {
		return false
	}
	s.removeAt(i)
	return true
}

func (s *EntityStore[T]) resync(ctx context.Context) {
	if err := s.Refetch(ctx); err != nil && !errors.Is(err, context.Canceled) {
		s.logger.Warnw("Resync after failed write also failed", "error", err.Error())
	}
}

// SetLocal changes fields of a record without writing them anywhere
func (s *EntityStore[T]) SetLocal(id string, fields ports.Fields) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexOf(id)
	if i < 0 {
		return fmt.Errorf("%s %s: %w", s.kind.name, id, entities.ErrNotFound)
	}
	updated, err := ports.ApplyFields(s.items[i], fields)
	if err != nil {
		return fmt.Errorf("%s %s: %w", s.kind.name, id, err)
	}
	s.items[i] = updated
	return nil
}

// ApplyRemoteInsert adds a row broadcast by the store of record unless it is already present
func (s *EntityStore[T]) ApplyRemoteInsert(row T) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.indexOf(s.kind.idOf(row)) >= 0 {
		return false
	}
	if s.kind.prepend {
		s.items = append([]T{row}, s.items...)
	} else {
		s.items = append(s.items, row)
	}
	return true
}

// ApplyRemoteUpdate replaces a row with its broadcast version. Updates for ids with a local
// write in flight are echoes and are dropped.
func (s *EntityStore[T]) ApplyRemoteUpdate(row T) bool {
	id := s.kind.idOf(row)
	if s.pending.Has(id) {
		s.metrics.EchoSuppressed(s.kind.table)
		s.logger.Debugw("Suppressed echo", "id", id)
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexOf(id)
	if i < 0 {
		return false
	}
	s.items[i] = row
	return true
}

// ApplyRemoteDelete removes a row if present
func (s *EntityStore[T]) ApplyRemoteDelete(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexOf(id)
	if i < 0 {
		return false
	}
	s.removeAt(i)
	return true
}
