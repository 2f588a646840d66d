// ABOUTME: Partitioned record store over a transactional key/value backend
// ABOUTME: Provides retried transactions, atomic relocation between pools and change subscriptions
package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/harperreed/agencyops/models"
	"github.com/rs/zerolog"
)

var (
	ErrNotFound = errors.New("record not found")
	ErrExists   = errors.New("record already exists")
	// ErrConflict marks a transaction that lost a race with another writer.
	// Store.Update retries it; backends return it for optimistic conflicts and lock timeouts.
	ErrConflict = errors.New("transaction conflict")
)

// IsNotFound reports whether err wraps ErrNotFound.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// Tx is a raw key/value transaction provided by a backend.
type Tx interface {
	Get(key []byte) ([]byte, error)
	Set(key, value []byte) error
	Delete(key []byte) error
	// Scan visits every key with the prefix in key order.
	Scan(prefix []byte, fn func(key, value []byte) error) error
}

// Backend executes transactions. Update must apply all writes made by fn or none.
type Backend interface {
	Update(ctx context.Context, fn func(tx Tx) error) error
	View(ctx context.Context, fn func(tx Tx) error) error
}

// Partition names one semantic pool of records.
type Partition string

const (
	PackagePartition  Partition = "package"
	WorkUnitPartition Partition = "workunit"
	AlertPartition    Partition = "alert"
	CustomerPartition Partition = "customer"

	// CompletionPartition holds one record per completed work unit, keyed by unit id.
	CompletionPartition Partition = "completion"
)

// OpportunityPartition returns the partition holding opportunities of a pool.
func OpportunityPartition(pool models.Pool) Partition {
	return Partition("opportunity/" + string(pool))
}

// Op is the kind of change an Event reports.
type Op string

const (
	OpCreate Op = "create"
	OpUpdate Op = "update"
	OpDelete Op = "delete"
)

// Event describes one committed change.
type Event struct {
	Partition Partition
	ID        string
	Op        Op
}

const (
	defaultMaxRetries = 5
	defaultBackoff    = 10 * time.Millisecond
)

// Store is the single source of truth for pipeline and billing records.
type Store struct {
	backend    Backend
	maxRetries int
	backoff    time.Duration
	logger     zerolog.Logger

	mu      sync.RWMutex
	subs    map[Partition]map[int]func(Event)
	nextSub int
}

// Option configures a Store.
type Option func(*Store)

// WithMaxRetries sets how many times a conflicting transaction is attempted.
func WithMaxRetries(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.maxRetries = n
		}
	}
}

// WithBackoff sets the base delay between conflict retries.
func WithBackoff(d time.Duration) Option {
	return func(s *Store) {
		s.backoff = d
	}
}

// WithLogger sets the logger used for retry and subscriber diagnostics.
func WithLogger(logger zerolog.Logger) Option {
	return func(s *Store) {
		s.logger = logger.With().Str("component", "store").Logger()
	}
}

// New creates a store over the backend.
func New(backend Backend, opts ...Option) *Store {
	s := &Store{
		backend:    backend,
		maxRetries: defaultMaxRetries,
		backoff:    defaultBackoff,
		logger:     zerolog.Nop(),
		subs:       make(map[Partition]map[int]func(Event)),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Update runs fn in a read-write transaction. fn may run more than once when
// the backend reports a conflict, so it must derive everything it writes from
// what it reads inside the transaction.
func (s *Store) Update(ctx context.Context, fn func(tx *Txn) error) error {
	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		txn := &Txn{}
		err := s.backend.Update(ctx, func(raw Tx) error {
			txn.reset(raw)
			return fn(txn)
		})
		if err == nil {
			s.publish(txn.events)
			return nil
		}

		if !errors.Is(err, ErrConflict) || attempt >= s.maxRetries {
			return err
		}

		s.logger.Debug().Err(err).Int("attempt", attempt).Msg("retrying conflicting transaction")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(s.backoff * time.Duration(attempt)):
		}
	}
}

// View runs fn in a read-only transaction.
func (s *Store) View(ctx context.Context, fn func(tx *Txn) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.backend.View(ctx, func(raw Tx) error {
		txn := &Txn{}
		txn.reset(raw)
		return fn(txn)
	})
}

// Get loads one record into out.
func (s *Store) Get(ctx context.Context, p Partition, id string, out any) error {
	return s.View(ctx, func(tx *Txn) error {
		return tx.Get(p, id, out)
	})
}

// Create stores a new record; it fails with ErrExists if the id is taken.
func (s *Store) Create(ctx context.Context, p Partition, id string, v any) error {
	return s.Update(ctx, func(tx *Txn) error {
		return tx.Create(p, id, v)
	})
}

// Put creates or replaces a record.
func (s *Store) Put(ctx context.Context, p Partition, id string, v any) error {
	return s.Update(ctx, func(tx *Txn) error {
		return tx.Put(p, id, v)
	})
}

// Delete removes a record.
func (s *Store) Delete(ctx context.Context, p Partition, id string) error {
	return s.Update(ctx, func(tx *Txn) error {
		return tx.Delete(p, id)
	})
}

// Patch loads a record, applies fn and writes it back in one transaction.
func Patch[T any](ctx context.Context, s *Store, p Partition, id string, fn func(*T) error) (*T, error) {
	var out *T
	err := s.Update(ctx, func(tx *Txn) error {
		var rec T
		if err := tx.Get(p, id, &rec); err != nil {
			return err
		}
		if err := fn(&rec); err != nil {
			return err
		}
		out = &rec
		return tx.Put(p, id, &rec)
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Query returns every record of the partition accepted by filter. A nil
// filter accepts all records.
func Query[T any](ctx context.Context, s *Store, p Partition, filter func(*T) bool) ([]T, error) {
	var out []T
	err := s.View(ctx, func(tx *Txn) error {
		var err error
		out, err = ScanAll(tx, p, filter)
		return err
	})
	return out, err
}

// Subscribe registers fn for committed changes in the partition. The returned
// function cancels the subscription.
func (s *Store) Subscribe(p Partition, fn func(Event)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextSub
	s.nextSub++
	if s.subs[p] == nil {
		s.subs[p] = make(map[int]func(Event))
	}
	s.subs[p][id] = fn

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.subs[p], id)
	}
}

func (s *Store) publish(events []Event) {
	if len(events) == 0 {
		return
	}

	for _, ev := range events {
		s.mu.RLock()
		handlers := make([]func(Event), 0, len(s.subs[ev.Partition]))
		for _, fn := range s.subs[ev.Partition] {
			handlers = append(handlers, fn)
		}
		s.mu.RUnlock()

		for _, fn := range handlers {
			s.dispatch(fn, ev)
		}
	}
}

func (s *Store) dispatch(fn func(Event), ev Event) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error().
				Str("partition", string(ev.Partition)).
				Str("id", ev.ID).
				Msg(fmt.Sprintf("subscriber panicked: %v", r))
		}
	}()
	fn(ev)
}
