// Package docstore implements the collection-oriented document store the UI
// uses for all local reads and writes. Every operation resolves into the
// persistence substrate: the whole database, collections plus the identifier
// counter, is one JSON document under a fixed slot key.
package docstore

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"strconv"
	"time"

	"github.com/clinicedge/clinicedge/internal/common"
	"github.com/clinicedge/clinicedge/internal/kv"
	"github.com/clinicedge/clinicedge/internal/logging"
)

// Reserved record fields. Everything else is caller-defined and opaque.
const (
	FieldID      = "id"
	FieldCreated = "created_date"
	FieldUpdated = "updated_date"
)

// Record is a single stored entity. The id is immutable after creation and
// updated_date never precedes created_date.
type Record map[string]any

// ID returns the record identifier, or "" when unset.
func (r Record) ID() string {
	id, _ := r[FieldID].(string)
	return id
}

func (r Record) clone() Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Database is the single persisted document: all collections plus metadata.
type Database struct {
	Collections map[string][]Record `json:"collections"`
	Meta        Meta                `json:"meta"`
}

// Meta carries the monotonic identifier counter. LastID only increases.
type Meta struct {
	LastID int64 `json:"lastId"`
}

// Store is the document store. Construct one per process and pass it by
// reference; there is no package-level instance.
//
// Contract:
//   - collections are ordered; insertion order is preserved and returned;
//   - a missing collection reads as empty without mutating persisted state;
//   - mutating calls persist the whole database document before returning;
//   - absent-record outcomes are sentinels (nil record, true delete), not errors.
//
// Single-goroutine cooperative access only. Two processes sharing a slot are
// last-write-wins, the same way two browser tabs would be.
type Store struct {
	slot kv.Slot
	log  logging.Logger
	now  func() time.Time
}

// Option customizes a Store.
type Option func(*Store)

// WithClock replaces the timestamp source. Test seam.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithLogger attaches a logger.
func WithLogger(log logging.Logger) Option {
	return func(s *Store) { s.log = log }
}

// New returns a Store over the given slot.
func New(slot kv.Slot, opts ...Option) *Store {
	s := &Store{
		slot: slot,
		log:  logging.Nop(),
		now:  time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// load deserializes the database document from the slot. An absent slot
// yields a fresh empty database; a corrupt one is logged and replaced by a
// fresh in-memory database that the next mutating call will persist over it.
func (s *Store) load(ctx context.Context) (*Database, error) {
	raw, ok, err := s.slot.Get(ctx, common.DatabaseKey)
	if err != nil {
		return nil, fmt.Errorf("failed to read database: %w", err)
	}

	db := &Database{Collections: map[string][]Record{}}
	if !ok || raw == "" {
		return db, nil
	}

	if err := json.Unmarshal([]byte(raw), db); err != nil {
		s.log.Warn(ctx, "database document is corrupt, starting fresh", "error", err)
		return &Database{Collections: map[string][]Record{}}, nil
	}
	if db.Collections == nil {
		db.Collections = map[string][]Record{}
	}
	return db, nil
}

func (s *Store) persist(ctx context.Context, db *Database) error {
	raw, err := json.Marshal(db)
	if err != nil {
		return fmt.Errorf("failed to serialize database: %w", err)
	}
	if err := s.slot.Set(ctx, common.DatabaseKey, string(raw)); err != nil {
		return fmt.Errorf("failed to persist database: %w", err)
	}
	return nil
}

func (s *Store) timestamp() string {
	return s.now().UTC().Format(time.RFC3339Nano)
}

// Collections returns the sorted names of every collection currently present.
func (s *Store) Collections(ctx context.Context) ([]string, error) {
	db, err := s.load(ctx)
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(db.Collections))
	for name := range db.Collections {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// List returns a defensive copy of the collection in insertion order.
func (s *Store) List(ctx context.Context, collection string) ([]Record, error) {
	db, err := s.load(ctx)
	if err != nil {
		return nil, err
	}

	records := db.Collections[collection]
	out := make([]Record, 0, len(records))
	for _, r := range records {
		out = append(out, r.clone())
	}
	return out, nil
}

// Get returns the first record matching id, or nil when absent.
func (s *Store) Get(ctx context.Context, collection, id string) (Record, error) {
	db, err := s.load(ctx)
	if err != nil {
		return nil, err
	}

	for _, r := range db.Collections[collection] {
		if r.ID() == id {
			return r.clone(), nil
		}
	}
	return nil, nil
}

// NextID advances the monotonic counter and persists it, returning the new
// value stringified. The increment sticks even when the caller abandons the
// subsequent create; the resulting identifier gap is accepted drift.
func (s *Store) NextID(ctx context.Context) (string, error) {
	db, err := s.load(ctx)
	if err != nil {
		return "", err
	}

	db.Meta.LastID++
	id := strconv.FormatInt(db.Meta.LastID, 10)
	if err := s.persist(ctx, db); err != nil {
		return "", err
	}
	return id, nil
}

// Create appends a record to the collection and persists. The identifier
// comes from data when supplied, else from the counter. Timestamps default
// to now unless the caller provided them.
func (s *Store) Create(ctx context.Context, collection string, data Record) (Record, error) {
	rec := data.clone()

	if rec.ID() == "" {
		id, err := s.NextID(ctx)
		if err != nil {
			return nil, err
		}
		rec[FieldID] = id
	}

	ts := s.timestamp()
	if _, ok := rec[FieldCreated]; !ok {
		rec[FieldCreated] = ts
	}
	if _, ok := rec[FieldUpdated]; !ok {
		rec[FieldUpdated] = ts
	}

	db, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	db.Collections[collection] = append(db.Collections[collection], rec)
	if err := s.persist(ctx, db); err != nil {
		return nil, err
	}
	return rec.clone(), nil
}

// Update merges data over the record with the given id, refreshes
// updated_date, and persists in place. Returns nil without side effects when
// the id is absent. The id field itself is immutable.
func (s *Store) Update(ctx context.Context, collection, id string, data Record) (Record, error) {
	db, err := s.load(ctx)
	if err != nil {
		return nil, err
	}

	records := db.Collections[collection]
	for i, r := range records {
		if r.ID() != id {
			continue
		}
		merged := mergeInto(r, data)
		merged[FieldUpdated] = s.timestamp()
		records[i] = merged
		if err := s.persist(ctx, db); err != nil {
			return nil, err
		}
		return merged.clone(), nil
	}
	return nil, nil
}

// Delete removes all records matching id (expected at most one) and persists.
// A missing id is not an error: the call still reports success.
func (s *Store) Delete(ctx context.Context, collection, id string) (bool, error) {
	db, err := s.load(ctx)
	if err != nil {
		return false, err
	}

	records := db.Collections[collection]
	kept := records[:0:0]
	for _, r := range records {
		if r.ID() != id {
			kept = append(kept, r)
		}
	}
	db.Collections[collection] = kept
	if err := s.persist(ctx, db); err != nil {
		return false, err
	}
	return true, nil
}

// Filter returns the records satisfying pred, in collection order. The
// underlying collection is untouched.
func (s *Store) Filter(ctx context.Context, collection string, pred func(Record) bool) ([]Record, error) {
	db, err := s.load(ctx)
	if err != nil {
		return nil, err
	}

	var out []Record
	for _, r := range db.Collections[collection] {
		if pred(r.clone()) {
			out = append(out, r.clone())
		}
	}
	return out, nil
}

// Upsert finds the first record whose key field equals data[key] and merges
// data over it; when none matches it behaves exactly like Create. An empty
// key defaults to "id". A matching upsert never changes the record's id.
func (s *Store) Upsert(ctx context.Context, collection string, data Record, key string) (Record, error) {
	if key == "" {
		key = FieldID
	}

	db, err := s.load(ctx)
	if err != nil {
		return nil, err
	}

	want, hasWant := data[key]
	if hasWant {
		records := db.Collections[collection]
		for i, r := range records {
			if !fieldEqual(r[key], want) {
				continue
			}
			merged := mergeInto(r, data)
			merged[FieldUpdated] = s.timestamp()
			records[i] = merged
			if err := s.persist(ctx, db); err != nil {
				return nil, err
			}
			return merged.clone(), nil
		}
	}
	return s.Create(ctx, collection, data)
}

// fieldEqual compares two record field values under strict-equality rules:
// composite values (maps, slices) never match, so an upsert keyed on such a
// field falls through to create instead of panicking on interface comparison.
func fieldEqual(a, b any) bool {
	if a == nil || b == nil {
		return a == b
	}
	ta, tb := reflect.TypeOf(a), reflect.TypeOf(b)
	if ta != tb || !ta.Comparable() {
		return false
	}
	return a == b
}

// mergeInto shallow-merges patch over base, preserving base's identifier.
func mergeInto(base, patch Record) Record {
	merged := base.clone()
	for k, v := range patch {
		if k == FieldID {
			continue
		}
		merged[k] = v
	}
	return merged
}
