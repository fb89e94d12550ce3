package store

import (
	"context"
	"database/sql"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"reflect"

	"github.com/inkify/engine/internal/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormStore implements DocumentStore on a GORM connection. Collection
// names map directly to table names.
type GormStore struct {
	db     *gorm.DB
	events *Broadcaster

	// set on transaction-scoped copies
	inTx    bool
	pending *[]ChangeEvent
}

// NewGormStore wraps a GORM connection in the adapter contract
func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db, events: NewBroadcaster()}
}

// Events exposes the broadcaster for wiring external consumers
func (s *GormStore) Events() *Broadcaster {
	return s.events
}

// Get loads a document by id
func (s *GormStore) Get(ctx context.Context, collection, id string, out interface{}) error {
	err := s.db.WithContext(ctx).Table(collection).Where("id = ?", id).Take(out).Error
	return s.translate(err, collection)
}

// GetForUpdate loads a document under a row lock; only meaningful inside Tx
func (s *GormStore) GetForUpdate(ctx context.Context, collection, id string, out interface{}) error {
	q := s.locked(s.db.WithContext(ctx)).Table(collection).Where("id = ?", id)
	return s.translate(q.Take(out).Error, collection)
}

// Query loads matching documents into out
func (s *GormStore) Query(ctx context.Context, collection string, q Query, out interface{}) error {
	tx := s.db.WithContext(ctx).Table(collection)
	for _, f := range q.Filters {
		if f.Op == OpIn {
			tx = tx.Where(f.Field+" IN ?", f.Value)
		} else {
			tx = tx.Where(fmt.Sprintf("%s %s ?", f.Field, f.Op), f.Value)
		}
	}
	if len(q.After.Fields) > 0 {
		expr, args := keysetClause(q.After)
		tx = tx.Where(expr, args...)
	}
	if len(q.OrderBys) > 0 {
		for _, o := range q.OrderBys {
			dir := "ASC"
			if o.Desc {
				dir = "DESC"
			}
			tx = tx.Order(o.Field + " " + dir)
		}
	} else if q.OrderBy != "" {
		dir := "ASC"
		if q.Desc {
			dir = "DESC"
		}
		tx = tx.Order(q.OrderBy + " " + dir)
	}
	if q.Limit > 0 {
		tx = tx.Limit(q.Limit)
	}
	if q.Offset > 0 {
		tx = tx.Offset(q.Offset)
	}
	if q.Pluck != "" {
		if err := tx.Distinct().Pluck(q.Pluck, out).Error; err != nil {
			return errors.StoreUnavailable(err)
		}
		return nil
	}
	if err := tx.Find(out).Error; err != nil {
		return errors.StoreUnavailable(err)
	}
	return nil
}

// Create inserts a document
func (s *GormStore) Create(ctx context.Context, collection string, doc interface{}) error {
	if err := s.db.WithContext(ctx).Table(collection).Create(doc).Error; err != nil {
		return errors.StoreUnavailable(err)
	}
	s.publish(ChangeEvent{Collection: collection, DocID: idOf(doc), Kind: EventCreated})
	return nil
}

// Update applies a partial field update
func (s *GormStore) Update(ctx context.Context, collection, id string, fields map[string]interface{}) error {
	res := s.db.WithContext(ctx).Table(collection).Where("id = ?", id).Updates(fields)
	if res.Error != nil {
		return errors.StoreUnavailable(res.Error)
	}
	if res.RowsAffected == 0 {
		return errors.NotFound(singular(collection))
	}
	s.publish(ChangeEvent{Collection: collection, DocID: id, Kind: EventUpdated})
	return nil
}

// UpdateWhere applies a partial field update to every matching document
func (s *GormStore) UpdateWhere(ctx context.Context, collection string, filters []Filter, fields map[string]interface{}) error {
	tx := s.db.WithContext(ctx).Table(collection)
	for _, f := range filters {
		if f.Op == OpIn {
			tx = tx.Where(f.Field+" IN ?", f.Value)
		} else {
			tx = tx.Where(fmt.Sprintf("%s %s ?", f.Field, f.Op), f.Value)
		}
	}
	if err := tx.Updates(fields).Error; err != nil {
		return errors.StoreUnavailable(err)
	}
	s.publish(ChangeEvent{Collection: collection, Kind: EventUpdated})
	return nil
}

// Delete removes a document
func (s *GormStore) Delete(ctx context.Context, collection, id string) error {
	res := s.db.WithContext(ctx).Exec(fmt.Sprintf("DELETE FROM %s WHERE id = ?", collection), id)
	if res.Error != nil {
		return errors.StoreUnavailable(res.Error)
	}
	if res.RowsAffected == 0 {
		return errors.NotFound(singular(collection))
	}
	s.publish(ChangeEvent{Collection: collection, DocID: id, Kind: EventDeleted})
	return nil
}

// AtomicArrayAdd inserts value into a string-set field if absent.
// The read-modify-write runs under a row lock so concurrent callers
// mutating different elements never overwrite each other.
func (s *GormStore) AtomicArrayAdd(ctx context.Context, collection, id, field, value string) (bool, error) {
	added := false
	err := s.Tx(ctx, func(ts DocumentStore) error {
		gs := ts.(*GormStore)
		arr, err := gs.readArray(ctx, collection, id, field)
		if err != nil {
			return err
		}
		for _, v := range arr {
			if v == value {
				return nil
			}
		}
		arr = append(arr, value)
		if err := gs.writeArray(ctx, collection, id, field, arr); err != nil {
			return err
		}
		added = true
		return nil
	})
	return added, err
}

// AtomicArrayRemove deletes value from a string-set field if present
func (s *GormStore) AtomicArrayRemove(ctx context.Context, collection, id, field, value string) (bool, error) {
	removed := false
	err := s.Tx(ctx, func(ts DocumentStore) error {
		gs := ts.(*GormStore)
		arr, err := gs.readArray(ctx, collection, id, field)
		if err != nil {
			return err
		}
		kept := arr[:0]
		for _, v := range arr {
			if v == value {
				removed = true
				continue
			}
			kept = append(kept, v)
		}
		if !removed {
			return nil
		}
		return gs.writeArray(ctx, collection, id, field, kept)
	})
	if err != nil {
		return false, err
	}
	return removed, nil
}

// AtomicArrayAppend appends an object to a JSON array field without dedupe
func (s *GormStore) AtomicArrayAppend(ctx context.Context, collection, id, field string, value interface{}) error {
	return s.Tx(ctx, func(ts DocumentStore) error {
		gs := ts.(*GormStore)
		raw, err := gs.readRaw(ctx, collection, id, field)
		if err != nil {
			return err
		}
		var arr []json.RawMessage
		if raw != "" {
			if err := json.Unmarshal([]byte(raw), &arr); err != nil {
				return errors.StoreUnavailable(err)
			}
		}
		elem, err := json.Marshal(value)
		if err != nil {
			return errors.StoreUnavailable(err)
		}
		arr = append(arr, elem)
		data, err := json.Marshal(arr)
		if err != nil {
			return errors.StoreUnavailable(err)
		}
		return gs.writeRaw(ctx, collection, id, field, string(data))
	})
}

// AtomicIncrement adds delta to a numeric field in place
func (s *GormStore) AtomicIncrement(ctx context.Context, collection, id, field string, delta int64) error {
	res := s.db.WithContext(ctx).Table(collection).Where("id = ?", id).
		UpdateColumn(field, gorm.Expr(fmt.Sprintf("%s + ?", field), delta))
	if res.Error != nil {
		return errors.StoreUnavailable(res.Error)
	}
	if res.RowsAffected == 0 {
		return errors.NotFound(singular(collection))
	}
	s.publish(ChangeEvent{Collection: collection, DocID: id, Kind: EventUpdated})
	return nil
}

// Tx runs fn in a transaction; events raised inside are flushed on commit
func (s *GormStore) Tx(ctx context.Context, fn func(DocumentStore) error) error {
	if s.inTx {
		return fn(s)
	}

	var pending []ChangeEvent
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		txStore := &GormStore{db: tx, events: s.events, inTx: true, pending: &pending}
		return fn(txStore)
	})
	if err != nil {
		return err
	}
	for _, ev := range pending {
		s.events.Publish(ev)
	}
	return nil
}

// Subscribe returns a change-event channel for a collection
func (s *GormStore) Subscribe(collection string) (<-chan ChangeEvent, func()) {
	return s.events.Subscribe(collection)
}

// readArray loads a string-set column under a row lock
func (s *GormStore) readArray(ctx context.Context, collection, id, field string) ([]string, error) {
	raw, err := s.readRaw(ctx, collection, id, field)
	if err != nil {
		return nil, err
	}
	if raw == "" {
		return nil, nil
	}
	var arr []string
	if err := json.Unmarshal([]byte(raw), &arr); err != nil {
		return nil, errors.StoreUnavailable(err)
	}
	return arr, nil
}

func (s *GormStore) writeArray(ctx context.Context, collection, id, field string, arr []string) error {
	if arr == nil {
		arr = []string{}
	}
	data, err := json.Marshal(arr)
	if err != nil {
		return errors.StoreUnavailable(err)
	}
	return s.writeRaw(ctx, collection, id, field, string(data))
}

func (s *GormStore) readRaw(ctx context.Context, collection, id, field string) (string, error) {
	var raw sql.NullString
	row := s.locked(s.db.WithContext(ctx)).Table(collection).
		Select(field).Where("id = ?", id).Row()
	if err := row.Scan(&raw); err != nil {
		if stderrors.Is(err, sql.ErrNoRows) {
			return "", errors.NotFound(singular(collection))
		}
		return "", errors.StoreUnavailable(err)
	}
	if !raw.Valid {
		return "", nil
	}
	return raw.String, nil
}

func (s *GormStore) writeRaw(ctx context.Context, collection, id, field, data string) error {
	res := s.db.WithContext(ctx).Table(collection).Where("id = ?", id).
		UpdateColumn(field, data)
	if res.Error != nil {
		return errors.StoreUnavailable(res.Error)
	}
	s.publish(ChangeEvent{Collection: collection, DocID: id, Kind: EventUpdated})
	return nil
}

// keysetClause expands a descending keyset position into nested
// comparisons, so ties on earlier fields fall through to later ones:
// (a < ? OR (a = ? AND (b < ? OR (b = ? AND c < ?))))
func keysetClause(ks Keyset) (string, []interface{}) {
	n := len(ks.Fields)
	expr := ks.Fields[n-1] + " < ?"
	args := []interface{}{ks.Values[n-1]}
	for i := n - 2; i >= 0; i-- {
		expr = fmt.Sprintf("%s < ? OR (%s = ? AND (%s))", ks.Fields[i], ks.Fields[i], expr)
		args = append([]interface{}{ks.Values[i], ks.Values[i]}, args...)
	}
	return "(" + expr + ")", args
}

// locked adds FOR UPDATE on dialects that support it; sqlite serializes
// writers on its own
func (s *GormStore) locked(q *gorm.DB) *gorm.DB {
	if s.db.Dialector.Name() == "postgres" {
		return q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	return q
}

func (s *GormStore) publish(ev ChangeEvent) {
	if s.pending != nil {
		*s.pending = append(*s.pending, ev)
		return
	}
	s.events.Publish(ev)
}

func (s *GormStore) translate(err error, collection string) error {
	if err == nil {
		return nil
	}
	if stderrors.Is(err, gorm.ErrRecordNotFound) {
		return errors.NotFound(singular(collection))
	}
	return errors.StoreUnavailable(err)
}

func singular(collection string) string {
	if len(collection) > 1 && collection[len(collection)-1] == 's' {
		return collection[:len(collection)-1]
	}
	return collection
}

func idOf(doc interface{}) string {
	v := reflect.ValueOf(doc)
	for v.Kind() == reflect.Ptr {
		v = v.Elem()
	}
	if v.Kind() != reflect.Struct {
		return ""
	}
	f := v.FieldByName("ID")
	if f.IsValid() && f.Kind() == reflect.String {
		return f.String()
	}
	return ""
}
