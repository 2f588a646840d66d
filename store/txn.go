// ABOUTME: Typed JSON record operations inside a single store transaction
// ABOUTME: Records change events that are published only after the transaction commits
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Txn wraps a backend transaction with partition-aware JSON records.
type Txn struct {
	tx     Tx
	events []Event
}

func (t *Txn) reset(raw Tx) {
	t.tx = raw
	t.events = t.events[:0]
}

func recordKey(p Partition, id string) []byte {
	return []byte(string(p) + "/" + id)
}

func partitionPrefix(p Partition) []byte {
	return []byte(string(p) + "/")
}

// Get decodes the record into out or returns ErrNotFound.
func (t *Txn) Get(p Partition, id string, out any) error {
	data, err := t.tx.Get(recordKey(p, id))
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode %s/%s: %w", p, id, err)
	}
	return nil
}

// Exists reports whether the partition holds a record with the id.
func (t *Txn) Exists(p Partition, id string) (bool, error) {
	_, err := t.tx.Get(recordKey(p, id))
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Create writes a new record and fails with ErrExists if the id is taken.
func (t *Txn) Create(p Partition, id string, v any) error {
	exists, err := t.Exists(p, id)
	if err != nil {
		return err
	}
	if exists {
		return fmt.Errorf("%s/%s: %w", p, id, ErrExists)
	}
	if err := t.write(p, id, v); err != nil {
		return err
	}
	t.events = append(t.events, Event{Partition: p, ID: id, Op: OpCreate})
	return nil
}

// Put creates or replaces a record.
func (t *Txn) Put(p Partition, id string, v any) error {
	exists, err := t.Exists(p, id)
	if err != nil {
		return err
	}
	if err := t.write(p, id, v); err != nil {
		return err
	}
	op := OpUpdate
	if !exists {
		op = OpCreate
	}
	t.events = append(t.events, Event{Partition: p, ID: id, Op: op})
	return nil
}

// Delete removes a record and fails with ErrNotFound if it is missing.
func (t *Txn) Delete(p Partition, id string) error {
	exists, err := t.Exists(p, id)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("%s/%s: %w", p, id, ErrNotFound)
	}
	if err := t.tx.Delete(recordKey(p, id)); err != nil {
		return fmt.Errorf("failed to delete %s/%s: %w", p, id, err)
	}
	t.events = append(t.events, Event{Partition: p, ID: id, Op: OpDelete})
	return nil
}

// Relocate moves a record from one partition to another, writing v as its new
// content. Both writes belong to this transaction, so no reader ever sees the
// record in neither or both partitions.
func (t *Txn) Relocate(from, to Partition, id string, v any) error {
	if from == to {
		exists, err := t.Exists(from, id)
		if err != nil {
			return err
		}
		if !exists {
			return fmt.Errorf("%s/%s: %w", from, id, ErrNotFound)
		}
		return t.Put(to, id, v)
	}
	if err := t.Delete(from, id); err != nil {
		return err
	}
	return t.Create(to, id, v)
}

// Scan visits the raw JSON of every record in the partition in id order.
func (t *Txn) Scan(p Partition, fn func(id string, data []byte) error) error {
	prefix := partitionPrefix(p)
	return t.tx.Scan(prefix, func(key, value []byte) error {
		id := strings.TrimPrefix(string(key), string(prefix))
		// nested partitions share a prefix; skip their keys
		if strings.Contains(id, "/") {
			return nil
		}
		return fn(id, value)
	})
}

func (t *Txn) write(p Partition, id string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode %s/%s: %w", p, id, err)
	}
	if err := t.tx.Set(recordKey(p, id), data); err != nil {
		return fmt.Errorf("failed to write %s/%s: %w", p, id, err)
	}
	return nil
}

// ScanAll decodes every record of the partition accepted by filter.
func ScanAll[T any](t *Txn, p Partition, filter func(*T) bool) ([]T, error) {
	var out []T
	err := t.Scan(p, func(id string, data []byte) error {
		var rec T
		if err := json.Unmarshal(data, &rec); err != nil {
			return fmt.Errorf("failed to decode %s/%s: %w", p, id, err)
		}
		if filter == nil || filter(&rec) {
			out = append(out, rec)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
