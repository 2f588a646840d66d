// ABOUTME: Write staging for the remote charm KV, which has no multi-key transactions
// ABOUTME: Buffers writes, applies them together and restores prior values if one fails

package charm

import (
	"bytes"
	"errors"
	"fmt"
	"sort"

	"github.com/dgraph-io/badger/v3"
	"github.com/harperreed/agencyops/store"
	"github.com/rs/zerolog"
)

// rawKV is the subset of charm/kv.KV the staged transaction needs.
type rawKV interface {
	Get(key []byte) ([]byte, error)
	Set(key, value []byte) error
	Delete(key []byte) error
	Keys() ([][]byte, error)
}

// stagedTx reads through to the KV and buffers writes until commit. A nil
// buffered value marks a delete.
type stagedTx struct {
	kv     rawKV
	writes map[string][]byte
	order  []string
}

func newStagedTx(kv rawKV) *stagedTx {
	return &stagedTx{kv: kv, writes: make(map[string][]byte)}
}

func (s *stagedTx) Get(key []byte) ([]byte, error) {
	if v, ok := s.writes[string(key)]; ok {
		if v == nil {
			return nil, store.ErrNotFound
		}
		return bytes.Clone(v), nil
	}
	return s.readThrough(key)
}

func (s *stagedTx) readThrough(key []byte) ([]byte, error) {
	v, err := s.kv.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) || (err == nil && v == nil) {
		return nil, store.ErrNotFound
	}
	return v, err
}

func (s *stagedTx) Set(key, value []byte) error {
	s.stage(string(key), bytes.Clone(value))
	return nil
}

func (s *stagedTx) Delete(key []byte) error {
	s.stage(string(key), nil)
	return nil
}

func (s *stagedTx) stage(key string, value []byte) {
	if _, ok := s.writes[key]; !ok {
		s.order = append(s.order, key)
	}
	s.writes[key] = value
}

func (s *stagedTx) Scan(prefix []byte, fn func(key, value []byte) error) error {
	keys, err := s.kv.Keys()
	if err != nil {
		return fmt.Errorf("failed to list keys: %w", err)
	}

	seen := make(map[string]bool)
	var matched []string
	for _, k := range keys {
		if bytes.HasPrefix(k, prefix) {
			seen[string(k)] = true
			matched = append(matched, string(k))
		}
	}
	for k := range s.writes {
		if !seen[k] && bytes.HasPrefix([]byte(k), prefix) {
			matched = append(matched, k)
		}
	}
	sort.Strings(matched)

	for _, k := range matched {
		v, err := s.Get([]byte(k))
		if errors.Is(err, store.ErrNotFound) {
			continue
		}
		if err != nil {
			return err
		}
		if err := fn([]byte(k), v); err != nil {
			return err
		}
	}
	return nil
}

// commit applies the buffered writes in order. On failure it restores every
// key it already touched to the value read before commit began. Keys that
// could not be restored are logged and joined into the returned error.
func (s *stagedTx) commit(logger zerolog.Logger) error {
	type prior struct {
		value  []byte
		exists bool
	}
	before := make(map[string]prior, len(s.order))
	for _, k := range s.order {
		v, err := s.readThrough([]byte(k))
		switch {
		case errors.Is(err, store.ErrNotFound):
			before[k] = prior{}
		case err != nil:
			return fmt.Errorf("failed to read %s before commit: %w", k, err)
		default:
			before[k] = prior{value: v, exists: true}
		}
	}

	for i, k := range s.order {
		var err error
		if v := s.writes[k]; v == nil {
			err = s.kv.Delete([]byte(k))
		} else {
			err = s.kv.Set([]byte(k), v)
		}
		if err == nil {
			continue
		}

		errs := []error{fmt.Errorf("failed to write %s: %w", k, err)}
		for j := i - 1; j >= 0; j-- {
			rk := s.order[j]
			p := before[rk]
			var rerr error
			if p.exists {
				rerr = s.kv.Set([]byte(rk), p.value)
			} else {
				rerr = s.kv.Delete([]byte(rk))
			}
			if rerr != nil {
				logger.Error().Err(rerr).Str("key", rk).Str("failed_write", k).Msg("could not restore key after failed commit")
				errs = append(errs, fmt.Errorf("failed to restore %s: %w", rk, rerr))
			}
		}
		return errors.Join(errs...)
	}
	return nil
}
