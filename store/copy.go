// ABOUTME: Copies every record from one store into another
// ABOUTME: Used to move data between the charm, local and SQLite backends
package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/harperreed/agencyops/models"
)

// Partitions lists every partition the services write, opportunity pools first.
func Partitions() []Partition {
	var out []Partition
	for _, pool := range models.LivePools {
		out = append(out, OpportunityPartition(pool))
	}
	return append(out, CustomerPartition, PackagePartition, WorkUnitPartition, CompletionPartition, AlertPartition)
}

type rawRecord struct {
	id   string
	data json.RawMessage
}

// Copy reads every record of src and writes it to dst in a single dst
// transaction, replacing records with the same id. With dryRun set nothing
// is written. The returned counts are per partition.
func Copy(ctx context.Context, src, dst *Store, dryRun bool) (map[Partition]int, error) {
	records := make(map[Partition][]rawRecord)
	err := src.View(ctx, func(tx *Txn) error {
		for _, p := range Partitions() {
			err := tx.Scan(p, func(id string, data []byte) error {
				records[p] = append(records[p], rawRecord{id: id, data: append(json.RawMessage(nil), data...)})
				return nil
			})
			if err != nil {
				return fmt.Errorf("failed to read %s: %w", p, err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	counts := make(map[Partition]int, len(records))
	for p, recs := range records {
		counts[p] = len(recs)
	}
	if dryRun {
		return counts, nil
	}

	err = dst.Update(ctx, func(tx *Txn) error {
		for _, p := range Partitions() {
			for _, rec := range records[p] {
				if err := tx.Put(p, rec.id, rec.data); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to write records: %w", err)
	}
	return counts, nil
}
