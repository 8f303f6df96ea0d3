// Package history holds the ordered, newest-first list of upload records.
package history

import (
	"encoding/json"
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/streamshort/backend/internal/kv"
	"github.com/streamshort/backend/internal/models"
)

// StorageKey is the fixed key the whole history blob lives under.
const StorageKey = "streamshort_history"

// Port persists the full history as one unit.
type Port interface {
	LoadAll() ([]models.VideoRecord, error)
	SaveAll(records []models.VideoRecord) error
}

// KVPort stores history as a JSON array under StorageKey.
type KVPort struct {
	store kv.Store
	log   *logrus.Entry
}

// NewKVPort creates a Port over store.
func NewKVPort(store kv.Store, log *logrus.Entry) *KVPort {
	return &KVPort{store: store, log: log}
}

// LoadAll reads the stored blob. A missing or unparsable blob yields an empty
// history; entries with the wrong shape or a repeated id are dropped.
// Only backend read failures are returned as errors.
func (p *KVPort) LoadAll() ([]models.VideoRecord, error) {
	data, ok, err := p.store.Get(StorageKey)
	if err != nil {
		return nil, fmt.Errorf("reading history: %w", err)
	}
	if !ok {
		return []models.VideoRecord{}, nil
	}

	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		p.log.WithError(err).Warn("Failed to load history, starting empty")
		return []models.VideoRecord{}, nil
	}

	records := make([]models.VideoRecord, 0, len(raw))
	seen := make(map[string]struct{}, len(raw))
	dropped := 0
	for i, elem := range raw {
		var rec models.VideoRecord
		if err := json.Unmarshal(elem, &rec); err != nil {
			p.log.WithError(err).WithField("index", i).Warn("Dropping unreadable history entry")
			dropped++
			continue
		}
		if err := rec.Validate(); err != nil {
			p.log.WithError(err).WithField("index", i).Warn("Dropping invalid history entry")
			dropped++
			continue
		}
		if _, dup := seen[rec.ID]; dup {
			p.log.WithField("id", rec.ID).Warn("Dropping duplicate history entry")
			dropped++
			continue
		}
		seen[rec.ID] = struct{}{}
		records = append(records, rec)
	}

	if dropped > 0 {
		p.log.WithFields(logrus.Fields{
			"kept":    len(records),
			"dropped": dropped,
		}).Warn("History loaded with invalid entries removed")
	}

	return records, nil
}

// SaveAll overwrites the stored blob with records.
func (p *KVPort) SaveAll(records []models.VideoRecord) error {
	if records == nil {
		records = []models.VideoRecord{}
	}
	data, err := json.Marshal(records)
	if err != nil {
		return fmt.Errorf("encoding history: %w", err)
	}
	if err := p.store.Set(StorageKey, data); err != nil {
		return fmt.Errorf("writing history: %w", err)
	}
	return nil
}
