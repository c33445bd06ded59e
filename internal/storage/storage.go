// Package storage persists the risk core's durable state with BoltDB:
// an append-only admission audit trail with time-range queries, open
// position snapshots keyed by user and symbol, and per-user budget
// snapshots. Everything is JSON in three buckets; the store is safe
// for concurrent use.
package storage

import (
	"bytes"
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"

	"github.com/shopspring/decimal"
	"go.etcd.io/bbolt"

	"riskcore/internal/position"
	"riskcore/internal/risk"
)

const (
	admissionsBucket = "signal_history"
	positionsBucket  = "positions"
	budgetsBucket    = "budgets"
)

// Store is the BoltDB-backed persistence layer.
type Store struct {
	db *bbolt.DB
}

// New opens (or creates) the database under dataPath and ensures the
// buckets exist.
func New(dataPath string) (*Store, error) {
	dbPath := filepath.Join(dataPath, "riskcore.db")

	db, err := bbolt.Open(dbPath, 0o600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, name := range []string{admissionsBucket, positionsBucket, budgetsBucket} {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return fmt.Errorf("create %s bucket: %w", name, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// AdmissionRecord is one audited guard decision.
type AdmissionRecord struct {
	UserID         int64     `json:"userId"`
	Symbol         string    `json:"symbol"`
	Direction      string    `json:"direction"`
	Approved       bool      `json:"approved"`
	Reason         string    `json:"reason,omitempty"`
	Detail         string    `json:"detail,omitempty"`
	Group          string    `json:"group,omitempty"`
	Sector         string    `json:"sector,omitempty"`
	SizeMultiplier float64   `json:"sizeMultiplier"`
	At             time.Time `json:"at"`
}

// RecordAdmission appends a guard decision to the audit trail. Keys
// are "group_unixnano" so per-group range scans stay cheap; rejected
// signals with no group file under the OTHER prefix.
func (s *Store) RecordAdmission(sig risk.Signal, adm risk.Admission) error {
	rec := AdmissionRecord{
		UserID:         sig.UserID,
		Symbol:         sig.Symbol,
		Direction:      sig.Direction,
		Approved:       adm.Approved,
		Reason:         adm.Reason,
		Detail:         adm.Detail,
		Group:          adm.Group,
		Sector:         adm.Sector,
		SizeMultiplier: adm.SizeMultiplier,
		At:             sig.At,
	}
	if rec.At.IsZero() {
		rec.At = time.Now()
	}
	group := rec.Group
	if group == "" {
		group = "OTHER"
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(admissionsBucket))
		data, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("marshal admission: %w", err)
		}
		key := fmt.Sprintf("%s_%d", group, rec.At.UnixNano())
		return b.Put([]byte(key), data)
	})
}

// AdmissionsInRange returns the audited decisions for one group within
// [start, end], oldest first.
func (s *Store) AdmissionsInRange(group string, start, end time.Time) ([]AdmissionRecord, error) {
	var records []AdmissionRecord

	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(admissionsBucket))
		c := b.Cursor()

		prefix := []byte(group + "_")
		startKey := []byte(fmt.Sprintf("%s_%d", group, start.UnixNano()))
		endKey := []byte(fmt.Sprintf("%s_%d", group, end.UnixNano()))

		for k, v := c.Seek(startKey); k != nil && bytes.HasPrefix(k, prefix) && bytes.Compare(k, endKey) <= 0; k, v = c.Next() {
			var rec AdmissionRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				return fmt.Errorf("unmarshal admission %s: %w", k, err)
			}
			records = append(records, rec)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}

// SavePosition upserts a position snapshot.
func (s *Store) SavePosition(p *position.Position) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(positionsBucket))
		data, err := json.Marshal(p)
		if err != nil {
			return fmt.Errorf("marshal position: %w", err)
		}
		return b.Put(positionKey(p.UserID, p.Symbol), data)
	})
}

// DeletePosition removes a position snapshot.
func (s *Store) DeletePosition(userID int64, symbol string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(positionsBucket)).Delete(positionKey(userID, symbol))
	})
}

// LoadPositions returns every persisted position, for rebuilding the
// book on startup.
func (s *Store) LoadPositions() ([]*position.Position, error) {
	var positions []*position.Position

	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(positionsBucket)).ForEach(func(k, v []byte) error {
			var p position.Position
			if err := json.Unmarshal(v, &p); err != nil {
				return fmt.Errorf("unmarshal position %s: %w", k, err)
			}
			positions = append(positions, &p)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return positions, nil
}

func positionKey(userID int64, symbol string) []byte {
	return []byte(fmt.Sprintf("%d_%s", userID, symbol))
}

// BudgetSnapshot is the persisted form of a user's risk budget.
type BudgetSnapshot struct {
	UserID      int64           `json:"userId"`
	Balance     decimal.Decimal `json:"balance"`
	PeakBalance decimal.Decimal `json:"peakBalance"`
	RealizedPnL decimal.Decimal `json:"realizedPnl"`
	UpdatedAt   time.Time       `json:"updatedAt"`
}

// SaveBudget upserts a budget snapshot.
func (s *Store) SaveBudget(b *risk.Budget) error {
	snap := BudgetSnapshot{
		UserID:      b.UserID(),
		Balance:     b.Balance(),
		PeakBalance: b.Peak(),
		RealizedPnL: b.RealizedPnL(),
		UpdatedAt:   time.Now(),
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(budgetsBucket))
		data, err := json.Marshal(snap)
		if err != nil {
			return fmt.Errorf("marshal budget: %w", err)
		}
		return bucket.Put([]byte(fmt.Sprintf("%d", snap.UserID)), data)
	})
}

// LoadBudget returns the snapshot for one user, or nil when absent.
func (s *Store) LoadBudget(userID int64) (*BudgetSnapshot, error) {
	var snap *BudgetSnapshot
	err := s.db.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket([]byte(budgetsBucket)).Get([]byte(fmt.Sprintf("%d", userID)))
		if v == nil {
			return nil
		}
		snap = &BudgetSnapshot{}
		if err := json.Unmarshal(v, snap); err != nil {
			return fmt.Errorf("unmarshal budget: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return snap, nil
}
