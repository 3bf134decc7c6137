// Package store persists the processed-message ledger and the per-sender
// aggregates. Both live behind one Store so a run can load and flush them
// together.
package store

import (
	"context"
	"sort"
	"time"

	"mailcensus/internal/identity"
	"mailcensus/internal/model"
)

// Ledger is the idempotence boundary: the set of message ids already folded
// into the aggregates. Membership is monotonic within a run.
type Ledger interface {
	Seen(id string) bool
	MarkSeen(id string)
	SeenCount() int
}

// Aggregates accumulates per-sender statistics keyed by identity.Key.
type Aggregates interface {
	Upsert(id model.SenderIdentity, c model.Category, now time.Time)
	Records() []model.SenderRecord
	SenderCount() int
}

// Store declares the persistence capabilities the ingestion run requires.
// Load fails soft: corrupt or unreadable storage resets to empty with a
// warning, never an error. Flush must be atomic with respect to process
// crash so a previously valid state is never corrupted mid-write.
type Store interface {
	Ledger
	Aggregates
	Load(ctx context.Context) error
	Flush(ctx context.Context) error
	Close() error
}

// Memory is the in-process state shared by every backend. It also satisfies
// Store on its own (Load/Flush are no-ops), which is what tests inject.
type Memory struct {
	seen    map[string]struct{}
	senders map[string]*model.SenderRecord
}

func NewMemory() *Memory {
	return &Memory{
		seen:    make(map[string]struct{}),
		senders: make(map[string]*model.SenderRecord),
	}
}

func (m *Memory) Seen(id string) bool {
	_, ok := m.seen[id]
	return ok
}

func (m *Memory) MarkSeen(id string) { m.seen[id] = struct{}{} }

func (m *Memory) SeenCount() int { return len(m.seen) }

// Upsert folds one classified message into the sender's record: existing
// records gain a count, a possibly-new category, and a later LastSeen; new
// records start at count 1 with FirstSeen = LastSeen = now.
func (m *Memory) Upsert(id model.SenderIdentity, c model.Category, now time.Time) {
	key := identity.Key(id)
	rec, ok := m.senders[key]
	if !ok {
		m.senders[key] = &model.SenderRecord{
			Key:        key,
			Name:       id.Name,
			Email:      id.Email,
			Categories: model.NewCategorySet(c),
			Count:      1,
			FirstSeen:  now,
			LastSeen:   now,
		}
		return
	}
	rec.Count++
	rec.Categories.Add(c)
	if now.After(rec.LastSeen) {
		rec.LastSeen = now
	}
	// Backfill identity parts a later message supplies.
	if rec.Name == "" {
		rec.Name = id.Name
	}
	if rec.Email == "" {
		rec.Email = id.Email
	}
}

// Records returns a snapshot sorted by count desc, then key asc.
func (m *Memory) Records() []model.SenderRecord {
	out := make([]model.SenderRecord, 0, len(m.senders))
	for _, rec := range m.senders {
		out = append(out, *rec)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Count == out[j].Count {
			return out[i].Key < out[j].Key
		}
		return out[i].Count > out[j].Count
	})
	return out
}

func (m *Memory) SenderCount() int { return len(m.senders) }

func (m *Memory) Load(context.Context) error  { return nil }
func (m *Memory) Flush(context.Context) error { return nil }
func (m *Memory) Close() error                { return nil }

// restore installs a record loaded from storage, merging duplicates that can
// appear if key normalization changed between versions.
func (m *Memory) restore(rec model.SenderRecord) {
	existing, ok := m.senders[rec.Key]
	if !ok {
		r := rec
		m.senders[rec.Key] = &r
		return
	}
	existing.Count += rec.Count
	for c := range rec.Categories {
		existing.Categories.Add(c)
	}
	if rec.FirstSeen.Before(existing.FirstSeen) {
		existing.FirstSeen = rec.FirstSeen
	}
	if rec.LastSeen.After(existing.LastSeen) {
		existing.LastSeen = rec.LastSeen
	}
	if existing.Name == "" {
		existing.Name = rec.Name
	}
	if existing.Email == "" {
		existing.Email = rec.Email
	}
}

// seenIDs returns the ledger contents in lexical order for stable files.
func (m *Memory) seenIDs() []string {
	ids := make([]string, 0, len(m.seen))
	for id := range m.seen {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// resetLedger and resetSenders drop in-memory state when the corresponding
// storage turns out corrupt.
func (m *Memory) resetLedger() { m.seen = make(map[string]struct{}) }

func (m *Memory) resetSenders() { m.senders = make(map[string]*model.SenderRecord) }
