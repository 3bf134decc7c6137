package store

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"mailcensus/internal/identity"
	"mailcensus/internal/model"
)

// ledgerFile holds one processed message id per line; sendersFile is the
// aggregate table, CSV with the header below.
const (
	ledgerFile  = "processed_ids.txt"
	sendersFile = "senders.csv"
)

// sendersHeader is the versioned column set of the aggregate file. Unknown
// extra columns in an existing file are ignored on load.
var sendersHeader = []string{"name", "email", "categories", "count", "first_seen", "last_seen"}

// FileStore persists the ledger and aggregates as two plain files in dir.
// Saves go through write-to-temp-then-rename so a crash mid-write never
// corrupts the previous valid state.
type FileStore struct {
	*Memory
	ledgerPath  string
	sendersPath string
	logger      *log.Logger
}

func NewFileStore(dir string, logger *log.Logger) *FileStore {
	return &FileStore{
		Memory:      NewMemory(),
		ledgerPath:  filepath.Join(dir, ledgerFile),
		sendersPath: filepath.Join(dir, sendersFile),
		logger:      logger,
	}
}

// Load reads both files. Missing or corrupt storage resets the affected
// store to empty with a warning; Load itself never fails.
func (s *FileStore) Load(context.Context) error {
	s.loadLedger()
	s.loadSenders()
	return nil
}

func (s *FileStore) loadLedger() {
	data, err := os.ReadFile(s.ledgerPath)
	if os.IsNotExist(err) {
		return
	}
	if err != nil {
		s.logger.Warn("ledger unreadable; starting from an empty ledger", "path", s.ledgerPath, "err", err)
		s.resetLedger()
		return
	}
	for _, line := range strings.Split(string(data), "\n") {
		if id := strings.TrimSpace(line); id != "" {
			s.MarkSeen(id)
		}
	}
}

func (s *FileStore) loadSenders() {
	f, err := os.Open(s.sendersPath)
	if os.IsNotExist(err) {
		return
	}
	if err != nil {
		s.logger.Warn("aggregate file unreadable; starting from empty aggregates", "path", s.sendersPath, "err", err)
		s.resetSenders()
		return
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if err != nil {
		s.logger.Warn("aggregate file has no header row; starting from empty aggregates", "path", s.sendersPath, "err", err)
		s.resetSenders()
		return
	}
	cols := make(map[string]int, len(header))
	for i, name := range header {
		cols[strings.ToLower(strings.TrimSpace(name))] = i
	}
	for _, required := range sendersHeader {
		if _, ok := cols[required]; !ok {
			s.logger.Warn("aggregate file missing required column; starting from empty aggregates",
				"path", s.sendersPath, "column", required)
			s.resetSenders()
			return
		}
	}

	rows, err := r.ReadAll()
	if err != nil {
		s.logger.Warn("aggregate file malformed; starting from empty aggregates", "path", s.sendersPath, "err", err)
		s.resetSenders()
		return
	}
	for i, row := range rows {
		rec, ok := s.parseRow(cols, row)
		if !ok {
			s.logger.Warn("skipping invalid aggregate row", "path", s.sendersPath, "row", i+2)
			continue
		}
		s.restore(rec)
	}
}

// parseRow validates one data row. Rows with a missing field, an unparsable
// count, or an unparsable timestamp are skipped rather than fatal.
func (s *FileStore) parseRow(cols map[string]int, row []string) (model.SenderRecord, bool) {
	field := func(name string) (string, bool) {
		i := cols[name]
		if i >= len(row) {
			return "", false
		}
		return strings.TrimSpace(row[i]), true
	}

	name, okName := field("name")
	email, okEmail := field("email")
	categories, okCats := field("categories")
	countStr, okCount := field("count")
	firstStr, okFirst := field("first_seen")
	lastStr, okLast := field("last_seen")
	if !okName || !okEmail || !okCats || !okCount || !okFirst || !okLast {
		return model.SenderRecord{}, false
	}

	count, err := strconv.Atoi(countStr)
	if err != nil || count < 1 {
		return model.SenderRecord{}, false
	}
	first, err := time.Parse(time.RFC3339, firstStr)
	if err != nil {
		return model.SenderRecord{}, false
	}
	last, err := time.Parse(time.RFC3339, lastStr)
	if err != nil {
		return model.SenderRecord{}, false
	}

	set := model.ParseCategorySet(categories)
	if len(set) == 0 {
		set = model.NewCategorySet(model.CategoryDataHolder)
	}

	// The key is recomputed with the same function Upsert uses, so a saved
	// file re-loads onto the keys a running process would produce.
	id := model.SenderIdentity{Name: name, Email: email}
	return model.SenderRecord{
		Key:        identity.Key(id),
		Name:       name,
		Email:      strings.ToLower(email),
		Categories: set,
		Count:      count,
		FirstSeen:  first,
		LastSeen:   last,
	}, true
}

// Flush writes aggregates first, then the ledger. A crash between the two
// renames can leave ids unmarked whose contribution is already saved (a
// re-run may recount them); it can never mark an id processed without its
// effect applied.
func (s *FileStore) Flush(context.Context) error {
	if err := s.saveSenders(); err != nil {
		return fmt.Errorf("save aggregates: %w", err)
	}
	if err := s.saveLedger(); err != nil {
		return fmt.Errorf("save ledger: %w", err)
	}
	return nil
}

func (s *FileStore) saveSenders() error {
	return writeAtomic(s.sendersPath, func(f *os.File) error {
		w := csv.NewWriter(f)
		if err := w.Write(sendersHeader); err != nil {
			return err
		}
		for _, rec := range s.sortedByKey() {
			row := []string{
				rec.Name,
				rec.Email,
				rec.Categories.String(),
				strconv.Itoa(rec.Count),
				rec.FirstSeen.UTC().Format(time.RFC3339),
				rec.LastSeen.UTC().Format(time.RFC3339),
			}
			if err := w.Write(row); err != nil {
				return err
			}
		}
		w.Flush()
		return w.Error()
	})
}

func (s *FileStore) saveLedger() error {
	return writeAtomic(s.ledgerPath, func(f *os.File) error {
		for _, id := range s.seenIDs() {
			if _, err := fmt.Fprintln(f, id); err != nil {
				return err
			}
		}
		return nil
	})
}

// sortedByKey orders records by key; files sort by key so diffs stay stable
// across runs, while Records sorts by count for reporting.
func (s *FileStore) sortedByKey() []model.SenderRecord {
	out := s.Records()
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

func (s *FileStore) Close() error { return nil }

// writeAtomic writes to path+".tmp" and renames over path.
func writeAtomic(path string, write func(f *os.File) error) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	if err := write(f); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}
