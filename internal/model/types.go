package model

import (
	"sort"
	"strings"
	"time"
)

// Category is the service classification assigned to every message.
// The set of values is closed: classification always yields exactly one of
// the constants below, with CategoryDataHolder as the catch-all.
type Category string

const (
	CategoryPersonal     Category = "Personal"
	CategorySocial       Category = "Social"
	CategoryPromotions   Category = "Promotions"
	CategoryUpdates      Category = "Updates"
	CategoryForums       Category = "Forums"
	CategorySubscription Category = "Subscription"
	CategoryDataHolder   Category = "Data Holder"
)

// Categories lists every valid Category.
var Categories = []Category{
	CategoryPersonal,
	CategorySocial,
	CategoryPromotions,
	CategoryUpdates,
	CategoryForums,
	CategorySubscription,
	CategoryDataHolder,
}

// ValidCategory reports whether c is one of the closed set.
func ValidCategory(c Category) bool {
	for _, v := range Categories {
		if v == c {
			return true
		}
	}
	return false
}

// CategorySet is the union of categories observed for one sender across runs.
type CategorySet map[Category]struct{}

func NewCategorySet(cs ...Category) CategorySet {
	s := make(CategorySet, len(cs))
	for _, c := range cs {
		s.Add(c)
	}
	return s
}

func (s CategorySet) Add(c Category)      { s[c] = struct{}{} }
func (s CategorySet) Has(c Category) bool { _, ok := s[c]; return ok }

// Sorted returns the members in lexical order for stable serialization.
func (s CategorySet) Sorted() []Category {
	out := make([]Category, 0, len(s))
	for c := range s {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// String joins the members with ";", the on-disk and report form.
func (s CategorySet) String() string {
	cs := s.Sorted()
	parts := make([]string, len(cs))
	for i, c := range cs {
		parts[i] = string(c)
	}
	return strings.Join(parts, ";")
}

// ParseCategorySet parses a ";"-joined list, dropping tokens outside the
// closed set. An empty or fully-invalid input yields an empty set.
func ParseCategorySet(v string) CategorySet {
	s := make(CategorySet)
	for _, part := range strings.Split(v, ";") {
		c := Category(strings.TrimSpace(part))
		if ValidCategory(c) {
			s.Add(c)
		}
	}
	return s
}

// SenderIdentity is the normalized (name, email) pair extracted from a raw
// From header. Email is lowercase or empty; empty means "no email" and is
// never substituted with a guess.
type SenderIdentity struct {
	Name  string
	Email string
}

// MessageMeta is the per-message metadata the source returns: the raw From
// and Subject headers plus provider label ids.
type MessageMeta struct {
	From    string
	Subject string
	Labels  []string
}

// SenderRecord accumulates per-sender statistics across runs.
// Count only increases, FirstSeen is immutable after creation, and LastSeen
// never decreases.
type SenderRecord struct {
	Key        string
	Name       string
	Email      string
	Categories CategorySet
	Count      int
	FirstSeen  time.Time
	LastSeen   time.Time
}

// RunSummary reports what a single ingestion run persisted.
type RunSummary struct {
	Processed    int // new message ids added to the ledger this run
	Failed       int // subset of Processed that contributed no aggregate update
	TotalSenders int // tracked senders after the run
	Interrupted  bool
}
