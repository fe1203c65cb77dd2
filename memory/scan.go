package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/nabiya/diarymem/core"
	"github.com/nabiya/diarymem/memory/index"
)

// EntriesInWindow returns the user's entries dated within
// [referenceDate-(windowDays-1), referenceDate], inclusive, ordered by date
// and then by insertion. Entries with a missing or malformed date are
// skipped.
func (s *Store) EntriesInWindow(ctx context.Context, userID, referenceDate string, windowDays int) ([]core.Document, error) {
	const op = "memory.EntriesInWindow"

	ref, err := time.Parse(core.DateLayout, referenceDate)
	if err != nil {
		return nil, core.E(core.ErrInvalidDate, op, fmt.Errorf("reference date %q", referenceDate))
	}
	if windowDays < 1 {
		return nil, core.E(core.ErrInvalidInput, op, fmt.Errorf("window must be at least 1 day, got %d", windowDays))
	}
	start := ref.AddDate(0, 0, -(windowDays - 1))

	type dated struct {
		doc  core.Document
		date time.Time
	}
	var found []dated
	err = s.scan(ctx, userID, func(doc core.Document) {
		d, ok := doc.Metadata.Date()
		if !ok || d.Before(start) || d.After(ref) {
			return
		}
		found = append(found, dated{doc: doc, date: d})
	})
	if err != nil {
		return nil, core.E(core.ErrRetrieval, op, err)
	}

	sort.SliceStable(found, func(i, j int) bool {
		return found[i].date.Before(found[j].date)
	})
	out := make([]core.Document, len(found))
	for i, f := range found {
		out[i] = f.doc
	}
	return out, nil
}

// ListAllEntries returns every entry of the user in insertion order.
func (s *Store) ListAllEntries(ctx context.Context, userID string) ([]core.Document, error) {
	var out []core.Document
	if err := s.scan(ctx, userID, func(doc core.Document) {
		out = append(out, doc)
	}); err != nil {
		return nil, core.E(core.ErrRetrieval, "memory.ListAllEntries", err)
	}
	return out, nil
}

// ThemeCount is how many theme entries a user has written for one theme.
type ThemeCount struct {
	Theme string `json:"theme"`
	Count int    `json:"count"`
}

// ThemeCounts tallies the user's theme entries, most written first and then
// by name.
func (s *Store) ThemeCounts(ctx context.Context, userID string) ([]ThemeCount, error) {
	counts := make(map[string]int)
	if err := s.scan(ctx, userID, func(doc core.Document) {
		if doc.Metadata.Kind() != core.KindTheme {
			return
		}
		if theme := doc.Metadata[core.MetaTheme]; theme != "" {
			counts[theme]++
		}
	}); err != nil {
		return nil, core.E(core.ErrRetrieval, "memory.ThemeCounts", err)
	}

	out := make([]ThemeCount, 0, len(counts))
	for theme, n := range counts {
		out = append(out, ThemeCount{Theme: theme, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Theme < out[j].Theme
	})
	return out, nil
}

// scan walks the index under the read lock and calls fn with a copy of
// every document owned by userID.
func (s *Store) scan(ctx context.Context, userID string, fn func(core.Document)) error {
	if userID == "" {
		return core.E(core.ErrInvalidInput, "memory.scan", fmt.Errorf("user_id is required"))
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.idx.Walk(ctx, func(e index.Entry) error {
		if e.Document.Metadata.UserID() != userID {
			return nil
		}
		fn(e.Document.Clone())
		return nil
	})
}
