package store

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/contextware/recall/core"
)

// MergeStrategy controls how Import treats ids that already exist.
type MergeStrategy string

const (
	// MergeAppend stores every incoming item, overwriting on id clash.
	MergeAppend MergeStrategy = "append"
	// MergeSkipExisting keeps the resident item on id clash.
	MergeSkipExisting MergeStrategy = "skip_existing"
	// MergeOverwrite replaces the resident item on id clash.
	MergeOverwrite MergeStrategy = "overwrite"
)

// ExportData is a portable snapshot of store contents.
type ExportData struct {
	ExportedAt time.Time          `json:"exported_at"`
	ItemCount  int                `json:"item_count"`
	Items      []*core.MemoryItem `json:"items"`
	Counters   Counters           `json:"counters"`
}

// Export snapshots items matching the optional query filters, ordered
// by id for stable output.
func (s *Store) Export(q *core.Query) *ExportData {
	now := s.clock()

	s.mu.RLock()
	items := make([]*core.MemoryItem, 0, len(s.items))
	for _, item := range s.items {
		if q != nil && !q.Matches(item, now) {
			continue
		}
		items = append(items, item.Clone())
	}
	counters := s.counters
	s.mu.RUnlock()

	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })

	return &ExportData{
		ExportedAt: now,
		ItemCount:  len(items),
		Items:      items,
		Counters:   counters,
	}
}

// ImportReport summarizes an import pass.
type ImportReport struct {
	Imported int `json:"imported"`
	Skipped  int `json:"skipped"`
	Errors   int `json:"errors"`
	Total    int `json:"total"`
}

// Import stores items from an export snapshot according to the merge
// strategy. Individual item failures are counted, not fatal.
func (s *Store) Import(ctx context.Context, data *ExportData, strategy MergeStrategy) (*ImportReport, error) {
	if data == nil {
		return nil, fmt.Errorf("store: nil import data")
	}
	switch strategy {
	case MergeAppend, MergeSkipExisting, MergeOverwrite, "":
	default:
		return nil, fmt.Errorf("store: unknown merge strategy %q", strategy)
	}
	if strategy == "" {
		strategy = MergeAppend
	}

	report := &ImportReport{}
	for _, item := range data.Items {
		if strategy == MergeSkipExisting {
			if _, err := s.Peek(item.ID); err == nil {
				report.Skipped++
				continue
			}
		}
		if _, err := s.Put(ctx, item.Clone()); err != nil {
			report.Errors++
			continue
		}
		report.Imported++
	}
	report.Total = s.Len()
	return report, nil
}
