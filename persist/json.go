// Package persist provides the JSON-file snapshot backend for the item
// store: one file per item under items/, plus a counters file. It is a
// durability convenience, not a database; the in-memory store stays
// authoritative and treats every call here as best-effort.
package persist

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/contextware/recall/core"
	"github.com/contextware/recall/store"
)

// JSONStore persists items as pretty-printed JSON files under a
// directory.
type JSONStore struct {
	dir string
}

var _ store.Persistence = (*JSONStore)(nil)

// New creates the directory layout if needed and returns the backend.
func New(dir string) (*JSONStore, error) {
	if dir == "" {
		return nil, fmt.Errorf("persist: directory is required")
	}
	if err := os.MkdirAll(filepath.Join(dir, "items"), 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	return &JSONStore{dir: dir}, nil
}

// SaveItem writes the item to items/<id>.json.
func (j *JSONStore) SaveItem(ctx context.Context, item *core.MemoryItem) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.MarshalIndent(item, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal item %s: %w", item.ID, err)
	}
	if err := os.WriteFile(j.itemPath(item.ID), data, 0o644); err != nil {
		return fmt.Errorf("write item %s: %w", item.ID, err)
	}
	return nil
}

// DeleteItem removes the item file; a missing file is not an error.
func (j *JSONStore) DeleteItem(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.Remove(j.itemPath(id)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove item %s: %w", id, err)
	}
	return nil
}

// LoadItems reads every item file. Files that fail to parse are
// skipped; the error count does not fail the load.
func (j *JSONStore) LoadItems(ctx context.Context) ([]*core.MemoryItem, error) {
	entries, err := os.ReadDir(filepath.Join(j.dir, "items"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read items dir: %w", err)
	}

	var items []*core.MemoryItem
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(j.dir, "items", entry.Name()))
		if err != nil {
			log.Printf("[PERSIST] skip %s: %v", entry.Name(), err)
			continue
		}
		var item core.MemoryItem
		if err := json.Unmarshal(data, &item); err != nil {
			log.Printf("[PERSIST] skip %s: %v", entry.Name(), err)
			continue
		}
		items = append(items, &item)
	}
	return items, nil
}

// SaveCounters writes the running totals to counters.json.
func (j *JSONStore) SaveCounters(ctx context.Context, c store.Counters) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal counters: %w", err)
	}
	if err := os.WriteFile(filepath.Join(j.dir, "counters.json"), data, 0o644); err != nil {
		return fmt.Errorf("write counters: %w", err)
	}
	return nil
}

// LoadCounters reads counters.json; a missing file yields zero values.
func (j *JSONStore) LoadCounters(ctx context.Context) (store.Counters, error) {
	var c store.Counters
	if err := ctx.Err(); err != nil {
		return c, err
	}
	data, err := os.ReadFile(filepath.Join(j.dir, "counters.json"))
	if err != nil {
		if os.IsNotExist(err) {
			return c, nil
		}
		return c, fmt.Errorf("read counters: %w", err)
	}
	if err := json.Unmarshal(data, &c); err != nil {
		return c, fmt.Errorf("parse counters: %w", err)
	}
	return c, nil
}

func (j *JSONStore) itemPath(id string) string {
	return filepath.Join(j.dir, "items", id+".json")
}
