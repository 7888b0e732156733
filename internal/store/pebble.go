package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/vfs"
)

const pebbleKeyPrefix = "doc/"

// Pebble is the embedded backend. Documents are JSON values keyed by path.
// Commits are serialized by a mutex and applied as one indexed batch.
type Pebble struct {
	db  *pebble.DB
	mu  sync.Mutex
	now func() time.Time
}

type pebbleRecord struct {
	Data       map[string]any `json:"data"`
	CreateTime string         `json:"createTime"`
}

func OpenPebble(dir string) (*Pebble, error) {
	cache := pebble.NewCache(16 << 20)
	defer cache.Unref()
	db, err := pebble.Open(dir, &pebble.Options{
		Cache:              cache,
		FormatMajorVersion: pebble.FormatNewest,
	})
	if err != nil {
		return nil, fmt.Errorf("open pebble %s: %w", dir, err)
	}
	return &Pebble{db: db, now: time.Now}, nil
}

// OpenPebbleInMemory opens a store backed by an in-memory filesystem.
func OpenPebbleInMemory() (*Pebble, error) {
	db, err := pebble.Open("", &pebble.Options{FS: vfs.NewMem()})
	if err != nil {
		return nil, fmt.Errorf("open in-memory pebble: %w", err)
	}
	return &Pebble{db: db, now: time.Now}, nil
}

func (p *Pebble) Get(_ context.Context, path string) (Document, error) {
	_, id, err := SplitPath(path)
	if err != nil {
		return Document{}, err
	}
	record, found, err := p.read(p.db, pebbleKey(path))
	if err != nil {
		return Document{}, err
	}
	if !found {
		return Document{}, fmt.Errorf("get %s: %w", path, ErrNotFound)
	}
	return record.document(path, id), nil
}

func (p *Pebble) Query(_ context.Context, q Query) ([]Document, error) {
	if err := q.validate(); err != nil {
		return nil, err
	}
	filters := resolveFilters(q.Filters, true)
	prefix := pebbleKeyPrefix + strings.Trim(q.Collection, "/") + "/"

	iter, err := p.db.NewIter(&pebble.IterOptions{
		LowerBound: []byte(prefix),
		UpperBound: prefixUpperBound([]byte(prefix)),
	})
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", q.Collection, err)
	}
	defer iter.Close()

	var docs []Document
	for iter.First(); iter.Valid(); iter.Next() {
		id := strings.TrimPrefix(string(iter.Key()), prefix)
		if strings.Contains(id, "/") {
			continue
		}
		var record pebbleRecord
		if err := json.Unmarshal(iter.Value(), &record); err != nil {
			return nil, fmt.Errorf("decode %s/%s: %w", q.Collection, id, err)
		}
		if !matchesFilters(record.Data, filters) {
			continue
		}
		docs = append(docs, record.document(strings.Trim(q.Collection, "/")+"/"+id, id))
	}
	if err := iter.Error(); err != nil {
		return nil, fmt.Errorf("query %s: %w", q.Collection, err)
	}

	sortDocuments(docs, q)
	return applyLimit(docs, q.Limit), nil
}

func (p *Pebble) Commit(_ context.Context, b *Batch) error {
	if b.Len() == 0 {
		return nil
	}
	if err := b.validate(); err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now().UTC()
	batch := p.db.NewIndexedBatch()
	defer batch.Close()

	for _, w := range b.writes {
		w = resolveWrite(w, now, true)
		key := pebbleKey(w.Path)
		current, exists, err := p.read(batch, key)
		if err != nil {
			return err
		}
		next, keep, err := applyWrite(current.Data, exists, w)
		if err != nil {
			return err
		}
		if !keep {
			if err := batch.Delete(key, nil); err != nil {
				return fmt.Errorf("delete %s: %w", w.Path, err)
			}
			continue
		}
		createTime := current.CreateTime
		if !exists || w.Kind == WriteCreate {
			createTime = now.Format(TimeLayout)
		}
		encoded, err := json.Marshal(pebbleRecord{Data: next, CreateTime: createTime})
		if err != nil {
			return fmt.Errorf("encode %s: %w", w.Path, err)
		}
		if err := batch.Set(key, encoded, nil); err != nil {
			return fmt.Errorf("write %s: %w", w.Path, err)
		}
	}

	if err := batch.Commit(pebble.Sync); err != nil {
		return fmt.Errorf("commit batch: %w", err)
	}
	return nil
}

func (p *Pebble) Ping(context.Context) error {
	if p.db == nil {
		return errors.New("pebble closed")
	}
	return nil
}

func (p *Pebble) Close() error {
	return p.db.Close()
}

func (p *Pebble) read(r pebble.Reader, key []byte) (pebbleRecord, bool, error) {
	value, closer, err := r.Get(key)
	if errors.Is(err, pebble.ErrNotFound) {
		return pebbleRecord{}, false, nil
	}
	if err != nil {
		return pebbleRecord{}, false, fmt.Errorf("read %s: %w", key, err)
	}
	defer closer.Close()

	var record pebbleRecord
	if err := json.Unmarshal(value, &record); err != nil {
		return pebbleRecord{}, false, fmt.Errorf("decode %s: %w", key, err)
	}
	if record.Data == nil {
		record.Data = map[string]any{}
	}
	return record, true, nil
}

func (r pebbleRecord) document(path, id string) Document {
	return Document{
		ID:         id,
		Path:       path,
		Data:       r.Data,
		CreateTime: AsTime(r.CreateTime),
	}
}

func pebbleKey(path string) []byte {
	return []byte(pebbleKeyPrefix + strings.Trim(path, "/"))
}

func prefixUpperBound(prefix []byte) []byte {
	end := make([]byte, len(prefix))
	copy(end, prefix)
	for i := len(end) - 1; i >= 0; i-- {
		end[i]++
		if end[i] != 0 {
			return end[:i+1]
		}
	}
	return nil
}
