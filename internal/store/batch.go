package store

import "fmt"

type WriteKind int

const (
	WriteCreate WriteKind = iota + 1
	WriteSet
	WriteUpdate
	WriteArrayUnion
	WriteArrayRemove
	WriteDelete
)

func (k WriteKind) String() string {
	switch k {
	case WriteCreate:
		return "create"
	case WriteSet:
		return "set"
	case WriteUpdate:
		return "update"
	case WriteArrayUnion:
		return "array_union"
	case WriteArrayRemove:
		return "array_remove"
	case WriteDelete:
		return "delete"
	default:
		return fmt.Sprintf("write(%d)", int(k))
	}
}

// Write is one sub-operation of a batch.
//
// Create fails with ErrAlreadyExists when the document exists. Set replaces
// the document. Update merges top-level fields and, like the array writes,
// fails with ErrNotFound when the document is missing. Delete of a missing
// document succeeds.
type Write struct {
	Kind   WriteKind
	Path   string
	Data   map[string]any
	Field  string
	Values []any
}

type Batch struct {
	writes []Write
}

func NewBatch() *Batch {
	return &Batch{}
}

func (b *Batch) Create(path string, data map[string]any) *Batch {
	b.writes = append(b.writes, Write{Kind: WriteCreate, Path: path, Data: data})
	return b
}

func (b *Batch) Set(path string, data map[string]any) *Batch {
	b.writes = append(b.writes, Write{Kind: WriteSet, Path: path, Data: data})
	return b
}

func (b *Batch) Update(path string, fields map[string]any) *Batch {
	b.writes = append(b.writes, Write{Kind: WriteUpdate, Path: path, Data: fields})
	return b
}

func (b *Batch) ArrayUnion(path, field string, values ...string) *Batch {
	b.writes = append(b.writes, Write{Kind: WriteArrayUnion, Path: path, Field: field, Values: toAny(values)})
	return b
}

func (b *Batch) ArrayRemove(path, field string, values ...string) *Batch {
	b.writes = append(b.writes, Write{Kind: WriteArrayRemove, Path: path, Field: field, Values: toAny(values)})
	return b
}

func (b *Batch) Delete(path string) *Batch {
	b.writes = append(b.writes, Write{Kind: WriteDelete, Path: path})
	return b
}

func (b *Batch) Len() int {
	if b == nil {
		return 0
	}
	return len(b.writes)
}

func (b *Batch) validate() error {
	for _, w := range b.writes {
		if _, _, err := SplitPath(w.Path); err != nil {
			return err
		}
		switch w.Kind {
		case WriteArrayUnion, WriteArrayRemove:
			if !validField(w.Field) {
				return fmt.Errorf("%s %s: invalid field %q", w.Kind, w.Path, w.Field)
			}
		case WriteUpdate:
			for field := range w.Data {
				if !validField(field) {
					return fmt.Errorf("update %s: invalid field %q", w.Path, field)
				}
			}
		}
	}
	return nil
}

func toAny(values []string) []any {
	out := make([]any, len(values))
	for i, value := range values {
		out[i] = value
	}
	return out
}

// applyWrite computes the next state of a document for the backends that
// implement writes as read-modify-write inside their own transaction.
func applyWrite(current map[string]any, exists bool, w Write) (next map[string]any, keep bool, err error) {
	switch w.Kind {
	case WriteCreate:
		if exists {
			return nil, false, fmt.Errorf("create %s: %w", w.Path, ErrAlreadyExists)
		}
		return cloneMap(w.Data), true, nil
	case WriteSet:
		return cloneMap(w.Data), true, nil
	case WriteUpdate:
		if !exists {
			return nil, false, fmt.Errorf("update %s: %w", w.Path, ErrNotFound)
		}
		next = cloneMap(current)
		for field, value := range w.Data {
			next[field] = value
		}
		return next, true, nil
	case WriteArrayUnion, WriteArrayRemove:
		if !exists {
			return nil, false, fmt.Errorf("%s %s: %w", w.Kind, w.Path, ErrNotFound)
		}
		next = cloneMap(current)
		next[w.Field] = mergeArray(current[w.Field], w.Values, w.Kind == WriteArrayRemove)
		return next, true, nil
	case WriteDelete:
		return nil, false, nil
	default:
		return nil, false, fmt.Errorf("unsupported write %s", w.Kind)
	}
}
