// Package store is the document store used by the social core: documents
// addressed by slash separated paths, equality and "in" queries with one
// ordering clause, and atomic multi-document batches.
package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrNotFound      = errors.New("document not found")
	ErrAlreadyExists = errors.New("document already exists")
	ErrInvalidPath   = errors.New("invalid document path")
)

// Store is implemented by every backend.
type Store interface {
	Get(ctx context.Context, path string) (Document, error)
	Query(ctx context.Context, q Query) ([]Document, error)
	// Commit applies every write of the batch or none of them.
	Commit(ctx context.Context, b *Batch) error
	Ping(ctx context.Context) error
	Close() error
}

type Document struct {
	ID         string
	Path       string
	Data       map[string]any
	CreateTime time.Time
}

func (d Document) String(field string) string {
	if value, ok := d.Data[field].(string); ok {
		return value
	}
	return ""
}

func (d Document) Strings(field string) []string {
	return AsStrings(d.Data[field])
}

func (d Document) Time(field string) time.Time {
	return AsTime(d.Data[field])
}

func (d Document) Bool(field string) bool {
	value, _ := d.Data[field].(bool)
	return value
}

func (d Document) Map(field string) map[string]any {
	value, _ := d.Data[field].(map[string]any)
	return value
}

type Op string

const (
	OpEqual Op = "=="
	OpIn    Op = "in"
)

type Filter struct {
	Field string
	Op    Op
	Value any
}

type Query struct {
	Collection string
	Filters    []Filter
	OrderBy    string
	Descending bool
	Limit      int
}

func NewQuery(collection string) Query {
	return Query{Collection: collection}
}

func (q Query) Where(field string, op Op, value any) Query {
	filters := make([]Filter, len(q.Filters), len(q.Filters)+1)
	copy(filters, q.Filters)
	q.Filters = append(filters, Filter{Field: field, Op: op, Value: value})
	return q
}

func (q Query) Order(field string, descending bool) Query {
	q.OrderBy = field
	q.Descending = descending
	return q
}

func (q Query) Take(limit int) Query {
	q.Limit = limit
	return q
}

func (q Query) validate() error {
	if _, err := splitCollection(q.Collection); err != nil {
		return err
	}
	for _, filter := range q.Filters {
		if !validField(filter.Field) {
			return fmt.Errorf("invalid filter field %q", filter.Field)
		}
		switch filter.Op {
		case OpEqual:
		case OpIn:
			if len(inValues(filter.Value)) == 0 {
				return fmt.Errorf("filter %q: in requires a non-empty list", filter.Field)
			}
		default:
			return fmt.Errorf("unsupported filter op %q", filter.Op)
		}
	}
	if q.OrderBy != "" && !validField(q.OrderBy) {
		return fmt.Errorf("invalid order field %q", q.OrderBy)
	}
	return nil
}

type serverTimestamp struct{}

// ServerTimestamp is replaced with the commit time by the backend.
var ServerTimestamp any = serverTimestamp{}

// SplitPath returns the collection path and the id of a document path.
func SplitPath(path string) (collection, id string, err error) {
	segments := strings.Split(strings.Trim(path, "/"), "/")
	if len(segments) < 2 || len(segments)%2 != 0 {
		return "", "", fmt.Errorf("%w: %q", ErrInvalidPath, path)
	}
	for _, segment := range segments {
		if segment == "" {
			return "", "", fmt.Errorf("%w: %q", ErrInvalidPath, path)
		}
	}
	return strings.Join(segments[:len(segments)-1], "/"), segments[len(segments)-1], nil
}

func splitCollection(path string) ([]string, error) {
	segments := strings.Split(strings.Trim(path, "/"), "/")
	if len(segments)%2 != 1 {
		return nil, fmt.Errorf("%w: collection %q", ErrInvalidPath, path)
	}
	for _, segment := range segments {
		if segment == "" {
			return nil, fmt.Errorf("%w: collection %q", ErrInvalidPath, path)
		}
	}
	return segments, nil
}

func validField(field string) bool {
	if field == "" {
		return false
	}
	for i, r := range field {
		switch {
		case r == '_', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9' && i > 0:
		default:
			return false
		}
	}
	return true
}
