package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"cloud.google.com/go/firestore"
	firebase "firebase.google.com/go/v4"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Firestore talks to the hosted store that holds the production data. Paths
// are used verbatim; batches run inside a read-write transaction.
type Firestore struct {
	client *firestore.Client
}

func OpenFirestore(ctx context.Context, projectID, credentialsFile string) (*Firestore, error) {
	var opts []option.ClientOption
	if strings.TrimSpace(credentialsFile) != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	app, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: projectID}, opts...)
	if err != nil {
		return nil, fmt.Errorf("init firebase app: %w", err)
	}
	client, err := app.Firestore(ctx)
	if err != nil {
		return nil, fmt.Errorf("init firestore client: %w", err)
	}
	return &Firestore{client: client}, nil
}

func NewFirestore(client *firestore.Client) *Firestore {
	return &Firestore{client: client}
}

func (f *Firestore) Get(ctx context.Context, path string) (Document, error) {
	ref, err := f.doc(path)
	if err != nil {
		return Document{}, err
	}
	snap, err := ref.Get(ctx)
	if status.Code(err) == codes.NotFound {
		return Document{}, fmt.Errorf("get %s: %w", path, ErrNotFound)
	}
	if err != nil {
		return Document{}, fmt.Errorf("get %s: %w", path, err)
	}
	return snapshotDocument(cleanPath(path), snap), nil
}

func (f *Firestore) Query(ctx context.Context, q Query) ([]Document, error) {
	if err := q.validate(); err != nil {
		return nil, err
	}
	collection := strings.Trim(q.Collection, "/")
	coll := f.client.Collection(collection)
	if coll == nil {
		return nil, fmt.Errorf("%w: collection %q", ErrInvalidPath, q.Collection)
	}

	query := coll.Query
	for _, filter := range resolveFilters(q.Filters, false) {
		value := filter.Value
		if filter.Op == OpIn {
			value = inValues(filter.Value)
		}
		query = query.Where(filter.Field, string(filter.Op), value)
	}
	if q.OrderBy != "" {
		direction := firestore.Asc
		if q.Descending {
			direction = firestore.Desc
		}
		query = query.OrderBy(q.OrderBy, direction)
	}
	if q.Limit > 0 {
		query = query.Limit(q.Limit)
	}

	snaps, err := query.Documents(ctx).GetAll()
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", collection, err)
	}
	docs := make([]Document, 0, len(snaps))
	for _, snap := range snaps {
		docs = append(docs, snapshotDocument(collection+"/"+snap.Ref.ID, snap))
	}
	return docs, nil
}

func (f *Firestore) Commit(ctx context.Context, b *Batch) error {
	if b.Len() == 0 {
		return nil
	}
	if err := b.validate(); err != nil {
		return err
	}
	err := f.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		for _, w := range b.writes {
			if err := f.apply(tx, w); err != nil {
				return err
			}
		}
		return nil
	})
	if err == nil {
		return nil
	}
	switch status.Code(unwrapStatus(err)) {
	case codes.NotFound:
		return fmt.Errorf("commit batch: %w: %v", ErrNotFound, err)
	case codes.AlreadyExists:
		return fmt.Errorf("commit batch: %w: %v", ErrAlreadyExists, err)
	}
	return fmt.Errorf("commit batch: %w", err)
}

func (f *Firestore) apply(tx *firestore.Transaction, w Write) error {
	ref, err := f.doc(w.Path)
	if err != nil {
		return err
	}
	switch w.Kind {
	case WriteCreate:
		return tx.Create(ref, firestoreData(w.Data))
	case WriteSet:
		return tx.Set(ref, firestoreData(w.Data))
	case WriteUpdate:
		updates := make([]firestore.Update, 0, len(w.Data))
		for field, value := range w.Data {
			updates = append(updates, firestore.Update{Path: field, Value: firestoreValue(value)})
		}
		return tx.Update(ref, updates)
	case WriteArrayUnion:
		return tx.Update(ref, []firestore.Update{{Path: w.Field, Value: firestore.ArrayUnion(w.Values...)}})
	case WriteArrayRemove:
		return tx.Update(ref, []firestore.Update{{Path: w.Field, Value: firestore.ArrayRemove(w.Values...)}})
	case WriteDelete:
		return tx.Delete(ref)
	default:
		return fmt.Errorf("unsupported write %s", w.Kind)
	}
}

func (f *Firestore) Ping(ctx context.Context) error {
	_, err := f.client.Doc("_health/ping").Get(ctx)
	if err != nil && status.Code(err) != codes.NotFound {
		return fmt.Errorf("ping firestore: %w", err)
	}
	return nil
}

func (f *Firestore) Close() error {
	return f.client.Close()
}

func (f *Firestore) doc(path string) (*firestore.DocumentRef, error) {
	if _, _, err := SplitPath(path); err != nil {
		return nil, err
	}
	ref := f.client.Doc(cleanPath(path))
	if ref == nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidPath, path)
	}
	return ref, nil
}

func snapshotDocument(path string, snap *firestore.DocumentSnapshot) Document {
	data := snap.Data()
	if data == nil {
		data = map[string]any{}
	}
	return Document{ID: snap.Ref.ID, Path: path, Data: data, CreateTime: snap.CreateTime}
}

func firestoreData(data map[string]any) map[string]any {
	out := make(map[string]any, len(data))
	for key, value := range data {
		out[key] = firestoreValue(value)
	}
	return out
}

func firestoreValue(value any) any {
	switch v := value.(type) {
	case serverTimestamp:
		return firestore.ServerTimestamp
	case map[string]any:
		return firestoreData(v)
	case []string:
		return toAny(v)
	default:
		return value
	}
}

func unwrapStatus(err error) error {
	for e := err; e != nil; e = errors.Unwrap(e) {
		if _, ok := status.FromError(e); ok {
			return e
		}
	}
	return err
}
