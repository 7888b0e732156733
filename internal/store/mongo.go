package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

const mongoCollection = "documents"

// Mongo stores every document in one collection keyed by its full path.
// Batches run as multi-document transactions, which need a replica set.
type Mongo struct {
	client *mongo.Client
	coll   *mongo.Collection
	now    func() time.Time
}

type mongoRecord struct {
	Path       string    `bson:"_id"`
	Collection string    `bson:"collection"`
	DocID      string    `bson:"docId"`
	Data       bson.M    `bson:"data"`
	CreateTime time.Time `bson:"createTime"`
	UpdateTime time.Time `bson:"updateTime"`
}

func OpenMongo(ctx context.Context, uri, database string) (*Mongo, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("ping mongo: %w", err)
	}

	m := &Mongo{
		client: client,
		coll:   client.Database(database).Collection(mongoCollection),
		now:    time.Now,
	}
	if _, err := m.coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "collection", Value: 1}, {Key: "_id", Value: 1}}},
		{Keys: bson.D{{Key: "collection", Value: 1}, {Key: "data.itemId", Value: 1}}},
	}); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("create mongo indexes: %w", err)
	}
	return m, nil
}

func (m *Mongo) Get(ctx context.Context, path string) (Document, error) {
	if _, _, err := SplitPath(path); err != nil {
		return Document{}, err
	}
	var record mongoRecord
	err := m.coll.FindOne(ctx, bson.M{"_id": cleanPath(path)}).Decode(&record)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return Document{}, fmt.Errorf("get %s: %w", path, ErrNotFound)
	}
	if err != nil {
		return Document{}, fmt.Errorf("get %s: %w", path, err)
	}
	return record.document(), nil
}

func (m *Mongo) Query(ctx context.Context, q Query) ([]Document, error) {
	if err := q.validate(); err != nil {
		return nil, err
	}
	filter := bson.M{"collection": strings.Trim(q.Collection, "/")}
	for _, f := range resolveFilters(q.Filters, false) {
		switch f.Op {
		case OpEqual:
			filter["data."+f.Field] = f.Value
		case OpIn:
			filter["data."+f.Field] = bson.M{"$in": inValues(f.Value)}
		}
	}

	opts := options.Find()
	if q.OrderBy != "" {
		direction := 1
		if q.Descending {
			direction = -1
		}
		opts.SetSort(bson.D{{Key: "data." + q.OrderBy, Value: direction}, {Key: "_id", Value: 1}})
	} else {
		opts.SetSort(bson.D{{Key: "_id", Value: 1}})
	}
	if q.Limit > 0 {
		opts.SetLimit(int64(q.Limit))
	}

	cursor, err := m.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", q.Collection, err)
	}
	var records []mongoRecord
	if err := cursor.All(ctx, &records); err != nil {
		return nil, fmt.Errorf("read %s: %w", q.Collection, err)
	}
	docs := make([]Document, 0, len(records))
	for _, record := range records {
		docs = append(docs, record.document())
	}
	return docs, nil
}

func (m *Mongo) Commit(ctx context.Context, b *Batch) error {
	if b.Len() == 0 {
		return nil
	}
	if err := b.validate(); err != nil {
		return err
	}

	session, err := m.client.StartSession()
	if err != nil {
		return fmt.Errorf("start mongo session: %w", err)
	}
	defer session.EndSession(ctx)

	now := m.now().UTC()
	_, err = session.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		for _, w := range b.writes {
			if err := m.apply(sc, resolveWrite(w, now, false), now); err != nil {
				return nil, err
			}
		}
		return nil, nil
	})
	if err != nil {
		return fmt.Errorf("commit batch: %w", err)
	}
	return nil
}

func (m *Mongo) apply(ctx mongo.SessionContext, w Write, now time.Time) error {
	path := cleanPath(w.Path)
	collection, id, _ := SplitPath(path)
	byID := bson.M{"_id": path}

	switch w.Kind {
	case WriteCreate:
		_, err := m.coll.InsertOne(ctx, mongoRecord{
			Path: path, Collection: collection, DocID: id,
			Data: bson.M(w.Data), CreateTime: now, UpdateTime: now,
		})
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("create %s: %w", path, ErrAlreadyExists)
		}
		if err != nil {
			return fmt.Errorf("create %s: %w", path, err)
		}
		return nil
	case WriteSet:
		_, err := m.coll.UpdateOne(ctx, byID, bson.M{
			"$set":         bson.M{"collection": collection, "docId": id, "data": bson.M(w.Data), "updateTime": now},
			"$setOnInsert": bson.M{"createTime": now},
		}, options.Update().SetUpsert(true))
		if err != nil {
			return fmt.Errorf("set %s: %w", path, err)
		}
		return nil
	case WriteDelete:
		if _, err := m.coll.DeleteOne(ctx, byID); err != nil {
			return fmt.Errorf("delete %s: %w", path, err)
		}
		return nil
	}

	var update bson.M
	switch w.Kind {
	case WriteUpdate:
		set := bson.M{"updateTime": now}
		for field, value := range w.Data {
			set["data."+field] = value
		}
		update = bson.M{"$set": set}
	case WriteArrayUnion:
		update = bson.M{
			"$addToSet": bson.M{"data." + w.Field: bson.M{"$each": w.Values}},
			"$set":      bson.M{"updateTime": now},
		}
	case WriteArrayRemove:
		update = bson.M{
			"$pull": bson.M{"data." + w.Field: bson.M{"$in": w.Values}},
			"$set":  bson.M{"updateTime": now},
		}
	default:
		return fmt.Errorf("unsupported write %s", w.Kind)
	}

	result, err := m.coll.UpdateOne(ctx, byID, update)
	if err != nil {
		return fmt.Errorf("%s %s: %w", w.Kind, path, err)
	}
	if result.MatchedCount == 0 {
		return fmt.Errorf("%s %s: %w", w.Kind, path, ErrNotFound)
	}
	return nil
}

func (m *Mongo) Ping(ctx context.Context) error {
	return m.client.Ping(ctx, readpref.Primary())
}

func (m *Mongo) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return m.client.Disconnect(ctx)
}

func (r mongoRecord) document() Document {
	data, _ := normalizeBSON(r.Data).(map[string]any)
	if data == nil {
		data = map[string]any{}
	}
	return Document{ID: r.DocID, Path: r.Path, Data: data, CreateTime: r.CreateTime}
}

// normalizeBSON converts driver types to the plain Go values the rest of
// the code expects.
func normalizeBSON(value any) any {
	switch v := value.(type) {
	case bson.M:
		out := make(map[string]any, len(v))
		for key, item := range v {
			out[key] = normalizeBSON(item)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(v))
		for key, item := range v {
			out[key] = normalizeBSON(item)
		}
		return out
	case bson.D:
		out := make(map[string]any, len(v))
		for _, elem := range v {
			out[elem.Key] = normalizeBSON(elem.Value)
		}
		return out
	case primitive.A:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = normalizeBSON(item)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = normalizeBSON(item)
		}
		return out
	case primitive.DateTime:
		return v.Time().UTC()
	case int32:
		return float64(v)
	case int64:
		return float64(v)
	default:
		return value
	}
}
