package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// Postgres keeps every document as a JSONB row of the documents table. A
// batch is one transaction that locks each touched row before rewriting it.
type Postgres struct {
	db  *sql.DB
	now func() time.Time
}

func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db, now: time.Now}
}

// OpenPostgres connects through pgx and applies the pending migrations
// from migrationsDir.
func OpenPostgres(ctx context.Context, databaseURL, migrationsDir string) (*Postgres, error) {
	db, err := openSQL(ctx, databaseURL)
	if err != nil {
		return nil, err
	}
	if err := ApplyMigrations(ctx, db, migrationsDir); err != nil {
		_ = db.Close()
		return nil, err
	}
	return NewPostgres(db), nil
}

func openSQL(ctx context.Context, databaseURL string) (*sql.DB, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return nil, errors.New("database url is required")
	}
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	// Batches hold row locks for the length of one transaction.
	db.SetMaxOpenConns(16)
	db.SetMaxIdleConns(4)
	db.SetConnMaxLifetime(15 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return db, nil
}

func (p *Postgres) Get(ctx context.Context, path string) (Document, error) {
	_, id, err := SplitPath(path)
	if err != nil {
		return Document{}, err
	}
	var (
		raw        []byte
		createTime time.Time
	)
	err = p.db.QueryRowContext(ctx, `SELECT data, create_time FROM documents WHERE path = $1`, cleanPath(path)).Scan(&raw, &createTime)
	if errors.Is(err, sql.ErrNoRows) {
		return Document{}, fmt.Errorf("get %s: %w", path, ErrNotFound)
	}
	if err != nil {
		return Document{}, fmt.Errorf("get %s: %w", path, err)
	}
	data, err := decodeJSONData(raw)
	if err != nil {
		return Document{}, fmt.Errorf("decode %s: %w", path, err)
	}
	return Document{ID: id, Path: cleanPath(path), Data: data, CreateTime: createTime}, nil
}

func (p *Postgres) Query(ctx context.Context, q Query) ([]Document, error) {
	if err := q.validate(); err != nil {
		return nil, err
	}
	query, args, err := buildPostgresQuery(q)
	if err != nil {
		return nil, err
	}

	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", q.Collection, err)
	}
	defer rows.Close()

	docs := []Document{}
	for rows.Next() {
		var (
			doc Document
			raw []byte
		)
		if err := rows.Scan(&doc.Path, &doc.ID, &raw, &doc.CreateTime); err != nil {
			return nil, fmt.Errorf("scan %s: %w", q.Collection, err)
		}
		if doc.Data, err = decodeJSONData(raw); err != nil {
			return nil, fmt.Errorf("decode %s: %w", doc.Path, err)
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s: %w", q.Collection, err)
	}
	return docs, nil
}

func buildPostgresQuery(q Query) (string, []any, error) {
	args := []any{strings.Trim(q.Collection, "/")}
	where := []string{"collection = $1"}

	for _, filter := range resolveFilters(q.Filters, true) {
		switch filter.Op {
		case OpEqual:
			fragment, err := containment(filter.Field, filter.Value)
			if err != nil {
				return "", nil, err
			}
			args = append(args, fragment)
			where = append(where, fmt.Sprintf("data @> $%d::jsonb", len(args)))
		case OpIn:
			var alternatives []string
			for _, value := range inValues(filter.Value) {
				fragment, err := containment(filter.Field, value)
				if err != nil {
					return "", nil, err
				}
				args = append(args, fragment)
				alternatives = append(alternatives, fmt.Sprintf("data @> $%d::jsonb", len(args)))
			}
			where = append(where, "("+strings.Join(alternatives, " OR ")+")")
		}
	}

	var sb strings.Builder
	sb.WriteString("SELECT path, doc_id, data, create_time FROM documents WHERE ")
	sb.WriteString(strings.Join(where, " AND "))
	if q.OrderBy != "" {
		direction := "ASC"
		if q.Descending {
			direction = "DESC"
		}
		// Field names are validated identifiers.
		fmt.Fprintf(&sb, " ORDER BY data->'%s' %s NULLS LAST, path ASC", q.OrderBy, direction)
	} else {
		sb.WriteString(" ORDER BY path ASC")
	}
	if q.Limit > 0 {
		fmt.Fprintf(&sb, " LIMIT %d", q.Limit)
	}
	return sb.String(), args, nil
}

func containment(field string, value any) (string, error) {
	encoded, err := json.Marshal(map[string]any{field: value})
	if err != nil {
		return "", fmt.Errorf("encode filter %s: %w", field, err)
	}
	return string(encoded), nil
}

func (p *Postgres) Commit(ctx context.Context, b *Batch) error {
	if b.Len() == 0 {
		return nil
	}
	if err := b.validate(); err != nil {
		return err
	}

	now := p.now().UTC()
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin batch: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, w := range b.writes {
		w = resolveWrite(w, now, true)
		path := cleanPath(w.Path)
		collection, id, _ := SplitPath(path)

		var raw []byte
		exists := true
		err := tx.QueryRowContext(ctx, `SELECT data FROM documents WHERE path = $1 FOR UPDATE`, path).Scan(&raw)
		if errors.Is(err, sql.ErrNoRows) {
			exists = false
		} else if err != nil {
			return fmt.Errorf("lock %s: %w", path, err)
		}
		var current map[string]any
		if exists {
			if current, err = decodeJSONData(raw); err != nil {
				return fmt.Errorf("decode %s: %w", path, err)
			}
		}

		next, keep, err := applyWrite(current, exists, w)
		if err != nil {
			return err
		}
		if !keep {
			if _, err := tx.ExecContext(ctx, `DELETE FROM documents WHERE path = $1`, path); err != nil {
				return fmt.Errorf("delete %s: %w", path, err)
			}
			continue
		}

		encoded, err := json.Marshal(next)
		if err != nil {
			return fmt.Errorf("encode %s: %w", path, err)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO documents (path, collection, doc_id, data, create_time, update_time)
			VALUES ($1, $2, $3, $4::jsonb, $5, $5)
			ON CONFLICT (path) DO UPDATE SET data = EXCLUDED.data, update_time = EXCLUDED.update_time
		`, path, collection, id, string(encoded), now); err != nil {
			return fmt.Errorf("write %s: %w", path, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit batch: %w", err)
	}
	return nil
}

func (p *Postgres) Ping(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

func (p *Postgres) Close() error {
	return p.db.Close()
}

func decodeJSONData(raw []byte) (map[string]any, error) {
	data := map[string]any{}
	if len(raw) == 0 {
		return data, nil
	}
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, err
	}
	return data, nil
}

func cleanPath(path string) string {
	return strings.Trim(path, "/")
}
