package docstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/lib/pq"
)

const uniqueViolation = "23505"

// PostgresDatabase stores each collection as a table of JSONB documents:
//
//	CREATE TABLE <collection> (id TEXT PRIMARY KEY, doc JSONB NOT NULL)
//
// Tables are created by the migrations in internal/db/migrations.
type PostgresDatabase struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresDatabase {
	return &PostgresDatabase{db: db}
}

func (p *PostgresDatabase) Collection(name string) Collection {
	return &postgresCollection{db: p.db, table: pq.QuoteIdentifier(name)}
}

func (p *PostgresDatabase) EnsureIndex(ctx context.Context, collection string, index Index) error {
	if len(index.Keys) == 0 {
		return errors.New("index requires at least one key")
	}
	exprs := make([]string, 0, len(index.Keys))
	for _, key := range index.Keys {
		exprs = append(exprs, fmt.Sprintf("(doc->>%s)", pq.QuoteLiteral(key)))
	}
	unique := ""
	if index.Unique {
		unique = "UNIQUE "
	}
	name := pq.QuoteIdentifier(collection + "_" + strings.Join(index.Keys, "_") + "_idx")
	query := fmt.Sprintf(
		"CREATE %sINDEX IF NOT EXISTS %s ON %s (%s)",
		unique, name, pq.QuoteIdentifier(collection), strings.Join(exprs, ", "),
	)
	_, err := p.db.ExecContext(ctx, query)
	return err
}

func (p *PostgresDatabase) Ping(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

func (p *PostgresDatabase) Close(context.Context) error {
	return p.db.Close()
}

type postgresCollection struct {
	db    *sql.DB
	table string
}

func (c *postgresCollection) InsertOne(ctx context.Context, doc any) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode document: %w", err)
	}
	var key struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(data, &key); err != nil || key.ID == "" {
		return errors.New("document requires a string id field")
	}

	query := fmt.Sprintf("INSERT INTO %s (id, doc) VALUES ($1, $2::jsonb)", c.table)
	if _, err := c.db.ExecContext(ctx, query, key.ID, string(data)); err != nil {
		return mapPostgresError(err)
	}
	return nil
}

func (c *postgresCollection) FindOne(ctx context.Context, filter Filter, out any, omit ...string) error {
	where, args := whereClause(filter, nil)
	selectExpr := "doc"
	for _, field := range omit {
		args = append(args, field)
		selectExpr += fmt.Sprintf(" - $%d::text", len(args))
	}

	query := fmt.Sprintf("SELECT %s FROM %s WHERE %s LIMIT 1", selectExpr, c.table, where)
	var data []byte
	if err := c.db.QueryRowContext(ctx, query, args...).Scan(&data); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		return err
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode document: %w", err)
	}
	return nil
}

func (c *postgresCollection) Find(ctx context.Context, filter Filter, opts FindOptions, out any) error {
	where, args := whereClause(filter, nil)
	query := fmt.Sprintf("SELECT doc FROM %s WHERE %s", c.table, where)
	if opts.SortField != "" {
		args = append(args, opts.SortField)
		order := "ASC"
		if opts.SortDesc {
			order = "DESC"
		}
		query += fmt.Sprintf(" ORDER BY doc->>$%d %s", len(args), order)
	}
	if opts.Limit > 0 {
		args = append(args, opts.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return err
	}
	defer rows.Close()

	docs := make([]json.RawMessage, 0)
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return err
		}
		docs = append(docs, json.RawMessage(data))
	}
	if err := rows.Err(); err != nil {
		return err
	}

	data, err := json.Marshal(docs)
	if err != nil {
		return fmt.Errorf("decode documents: %w", err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode documents: %w", err)
	}
	return nil
}

func (c *postgresCollection) UpdateOne(ctx context.Context, filter Filter, set Fields) (int64, error) {
	if len(set) == 0 {
		where, args := whereClause(filter, nil)
		query := fmt.Sprintf("SELECT COUNT(1) FROM (SELECT 1 FROM %s WHERE %s LIMIT 1) AS matched", c.table, where)
		var count int64
		if err := c.db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
			return 0, err
		}
		return count, nil
	}

	patch, err := json.Marshal(set)
	if err != nil {
		return 0, fmt.Errorf("encode update: %w", err)
	}
	where, args := whereClause(filter, []any{string(patch)})
	query := fmt.Sprintf(
		"UPDATE %[1]s SET doc = doc || $1::jsonb WHERE id = (SELECT id FROM %[1]s WHERE %[2]s LIMIT 1)",
		c.table, where,
	)
	result, err := c.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, mapPostgresError(err)
	}
	return result.RowsAffected()
}

func (c *postgresCollection) DeleteOne(ctx context.Context, filter Filter) (int64, error) {
	where, args := whereClause(filter, nil)
	query := fmt.Sprintf(
		"DELETE FROM %[1]s WHERE id = (SELECT id FROM %[1]s WHERE %[2]s LIMIT 1)",
		c.table, where,
	)
	result, err := c.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// whereClause renders filter as JSONB field comparisons, appending its
// arguments after args. Keys are sorted so the SQL is stable.
func whereClause(filter Filter, args []any) (string, []any) {
	if len(filter) == 0 {
		return "TRUE", args
	}
	keys := make([]string, 0, len(filter))
	for key := range filter {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, key := range keys {
		args = append(args, key, filter[key])
		parts = append(parts, fmt.Sprintf("doc->>$%d = $%d", len(args)-1, len(args)))
	}
	return strings.Join(parts, " AND "), args
}

func mapPostgresError(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		return ErrDuplicate
	}
	return err
}
