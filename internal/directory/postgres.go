package directory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Postgres keeps every collection in the documents table as JSONB bodies.
// Indexed fields get expression indexes scoped to their collection, so field
// and collection names are inlined into SQL after validation.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres wraps a pgx pool. The documents table is created by the
// persistence migrations.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

var identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

const uniqueViolation = "23505"

func (p *Postgres) Insert(ctx context.Context, collection, key string, doc Document) error {
	if err := validateKey(collection, key); err != nil {
		return err
	}
	body, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("directory: encode %s/%s: %w", collection, key, err)
	}

	const query = `
        INSERT INTO documents (collection, key, body, updated_at)
        VALUES ($1, $2, $3::jsonb, NOW())
        ON CONFLICT (collection, key) DO UPDATE SET body = EXCLUDED.body, updated_at = NOW()`

	_, err = p.pool.Exec(ctx, query, collection, key, body)
	return mapPgErr(err)
}

func (p *Postgres) Merge(ctx context.Context, collection, key string, fields Document) error {
	if err := validateKey(collection, key); err != nil {
		return err
	}
	patch, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("directory: encode %s/%s: %w", collection, key, err)
	}

	const query = `
        UPDATE documents SET body = body || $3::jsonb, updated_at = NOW()
        WHERE collection = $1 AND key = $2`

	cmd, err := p.pool.Exec(ctx, query, collection, key, patch)
	if err != nil {
		return mapPgErr(err)
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *Postgres) GetByKey(ctx context.Context, collection, key string) (Document, error) {
	if err := validateKey(collection, key); err != nil {
		return nil, err
	}

	const query = `SELECT body FROM documents WHERE collection = $1 AND key = $2`

	var raw []byte
	if err := p.pool.QueryRow(ctx, query, collection, key).Scan(&raw); err != nil {
		return nil, mapPgErr(err)
	}
	return decodeBody(raw)
}

func (p *Postgres) QueryEquals(ctx context.Context, collection string, filters ...Filter) ([]Document, error) {
	if !identRe.MatchString(collection) {
		return nil, fmt.Errorf("directory: invalid collection name %q", collection)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "SELECT body FROM documents WHERE collection = '%s'", collection)
	args := make([]any, 0, len(filters))
	for _, f := range filters {
		if !identRe.MatchString(f.Field) {
			return nil, fmt.Errorf("directory: invalid field name %q", f.Field)
		}
		if f.Value == nil {
			fmt.Fprintf(&sb, " AND body->>'%s' IS NULL", f.Field)
			continue
		}
		args = append(args, fmt.Sprint(f.Value))
		fmt.Fprintf(&sb, " AND body->>'%s' = $%d", f.Field, len(args))
	}
	sb.WriteString(" ORDER BY key")

	rows, err := p.pool.Query(ctx, sb.String(), args...)
	if err != nil {
		return nil, mapPgErr(err)
	}
	defer rows.Close()

	var out []Document
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		doc, err := decodeBody(raw)
		if err != nil {
			return nil, err
		}
		out = append(out, doc)
	}
	return out, rows.Err()
}

func (p *Postgres) Delete(ctx context.Context, collection, key string) error {
	if err := validateKey(collection, key); err != nil {
		return err
	}
	cmd, err := p.pool.Exec(ctx, `DELETE FROM documents WHERE collection = $1 AND key = $2`, collection, key)
	if err != nil {
		return mapPgErr(err)
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *Postgres) EnsureIndexes(ctx context.Context, specs ...IndexSpec) error {
	for _, spec := range specs {
		stmt, err := indexStatement(spec)
		if err != nil {
			return err
		}
		if _, err := p.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("directory: create index %s: %w", spec.Name, err)
		}
	}
	return nil
}

func (p *Postgres) Ping(ctx context.Context) error {
	if p.pool == nil {
		return errors.New("postgres pool not configured")
	}
	return p.pool.Ping(ctx)
}

func indexStatement(spec IndexSpec) (string, error) {
	if !identRe.MatchString(spec.Name) || !identRe.MatchString(spec.Collection) || len(spec.Fields) == 0 {
		return "", fmt.Errorf("directory: invalid index spec %q", spec.Name)
	}
	exprs := make([]string, 0, len(spec.Fields))
	for _, field := range spec.Fields {
		if !identRe.MatchString(field) {
			return "", fmt.Errorf("directory: invalid field name %q", field)
		}
		exprs = append(exprs, fmt.Sprintf("(body->>'%s')", field))
	}
	unique := ""
	if spec.Unique {
		unique = "UNIQUE "
	}
	return fmt.Sprintf("CREATE %sINDEX IF NOT EXISTS %s ON documents (%s) WHERE collection = '%s'",
		unique, spec.Name, strings.Join(exprs, ", "), spec.Collection), nil
}

func decodeBody(raw []byte) (Document, error) {
	var doc Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("directory: decode body: %w", err)
	}
	return doc, nil
}

func mapPgErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return ErrDuplicate
	}
	return err
}
