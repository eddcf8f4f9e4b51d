package docstore

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vyrodovalexey/integrationgw/internal/config"
)

type fakeRow struct {
	value []byte
	err   error
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	*(dest[0].(*[]byte)) = r.value
	return nil
}

type execCall struct {
	sql  string
	args []any
}

type fakePool struct {
	rows    map[string][]byte
	rowErr  error
	execErr error
	execs   []execCall
	pingErr error
	closed  bool
}

func (p *fakePool) QueryRow(_ context.Context, _ string, args ...any) pgx.Row {
	if p.rowErr != nil {
		return fakeRow{err: p.rowErr}
	}
	v, ok := p.rows[args[0].(string)]
	if !ok {
		return fakeRow{err: pgx.ErrNoRows}
	}
	return fakeRow{value: v}
}

func (p *fakePool) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	p.execs = append(p.execs, execCall{sql: sql, args: args})
	return pgconn.NewCommandTag("INSERT 0 1"), p.execErr
}

func (p *fakePool) Ping(context.Context) error { return p.pingErr }

func (p *fakePool) Close() { p.closed = true }

func TestPostgresStore_FindOne(t *testing.T) {
	t.Parallel()

	pool := &fakePool{rows: map[string][]byte{
		"IntegrationServices": []byte(`[{"name":"CORREIOS","address":"https://viacep.example/{cep}/json"}]`),
		"Broken":              []byte(`{`),
	}}
	s := newPostgresStore(pool, nil)
	ctx := context.Background()

	doc, err := s.FindOne(ctx, "IntegrationServices")
	require.NoError(t, err)
	assert.Equal(t, "IntegrationServices", doc.Name)
	assert.Equal(t, "CORREIOS", doc.Value[0]["name"])

	_, err = s.FindOne(ctx, "Missing")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = s.FindOne(ctx, "Broken")
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotFound)

	pool.rowErr = errors.New("connection reset")
	_, err = s.FindOne(ctx, "IntegrationServices")
	assert.ErrorContains(t, err, "connection reset")
}

func TestPostgresStore_Writes(t *testing.T) {
	t.Parallel()

	pool := &fakePool{}
	s := newPostgresStore(pool, nil)
	ctx := context.Background()

	require.NoError(t, s.migrate(ctx))
	require.Len(t, pool.execs, 1)
	assert.Contains(t, pool.execs[0].sql, "CREATE TABLE IF NOT EXISTS configurations")

	require.NoError(t, s.PutDocument(ctx, &Document{Name: "Empty"}))
	put := pool.execs[1]
	assert.True(t, strings.Contains(put.sql, "ON CONFLICT (name)"))
	assert.Equal(t, []any{"Empty", "[]"}, put.args)

	createdAt := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, s.InsertAudit(ctx, &AuditRecord{
		ID:        "id-1",
		Code:      "CORREIOS",
		Data:      map[string]any{"a": 1},
		Success:   true,
		RequestID: "req-1",
		CreatedAt: createdAt,
	}))
	insert := pool.execs[2]
	require.Len(t, insert.args, 7)
	assert.Equal(t, "id-1", insert.args[0])
	assert.Equal(t, `{"a":1}`, *(insert.args[2].(*string)))
	assert.Nil(t, insert.args[3].(*string))
	assert.Equal(t, true, insert.args[4])
	assert.Equal(t, createdAt, insert.args[6])

	err := s.InsertAudit(ctx, &AuditRecord{ID: "id-2", Code: "X", Data: make(chan int)})
	assert.Error(t, err)

	pool.execErr = errors.New("boom")
	assert.Error(t, s.PutDocument(ctx, &Document{Name: "A"}))
	assert.Error(t, s.migrate(ctx))

	pool.pingErr = errors.New("down")
	assert.Error(t, s.Ping(ctx))

	require.NoError(t, s.Close())
	assert.True(t, pool.closed)
}

func TestNewPostgresStore_InvalidDSN(t *testing.T) {
	t.Parallel()

	_, err := NewPostgresStore(context.Background(), &config.PostgresConfig{DSN: "postgres://%zz"}, nil)
	assert.ErrorContains(t, err, "invalid postgres DSN")
}
