package directory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newIndexedMemory(t *testing.T) *Memory {
	t.Helper()
	m := NewMemory()
	err := m.EnsureIndexes(context.Background(),
		IndexSpec{Name: "users_identifier", Collection: "users", Fields: []string{"identifier"}, Unique: true},
		IndexSpec{Name: "users_pair", Collection: "users", Fields: []string{"nationalId", "role"}, Unique: true},
		IndexSpec{Name: "users_token", Collection: "users", Fields: []string{"token"}},
	)
	require.NoError(t, err)
	return m
}

func TestMemory_InsertAndGet(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	m := NewMemory()

	doc := Document{"name": "Ana", "tags": []string{"a"}}
	require.NoError(t, m.Insert(ctx, "users", "u1", doc))

	doc["name"] = "mutated"
	got, err := m.GetByKey(ctx, "users", "u1")
	require.NoError(t, err)
	assert.Equal(t, "Ana", got.String("name"))

	_, err = m.GetByKey(ctx, "users", "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemory_InsertReplaces(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	m := newIndexedMemory(t)

	require.NoError(t, m.Insert(ctx, "users", "u1", Document{"identifier": "a@x", "nationalId": "1", "role": "student"}))
	require.NoError(t, m.Insert(ctx, "users", "u1", Document{"identifier": "b@x", "nationalId": "1", "role": "student"}))

	docs, err := m.QueryEquals(ctx, "users", Eq("identifier", "a@x"))
	require.NoError(t, err)
	assert.Empty(t, docs)

	docs, err = m.QueryEquals(ctx, "users", Eq("identifier", "b@x"))
	require.NoError(t, err)
	assert.Len(t, docs, 1)
}

func TestMemory_UniqueIndex(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	m := newIndexedMemory(t)

	require.NoError(t, m.Insert(ctx, "users", "u1", Document{"identifier": "a@x", "nationalId": "1", "role": "student"}))

	err := m.Insert(ctx, "users", "u2", Document{"identifier": "a@x", "nationalId": "2", "role": "student"})
	assert.ErrorIs(t, err, ErrDuplicate)

	err = m.Insert(ctx, "users", "u3", Document{"identifier": "c@x", "nationalId": "1", "role": "student"})
	assert.ErrorIs(t, err, ErrDuplicate)

	// same national id with the other role is a different account
	require.NoError(t, m.Insert(ctx, "users", "u4", Document{"identifier": "d@x", "nationalId": "1", "role": "teacher"}))
}

func TestMemory_QueryEqualsConjunctive(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	m := newIndexedMemory(t)

	require.NoError(t, m.Insert(ctx, "users", "u1", Document{"identifier": "a@x", "nationalId": "1", "role": "student"}))
	require.NoError(t, m.Insert(ctx, "users", "u2", Document{"identifier": "b@x", "nationalId": "1", "role": "teacher"}))

	docs, err := m.QueryEquals(ctx, "users", Eq("nationalId", "1"), Eq("role", "teacher"))
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "b@x", docs[0].String("identifier"))

	// unindexed filter falls back to matching every document
	docs, err = m.QueryEquals(ctx, "users", Eq("nationalId", "1"))
	require.NoError(t, err)
	assert.Len(t, docs, 2)
}

func TestMemory_MergeUpdatesIndexes(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	m := newIndexedMemory(t)

	require.NoError(t, m.Insert(ctx, "users", "u1", Document{"identifier": "a@x", "token": "t1"}))
	require.NoError(t, m.Merge(ctx, "users", "u1", Document{"token": "t2"}))

	docs, err := m.QueryEquals(ctx, "users", Eq("token", "t1"))
	require.NoError(t, err)
	assert.Empty(t, docs)

	docs, err = m.QueryEquals(ctx, "users", Eq("token", "t2"))
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "a@x", docs[0].String("identifier"))

	assert.ErrorIs(t, m.Merge(ctx, "users", "nope", Document{"token": "x"}), ErrNotFound)
}

func TestMemory_Delete(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	m := newIndexedMemory(t)

	require.NoError(t, m.Insert(ctx, "users", "u1", Document{"identifier": "a@x"}))
	require.NoError(t, m.Delete(ctx, "users", "u1"))
	assert.ErrorIs(t, m.Delete(ctx, "users", "u1"), ErrNotFound)

	// the unique slot is free again
	require.NoError(t, m.Insert(ctx, "users", "u2", Document{"identifier": "a@x"}))
}

func TestMemory_CanceledContext(t *testing.T) {
	t.Parallel()
	m := NewMemory()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, m.Insert(ctx, "users", "u1", Document{}), context.Canceled)
	_, err := m.GetByKey(ctx, "users", "u1")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDocument_Accessors(t *testing.T) {
	t.Parallel()
	now := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	doc := Document{
		"s":     "x",
		"b":     true,
		"f":     float64(3),
		"list":  []any{"a", 1, "b"},
		"t":     now,
		"tjson": now.Format(time.RFC3339Nano),
	}

	assert.Equal(t, "x", doc.String("s"))
	assert.Equal(t, "", doc.String("b"))
	assert.True(t, doc.Bool("b"))
	assert.Equal(t, 3, doc.Int("f"))
	assert.Equal(t, []string{"a", "b"}, doc.Strings("list"))
	assert.True(t, now.Equal(doc.Time("t")))
	assert.True(t, now.Equal(doc.Time("tjson")))
	assert.Nil(t, doc.TimePtr("missing"))
}

func TestIndexStatement(t *testing.T) {
	t.Parallel()
	stmt, err := indexStatement(IndexSpec{Name: "users_pair", Collection: "users", Fields: []string{"nationalId", "role"}, Unique: true})
	require.NoError(t, err)
	assert.Equal(t,
		"CREATE UNIQUE INDEX IF NOT EXISTS users_pair ON documents ((body->>'nationalId'), (body->>'role')) WHERE collection = 'users'",
		stmt)

	_, err = indexStatement(IndexSpec{Name: "bad", Collection: "users", Fields: []string{"x'; DROP TABLE documents; --"}})
	assert.Error(t, err)
}
