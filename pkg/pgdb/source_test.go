package pgdb

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rangira/stacklens/internal/testutil/pgtest"
	"github.com/rangira/stacklens/pkg/tabular"
)

func TestBuildSelectPlainProjection(t *testing.T) {
	src := NewSource(nil, "users")
	q := src.Select(tabular.Cols("id", "name")...)

	sql, args := q.(query).buildSelect()
	assert.Equal(t, `SELECT "id", "name" FROM "users"`, sql)
	assert.Empty(t, args)
}

func TestBuildSelectComposition(t *testing.T) {
	src := NewSource(nil, "users")
	q := src.Select(tabular.Cols("id", "name")...).
		Where("age", tabular.OpGte, int64(30)).
		Where("name", tabular.OpEq, "alice").
		OrderBy("id", true).
		Slice(20, 10)

	sql, args := q.(query).buildSelect()
	assert.Equal(t,
		`SELECT "id", "name" FROM "users" WHERE "age" >= $1 AND "name" = $2 ORDER BY "id" DESC LIMIT $3 OFFSET $4`,
		sql)
	assert.Equal(t, []any{int64(30), "alice", 10, 20}, args)
}

func TestBuildSelectAggregateView(t *testing.T) {
	src := NewSource(nil, "view_answers_local_time")
	q := src.Select(
		tabular.Column{Name: "activity", Expr: "count(id)"},
		tabular.Column{Name: "hour", Expr: "date_part('hour', local_creation_date)"},
	).
		NotNull("local_creation_date").
		GroupBy("date_part('hour', local_creation_date)").
		OrderBy("activity", true)

	sql, args := q.(query).buildSelect()
	assert.Equal(t,
		`SELECT count(id) AS "activity", date_part('hour', local_creation_date) AS "hour"`+
			` FROM "view_answers_local_time"`+
			` WHERE "local_creation_date" IS NOT NULL`+
			` GROUP BY date_part('hour', local_creation_date)`+
			` ORDER BY "activity" DESC`,
		sql)
	assert.Empty(t, args)
}

func TestCountSQLWrapsUnslicedQuery(t *testing.T) {
	src := NewSource(nil, "locations")
	q := src.Select(tabular.Cols("id")...).
		Where("country", tabular.OpEq, "US").
		Slice(10, 10)

	inner := q.(query)
	inner.limit = -1
	inner.offset = 0
	sql, args := inner.buildSelect()

	assert.Equal(t, `SELECT "id" FROM "locations" WHERE "country" = $1`, sql)
	assert.Equal(t, []any{"US"}, args)
	assert.Equal(t,
		`SELECT count(*) FROM (SELECT "id" FROM "locations" WHERE "country" = $1) AS sub`,
		fmt.Sprintf("SELECT count(*) FROM (%s) AS sub", sql))
}

// Deriving two queries from a shared base must not let one sibling's
// predicates leak into the other.
func TestQueryImmutability(t *testing.T) {
	src := NewSource(nil, "users")
	base := src.Select(tabular.Cols("id")...).Where("age", tabular.OpGte, int64(18))

	a := base.Where("name", tabular.OpEq, "alice")
	b := base.Where("name", tabular.OpEq, "bob")

	sqlA, argsA := a.(query).buildSelect()
	sqlB, argsB := b.(query).buildSelect()
	sqlBase, argsBase := base.(query).buildSelect()

	assert.Equal(t, `SELECT "id" FROM "users" WHERE "age" >= $1 AND "name" = $2`, sqlA)
	assert.Equal(t, []any{int64(18), "alice"}, argsA)
	assert.Equal(t, []any{int64(18), "bob"}, argsB)
	assert.Equal(t, sqlA, sqlB)
	assert.Equal(t, `SELECT "id" FROM "users" WHERE "age" >= $1`, sqlBase)
	assert.Equal(t, []any{int64(18)}, argsBase)
}

func TestIdentQuoting(t *testing.T) {
	assert.Equal(t, `"total_score"`, identOrExpr("total_score"))
	assert.Equal(t, "count(id)", identOrExpr("count(id)"))
	assert.Equal(t, `"weird""name"`, quoteIdent(`weird"name`))
}

func TestUnknownOperatorDegradesToEquality(t *testing.T) {
	src := NewSource(nil, "tags")
	q := src.Select(tabular.Cols("id")...).Where("name", "bogus", "go")

	sql, args := q.(query).buildSelect()
	assert.Equal(t, `SELECT "id" FROM "tags" WHERE "name" = $1`, sql)
	assert.Equal(t, []any{"go"}, args)
}

// Round trip against a live database; skipped unless TEST_DATABASE is set.
func TestSourceLive(t *testing.T) {
	pgtest.Skip(t)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	conn := pgtest.Connect(ctx, t)
	table := fmt.Sprintf("stacklens_test_%d", time.Now().UnixNano())
	_, err := conn.Exec(ctx, fmt.Sprintf(
		`CREATE TABLE %s (id integer PRIMARY KEY, name text, score integer)`, table))
	require.NoError(t, err)
	defer conn.Exec(context.Background(), fmt.Sprintf(`DROP TABLE %s`, table))

	for i := 1; i <= 5; i++ {
		_, err = conn.Exec(ctx, fmt.Sprintf(
			`INSERT INTO %s (id, name, score) VALUES ($1, $2, $3)`, table),
			i, fmt.Sprintf("row%d", i), i*10)
		require.NoError(t, err)
	}

	pool, err := Connect(ctx, conn.Config().ConnString())
	require.NoError(t, err)
	defer pool.Close()

	src := NewSource(pool, table)

	q := src.Select(tabular.Cols("id", "name", "score")...).
		Where("score", tabular.OpGte, int64(30)).
		OrderBy("id", false)

	count, err := q.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)

	rows, err := q.Slice(0, 2).Rows(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "row3", rows[0]["name"])

	row, err := src.Get(ctx, 4, []string{"id", "name", "score"})
	require.NoError(t, err)
	assert.Equal(t, "row4", row["name"])

	_, err = src.Get(ctx, 99, []string{"id"})
	assert.ErrorIs(t, err, tabular.ErrNotFound)
}
