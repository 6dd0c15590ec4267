package docstore

import (
	"context"
	"database/sql"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockPostgres(t *testing.T) (*PostgresDatabase, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewPostgres(db), mock
}

func TestPostgres_InsertOne(t *testing.T) {
	pg, mock := newMockPostgres(t)

	mock.ExpectExec(`INSERT INTO "docs" (id, doc) VALUES ($1, $2::jsonb)`).
		WithArgs("1", `{"id":"1","owner":"a","when":"w","amount":2}`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := pg.Collection("docs").InsertOne(context.Background(), testDoc{ID: "1", Owner: "a", When: "w", Amount: 2})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_InsertOneDuplicate(t *testing.T) {
	pg, mock := newMockPostgres(t)

	mock.ExpectExec(`INSERT INTO "users" (id, doc) VALUES ($1, $2::jsonb)`).
		WillReturnError(&pq.Error{Code: "23505"})

	err := pg.Collection("users").InsertOne(context.Background(), testDoc{ID: "1"})
	assert.ErrorIs(t, err, ErrDuplicate)
}

func TestPostgres_InsertOneRequiresID(t *testing.T) {
	pg, _ := newMockPostgres(t)
	err := pg.Collection("docs").InsertOne(context.Background(), testDoc{Owner: "a"})
	assert.Error(t, err)
}

func TestPostgres_FindOne(t *testing.T) {
	pg, mock := newMockPostgres(t)

	mock.ExpectQuery(`SELECT doc - $5::text FROM "docs" WHERE doc->>$1 = $2 AND doc->>$3 = $4 LIMIT 1`).
		WithArgs("id", "1", "owner", "a", "secret").
		WillReturnRows(sqlmock.NewRows([]string{"doc"}).AddRow([]byte(`{"id":"1","owner":"a","when":"w"}`)))

	var got testDoc
	err := pg.Collection("docs").FindOne(context.Background(), Filter{"owner": "a", "id": "1"}, &got, "secret")
	require.NoError(t, err)
	assert.Equal(t, testDoc{ID: "1", Owner: "a", When: "w"}, got)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_FindOneNotFound(t *testing.T) {
	pg, mock := newMockPostgres(t)

	mock.ExpectQuery(`SELECT doc FROM "docs" WHERE doc->>$1 = $2 LIMIT 1`).
		WithArgs("id", "404").
		WillReturnError(sql.ErrNoRows)

	var got testDoc
	err := pg.Collection("docs").FindOne(context.Background(), Filter{"id": "404"}, &got)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPostgres_FindSortedLimited(t *testing.T) {
	pg, mock := newMockPostgres(t)

	mock.ExpectQuery(`SELECT doc FROM "docs" WHERE doc->>$1 = $2 ORDER BY doc->>$3 DESC LIMIT $4`).
		WithArgs("owner", "a", "when", int64(100)).
		WillReturnRows(sqlmock.NewRows([]string{"doc"}).
			AddRow([]byte(`{"id":"2","owner":"a","when":"2"}`)).
			AddRow([]byte(`{"id":"1","owner":"a","when":"1"}`)))

	var docs []testDoc
	err := pg.Collection("docs").Find(context.Background(), Filter{"owner": "a"},
		FindOptions{SortField: "when", SortDesc: true, Limit: 100}, &docs)
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "2", docs[0].ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_UpdateOne(t *testing.T) {
	pg, mock := newMockPostgres(t)

	mock.ExpectExec(`UPDATE "docs" SET doc = doc || $1::jsonb WHERE id = (SELECT id FROM "docs" WHERE doc->>$2 = $3 LIMIT 1)`).
		WithArgs(`{"amount":5}`, "id", "1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	matched, err := pg.Collection("docs").UpdateOne(context.Background(), Filter{"id": "1"}, Fields{"amount": 5})
	require.NoError(t, err)
	assert.EqualValues(t, 1, matched)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_DeleteOneNoMatch(t *testing.T) {
	pg, mock := newMockPostgres(t)

	mock.ExpectExec(`DELETE FROM "docs" WHERE id = (SELECT id FROM "docs" WHERE doc->>$1 = $2 LIMIT 1)`).
		WithArgs("id", "1").
		WillReturnResult(sqlmock.NewResult(0, 0))

	deleted, err := pg.Collection("docs").DeleteOne(context.Background(), Filter{"id": "1"})
	require.NoError(t, err)
	assert.EqualValues(t, 0, deleted)
}

func TestPostgres_EnsureIndex(t *testing.T) {
	pg, mock := newMockPostgres(t)

	mock.ExpectExec(`CREATE UNIQUE INDEX IF NOT EXISTS "users_email_idx" ON "users" ((doc->>'email'))`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := pg.EnsureIndex(context.Background(), "users", Index{Keys: []string{"email"}, Unique: true})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}
