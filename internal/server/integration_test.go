package server

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pthm/lattice"
	"github.com/pthm/lattice/internal/testutil"
)

func newDBServer(t *testing.T) http.Handler {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	db := testutil.DB(t)
	testutil.Migrate(t, db, testTables())

	checker, err := lattice.NewChecker(db, testTables(), lattice.WithRole(testutil.AppRole))
	require.NoError(t, err)
	return New(Config{JWTSecret: string(testSecret)}, checker, db, testTables()).Handler()
}

func TestRecords_RoundTrip(t *testing.T) {
	h := newDBServer(t)
	alice := token(t, lattice.Session{UserID: aliceID})
	bob := token(t, lattice.Session{UserID: bobID})

	w := do(t, h, http.MethodPost, "/api/tables/tasks/records", alice,
		`{"title": "write report", "slug": "report", "owner": "`+aliceID+`", "tags": ["work"]}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.JSONEq(t, `{}`, w.Body.String(), "filtered reads do not echo the row")

	w = do(t, h, http.MethodGet, "/api/tables/tasks/records", alice, "")
	require.Equal(t, http.StatusOK, w.Code)
	var rows []map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &rows))
	require.Len(t, rows, 1)
	assert.Equal(t, aliceID, rows[0]["owner"])
	assert.Equal(t, "write report", rows[0]["title"])
	assert.Equal(t, []any{"work"}, rows[0]["tags"])
	assert.EqualValues(t, 1, rows[0]["id"])

	w = do(t, h, http.MethodGet, "/api/tables/tasks/records", bob, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[]`, w.Body.String())
}

func TestRecords_DatabaseErrors(t *testing.T) {
	h := newDBServer(t)
	alice := token(t, lattice.Session{UserID: aliceID})

	w := do(t, h, http.MethodPost, "/api/tables/tasks/records", alice,
		`{"title": "a", "slug": "same", "owner": "`+aliceID+`"}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	tests := []struct {
		name string
		body string
		want int
		msg  string
	}{
		{"unique", `{"title": "b", "slug": "same", "owner": "` + aliceID + `"}`, http.StatusBadRequest, "duplicate key value violates unique constraint"},
		{"not null", `{"slug": "other", "owner": "` + aliceID + `"}`, http.StatusBadRequest, "null value in column"},
		{"option check", `{"title": "c", "owner": "` + aliceID + `", "tags": ["play"]}`, http.StatusBadRequest, "tasks_tags_check"},
		{"bad uuid", `{"title": "d", "owner": "nobody"}`, http.StatusBadRequest, "uuid"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, h, http.MethodPost, "/api/tables/tasks/records", alice, tt.body)
			assert.Equal(t, tt.want, w.Code, w.Body.String())
			assert.Contains(t, w.Body.String(), tt.msg)
		})
	}
}

func TestRecords_CreateReturnsRowWhenReadIsUnconditional(t *testing.T) {
	h := newDBServer(t)
	alice := token(t, lattice.Session{UserID: aliceID})

	w := do(t, h, http.MethodPost, "/api/tables/comments/records", alice, `{"body": "first"}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var created map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	assert.Equal(t, "first", created["body"])
	assert.EqualValues(t, 1, created["id"])
}

func TestRecords_CreateRowOutsideReadFilter(t *testing.T) {
	h := newDBServer(t)
	alice := token(t, lattice.Session{UserID: aliceID})
	bob := token(t, lattice.Session{UserID: bobID})

	w := do(t, h, http.MethodPost, "/api/tables/tasks/records", alice,
		`{"title": "for bob", "owner": "`+bobID+`"}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.JSONEq(t, `{}`, w.Body.String())

	w = do(t, h, http.MethodGet, "/api/tables/tasks/records", alice, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[]`, w.Body.String())

	w = do(t, h, http.MethodGet, "/api/tables/tasks/records", bob, "")
	require.Equal(t, http.StatusOK, w.Code)
	var rows []map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &rows))
	require.Len(t, rows, 1)
	assert.Equal(t, "for bob", rows[0]["title"])
}

func TestRecords_PublicRead(t *testing.T) {
	h := newDBServer(t)

	w := do(t, h, http.MethodGet, "/api/tables/notices/records?limit=5", "", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[]`, w.Body.String())

	w = do(t, h, http.MethodGet, "/healthz", "", "")
	assert.Equal(t, http.StatusOK, w.Code)
}
