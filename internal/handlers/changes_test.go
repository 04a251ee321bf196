package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/happier-dev/happier-sub002/internal/ledger"
	"github.com/happier-dev/happier-sub002/internal/models"
)

const testSecret = "test-secret"

// fakeChangeLog lets the route layer be exercised without a database.
type fakeChangeLog struct {
	checkErr   error
	changes    []models.ChangeRecord
	nextCursor int64
	state      models.AccountCursor

	gotAccount string
	gotAfter   int64
	gotLimit   int
}

func (f *fakeChangeLog) ListChanges(ctx context.Context, accountID string, after int64, limit int) ([]models.ChangeRecord, int64, error) {
	f.gotAccount = accountID
	f.gotAfter = after
	f.gotLimit = limit
	return f.changes, f.nextCursor, nil
}

func (f *fakeChangeLog) CursorState(ctx context.Context, accountID string) (models.AccountCursor, error) {
	f.gotAccount = accountID
	return f.state, nil
}

func (f *fakeChangeLog) CheckCursor(ctx context.Context, accountID string, after int64) error {
	return f.checkErr
}

func signToken(t *testing.T, accountID string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": accountID,
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString([]byte(testSecret))
	require.NoError(t, err)
	return signed
}

func newTestServer(log ChangeLog) http.Handler {
	return NewServer(Deps{Ledger: log, JWTSecret: testSecret, PageLimit: 200}).Routes()
}

func TestListChanges_RequiresAuth(t *testing.T) {
	srv := newTestServer(&fakeChangeLog{})

	req := httptest.NewRequest(http.MethodGet, "/v1/changes?after=0", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/v1/changes?after=0", nil)
	req.Header.Set("Authorization", "Bearer not-a-token")
	rec = httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestListChanges_GoneCursor(t *testing.T) {
	fake := &fakeChangeLog{checkErr: &ledger.CursorGoneError{Current: 42}}
	srv := newTestServer(fake)

	req := httptest.NewRequest(http.MethodGet, "/v1/changes?after=99", nil)
	req.Header.Set("Authorization", "Bearer "+signToken(t, "acct-1"))
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	require.Equal(t, http.StatusGone, rec.Code)
	var body goneResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, int64(42), body.Cursor, "the authoritative head cursor is returned for resync")
}

func TestListChanges_Pagination(t *testing.T) {
	fake := &fakeChangeLog{
		changes: []models.ChangeRecord{
			{Cursor: 1, AccountID: "acct-1", Kind: models.KindSession, EntityID: "s1"},
			{Cursor: 2, AccountID: "acct-1", Kind: models.KindSession, EntityID: "s2"},
		},
		nextCursor: 2,
	}
	srv := newTestServer(fake)

	req := httptest.NewRequest(http.MethodGet, "/v1/changes?after=0&limit=50", nil)
	req.Header.Set("Authorization", "Bearer "+signToken(t, "acct-1"))
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "acct-1", fake.gotAccount)
	assert.Equal(t, int64(0), fake.gotAfter)
	assert.Equal(t, 50, fake.gotLimit)

	var body changesResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Len(t, body.Changes, 2)
	assert.Equal(t, int64(2), body.NextCursor)
}

func TestListChanges_LimitCapped(t *testing.T) {
	fake := &fakeChangeLog{}
	srv := newTestServer(fake)

	req := httptest.NewRequest(http.MethodGet, "/v1/changes?after=0&limit=5000", nil)
	req.Header.Set("Authorization", "Bearer "+signToken(t, "acct-1"))
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 200, fake.gotLimit, "requested limit above the server page limit is capped")

	// An empty page still answers with an empty array, not null.
	var raw map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &raw))
	assert.JSONEq(t, "[]", string(raw["changes"]))
}

func TestListChanges_InvalidParams(t *testing.T) {
	srv := newTestServer(&fakeChangeLog{})
	token := signToken(t, "acct-1")

	for _, query := range []string{"", "after=-1", "after=abc", "after=0&limit=0", "after=0&limit=x"} {
		req := httptest.NewRequest(http.MethodGet, "/v1/changes?"+query, nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		srv.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code, "query %q", query)
	}
}

func TestCursorStatus(t *testing.T) {
	fake := &fakeChangeLog{state: models.AccountCursor{AccountID: "acct-1", Seq: 7, ChangesFloor: 3}}
	srv := newTestServer(fake)

	req := httptest.NewRequest(http.MethodGet, "/v1/changes/cursor", nil)
	req.Header.Set("Authorization", "Bearer "+signToken(t, "acct-1"))
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var state models.AccountCursor
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &state))
	assert.Equal(t, int64(7), state.Seq)
	assert.Equal(t, int64(3), state.ChangesFloor)
	assert.Equal(t, "acct-1", fake.gotAccount)
}
