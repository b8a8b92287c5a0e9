package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"heroes/internal/engine"
	"heroes/internal/model"
	"heroes/internal/storage"
)

type fixture struct {
	srv   *httptest.Server
	store storage.RecordStore
}

func newFixture(t *testing.T, seed model.Collection, withJournal bool) *fixture {
	t.Helper()
	dir := t.TempDir()
	store := storage.NewJSONFileStore(filepath.Join(dir, "characters.json"))
	require.NoError(t, store.SaveAll(context.Background(), seed))

	var journal *engine.Journal
	if withJournal {
		j, err := engine.OpenJournal(filepath.Join(dir, "journal.log"))
		require.NoError(t, err)
		t.Cleanup(func() { _ = j.Close() })
		journal = j
	}

	svc, cancel := engine.NewService(context.Background(), store, journal, engine.ServiceCfg{DefaultUniverse: engine.DefaultUniverse})
	srv := httptest.NewServer(NewServer(svc))
	t.Cleanup(func() {
		srv.Close()
		cancel()
	})
	return &fixture{srv: srv, store: store}
}

func (f *fixture) do(t *testing.T, method, path, body string) (int, []byte) {
	t.Helper()
	req, err := http.NewRequest(method, f.srv.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, data
}

func seed() model.Collection {
	return model.Collection{
		{ID: 1, Name: "Iron Man", RealName: "Tony Stark", Universe: "Earth-616"},
		{ID: 2, Name: "Hulk", RealName: "Bruce Banner", Universe: "Earth-616"},
	}
}

func decode[T any](t *testing.T, body []byte) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(body, &v), string(body))
	return v
}

func TestHealth(t *testing.T) {
	f := newFixture(t, seed(), false)
	code, body := f.do(t, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `{"status":"ok"}`, string(body))
}

func TestListCharacters(t *testing.T) {
	f := newFixture(t, seed(), false)
	code, body := f.do(t, http.MethodGet, "/api/characters", "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, seed(), decode[model.Collection](t, body))
}

func TestSearchCharacters(t *testing.T) {
	f := newFixture(t, seed(), false)

	code, body := f.do(t, http.MethodGet, "/api/characters/search?query=STARK", "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, seed()[:1], decode[model.Collection](t, body))

	code, body = f.do(t, http.MethodGet, "/api/characters/search?query=thor", "")
	require.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `[]`, string(body))

	code, body = f.do(t, http.MethodGet, "/api/characters/search", "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, seed(), decode[model.Collection](t, body))
}

func TestGetCharacter(t *testing.T) {
	f := newFixture(t, seed(), false)

	code, body := f.do(t, http.MethodGet, "/api/characters/2", "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "Hulk", decode[model.Character](t, body).Name)

	code, _ = f.do(t, http.MethodGet, "/api/characters/9", "")
	assert.Equal(t, http.StatusNotFound, code)

	code, body = f.do(t, http.MethodGet, "/api/characters/abc", "")
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Contains(t, decode[ErrorResponse](t, body).Error, "id")
}

func TestCreateCharacter(t *testing.T) {
	f := newFixture(t, seed(), false)

	code, body := f.do(t, http.MethodPost, "/api/characters", `{"name":"Thor","realName":"Thor Odinson"}`)
	require.Equal(t, http.StatusCreated, code)
	created := decode[model.Character](t, body)
	assert.Equal(t, model.Character{ID: 3, Name: "Thor", RealName: "Thor Odinson", Universe: engine.DefaultUniverse}, created)

	c, err := f.store.LoadAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, append(seed(), created), c)
}

func TestCreateCharacterRejectsBadInput(t *testing.T) {
	f := newFixture(t, seed(), false)

	code, body := f.do(t, http.MethodPost, "/api/characters", `{"name":"Thor"}`)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Contains(t, decode[ErrorResponse](t, body).Error, "realName")

	code, _ = f.do(t, http.MethodPost, "/api/characters", `{"name":`)
	assert.Equal(t, http.StatusBadRequest, code)

	c, err := f.store.LoadAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, seed(), c)
}

func TestUpdateCharacter(t *testing.T) {
	f := newFixture(t, seed(), false)

	code, body := f.do(t, http.MethodPut, "/api/characters/2", `{"id":77,"universe":"Earth-1610"}`)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, model.Character{ID: 2, Name: "Hulk", RealName: "Bruce Banner", Universe: "Earth-1610"}, decode[model.Character](t, body))

	code, body = f.do(t, http.MethodPut, "/api/characters/42", `{"name":"Ghost"}`)
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "Character not found", decode[ErrorResponse](t, body).Error)
}

func TestDeleteCharacter(t *testing.T) {
	f := newFixture(t, seed(), false)

	code, body := f.do(t, http.MethodDelete, "/api/characters/1", "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "Character deleted", decode[MessageResponse](t, body).Message)

	code, _ = f.do(t, http.MethodDelete, "/api/characters/1", "")
	assert.Equal(t, http.StatusNotFound, code)

	c, err := f.store.LoadAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, seed()[1:], c)
}

func TestJournalEndpoint(t *testing.T) {
	f := newFixture(t, seed(), false)
	code, _ := f.do(t, http.MethodGet, "/api/journal", "")
	assert.Equal(t, http.StatusNotFound, code)

	f = newFixture(t, seed(), true)
	code, _ = f.do(t, http.MethodDelete, "/api/characters/2", "")
	require.Equal(t, http.StatusOK, code)

	code, body := f.do(t, http.MethodGet, "/api/journal", "")
	require.Equal(t, http.StatusOK, code)
	var entries []struct {
		Sequence uint64          `json:"sequence"`
		Op       string          `json:"op"`
		Record   model.Character `json:"record"`
	}
	require.NoError(t, json.Unmarshal(body, &entries))
	require.Len(t, entries, 1)
	assert.Equal(t, "delete", entries[0].Op)
	assert.Equal(t, "Hulk", entries[0].Record.Name)
}

func TestCORSPreflight(t *testing.T) {
	f := newFixture(t, seed(), false)

	req, err := http.NewRequest(http.MethodOptions, f.srv.URL+"/api/characters/1", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodPut)
	req.Header.Set("Access-Control-Request-Headers", "Content-Type")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Less(t, resp.StatusCode, 300)
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
	assert.Equal(t, http.MethodPut, resp.Header.Get("Access-Control-Allow-Methods"))

	c, err := f.store.LoadAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, seed(), c)
}

func TestCORSOnSimpleRequest(t *testing.T) {
	f := newFixture(t, seed(), false)

	req, err := http.NewRequest(http.MethodGet, f.srv.URL+"/api/characters", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "http://localhost:3000")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestMetricsEndpoint(t *testing.T) {
	f := newFixture(t, seed(), false)
	f.do(t, http.MethodGet, "/api/characters", "")

	code, body := f.do(t, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, string(body), `heroes_http_requests_total{route="/api/characters",code="200"}`)
}

// stubService fails every call with a fixed error.
type stubService struct{ err error }

func (s stubService) List(context.Context) (model.Collection, error) { return nil, s.err }
func (s stubService) Search(context.Context, string) (model.Collection, error) {
	return nil, s.err
}
func (s stubService) Get(context.Context, model.CharacterID) (model.Character, error) {
	return model.Character{}, s.err
}
func (s stubService) Create(context.Context, model.CharacterInput) (model.Character, error) {
	return model.Character{}, s.err
}
func (s stubService) Update(context.Context, model.CharacterID, model.CharacterInput) (model.Character, error) {
	return model.Character{}, s.err
}
func (s stubService) Delete(context.Context, model.CharacterID) error { return s.err }
func (s stubService) Journal() *engine.Journal { return nil }

func TestErrorMapping(t *testing.T) {
	cases := []struct {
		err    error
		status int
		msg    string
	}{
		{model.NewStorageError("load", errors.New("no such file")), http.StatusInternalServerError, "Failed to load characters"},
		{engine.ErrBusy, http.StatusServiceUnavailable, "Failed to load characters"},
		{engine.ErrClosed, http.StatusServiceUnavailable, "Failed to load characters"},
		{errors.New("boom"), http.StatusInternalServerError, "Failed to load characters"},
	}
	for _, tc := range cases {
		srv := httptest.NewServer(NewServer(stubService{err: tc.err}))
		resp, err := http.Get(srv.URL + "/api/characters")
		require.NoError(t, err)

		var body ErrorResponse
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		resp.Body.Close()
		srv.Close()

		assert.Equal(t, tc.status, resp.StatusCode, tc.err.Error())
		assert.Equal(t, tc.msg, body.Error)
	}
}

func TestStorageErrorOnSearchAndMutations(t *testing.T) {
	srv := httptest.NewServer(NewServer(stubService{err: model.NewStorageError("save", errors.New("disk full"))}))
	defer srv.Close()

	checks := []struct {
		method, path, body, msg string
	}{
		{http.MethodGet, "/api/characters/search?query=x", "", "Search failed"},
		{http.MethodPost, "/api/characters", `{"name":"a","realName":"b"}`, "Failed to add character"},
		{http.MethodPut, "/api/characters/1", `{"name":"a"}`, "Failed to update character"},
		{http.MethodDelete, "/api/characters/1", "", "Failed to delete character"},
	}
	for _, c := range checks {
		req, err := http.NewRequest(c.method, srv.URL+c.path, strings.NewReader(c.body))
		require.NoError(t, err)
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)

		var body ErrorResponse
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		resp.Body.Close()

		assert.Equal(t, http.StatusInternalServerError, resp.StatusCode, c.path)
		assert.Equal(t, c.msg, body.Error)
	}
}
