package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"focusline/internal/calendar"
	"focusline/internal/clock"
	"focusline/internal/db"
	"focusline/internal/docstore"
	"focusline/internal/events"
	"focusline/internal/migrate"
)

type testServer struct {
	URL  string
	Docs docstore.Store
}

func newTestServer(t *testing.T, cfg Config) *testServer {
	t.Helper()
	if cfg.Docs == nil {
		cfg.Docs = docstore.NewMemoryStore()
	}
	handler, err := New(cfg)
	require.NoError(t, err)
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	require.NoError(t, err)
	srv := &http.Server{Handler: handler}
	go srv.Serve(ln)
	t.Cleanup(func() {
		srv.Shutdown(context.Background())
		ln.Close()
	})
	return &testServer{URL: "http://" + ln.Addr().String(), Docs: cfg.Docs}
}

func doJSON(t *testing.T, method, url string, body any, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	var reader io.Reader = http.NoBody
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, url, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	res, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	require.NoError(t, err)
	return res, data
}

func decodeError(t *testing.T, data []byte) apiErrorBody {
	t.Helper()
	var envelope struct {
		Error apiErrorBody `json:"error"`
	}
	require.NoError(t, json.Unmarshal(data, &envelope), string(data))
	return envelope.Error
}

func TestHealthAssignsRequestID(t *testing.T) {
	srv := newTestServer(t, Config{})

	res, data := doJSON(t, http.MethodGet, srv.URL+"/v0/health", nil, nil)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	assert.JSONEq(t, `{"status":"ok"}`, string(data))
	_, err := uuid.Parse(res.Header.Get("X-Request-Id"))
	assert.NoError(t, err)

	res, _ = doJSON(t, http.MethodGet, srv.URL+"/v0/health", nil, map[string]string{"X-Request-Id": "abc-123"})
	assert.Equal(t, "abc-123", res.Header.Get("X-Request-Id"))
}

func TestDocumentRoundTripThroughHTTPStore(t *testing.T) {
	srv := newTestServer(t, Config{})
	client := docstore.NewHTTPStore(srv.URL, "")
	ctx := context.Background()
	path := "users/testUser/months/2024-06"

	_, ok, err := client.Get(ctx, path)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, client.Set(ctx, path, docstore.Document{
		"days": map[string]any{"2024-06-14": map[string]any{"minutes": 10, "tasks": []any{}}},
	}, false))
	require.NoError(t, client.Set(ctx, path, docstore.Document{
		"days": map[string]any{"2024-06-15": map[string]any{"minutes": 25.5, "tasks": []any{map[string]any{"text": "a", "done": true}}}},
	}, true))

	doc, ok, err := client.Get(ctx, path)
	require.NoError(t, err)
	require.True(t, ok)
	days := doc["days"].(map[string]any)
	assert.Equal(t, map[string]any{"minutes": 10.0, "tasks": []any{}}, days["2024-06-14"])
	assert.Equal(t, 25.5, days["2024-06-15"].(map[string]any)["minutes"])

	require.NoError(t, client.Set(ctx, path, docstore.Document{"days": map[string]any{}}, false))
	doc, _, err = client.Get(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, docstore.Document{"days": map[string]any{}}, doc)
}

func TestMissingDocumentEnvelope(t *testing.T) {
	srv := newTestServer(t, Config{})

	res, data := doJSON(t, http.MethodGet, srv.URL+"/v0/documents?path=users/nobody", nil, nil)
	require.Equal(t, http.StatusNotFound, res.StatusCode)
	body := decodeError(t, data)
	assert.Equal(t, "not_found", body.Code)
	assert.Equal(t, "users/nobody", body.Details["path"])
}

func TestInvalidPathIsBadRequest(t *testing.T) {
	srv := newTestServer(t, Config{})

	res, data := doJSON(t, http.MethodGet, srv.URL+"/v0/documents?path=users", nil, nil)
	require.Equal(t, http.StatusBadRequest, res.StatusCode)
	assert.Equal(t, "invalid_path", decodeError(t, data).Code)

	res, data = doJSON(t, http.MethodPut, srv.URL+"/v0/documents?path=users/a/months", map[string]any{"x": 1}, nil)
	require.Equal(t, http.StatusBadRequest, res.StatusCode)
	assert.Equal(t, "invalid_path", decodeError(t, data).Code)
}

func TestMissingPathQueryIsBadRequest(t *testing.T) {
	srv := newTestServer(t, Config{})

	res, data := doJSON(t, http.MethodGet, srv.URL+"/v0/documents", nil, nil)
	require.Equal(t, http.StatusBadRequest, res.StatusCode, string(data))
	assert.Equal(t, "bad_request", decodeError(t, data).Code)
}

func TestAuthRequiresBearerToken(t *testing.T) {
	secret := "s3cret"
	srv := newTestServer(t, Config{Auth: AuthConfig{JWTSecret: secret}})
	ctx := context.Background()

	res, _ := doJSON(t, http.MethodGet, srv.URL+"/v0/health", nil, nil)
	assert.Equal(t, http.StatusOK, res.StatusCode)

	res, data := doJSON(t, http.MethodGet, srv.URL+"/v0/documents?path=users/testUser", nil, nil)
	require.Equal(t, http.StatusUnauthorized, res.StatusCode)
	assert.Equal(t, "unauthorized", decodeError(t, data).Code)

	forged, err := IssueToken("other-secret", "testUser", time.Hour)
	require.NoError(t, err)
	_, _, err = docstore.NewHTTPStore(srv.URL, forged).Get(ctx, "users/testUser")
	var apiErr *docstore.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)

	res, _ = doJSON(t, http.MethodGet, srv.URL+"/v0/documents?path=users/testUser", nil, map[string]string{"Authorization": "Basic abc"})
	assert.Equal(t, http.StatusUnauthorized, res.StatusCode)

	token, err := IssueToken(secret, "testUser", time.Hour)
	require.NoError(t, err)
	client := docstore.NewHTTPStore(srv.URL, token)
	require.NoError(t, client.Set(ctx, "users/testUser", docstore.Document{"totalMinutes": 0}, true))
	doc, ok, err := client.Get(ctx, "users/testUser")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 0.0, doc["totalMinutes"])
}

func TestExpiredTokenRejected(t *testing.T) {
	secret := "s3cret"
	srv := newTestServer(t, Config{Auth: AuthConfig{JWTSecret: secret}})

	expired, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "testUser",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
	}).SignedString([]byte(secret))
	require.NoError(t, err)
	res, data := doJSON(t, http.MethodGet, srv.URL+"/v0/documents?path=users/testUser", nil, map[string]string{"Authorization": "Bearer " + expired})
	require.Equal(t, http.StatusUnauthorized, res.StatusCode)
	assert.Equal(t, "invalid_credentials", decodeError(t, data).Code)

	anonymous, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{}).SignedString([]byte(secret))
	require.NoError(t, err)
	res, _ = doJSON(t, http.MethodGet, srv.URL+"/v0/documents?path=users/testUser", nil, map[string]string{"Authorization": "Bearer " + anonymous})
	assert.Equal(t, http.StatusUnauthorized, res.StatusCode)
}

func TestIssueTokenRequiresSecretAndSubject(t *testing.T) {
	_, err := IssueToken("s3cret", "", time.Hour)
	assert.Error(t, err)
	_, err = IssueToken("", "testUser", time.Hour)
	assert.Error(t, err)

	token, err := IssueToken("s3cret", "testUser", 0)
	require.NoError(t, err)
	subject, err := authenticateJWT(token, "s3cret")
	require.NoError(t, err)
	assert.Equal(t, "testUser", subject)
}

func TestEventsListing(t *testing.T) {
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	_, err = migrate.Migrate(context.Background(), conn)
	require.NoError(t, err)
	docs := docstore.NewSQLiteStore(conn)

	srv := newTestServer(t, Config{Docs: docs, Journal: &events.Journal{DB: conn}})
	client := docstore.NewHTTPStore(srv.URL, "")
	ctx := context.Background()
	require.NoError(t, client.Set(ctx, "users/testUser", docstore.Document{"totalMinutes": 0}, true))
	require.NoError(t, client.Set(ctx, "users/testUser/months/2024-06", docstore.Document{
		"days": map[string]any{"2024-06-15": map[string]any{"minutes": 5}},
	}, true))

	res, data := doJSON(t, http.MethodGet, srv.URL+"/v0/events?path=users/testUser/months/2024-06", nil, nil)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	var list struct {
		Items []struct {
			Type    string `json:"type"`
			Path    string `json:"path"`
			Payload string `json:"payload_json"`
		} `json:"items"`
	}
	require.NoError(t, json.Unmarshal(data, &list))
	require.Len(t, list.Items, 1)
	assert.Equal(t, events.TypeDocumentSet, list.Items[0].Type)
	assert.Contains(t, list.Items[0].Payload, "days.2024-06-15")
}

func TestCalendarStoreOverHTTP(t *testing.T) {
	srv := newTestServer(t, Config{})
	ctx := context.Background()
	clk := clock.Fake(time.Date(2024, 6, 15, 10, 0, 0, 0, time.UTC))

	store := calendar.New(calendar.Options{Docs: docstore.NewHTTPStore(srv.URL, ""), Clock: clk})
	require.NoError(t, store.Initialize(ctx))
	store.SetSelectedDay(15)
	require.True(t, store.AddTask("remote"))
	require.True(t, store.AddMinutes(25))
	require.NoError(t, store.Dispose(ctx))

	doc, ok, err := srv.Docs.Get(ctx, "users/testUser/months/2024-06")
	require.NoError(t, err)
	require.True(t, ok)
	day := doc["days"].(map[string]any)["2024-06-15"].(map[string]any)
	assert.Equal(t, 25.0, day["minutes"])
	assert.Equal(t, []any{map[string]any{"text": "remote", "done": false}}, day["tasks"])

	_, ok, err = srv.Docs.Get(ctx, "users/testUser")
	require.NoError(t, err)
	assert.True(t, ok)
}
