package routes

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dataset-platform/core/auth"
	"dataset-platform/core/batches"
	"dataset-platform/core/export"
	"dataset-platform/core/qc"
	"dataset-platform/core/repository"
	"dataset-platform/core/tasks"
	"dataset-platform/core/uploads"
)

type fakeStore struct {
	objects map[string]bool
}

func (s *fakeStore) PresignPut(ctx context.Context, bucket, key, contentType string) (string, error) {
	return "https://store.test/" + bucket + "/" + key + "?sig=put", nil
}

func (s *fakeStore) PresignGet(ctx context.Context, bucket, key string) (string, error) {
	return "https://store.test/" + bucket + "/" + key + "?sig=get", nil
}

func (s *fakeStore) ObjectExists(ctx context.Context, bucket, key string) (bool, error) {
	return s.objects[bucket+"/"+key], nil
}

func (s *fakeStore) PutObject(ctx context.Context, bucket, key string, body []byte, contentType string) error {
	s.objects[bucket+"/"+key] = true
	return nil
}

type fakeDispatcher struct{ n int64 }

func (d *fakeDispatcher) DispatchQCRun(ctx context.Context, runID int64) (string, error) {
	d.n++
	return fmt.Sprintf("corr-%d", d.n), nil
}

type apiEnv struct {
	router *mux.Router
	mem    *repository.Memory
	store  *fakeStore
}

func newAPIEnv(t *testing.T) *apiEnv {
	t.Helper()
	mem := repository.NewMemory()
	store := &fakeStore{objects: map[string]bool{}}
	require.NoError(t, auth.SeedUsers(context.Background(), mem.Users))

	tokens := auth.NewTokenManager("test-secret", time.Hour)
	router := mux.NewRouter()
	SetupRoutes(router, Services{
		Users:   mem.Users,
		Tokens:  tokens,
		Batches: batches.NewService(mem.Batches),
		Uploads: uploads.NewService(mem.Batches, mem.Assets, store, "assets", 600),
		QC:      qc.NewService(mem.Batches, mem.Assets, mem.Runs, &fakeDispatcher{}),
		Tasks:   tasks.NewService(mem.Tasks, mem.Batches, mem.Assets, mem.Annotations),
		Exports: export.NewBuilder(mem.Batches, mem.Assets, mem.Runs, mem.Annotations,
			mem.Exports, store, "exports"),
	})
	return &apiEnv{router: router, mem: mem, store: store}
}

func (e *apiEnv) do(t *testing.T, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func (e *apiEnv) login(t *testing.T, username string) string {
	t.Helper()
	rec := e.do(t, http.MethodPost, "/auth/login", "", map[string]string{
		"username": username,
		"password": "pass",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp struct {
		AccessToken string `json:"access_token"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.AccessToken)
	return resp.AccessToken
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestLogin(t *testing.T) {
	env := newAPIEnv(t)

	env.login(t, "customer1")

	rec := env.do(t, http.MethodPost, "/auth/login", "", map[string]string{
		"username": "customer1",
		"password": "wrong",
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = env.do(t, http.MethodPost, "/auth/login", "", map[string]string{
		"username": "nobody",
		"password": "pass",
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAuthRequired(t *testing.T) {
	env := newAPIEnv(t)

	rec := env.do(t, http.MethodGet, "/v1/batches", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = env.do(t, http.MethodGet, "/v1/batches", "not-a-token", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestBatchUploadQCFlow(t *testing.T) {
	env := newAPIEnv(t)
	token := env.login(t, "customer1")

	// Create a batch.
	rec := env.do(t, http.MethodPost, "/v1/batches", token, map[string]interface{}{
		"title":   "street scenes",
		"classes": []string{"car", "person"},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	batchID := int64(decode(t, rec)["id"].(float64))

	// QC on an empty batch is rejected.
	rec = env.do(t, http.MethodPost, fmt.Sprintf("/v1/batches/%d/qc", batchID), token, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// Presign needs a content hash.
	rec = env.do(t, http.MethodPost, fmt.Sprintf("/v1/batches/%d/uploads", batchID), token,
		map[string]string{"file_name": "cat.jpg"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPost, fmt.Sprintf("/v1/batches/%d/uploads", batchID), token,
		map[string]string{"file_name": "cat.jpg", "sha256": "aa"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	key := decode(t, rec)["key"].(string)

	// Confirming before the object landed is rejected.
	rec = env.do(t, http.MethodPost, fmt.Sprintf("/v1/batches/%d/uploads/confirm", batchID), token,
		map[string]string{"key": key, "file_name": "cat.jpg", "sha256": "aa"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	env.store.objects["assets/"+key] = true
	rec = env.do(t, http.MethodPost, fmt.Sprintf("/v1/batches/%d/uploads/confirm", batchID), token,
		map[string]string{"key": key, "file_name": "cat.jpg", "sha256": "aa"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	// Submit QC, then hit the single-active-run rule.
	rec = env.do(t, http.MethodPost, fmt.Sprintf("/v1/batches/%d/qc", batchID), token, nil)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	runID := decode(t, rec)["id"].(float64)

	rec = env.do(t, http.MethodPost, fmt.Sprintf("/v1/batches/%d/qc", batchID), token, nil)
	require.Equal(t, http.StatusConflict, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, runID, body["run_id"])

	// Status reflects the queued run.
	rec = env.do(t, http.MethodGet, fmt.Sprintf("/v1/batches/%d/qc", batchID), token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "queued", decode(t, rec)["status"])

	// Another customer cannot see the batch.
	otherToken := env.login(t, "labeler1")
	rec = env.do(t, http.MethodGet, fmt.Sprintf("/v1/batches/%d", batchID), otherToken, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestQCStatusNoRuns(t *testing.T) {
	env := newAPIEnv(t)
	token := env.login(t, "customer1")

	rec := env.do(t, http.MethodPost, "/v1/batches", token, map[string]interface{}{
		"title":   "b",
		"classes": []string{"car"},
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	batchID := int64(decode(t, rec)["id"].(float64))

	rec = env.do(t, http.MethodGet, fmt.Sprintf("/v1/batches/%d/qc", batchID), token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "no_runs", decode(t, rec)["status"])

	rec = env.do(t, http.MethodGet, fmt.Sprintf("/v1/batches/%d/qc/results", batchID), token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "no_runs", body["status"])
	assert.Empty(t, body["items"])

	rec = env.do(t, http.MethodGet, fmt.Sprintf("/v1/batches/%d/export", batchID), token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "none", decode(t, rec)["status"])
}

func TestExportConflictOverHTTP(t *testing.T) {
	env := newAPIEnv(t)
	token := env.login(t, "customer1")

	rec := env.do(t, http.MethodPost, "/v1/batches", token, map[string]interface{}{
		"title":   "b",
		"classes": []string{"car"},
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	batchID := int64(decode(t, rec)["id"].(float64))

	rec = env.do(t, http.MethodPost, fmt.Sprintf("/v1/batches/%d/export", batchID), token, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
}
