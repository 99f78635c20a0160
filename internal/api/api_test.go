package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/starford/modelhub/internal/apperr"
	"github.com/starford/modelhub/internal/jobs"
	"github.com/starford/modelhub/internal/registry"
	"github.com/starford/modelhub/internal/testutil"
)

// testEnv sets up a temp catalog, shared dir, service, and router for testing.
// An empty authToken means disabled mode.
func testEnv(t *testing.T, authToken string) (*registry.Service, http.Handler) {
	t.Helper()
	svc, router, _ := testEnvFull(t, authToken != "", authToken, nil)
	return svc, router
}

func testEnvFull(t *testing.T, authEnabled bool, authToken string, cloneErr error) (*registry.Service, http.Handler, string) {
	t.Helper()
	shared, store := testutil.TestShared(t)
	db := testutil.TestDB(t)
	svc := registry.New(db, store, testutil.StubCloner{Err: cloneErr})

	q := jobs.New(4, nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = q.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	router := NewRouter(svc, q, authEnabled, authToken, nil)
	return svc, router, shared
}

func postJSON(t *testing.T, router http.Handler, path string, v any, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	body, _ := json.Marshal(v)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(body))
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestCopyAndList(t *testing.T) {
	_, router, shared := testEnvFull(t, false, "", nil)
	src := testutil.LocalModel(t, "m1", map[string]string{"a.txt": "weights"})

	w := postJSON(t, router, "/models/copy", CopyRequest{Path: src})
	if w.Code != http.StatusCreated {
		t.Fatalf("copy status = %d, body = %s", w.Code, w.Body.String())
	}
	var resp ImportResponse
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Model.Name != "m1" || resp.Model.Path != filepath.Join(shared, "m1") {
		t.Errorf("model = %+v", resp.Model)
	}
	if resp.Message == "" {
		t.Error("message missing")
	}

	req := httptest.NewRequest(http.MethodGet, "/models", nil)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("list status = %d", w.Code)
	}
	var list ModelListResponse
	_ = json.Unmarshal(w.Body.Bytes(), &list)
	if list.Total != 1 || len(list.Models) != 1 || list.Models[0].Origin != src {
		t.Errorf("list = %+v", list)
	}
	if list.Message != "" {
		t.Errorf("non-empty listing carries message %q", list.Message)
	}
}

func TestListEmptyCarriesSentinel(t *testing.T) {
	_, router := testEnv(t, "")
	req := httptest.NewRequest(http.MethodGet, "/models", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	var list ModelListResponse
	_ = json.Unmarshal(w.Body.Bytes(), &list)
	if list.Message != registry.NoModelsMessage || list.Total != 0 || list.Models == nil {
		t.Errorf("empty list = %s", w.Body.String())
	}
}

func TestCloneDuplicate(t *testing.T) {
	_, router := testEnv(t, "")
	req := CloneRequest{URL: "https://github.com/octocat/Hello-World.git"}

	if w := postJSON(t, router, "/models/clone", req); w.Code != http.StatusCreated {
		t.Fatalf("first clone = %d, body = %s", w.Code, w.Body.String())
	}
	w := postJSON(t, router, "/models/clone", req)
	if w.Code != http.StatusConflict {
		t.Fatalf("duplicate clone = %d, want 409", w.Code)
	}
	var body errResponse
	_ = json.Unmarshal(w.Body.Bytes(), &body)
	if body.Kind != apperr.KindDuplicateModel {
		t.Errorf("kind = %q", body.Kind)
	}
}

func TestCloneFailureIsBadGateway(t *testing.T) {
	_, router, _ := testEnvFull(t, false, "", errors.New("fatal: repository not found"))
	w := postJSON(t, router, "/models/clone", CloneRequest{URL: "https://example.com/missing.git"})
	if w.Code != http.StatusBadGateway {
		t.Errorf("status = %d, want 502, body = %s", w.Code, w.Body.String())
	}
}

func TestCopyErrors(t *testing.T) {
	_, router := testEnv(t, "")
	missing := filepath.Join(t.TempDir(), "absent")
	file := filepath.Join(testutil.LocalModel(t, "f", map[string]string{"x.bin": "x"}), "x.bin")

	cases := []struct {
		name string
		body any
		want int
	}{
		{"missing path", CopyRequest{Path: missing}, http.StatusNotFound},
		{"not a directory", CopyRequest{Path: file}, http.StatusUnprocessableEntity},
		{"empty path", CopyRequest{}, http.StatusBadRequest},
		{"bad name", CopyRequest{Path: filepath.Dir(file), Name: "../x"}, http.StatusBadRequest},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			w := postJSON(t, router, "/models/copy", c.body)
			if w.Code != c.want {
				t.Errorf("status = %d, want %d, body = %s", w.Code, c.want, w.Body.String())
			}
		})
	}
}

func TestInvalidJSON(t *testing.T) {
	_, router := testEnv(t, "")
	req := httptest.NewRequest(http.MethodPost, "/models/clone", bytes.NewReader([]byte("{")))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestGetAndDeleteModel(t *testing.T) {
	_, router := testEnv(t, "")
	src := testutil.LocalModel(t, "bert", map[string]string{"w.bin": "1"})
	if w := postJSON(t, router, "/models/copy", CopyRequest{Path: src}); w.Code != http.StatusCreated {
		t.Fatalf("copy = %d", w.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/models/bert", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("get = %d", w.Code)
	}

	req = httptest.NewRequest(http.MethodDelete, "/models/bert", nil)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusNoContent {
		t.Fatalf("delete = %d", w.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/models/bert", nil)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusNotFound {
		t.Errorf("get after delete = %d, want 404", w.Code)
	}

	req = httptest.NewRequest(http.MethodDelete, "/models/bert", nil)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusNotFound {
		t.Errorf("second delete = %d, want 404", w.Code)
	}
}

func TestAsyncImportJob(t *testing.T) {
	_, router := testEnv(t, "")
	src := testutil.LocalModel(t, "async-model", map[string]string{"a": "a"})

	w := postJSON(t, router, "/models/copy?async=true", CopyRequest{Path: src})
	if w.Code != http.StatusAccepted {
		t.Fatalf("async copy = %d, body = %s", w.Code, w.Body.String())
	}
	var job Job
	_ = json.Unmarshal(w.Body.Bytes(), &job)
	if job.ID == "" || w.Header().Get("Location") != "/api/jobs/"+job.ID {
		t.Fatalf("job = %+v, location = %q", job, w.Header().Get("Location"))
	}

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		req := httptest.NewRequest(http.MethodGet, "/jobs/"+job.ID, nil)
		w = httptest.NewRecorder()
		router.ServeHTTP(w, req)
		if w.Code != http.StatusOK {
			t.Fatalf("poll = %d", w.Code)
		}
		_ = json.Unmarshal(w.Body.Bytes(), &job)
		if job.Done() {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if job.Status != jobs.StatusSucceeded {
		t.Fatalf("job = %+v", job)
	}

	// A second async import of the same origin fails inside the job.
	w = postJSON(t, router, "/models/copy?async=1", CopyRequest{Path: src})
	_ = json.Unmarshal(w.Body.Bytes(), &job)
	deadline = time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) && !job.Done() {
		time.Sleep(10 * time.Millisecond)
		req := httptest.NewRequest(http.MethodGet, "/jobs/"+job.ID, nil)
		w = httptest.NewRecorder()
		router.ServeHTTP(w, req)
		_ = json.Unmarshal(w.Body.Bytes(), &job)
	}
	if job.Status != jobs.StatusFailed || job.ErrorKind != apperr.KindDuplicateModel {
		t.Errorf("duplicate job = %+v", job)
	}
}

func TestGetJob_NotFound(t *testing.T) {
	_, router := testEnv(t, "")
	req := httptest.NewRequest(http.MethodGet, "/jobs/does-not-exist", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

func TestReconcileEndpoint(t *testing.T) {
	_, router := testEnv(t, "")
	w := postJSON(t, router, "/admin/reconcile", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var report ReconcileReport
	if err := json.Unmarshal(w.Body.Bytes(), &report); err != nil {
		t.Fatal(err)
	}
	if !report.Clean() {
		t.Errorf("fresh environment not clean: %+v", report)
	}
}

func TestAuthMiddleware_ValidToken(t *testing.T) {
	_, router := testEnv(t, "secret123")
	src := testutil.LocalModel(t, "authed", map[string]string{"a": "a"})

	w := postJSON(t, router, "/models/copy", CopyRequest{Path: src}, "Authorization", "Bearer secret123")
	if w.Code != http.StatusCreated {
		t.Errorf("authed copy = %d, want 201", w.Code)
	}
}

func TestAuthMiddleware_MissingToken(t *testing.T) {
	_, router := testEnv(t, "secret123")

	req := httptest.NewRequest(http.MethodGet, "/models", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("unauthed = %d, want 401", w.Code)
	}
}

func TestAuthMiddleware_WrongToken(t *testing.T) {
	_, router := testEnv(t, "secret123")

	req := httptest.NewRequest(http.MethodGet, "/models", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("wrong token = %d, want 401", w.Code)
	}
}

func TestAuthMiddleware_Disabled(t *testing.T) {
	_, router := testEnv(t, "")

	req := httptest.NewRequest(http.MethodGet, "/models", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("no auth = %d, want 200", w.Code)
	}
}

// SSE endpoint auth tests.

// testEnvWithSSE creates a router with a dummy SSE handler to test auth on /events.
func testEnvWithSSE(t *testing.T, authEnabled bool, token string) http.Handler {
	t.Helper()
	_, store := testutil.TestShared(t)
	svc := registry.New(testutil.TestDB(t), store, testutil.StubCloner{})

	// Minimal SSE handler stub; writes headers and blocks until context done.
	sseHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		if f, ok := w.(http.Flusher); ok {
			f.Flush()
		}
		<-r.Context().Done()
	})
	return NewRouter(svc, nil, authEnabled, token, sseHandler)
}

func TestSSEEvents_AuthProtected(t *testing.T) {
	router := testEnvWithSSE(t, true, "secret")

	// No token → 401.
	req := httptest.NewRequest(http.MethodGet, "/events", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("SSE no auth = %d, want 401", w.Code)
	}
}

func TestSSEEvents_AuthDisabled(t *testing.T) {
	router := testEnvWithSSE(t, false, "")

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	req := httptest.NewRequest(http.MethodGet, "/events", nil).WithContext(ctx)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code == http.StatusUnauthorized {
		t.Error("SSE should not require auth when disabled")
	}
}

func TestSSEEvents_ValidToken(t *testing.T) {
	router := testEnvWithSSE(t, true, "tok")

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	req := httptest.NewRequest(http.MethodGet, "/events", nil).WithContext(ctx)
	req.Header.Set("Authorization", "Bearer tok")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code == http.StatusUnauthorized {
		t.Error("SSE with valid token should not 401")
	}
}

func TestAsyncWithoutQueue(t *testing.T) {
	router := testEnvWithSSE(t, false, "")
	w := postJSON(t, router, "/models/clone?async=true", CloneRequest{URL: "https://example.com/x.git"})
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", w.Code)
	}
}
