package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/okhabit/okhabit/internal/blob"
	"github.com/okhabit/okhabit/internal/database/dbtest"
	"github.com/okhabit/okhabit/internal/models"
	"github.com/okhabit/okhabit/internal/queue"
	"github.com/okhabit/okhabit/internal/request"
	"github.com/okhabit/okhabit/internal/services/journal"
	"github.com/okhabit/okhabit/internal/services/tracker"
	"go.uber.org/zap"
)

// fixedNow is 2024-03-04 20:00 UTC, a Monday.
var fixedNow = time.Date(2024, 3, 4, 20, 0, 0, 0, time.UTC)

type recordingQueue struct {
	mu   sync.Mutex
	jobs []*queue.Job
}

func (q *recordingQueue) Enqueue(_ context.Context, job *queue.Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.jobs = append(q.jobs, job)
	return nil
}

func (q *recordingQueue) Jobs() []*queue.Job {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]*queue.Job(nil), q.jobs...)
}

// testEnv wires every API handler to an in-memory store behind a router that
// authenticates as user.
type testEnv struct {
	store  *dbtest.Store
	blobs  *blob.FileStore
	signer *blob.Signer
	jobs   *recordingQueue
	user   *models.User
	router *mux.Router
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	store := dbtest.New()
	user := &models.User{ID: uuid.New(), Email: "h@example.com", ProviderID: stringPtr("sub-" + uuid.NewString())}
	if err := store.Repos().Users.Create(context.Background(), user); err != nil {
		t.Fatalf("create user: %v", err)
	}
	blobs, err := blob.NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore() error = %v", err)
	}
	signer, err := blob.NewSigner(bytes.Repeat([]byte("k"), 32), time.Hour, "https://api.example.com")
	if err != nil {
		t.Fatalf("NewSigner() error = %v", err)
	}
	jobs := &recordingQueue{}
	log := zap.NewNop()
	now := func() time.Time { return fixedNow }

	trackerSvc := tracker.NewService(store, time.UTC, log)
	journalSvc := journal.NewService(store, blobs, signer, jobs, time.UTC, log)

	activities := NewActivityHandler(trackerSvc, log)
	activities.now = now
	days := NewDayHandler(trackerSvc, log)
	days.now = now
	timer := NewTimerHandler(trackerSvc, log)
	timer.now = now
	routines := NewRoutineHandler(time.UTC)
	routines.now = now
	journalHandler := NewJournalHandler(journalSvc, log)
	journalHandler.now = now

	r := mux.NewRouter()
	NewMediaHandler(blobs, signer, log).RegisterRoutes(r)

	api := r.PathPrefix("/api/v1").Subrouter()
	api.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			// Reload so preference updates are visible to later requests.
			u, err := store.Repos().Users.GetByID(req.Context(), user.ID)
			if err != nil {
				t.Errorf("load user: %v", err)
				return
			}
			next.ServeHTTP(w, req.WithContext(request.WithUser(req.Context(), u)))
		})
	})
	activities.RegisterRoutes(api)
	days.RegisterRoutes(api)
	timer.RegisterRoutes(api)
	routines.RegisterRoutes(api)
	journalHandler.RegisterRoutes(api)
	NewUserHandler(store.Repos().Users, log).RegisterRoutes(api)

	return &testEnv{store: store, blobs: blobs, signer: signer, jobs: jobs, user: user, router: r}
}

func (e *testEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

// mustDo runs the request and fails unless the status matches.
func (e *testEnv) mustDo(t *testing.T, method, path string, body any, want int) *httptest.ResponseRecorder {
	t.Helper()
	w := e.do(t, method, path, body)
	if w.Code != want {
		t.Fatalf("%s %s: expected status %d, got %d: %s", method, path, want, w.Code, w.Body.String())
	}
	return w
}

// decodeData unwraps the success envelope into T.
func decodeData[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var env struct {
		Success bool `json:"success"`
		Data    T    `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode response: %v: %s", err, w.Body.String())
	}
	if !env.Success {
		t.Fatalf("expected success envelope: %s", w.Body.String())
	}
	return env.Data
}

// errorMessage returns the message of an error envelope.
func errorMessage(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var env struct {
		Success bool   `json:"success"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode error response: %v: %s", err, w.Body.String())
	}
	if env.Success {
		t.Fatalf("expected error envelope: %s", w.Body.String())
	}
	return env.Message
}

func stringPtr(s string) *string { return &s }

// seedActivity creates a group and one activity through the API.
func (e *testEnv) seedActivity(t *testing.T, name, rt string, target int) (models.ActivityGroup, models.Activity) {
	t.Helper()
	g := decodeData[models.ActivityGroup](t, e.mustDo(t, http.MethodPost, "/api/v1/groups",
		map[string]any{"name": "Group " + name, "color": "#336699"}, http.StatusCreated))
	a := decodeData[models.Activity](t, e.mustDo(t, http.MethodPost, "/api/v1/groups/"+g.ID.String()+"/activities",
		map[string]any{"name": name, "routine": rt, "completion_target": target}, http.StatusCreated))
	return g, a
}
