package streams

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pulselive/backend/internal/models"
	"github.com/pulselive/backend/pkg/apperr"
)

// memStore is an in-memory Store with the same per-key atomicity the
// Postgres repository provides.
type memStore struct {
	mu      sync.Mutex
	streams map[uuid.UUID]models.LiveStream
}

func newMemStore() *memStore {
	return &memStore{streams: make(map[uuid.UUID]models.LiveStream)}
}

func (m *memStore) Create(_ context.Context, s *models.LiveStream) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s.ID = uuid.New()
	s.CreatedAt = time.Now()
	s.UpdatedAt = s.CreatedAt
	m.streams[s.ID] = *s
	return nil
}

func (m *memStore) Get(_ context.Context, id uuid.UUID) (*models.LiveStream, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.streams[id]
	if !ok {
		return nil, apperr.NotFound("stream not found")
	}
	return &s, nil
}

func (m *memStore) ListLive(_ context.Context) ([]models.LiveStream, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.LiveStream
	for _, s := range m.streams {
		if s.Status == models.StreamLive {
			out = append(out, s)
		}
	}
	return out, nil
}

func (m *memStore) Update(_ context.Context, id uuid.UUID, apply func(*models.LiveStream) error) (*models.LiveStream, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.streams[id]
	if !ok {
		return nil, apperr.NotFound("stream not found")
	}
	if err := apply(&s); err != nil {
		return nil, err
	}
	s.UpdatedAt = time.Now()
	m.streams[id] = s
	return &s, nil
}

func newTestRegistry(t *testing.T) (*Registry, *memStore) {
	t.Helper()
	store := newMemStore()
	return NewRegistry(store, nil, zap.NewNop()), store
}

func createStream(t *testing.T, r *Registry, owner uuid.UUID) *models.LiveStream {
	t.Helper()
	s, err := r.Create(context.Background(), owner, uuid.New(), "launch day")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	return s
}

func TestRegistry_StartStopLifecycle(t *testing.T) {
	ctx := context.Background()
	owner := uuid.New()
	r, _ := newTestRegistry(t)
	s := createStream(t, r, owner)

	s, err := r.Start(ctx, s.ID, owner)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if s.Status != models.StreamLive {
		t.Fatalf("status = %s, want live", s.Status)
	}
	if s.ActualStart == nil {
		t.Fatal("ActualStart not set")
	}
	firstStart := *s.ActualStart

	// a second start while live is a conflict
	if _, err := r.Start(ctx, s.ID, owner); !apperr.IsConflict(err) {
		t.Fatalf("second Start err = %v, want conflict", err)
	}

	s, err = r.Stop(ctx, s.ID, owner)
	if err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if s.Status != models.StreamEnded || s.ActualEnd == nil {
		t.Fatalf("after stop: status = %s, end = %v", s.Status, s.ActualEnd)
	}

	// restarting after a stop succeeds and refreshes the start time
	time.Sleep(time.Millisecond)
	s, err = r.Start(ctx, s.ID, owner)
	if err != nil {
		t.Fatalf("restart: %v", err)
	}
	if s.Status != models.StreamLive {
		t.Fatalf("status after restart = %s, want live", s.Status)
	}
	if !s.ActualStart.After(firstStart) {
		t.Fatalf("ActualStart not updated on restart: %v vs %v", s.ActualStart, firstStart)
	}
	if s.ActualEnd != nil {
		t.Fatal("ActualEnd should be cleared on restart")
	}
}

func TestRegistry_PauseResume(t *testing.T) {
	ctx := context.Background()
	owner := uuid.New()
	r, _ := newTestRegistry(t)
	s := createStream(t, r, owner)

	if _, err := r.Pause(ctx, s.ID, owner); !apperr.IsConflict(err) {
		t.Fatalf("Pause on scheduled err = %v, want conflict", err)
	}

	if _, err := r.Start(ctx, s.ID, owner); err != nil {
		t.Fatalf("Start: %v", err)
	}
	started, _ := r.Get(ctx, s.ID)

	paused, err := r.Pause(ctx, s.ID, owner)
	if err != nil {
		t.Fatalf("Pause: %v", err)
	}
	if paused.Status != models.StreamPaused {
		t.Fatalf("status = %s, want paused", paused.Status)
	}

	resumed, err := r.Resume(ctx, s.ID, owner)
	if err != nil {
		t.Fatalf("Resume: %v", err)
	}
	if resumed.Status != models.StreamLive {
		t.Fatalf("status = %s, want live", resumed.Status)
	}
	if !resumed.ActualStart.Equal(*started.ActualStart) {
		t.Fatal("resume must keep the session's original start time")
	}

	if _, err := r.Resume(ctx, s.ID, owner); !apperr.IsConflict(err) {
		t.Fatalf("Resume on live err = %v, want conflict", err)
	}
}

func TestRegistry_Cancel(t *testing.T) {
	ctx := context.Background()
	owner := uuid.New()
	r, _ := newTestRegistry(t)

	s := createStream(t, r, owner)
	if _, err := r.Cancel(ctx, s.ID, owner); err != nil {
		t.Fatalf("Cancel scheduled: %v", err)
	}
	if _, err := r.Start(ctx, s.ID, owner); !apperr.IsConflict(err) {
		t.Fatalf("Start on cancelled err = %v, want conflict", err)
	}

	s2 := createStream(t, r, owner)
	if _, err := r.Start(ctx, s2.ID, owner); err != nil {
		t.Fatal(err)
	}
	if _, err := r.Stop(ctx, s2.ID, owner); err != nil {
		t.Fatal(err)
	}
	if _, err := r.Cancel(ctx, s2.ID, owner); !apperr.IsConflict(err) {
		t.Fatalf("Cancel ended err = %v, want conflict", err)
	}
}

func TestRegistry_OwnerOnly(t *testing.T) {
	ctx := context.Background()
	owner := uuid.New()
	stranger := uuid.New()
	r, _ := newTestRegistry(t)
	s := createStream(t, r, owner)

	if _, err := r.Start(ctx, s.ID, stranger); !apperr.IsUnauthorized(err) {
		t.Fatalf("Start by stranger err = %v, want unauthorized", err)
	}
	if _, err := r.SetChatEnabled(ctx, s.ID, stranger, false); !apperr.IsUnauthorized(err) {
		t.Fatalf("SetChatEnabled by stranger err = %v, want unauthorized", err)
	}
}

func TestRegistry_ViewerCountPeak(t *testing.T) {
	ctx := context.Background()
	owner := uuid.New()
	r, _ := newTestRegistry(t)
	s := createStream(t, r, owner)
	if _, err := r.Start(ctx, s.ID, owner); err != nil {
		t.Fatal(err)
	}

	for _, tc := range []struct {
		count    int
		wantPeak int
	}{
		{5, 5},
		{12, 12},
		{3, 12},
		{12, 12},
		{0, 12},
	} {
		got, err := r.UpdateViewerCount(ctx, s.ID, tc.count, time.Now())
		if err != nil {
			t.Fatalf("UpdateViewerCount(%d): %v", tc.count, err)
		}
		if got.ViewerCount != tc.count || got.PeakViewerCount != tc.wantPeak {
			t.Fatalf("count=%d: got viewers=%d peak=%d, want peak=%d",
				tc.count, got.ViewerCount, got.PeakViewerCount, tc.wantPeak)
		}
	}

	if _, err := r.UpdateViewerCount(ctx, s.ID, -1, time.Now()); !apperr.IsValidation(err) {
		t.Fatalf("negative count err = %v, want validation", err)
	}
}

func TestRegistry_NotFound(t *testing.T) {
	ctx := context.Background()
	r, _ := newTestRegistry(t)
	if _, err := r.Get(ctx, uuid.New()); !apperr.IsNotFound(err) {
		t.Fatalf("Get unknown err = %v, want not found", err)
	}
	if _, err := r.Start(ctx, uuid.New(), uuid.New()); !apperr.IsNotFound(err) {
		t.Fatalf("Start unknown err = %v, want not found", err)
	}
}
