package tree

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"peakfit/workout-catalog/internal/domain"
	"peakfit/workout-catalog/internal/treestore"
)

var fixedNow = time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

// faultyStore fails selected operations of an underlying store.
type faultyStore struct {
	treestore.Store
	readErr   error
	writeErr  error
	removeErr error
	multiErr  error
}

func (f *faultyStore) Read(ctx context.Context, p treestore.Path) (any, error) {
	if f.readErr != nil {
		return nil, f.readErr
	}
	return f.Store.Read(ctx, p)
}

func (f *faultyStore) Write(ctx context.Context, p treestore.Path, v any) error {
	if f.writeErr != nil {
		return f.writeErr
	}
	return f.Store.Write(ctx, p, v)
}

func (f *faultyStore) Remove(ctx context.Context, p treestore.Path) error {
	if f.removeErr != nil {
		return f.removeErr
	}
	return f.Store.Remove(ctx, p)
}

func (f *faultyStore) MultiWrite(ctx context.Context, updates map[string]any) error {
	if f.multiErr != nil {
		return f.multiErr
	}
	return f.Store.MultiWrite(ctx, updates)
}

func newTestRepo(t *testing.T, store treestore.Store, mode MoveMode) (*WorkoutRepository, *bytes.Buffer) {
	t.Helper()
	var logs bytes.Buffer
	r := NewWorkoutRepository(store, Config{
		Root:     treestore.MustParsePath("workouts"),
		MoveMode: mode,
	}, zerolog.New(&logs))
	r.now = func() time.Time { return fixedNow }
	return r, &logs
}

func pushUps() domain.Workout {
	return domain.Workout{
		Goal:        "strength",
		Limitations: "none",
		Level:       "beginner",
		Day:         "monday",
		Title:       "Push-ups",
		Duration:    10,
		VideoURL:    "v1",
		Thumbnail:   "t1",
	}
}

func ptr[T any](v T) *T { return &v }
