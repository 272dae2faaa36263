package service

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"peakfit/workout-catalog/internal/domain"
	"peakfit/workout-catalog/internal/repository"
	"peakfit/workout-catalog/internal/repository/tree"
	"peakfit/workout-catalog/internal/treestore"
)

var (
	alice = domain.Caller{UserID: "alice", Role: domain.RoleUser}
	bob   = domain.Caller{UserID: "bob", Role: domain.RoleUser}
	admin = domain.Caller{UserID: "root", Role: domain.RoleAdmin}
)

type fakeStorage struct {
	deleted   []string
	deleteErr error
	presigned []string
	err       error
}

func (f *fakeStorage) GeneratePresignedUploadURL(_ context.Context, key, contentType string, _ time.Duration) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.presigned = append(f.presigned, key)
	return "https://upload.test/" + key + "?type=" + contentType, nil
}

func (f *fakeStorage) GeneratePresignedDownloadURL(_ context.Context, key string, _ time.Duration) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return "https://download.test/" + key, nil
}

func (f *fakeStorage) DeleteObject(_ context.Context, key string) error {
	if f.deleteErr != nil {
		return f.deleteErr
	}
	f.deleted = append(f.deleted, key)
	return nil
}

// removeFailingStore makes every removal fail so sequential moves stop halfway.
type removeFailingStore struct {
	treestore.Store
}

func (s removeFailingStore) Remove(context.Context, treestore.Path) error {
	return assert.AnError
}

func newService(t *testing.T, store treestore.Store, cfg tree.Config, files *fakeStorage) (WorkoutService, *bytes.Buffer) {
	t.Helper()
	if cfg.Root == nil {
		cfg.Root = treestore.MustParsePath("workouts")
	}
	var logs bytes.Buffer
	catalog, err := tree.NewCatalog(store, cfg, zerolog.New(&logs))
	require.NoError(t, err)
	if files == nil {
		return NewWorkoutService(catalog, nil, time.Minute, zerolog.New(&logs)), &logs
	}
	return NewWorkoutService(catalog, files, time.Minute, zerolog.New(&logs)), &logs
}

func squats() domain.Workout {
	return domain.Workout{
		Goal:        "strength",
		Limitations: "none",
		Level:       "beginner",
		Day:         "monday",
		Title:       "Squats",
		Duration:    15,
	}
}

func TestWorkoutService_CreateAndGet(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	svc, _ := newService(t, treestore.NewMemory(), tree.Config{}, nil)

	w, err := svc.CreateWorkout(ctx, alice, squats())
	require.NoError(t, err)
	assert.Equal(t, "alice", w.CreatedBy)

	got, err := svc.GetWorkout(ctx, bob, w.ID)
	require.NoError(t, err)
	assert.Equal(t, "Squats", got.Title)

	_, err = svc.GetWorkout(ctx, bob, "missing")
	assert.ErrorIs(t, err, ErrWorkoutNotFound)
	assert.ErrorIs(t, err, repository.ErrNotFound)

	all, err := svc.ListWorkouts(ctx, bob)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestWorkoutService_UpdateAccess(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	svc, _ := newService(t, treestore.NewMemory(), tree.Config{}, nil)

	w, err := svc.CreateWorkout(ctx, alice, squats())
	require.NoError(t, err)

	_, err = svc.UpdateWorkout(ctx, bob, w.ID, domain.WorkoutPatch{Title: ptr("mine now")})
	assert.ErrorIs(t, err, ErrWorkoutAccessDenied)

	_, err = svc.UpdateWorkout(ctx, alice, w.ID, domain.WorkoutPatch{CreatedBy: ptr("bob")})
	assert.ErrorIs(t, err, ErrWorkoutAccessDenied, "owners cannot give workouts away")

	updated, err := svc.UpdateWorkout(ctx, alice, w.ID, domain.WorkoutPatch{Day: ptr("tuesday")})
	require.NoError(t, err)
	assert.Equal(t, "tuesday", updated.Day)

	updated, err = svc.UpdateWorkout(ctx, admin, w.ID, domain.WorkoutPatch{Title: ptr("Deep squats"), CreatedBy: ptr("bob")})
	require.NoError(t, err)
	assert.Equal(t, "Deep squats", updated.Title)
	assert.Equal(t, "bob", updated.CreatedBy)
}

func TestWorkoutService_UpdatePartialMove(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	svc, logs := newService(t, removeFailingStore{treestore.NewMemory()}, tree.Config{MoveMode: tree.MoveSequential}, nil)

	w, err := svc.CreateWorkout(ctx, alice, squats())
	require.NoError(t, err)

	_, err = svc.UpdateWorkout(ctx, alice, w.ID, domain.WorkoutPatch{Day: ptr("friday")})
	assert.ErrorIs(t, err, repository.ErrPartialMove)
	assert.Contains(t, logs.String(), "run reconcile")
}

func TestWorkoutService_DeleteRemovesManagedThumbnail(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	files := &fakeStorage{}
	svc, _ := newService(t, treestore.NewMemory(), tree.Config{}, files)

	upload, err := svc.RequestThumbnailUpload(ctx, alice, "image/png")
	require.NoError(t, err)

	data := squats()
	data.Thumbnail = upload.ObjectKey
	managed, err := svc.CreateWorkout(ctx, alice, data)
	require.NoError(t, err)

	data.Thumbnail = "https://cdn.example.com/squats.png"
	external, err := svc.CreateWorkout(ctx, alice, data)
	require.NoError(t, err)

	assert.ErrorIs(t, svc.DeleteWorkout(ctx, bob, managed.ID), ErrWorkoutAccessDenied)

	require.NoError(t, svc.DeleteWorkout(ctx, alice, managed.ID))
	require.NoError(t, svc.DeleteWorkout(ctx, admin, external.ID))
	assert.Equal(t, []string{upload.ObjectKey}, files.deleted)

	_, err = svc.GetWorkout(ctx, alice, managed.ID)
	assert.ErrorIs(t, err, ErrWorkoutNotFound)
}

func TestWorkoutService_DeleteIgnoresThumbnailFailure(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	files := &fakeStorage{deleteErr: assert.AnError}
	svc, logs := newService(t, treestore.NewMemory(), tree.Config{}, files)

	data := squats()
	data.Thumbnail = "thumbnails/alice/x.png"
	w, err := svc.CreateWorkout(ctx, alice, data)
	require.NoError(t, err)

	require.NoError(t, svc.DeleteWorkout(ctx, alice, w.ID))
	assert.Contains(t, logs.String(), "thumbnail not deleted")
}

func TestWorkoutService_AdminOperations(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	svc, _ := newService(t, treestore.NewMemory(), tree.Config{}, nil)

	_, err := svc.BulkCreateWorkouts(ctx, alice, []domain.Workout{squats(), squats()})
	require.NoError(t, err)

	assert.ErrorIs(t, svc.DeleteAllWorkouts(ctx, alice, true), ErrAdminRequired)
	assert.ErrorIs(t, svc.DeleteAllWorkouts(ctx, admin, false), ErrConfirmationRequired)
	_, err = svc.ReconcileWorkouts(ctx, alice)
	assert.ErrorIs(t, err, ErrAdminRequired)

	report, err := svc.ReconcileWorkouts(ctx, admin)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Scanned)

	require.NoError(t, svc.DeleteAllWorkouts(ctx, admin, true))
	all, err := svc.ListWorkouts(ctx, alice)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestWorkoutService_Moderation(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	svc, _ := newService(t, treestore.NewMemory(), tree.Config{}, nil)

	submitted, err := svc.SubmitWorkout(ctx, alice, squats())
	require.NoError(t, err)
	assert.Equal(t, "alice", submitted.CreatedBy)

	_, err = svc.ListPendingWorkouts(ctx, alice)
	assert.ErrorIs(t, err, ErrAdminRequired)
	_, err = svc.ApprovePendingWorkout(ctx, alice, submitted.ID, domain.WorkoutPatch{})
	assert.ErrorIs(t, err, ErrAdminRequired)
	assert.ErrorIs(t, svc.DeletePendingWorkout(ctx, alice, submitted.ID), ErrAdminRequired)

	pending, err := svc.ListPendingWorkouts(ctx, admin)
	require.NoError(t, err)
	require.Len(t, pending, 1)

	approved, err := svc.ApprovePendingWorkout(ctx, admin, submitted.ID, domain.WorkoutPatch{Title: ptr("Goblet squats")})
	require.NoError(t, err)

	got, err := svc.GetWorkout(ctx, alice, approved.ID)
	require.NoError(t, err)
	assert.Equal(t, "Goblet squats", got.Title)
	assert.Equal(t, "alice", got.CreatedBy)

	_, err = svc.ApprovePendingWorkout(ctx, admin, submitted.ID, domain.WorkoutPatch{})
	assert.ErrorIs(t, err, ErrWorkoutNotFound)
	assert.ErrorIs(t, svc.DeletePendingWorkout(ctx, admin, submitted.ID), ErrWorkoutNotFound)

	_, err = svc.SubmitWorkout(ctx, domain.Caller{}, squats())
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestWorkoutService_OwnerScope(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	svc, _ := newService(t, treestore.NewMemory(), tree.Config{Scope: tree.ScopeOwner}, nil)

	w, err := svc.CreateWorkout(ctx, alice, squats())
	require.NoError(t, err)

	_, err = svc.GetWorkout(ctx, bob, w.ID)
	assert.ErrorIs(t, err, ErrWorkoutNotFound)

	_, err = svc.ListWorkouts(ctx, domain.Caller{})
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestWorkoutService_Thumbnails(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	disabled, _ := newService(t, treestore.NewMemory(), tree.Config{}, nil)
	_, err := disabled.RequestThumbnailUpload(ctx, alice, "image/png")
	assert.ErrorIs(t, err, ErrThumbnailsDisabled)

	files := &fakeStorage{}
	svc, _ := newService(t, treestore.NewMemory(), tree.Config{}, files)

	_, err = svc.RequestThumbnailUpload(ctx, alice, "image/jpeg")
	assert.ErrorIs(t, err, ErrUnsupportedContentType)
	_, err = svc.RequestThumbnailUpload(ctx, domain.Caller{}, "image/png")
	assert.ErrorIs(t, err, domain.ErrValidation)

	upload, err := svc.RequestThumbnailUpload(ctx, alice, "IMAGE/PNG")
	require.NoError(t, err)
	assert.Contains(t, upload.UploadURL, upload.ObjectKey)
	assert.Contains(t, upload.UploadURL, "type=image/png")

	data := squats()
	data.Thumbnail = upload.ObjectKey
	w, err := svc.CreateWorkout(ctx, alice, data)
	require.NoError(t, err)
	url, err := svc.GetThumbnailURL(ctx, bob, w.ID)
	require.NoError(t, err)
	assert.Equal(t, "https://download.test/"+upload.ObjectKey, url)

	data.Thumbnail = "https://cdn.example.com/a.png"
	w, err = svc.CreateWorkout(ctx, alice, data)
	require.NoError(t, err)
	url, err = svc.GetThumbnailURL(ctx, alice, w.ID)
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.com/a.png", url)

	data.Thumbnail = ""
	w, err = svc.CreateWorkout(ctx, alice, data)
	require.NoError(t, err)
	_, err = svc.GetThumbnailURL(ctx, alice, w.ID)
	assert.ErrorIs(t, err, ErrNoThumbnail)

	files.err = assert.AnError
	_, err = svc.RequestThumbnailUpload(ctx, alice, "image/png")
	assert.ErrorIs(t, err, ErrUploadURLError)
}

func ptr[T any](v T) *T { return &v }
