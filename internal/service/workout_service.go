package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"peakfit/workout-catalog/internal/domain"
	"peakfit/workout-catalog/internal/repository"
	"peakfit/workout-catalog/internal/storage"
	"peakfit/workout-catalog/internal/treestore"
)

// --- Error Definitions ---
var (
	ErrWorkoutNotFound        = errors.New("workout not found")
	ErrWorkoutAccessDenied    = errors.New("access denied to modify or delete this workout")
	ErrAdminRequired          = errors.New("admin role required")
	ErrConfirmationRequired   = errors.New("destructive operation requires explicit confirmation")
	ErrUnsupportedContentType = errors.New("thumbnails must be image/png")
	ErrThumbnailsDisabled     = errors.New("thumbnail storage is not configured")
	ErrNoThumbnail            = errors.New("workout has no uploaded thumbnail")
	ErrUploadURLError         = errors.New("failed to generate upload URL")
	ErrDownloadURLError       = errors.New("failed to generate download URL")
)

const thumbnailContentType = "image/png"

// UploadURLResponse is returned when a client asks to upload a thumbnail.
// The client PUTs the file to UploadURL, then stores ObjectKey as the
// workout's thumbnail.
type UploadURLResponse struct {
	UploadURL string `json:"uploadUrl"`
	ObjectKey string `json:"objectKey"`
}

// WorkoutService applies access rules on top of the workout catalog.
type WorkoutService interface {
	ListWorkouts(ctx context.Context, caller domain.Caller) ([]domain.Workout, error)
	GetWorkout(ctx context.Context, caller domain.Caller, id string) (*domain.Workout, error)
	CreateWorkout(ctx context.Context, caller domain.Caller, data domain.Workout) (*domain.Workout, error)
	UpdateWorkout(ctx context.Context, caller domain.Caller, id string, patch domain.WorkoutPatch) (*domain.Workout, error)
	DeleteWorkout(ctx context.Context, caller domain.Caller, id string) error
	BulkCreateWorkouts(ctx context.Context, caller domain.Caller, records []domain.Workout) ([]domain.Workout, error)

	// Admin operations
	DeleteAllWorkouts(ctx context.Context, caller domain.Caller, confirmed bool) error
	ReconcileWorkouts(ctx context.Context, caller domain.Caller) (*repository.ReconcileReport, error)

	// Moderation
	SubmitWorkout(ctx context.Context, caller domain.Caller, data domain.Workout) (*domain.Workout, error)
	ListPendingWorkouts(ctx context.Context, caller domain.Caller) ([]domain.Workout, error)
	ApprovePendingWorkout(ctx context.Context, caller domain.Caller, id string, patch domain.WorkoutPatch) (*domain.Workout, error)
	DeletePendingWorkout(ctx context.Context, caller domain.Caller, id string) error

	// Thumbnails
	RequestThumbnailUpload(ctx context.Context, caller domain.Caller, contentType string) (*UploadURLResponse, error)
	GetThumbnailURL(ctx context.Context, caller domain.Caller, id string) (string, error)
}

// workoutService implements the WorkoutService interface.
type workoutService struct {
	catalog       repository.WorkoutCatalog
	fileStorage   storage.FileStorage // nil when thumbnails are disabled
	presignExpiry time.Duration
	logger        zerolog.Logger
}

// NewWorkoutService creates a new instance of workoutService. fileStorage may
// be nil, in which case thumbnail operations return ErrThumbnailsDisabled.
func NewWorkoutService(
	catalog repository.WorkoutCatalog,
	fileStorage storage.FileStorage,
	presignExpiry time.Duration,
	logger zerolog.Logger,
) WorkoutService {
	return &workoutService{
		catalog:       catalog,
		fileStorage:   fileStorage,
		presignExpiry: presignExpiry,
		logger:        logger.With().Str("component", "workout_service").Logger(),
	}
}

func (s *workoutService) repo(caller domain.Caller) (repository.WorkoutRepository, error) {
	return s.catalog.ForOwner(caller.UserID)
}

func (s *workoutService) ListWorkouts(ctx context.Context, caller domain.Caller) ([]domain.Workout, error) {
	repo, err := s.repo(caller)
	if err != nil {
		return nil, err
	}
	return repo.List(ctx)
}

func (s *workoutService) GetWorkout(ctx context.Context, caller domain.Caller, id string) (*domain.Workout, error) {
	repo, err := s.repo(caller)
	if err != nil {
		return nil, err
	}
	return s.find(ctx, repo, id)
}

func (s *workoutService) find(ctx context.Context, repo repository.WorkoutRepository, id string) (*domain.Workout, error) {
	w, err := repo.GetByID(ctx, id)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, errors.Join(ErrWorkoutNotFound, err)
		}
		return nil, err
	}
	return w, nil
}

// CreateWorkout files a new workout owned by the caller.
func (s *workoutService) CreateWorkout(ctx context.Context, caller domain.Caller, data domain.Workout) (*domain.Workout, error) {
	repo, err := s.repo(caller)
	if err != nil {
		return nil, err
	}
	return repo.Insert(ctx, caller.UserID, data)
}

// ownedWorkout loads a workout and checks that the caller may change it.
func (s *workoutService) ownedWorkout(ctx context.Context, caller domain.Caller, id string) (repository.WorkoutRepository, *domain.Workout, error) {
	repo, err := s.repo(caller)
	if err != nil {
		return nil, nil, err
	}
	w, err := s.find(ctx, repo, id)
	if err != nil {
		return nil, nil, err
	}
	if !caller.IsAdmin() && !caller.Owns(w) {
		return nil, nil, ErrWorkoutAccessDenied
	}
	return repo, w, nil
}

// UpdateWorkout applies patch when the caller owns the workout or is an admin.
// A non-admin cannot hand a workout to another user.
func (s *workoutService) UpdateWorkout(ctx context.Context, caller domain.Caller, id string, patch domain.WorkoutPatch) (*domain.Workout, error) {
	repo, existing, err := s.ownedWorkout(ctx, caller, id)
	if err != nil {
		return nil, err
	}
	if patch.CreatedBy != nil && *patch.CreatedBy != existing.CreatedBy && !caller.IsAdmin() {
		return nil, ErrWorkoutAccessDenied
	}

	updated, err := repo.Update(ctx, id, patch)
	if err != nil {
		if errors.Is(err, repository.ErrPartialMove) {
			s.logger.Error().Err(err).Str("id", id).Msg("workout moved but old copy remains; run reconcile")
		}
		return updated, err
	}
	return updated, nil
}

// DeleteWorkout removes the workout and, best effort, its uploaded thumbnail.
func (s *workoutService) DeleteWorkout(ctx context.Context, caller domain.Caller, id string) error {
	repo, existing, err := s.ownedWorkout(ctx, caller, id)
	if err != nil {
		return err
	}
	if err := repo.Delete(ctx, id); err != nil {
		if repository.IsNotFound(err) {
			return errors.Join(ErrWorkoutNotFound, err)
		}
		return err
	}

	if s.fileStorage != nil && storage.IsManagedKey(existing.Thumbnail) {
		if err := s.fileStorage.DeleteObject(ctx, existing.Thumbnail); err != nil {
			s.logger.Warn().Err(err).Str("id", id).Str("key", existing.Thumbnail).Msg("thumbnail not deleted")
		}
	}
	return nil
}

func (s *workoutService) BulkCreateWorkouts(ctx context.Context, caller domain.Caller, records []domain.Workout) ([]domain.Workout, error) {
	repo, err := s.repo(caller)
	if err != nil {
		return nil, err
	}
	return repo.BulkInsert(ctx, caller.UserID, records)
}

// DeleteAllWorkouts wipes the caller's catalog scope. Admin only.
func (s *workoutService) DeleteAllWorkouts(ctx context.Context, caller domain.Caller, confirmed bool) error {
	if !caller.IsAdmin() {
		return ErrAdminRequired
	}
	if !confirmed {
		return ErrConfirmationRequired
	}
	repo, err := s.repo(caller)
	if err != nil {
		return err
	}
	s.logger.Warn().Str("caller", caller.UserID).Msg("delete all workouts requested")
	return repo.DeleteAll(ctx)
}

func (s *workoutService) ReconcileWorkouts(ctx context.Context, caller domain.Caller) (*repository.ReconcileReport, error) {
	if !caller.IsAdmin() {
		return nil, ErrAdminRequired
	}
	repo, err := s.repo(caller)
	if err != nil {
		return nil, err
	}
	return repo.Reconcile(ctx)
}

// SubmitWorkout queues a workout for moderation on behalf of the caller.
func (s *workoutService) SubmitWorkout(ctx context.Context, caller domain.Caller, data domain.Workout) (*domain.Workout, error) {
	if err := validateOwner(caller.UserID); err != nil {
		return nil, err
	}
	return s.catalog.Pending().Submit(ctx, caller.UserID, data)
}

func (s *workoutService) ListPendingWorkouts(ctx context.Context, caller domain.Caller) ([]domain.Workout, error) {
	if !caller.IsAdmin() {
		return nil, ErrAdminRequired
	}
	return s.catalog.Pending().List(ctx)
}

// ApprovePendingWorkout files a queued workout in the catalog. Admin only.
func (s *workoutService) ApprovePendingWorkout(ctx context.Context, caller domain.Caller, id string, patch domain.WorkoutPatch) (*domain.Workout, error) {
	if !caller.IsAdmin() {
		return nil, ErrAdminRequired
	}
	w, err := s.catalog.Pending().Approve(ctx, id, patch)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, errors.Join(ErrWorkoutNotFound, err)
		}
		return nil, err
	}
	s.logger.Info().Str("caller", caller.UserID).Str("pendingId", id).Str("id", w.ID).Msg("workout approved")
	return w, nil
}

// DeletePendingWorkout rejects a queued workout. Admin only.
func (s *workoutService) DeletePendingWorkout(ctx context.Context, caller domain.Caller, id string) error {
	if !caller.IsAdmin() {
		return ErrAdminRequired
	}
	if err := s.catalog.Pending().Delete(ctx, id); err != nil {
		if repository.IsNotFound(err) {
			return errors.Join(ErrWorkoutNotFound, err)
		}
		return err
	}
	return nil
}

// RequestThumbnailUpload generates a pre-signed URL for a PNG thumbnail.
func (s *workoutService) RequestThumbnailUpload(ctx context.Context, caller domain.Caller, contentType string) (*UploadURLResponse, error) {
	if s.fileStorage == nil {
		return nil, ErrThumbnailsDisabled
	}
	if !strings.EqualFold(strings.TrimSpace(contentType), thumbnailContentType) {
		return nil, ErrUnsupportedContentType
	}
	if err := validateOwner(caller.UserID); err != nil {
		return nil, err
	}

	objectKey, err := storage.NewThumbnailKey(caller.UserID, "png")
	if err != nil {
		return nil, err
	}
	uploadURL, err := s.fileStorage.GeneratePresignedUploadURL(ctx, objectKey, thumbnailContentType, s.presignExpiry)
	if err != nil {
		return nil, errors.Join(ErrUploadURLError, err)
	}
	return &UploadURLResponse{UploadURL: uploadURL, ObjectKey: objectKey}, nil
}

// GetThumbnailURL returns a temporary download URL for a workout's uploaded
// thumbnail. External thumbnail URLs are returned as they are.
func (s *workoutService) GetThumbnailURL(ctx context.Context, caller domain.Caller, id string) (string, error) {
	w, err := s.GetWorkout(ctx, caller, id)
	if err != nil {
		return "", err
	}
	if w.Thumbnail == "" {
		return "", ErrNoThumbnail
	}
	if !storage.IsManagedKey(w.Thumbnail) {
		return w.Thumbnail, nil
	}
	if s.fileStorage == nil {
		return "", ErrThumbnailsDisabled
	}
	url, err := s.fileStorage.GeneratePresignedDownloadURL(ctx, w.Thumbnail, s.presignExpiry)
	if err != nil {
		return "", errors.Join(ErrDownloadURLError, err)
	}
	return url, nil
}

func validateOwner(uid string) error {
	if err := treestore.ValidateKey(uid); err != nil {
		return domain.NewValidationError("ownerId", "not usable as a storage key")
	}
	return nil
}
