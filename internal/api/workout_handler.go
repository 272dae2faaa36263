package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"peakfit/workout-catalog/internal/domain"
	"peakfit/workout-catalog/internal/logging"
	"peakfit/workout-catalog/internal/repository"
	"peakfit/workout-catalog/internal/service"
)

// WorkoutHandler holds the workout service dependency.
type WorkoutHandler struct {
	workoutService service.WorkoutService
}

// NewWorkoutHandler creates a new WorkoutHandler.
func NewWorkoutHandler(workoutService service.WorkoutService) *WorkoutHandler {
	return &WorkoutHandler{workoutService: workoutService}
}

// --- DTOs for API ---

// ThumbnailUploadRequest asks for a pre-signed thumbnail upload URL.
type ThumbnailUploadRequest struct {
	ContentType string `json:"contentType" binding:"required"`
}

// respond writes the success envelope used by every workout endpoint.
func respond(c *gin.Context, code int, data any) {
	c.JSON(code, gin.H{"success": true, "data": data})
}

// respondWithServiceError maps service and repository errors to HTTP responses.
func respondWithServiceError(c *gin.Context, err error) {
	_ = c.Error(err)

	var verr *domain.ValidationError
	switch {
	case errors.As(err, &verr):
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": verr.Error(), "details": verr.Errors})
	case errors.Is(err, service.ErrWorkoutNotFound), errors.Is(err, repository.ErrNotFound),
		errors.Is(err, service.ErrNoThumbnail):
		abortWithError(c, http.StatusNotFound, err.Error())
	case errors.Is(err, service.ErrWorkoutAccessDenied), errors.Is(err, service.ErrAdminRequired):
		abortWithError(c, http.StatusForbidden, err.Error())
	case errors.Is(err, service.ErrConfirmationRequired), errors.Is(err, service.ErrUnsupportedContentType):
		abortWithError(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrThumbnailsDisabled):
		abortWithError(c, http.StatusNotImplemented, err.Error())
	case errors.Is(err, repository.ErrPartialMove):
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
			"error":   "Workout was copied to its new location but the old copy could not be removed.",
			"warning": "partial_move",
		})
	default:
		abortWithError(c, http.StatusInternalServerError, "Internal server error.")
	}
}

func (h *WorkoutHandler) caller(c *gin.Context) (domain.Caller, bool) {
	caller, err := getCallerFromContext(c)
	if err != nil {
		abortWithError(c, http.StatusUnauthorized, "Unauthorized.")
		return domain.Caller{}, false
	}
	return caller, true
}

// ListWorkouts handles GET /workouts.
func (h *WorkoutHandler) ListWorkouts(c *gin.Context) {
	caller, ok := h.caller(c)
	if !ok {
		return
	}
	workouts, err := h.workoutService.ListWorkouts(c.Request.Context(), caller)
	if err != nil {
		respondWithServiceError(c, err)
		return
	}
	respond(c, http.StatusOK, workouts)
}

// GetWorkout handles GET /workouts/:id.
func (h *WorkoutHandler) GetWorkout(c *gin.Context) {
	caller, ok := h.caller(c)
	if !ok {
		return
	}
	w, err := h.workoutService.GetWorkout(c.Request.Context(), caller, c.Param("id"))
	if err != nil {
		respondWithServiceError(c, err)
		return
	}
	respond(c, http.StatusOK, w)
}

// CreateWorkout handles POST /workouts. The caller becomes the owner.
func (h *WorkoutHandler) CreateWorkout(c *gin.Context) {
	caller, ok := h.caller(c)
	if !ok {
		return
	}
	var req domain.Workout
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	w, err := h.workoutService.CreateWorkout(c.Request.Context(), caller, req)
	if err != nil {
		respondWithServiceError(c, err)
		return
	}
	respond(c, http.StatusCreated, w)
}

// UpdateWorkout handles PUT /workouts/:id. Fields outside the patch are ignored.
func (h *WorkoutHandler) UpdateWorkout(c *gin.Context) {
	caller, ok := h.caller(c)
	if !ok {
		return
	}
	var patch domain.WorkoutPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		abortWithError(c, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	w, err := h.workoutService.UpdateWorkout(c.Request.Context(), caller, c.Param("id"), patch)
	if err != nil {
		respondWithServiceError(c, err)
		return
	}
	respond(c, http.StatusOK, w)
}

// DeleteWorkout handles DELETE /workouts/:id.
func (h *WorkoutHandler) DeleteWorkout(c *gin.Context) {
	caller, ok := h.caller(c)
	if !ok {
		return
	}
	id := c.Param("id")
	if err := h.workoutService.DeleteWorkout(c.Request.Context(), caller, id); err != nil {
		respondWithServiceError(c, err)
		return
	}
	respond(c, http.StatusOK, gin.H{"id": id})
}

// BulkCreateWorkouts handles POST /workouts/bulk with a JSON array body.
func (h *WorkoutHandler) BulkCreateWorkouts(c *gin.Context) {
	caller, ok := h.caller(c)
	if !ok {
		return
	}
	var records []domain.Workout
	if err := c.ShouldBindJSON(&records); err != nil {
		abortWithError(c, http.StatusBadRequest, "Request body must be a JSON array of workouts: "+err.Error())
		return
	}
	created, err := h.workoutService.BulkCreateWorkouts(c.Request.Context(), caller, records)
	if err != nil {
		respondWithServiceError(c, err)
		return
	}
	logger := logging.FromContext(c.Request.Context())
	logger.Info().Int("count", len(created)).Msg("bulk insert")
	respond(c, http.StatusCreated, created)
}

// RequestThumbnailUpload handles POST /workouts/thumbnails.
func (h *WorkoutHandler) RequestThumbnailUpload(c *gin.Context) {
	caller, ok := h.caller(c)
	if !ok {
		return
	}
	var req ThumbnailUploadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, http.StatusBadRequest, "Invalid request: "+err.Error())
		return
	}
	resp, err := h.workoutService.RequestThumbnailUpload(c.Request.Context(), caller, req.ContentType)
	if err != nil {
		respondWithServiceError(c, err)
		return
	}
	respond(c, http.StatusOK, resp)
}

// GetThumbnailURL handles GET /workouts/:id/thumbnail.
func (h *WorkoutHandler) GetThumbnailURL(c *gin.Context) {
	caller, ok := h.caller(c)
	if !ok {
		return
	}
	url, err := h.workoutService.GetThumbnailURL(c.Request.Context(), caller, c.Param("id"))
	if err != nil {
		respondWithServiceError(c, err)
		return
	}
	respond(c, http.StatusOK, gin.H{"url": url})
}

// DeleteAllWorkouts handles DELETE /admin/workouts?confirm=true.
func (h *WorkoutHandler) DeleteAllWorkouts(c *gin.Context) {
	caller, ok := h.caller(c)
	if !ok {
		return
	}
	confirmed, _ := strconv.ParseBool(c.Query("confirm"))
	if err := h.workoutService.DeleteAllWorkouts(c.Request.Context(), caller, confirmed); err != nil {
		respondWithServiceError(c, err)
		return
	}
	respond(c, http.StatusOK, gin.H{"deleted": true})
}

// ReconcileWorkouts handles POST /admin/workouts/reconcile.
func (h *WorkoutHandler) ReconcileWorkouts(c *gin.Context) {
	caller, ok := h.caller(c)
	if !ok {
		return
	}
	report, err := h.workoutService.ReconcileWorkouts(c.Request.Context(), caller)
	if err != nil {
		respondWithServiceError(c, err)
		return
	}
	respond(c, http.StatusOK, report)
}

// SubmitWorkout handles POST /workouts/pending. The workout waits for an
// admin to approve it.
func (h *WorkoutHandler) SubmitWorkout(c *gin.Context) {
	caller, ok := h.caller(c)
	if !ok {
		return
	}
	var req domain.Workout
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	w, err := h.workoutService.SubmitWorkout(c.Request.Context(), caller, req)
	if err != nil {
		respondWithServiceError(c, err)
		return
	}
	respond(c, http.StatusCreated, w)
}

// ListPendingWorkouts handles GET /admin/pending.
func (h *WorkoutHandler) ListPendingWorkouts(c *gin.Context) {
	caller, ok := h.caller(c)
	if !ok {
		return
	}
	pending, err := h.workoutService.ListPendingWorkouts(c.Request.Context(), caller)
	if err != nil {
		respondWithServiceError(c, err)
		return
	}
	respond(c, http.StatusOK, pending)
}

// ApprovePendingWorkout handles POST /admin/pending/:id/approve. An optional
// patch body corrects the record before it is filed.
func (h *WorkoutHandler) ApprovePendingWorkout(c *gin.Context) {
	caller, ok := h.caller(c)
	if !ok {
		return
	}
	var patch domain.WorkoutPatch
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&patch); err != nil {
			abortWithError(c, http.StatusBadRequest, "Invalid request body: "+err.Error())
			return
		}
	}
	w, err := h.workoutService.ApprovePendingWorkout(c.Request.Context(), caller, c.Param("id"), patch)
	if err != nil {
		respondWithServiceError(c, err)
		return
	}
	respond(c, http.StatusCreated, w)
}

// DeletePendingWorkout handles DELETE /admin/pending/:id.
func (h *WorkoutHandler) DeletePendingWorkout(c *gin.Context) {
	caller, ok := h.caller(c)
	if !ok {
		return
	}
	id := c.Param("id")
	if err := h.workoutService.DeletePendingWorkout(c.Request.Context(), caller, id); err != nil {
		respondWithServiceError(c, err)
		return
	}
	respond(c, http.StatusOK, gin.H{"id": id})
}
