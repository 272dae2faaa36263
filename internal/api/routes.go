package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"peakfit/workout-catalog/internal/domain"
	"peakfit/workout-catalog/internal/service"
)

// SetupRoutes registers every endpoint on router.
func SetupRoutes(
	router *gin.Engine,
	jwtSecret string,
	logger zerolog.Logger,
	workoutService service.WorkoutService,
) {
	workoutHandler := NewWorkoutHandler(workoutService)
	authMiddleware := AuthMiddleware(jwtSecret)

	router.Use(RequestLogger(logger))

	router.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "pong"})
	})

	apiV1 := router.Group("/api/v1")
	protected := apiV1.Group("")
	protected.Use(authMiddleware)
	{
		protected.GET("/me", func(c *gin.Context) {
			caller, err := getCallerFromContext(c)
			if err != nil {
				abortWithError(c, http.StatusInternalServerError, "Failed to get user from token")
				return
			}
			c.JSON(http.StatusOK, gin.H{"userId": caller.UserID, "role": caller.Role})
		})

		// --- Workout Routes ---
		workoutGroup := protected.Group("/workouts")
		{
			workoutGroup.GET("", workoutHandler.ListWorkouts)
			workoutGroup.POST("", workoutHandler.CreateWorkout)
			workoutGroup.POST("/bulk", workoutHandler.BulkCreateWorkouts)
			workoutGroup.POST("/pending", workoutHandler.SubmitWorkout)
			workoutGroup.POST("/thumbnails", workoutHandler.RequestThumbnailUpload)
			workoutGroup.GET("/:id", workoutHandler.GetWorkout)
			workoutGroup.GET("/:id/thumbnail", workoutHandler.GetThumbnailURL)
			// PUT and DELETE check ownership in the service; admins may act on any workout.
			workoutGroup.PUT("/:id", workoutHandler.UpdateWorkout)
			workoutGroup.DELETE("/:id", workoutHandler.DeleteWorkout)
		}

		// --- Admin Routes ---
		adminGroup := protected.Group("/admin")
		adminGroup.Use(RoleMiddleware(domain.RoleAdmin))
		{
			// DELETE /api/v1/admin/workouts?confirm=true
			adminGroup.DELETE("/workouts", workoutHandler.DeleteAllWorkouts)
			adminGroup.POST("/workouts/reconcile", workoutHandler.ReconcileWorkouts)

			// Moderation queue
			adminGroup.GET("/pending", workoutHandler.ListPendingWorkouts)
			adminGroup.POST("/pending/:id/approve", workoutHandler.ApprovePendingWorkout)
			adminGroup.DELETE("/pending/:id", workoutHandler.DeletePendingWorkout)
		}
	}
}
