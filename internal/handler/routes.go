package handler

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/noah-isme/volunteer-hours-api/internal/authz"
	"github.com/noah-isme/volunteer-hours-api/internal/middleware"
	"github.com/noah-isme/volunteer-hours-api/internal/models"
)

// Rate limit scopes.
const (
	ScopeActivity = "activity"
	ScopeEnroll   = "enroll"
	ScopeReview   = "review"
	ScopeCancel   = "cancel"
	ScopeSession  = "session"
	ScopeToken    = "token"
	ScopeCheckIn  = "checkin"
)

// Routes bundles the handlers and middleware mounted under the API prefix.
type Routes struct {
	Activities  *ActivityHandler
	Enrollments *EnrollmentHandler
	Sessions    *SessionHandler
	CheckIns    *CheckInHandler
	Hours       *HoursHandler

	Verifier    middleware.TokenVerifier
	RateLimiter *middleware.RateLimiter
	Audit       middleware.AuditRecorder
	Logger      *zap.Logger
}

// Register mounts every authenticated endpoint on group.
func (r Routes) Register(group *gin.RouterGroup) {
	log := r.Logger
	if log == nil {
		log = zap.NewNop()
	}
	limit := r.RateLimiter.Limit
	audit := func(action, resource string) gin.HandlerFunc {
		return middleware.Audit(r.Audit, log, action, resource)
	}
	coordinators := middleware.RequireRoles(authz.RoleProfessor, authz.RoleAdmin)
	volunteers := middleware.RequireRoles(authz.RoleStudent)

	api := group.Group("")
	api.Use(middleware.JWT(r.Verifier))

	activities := api.Group("/activities")
	activities.GET("", r.Activities.List)
	activities.GET("/:id", r.Activities.Get)
	activities.POST("", coordinators, limit(ScopeActivity), audit(models.AuditActionActivityCreate, "activity"), r.Activities.Create)
	activities.PUT("/:id", coordinators, limit(ScopeActivity), audit(models.AuditActionActivityUpdate, "activity"), r.Activities.Update)
	activities.POST("/:id/status", coordinators, limit(ScopeActivity), audit(models.AuditActionActivityStatus, "activity"), r.Activities.ChangeStatus)
	activities.DELETE("/:id", coordinators, limit(ScopeActivity), audit(models.AuditActionActivityDelete, "activity"), r.Activities.Delete)

	activities.POST("/:id/enrollments", volunteers, limit(ScopeEnroll), r.Enrollments.Enroll)
	activities.GET("/:id/enrollments", coordinators, r.Enrollments.List)
	activities.POST("/:id/enrollments/bulk-accept", coordinators, limit(ScopeReview), audit(models.AuditActionEnrollmentAccept, "activity"), r.Enrollments.BulkAccept)

	activities.GET("/:id/sessions", r.Sessions.List)
	activities.POST("/:id/sessions", coordinators, limit(ScopeSession), audit(models.AuditActionSessionChange, "activity"), r.Sessions.Create)

	enrollments := api.Group("/enrollments")
	enrollments.POST("/bulk-reject", coordinators, limit(ScopeReview), audit(models.AuditActionEnrollmentReject, "enrollment"), r.Enrollments.BulkReject)
	enrollments.GET("/me", r.Enrollments.Mine)
	enrollments.GET("/:id", r.Enrollments.Get)
	enrollments.POST("/:id/accept", coordinators, limit(ScopeReview), audit(models.AuditActionEnrollmentAccept, "enrollment"), r.Enrollments.Accept)
	enrollments.POST("/:id/reject", coordinators, limit(ScopeReview), audit(models.AuditActionEnrollmentReject, "enrollment"), r.Enrollments.Reject)
	enrollments.POST("/:id/cancel", volunteers, limit(ScopeCancel), audit(models.AuditActionEnrollmentCancel, "enrollment"), r.Enrollments.Cancel)

	sessions := api.Group("/sessions")
	sessions.PUT("/:id", coordinators, limit(ScopeSession), audit(models.AuditActionSessionChange, "session"), r.Sessions.Reschedule)
	sessions.POST("/:id/cancel", coordinators, limit(ScopeSession), audit(models.AuditActionSessionChange, "session"), r.Sessions.Cancel)
	sessions.DELETE("/:id", coordinators, limit(ScopeSession), audit(models.AuditActionSessionChange, "session"), r.Sessions.Delete)
	sessions.POST("/:id/token", coordinators, limit(ScopeToken), r.CheckIns.IssueToken)
	sessions.POST("/:id/attendance", coordinators, limit(ScopeSession), audit(models.AuditActionManualCheckIn, "session"), r.CheckIns.RecordManual)
	sessions.GET("/:id/attendance", coordinators, r.CheckIns.ListAttendance)
	sessions.GET("/:id/attendance/export", coordinators, r.CheckIns.Export)

	api.POST("/check-in", volunteers, limit(ScopeCheckIn), r.CheckIns.CheckIn)
	api.GET("/me/hours", r.Hours.Mine)
}
