// Package authz normalises identity provider roles and answers every
// capability question the enrollment and check-in flows ask.
package authz

import (
	"fmt"
	"strings"

	"github.com/noah-isme/volunteer-hours-api/internal/models"
)

// Role is the normalised caller role.
type Role string

// Supported roles.
const (
	RoleStudent   Role = "STUDENT"
	RoleProfessor Role = "PROFESSOR"
	RoleAdmin     Role = "ADMIN"
)

var roleAliases = map[string]Role{
	"student":     RoleStudent,
	"volunteer":   RoleStudent,
	"professor":   RoleProfessor,
	"coordinator": RoleProfessor,
	"teacher":     RoleProfessor,
	"admin":       RoleAdmin,
	"superadmin":  RoleAdmin,
}

// ParseRole normalises a raw role claim, ignoring case and surrounding space.
func ParseRole(raw string) (Role, error) {
	key := strings.ToLower(strings.TrimSpace(raw))
	key = strings.TrimPrefix(key, "role_")
	if role, ok := roleAliases[key]; ok {
		return role, nil
	}
	return "", fmt.Errorf("unknown role %q", raw)
}

// Actor is the authenticated caller of an operation.
type Actor struct {
	SubjectID string
	Role      Role
}

// IsAdmin reports whether the actor holds the admin role.
func (a Actor) IsAdmin() bool { return a.Role == RoleAdmin }

// IsCoordinator reports whether the actor may coordinate activities.
func (a Actor) IsCoordinator() bool { return a.Role == RoleProfessor || a.Role == RoleAdmin }

func (a Actor) valid() bool { return a.SubjectID != "" && a.Role != "" }

// CanEnroll reports whether the actor may apply to activities.
func CanEnroll(a Actor) bool {
	return a.valid() && a.Role == RoleStudent
}

// CanCreateActivity reports whether the actor may create activities.
func CanCreateActivity(a Actor) bool {
	return a.valid() && a.IsCoordinator()
}

// CanManageActivity reports whether the actor may edit the activity and review
// its enrollments. Admins manage every activity, professors only their own.
func CanManageActivity(a Actor, activity *models.Activity) bool {
	if !a.valid() || activity == nil {
		return false
	}
	if a.IsAdmin() {
		return true
	}
	return a.Role == RoleProfessor && activity.CoordinatorID == a.SubjectID
}

// CanReviewEnrollment reports whether the actor may accept or reject enrollments of activity.
func CanReviewEnrollment(a Actor, activity *models.Activity) bool {
	return CanManageActivity(a, activity)
}

// CanCancelEnrollment reports whether the actor may cancel enrollment. Only the owning subject may.
func CanCancelEnrollment(a Actor, enrollment *models.Enrollment) bool {
	return a.valid() && enrollment != nil && enrollment.SubjectID == a.SubjectID
}

// CanViewEnrollment reports whether the actor may read enrollment.
func CanViewEnrollment(a Actor, enrollment *models.Enrollment, activity *models.Activity) bool {
	if CanCancelEnrollment(a, enrollment) {
		return true
	}
	return CanManageActivity(a, activity)
}

// CanManageSessions reports whether the actor may schedule sessions and record attendance manually.
func CanManageSessions(a Actor, activity *models.Activity) bool {
	return CanManageActivity(a, activity)
}

// CanIssueCheckInToken reports whether the actor may present QR tokens for the activity's sessions.
func CanIssueCheckInToken(a Actor, activity *models.Activity) bool {
	return CanManageActivity(a, activity)
}

// CanCheckIn reports whether the actor may scan a check-in token.
func CanCheckIn(a Actor) bool {
	return a.valid() && a.Role == RoleStudent
}
