package service

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/volunteer-hours-api/internal/authz"
	"github.com/noah-isme/volunteer-hours-api/internal/models"
	"github.com/noah-isme/volunteer-hours-api/pkg/database"
)

var (
	fixedNow    = time.Date(2024, 3, 4, 10, 0, 0, 0, time.UTC)
	coordinator = authz.Actor{SubjectID: "prof-1", Role: authz.RoleProfessor}
	otherProf   = authz.Actor{SubjectID: "prof-2", Role: authz.RoleProfessor}
	admin       = authz.Actor{SubjectID: "admin-1", Role: authz.RoleAdmin}
)

func volunteer(id string) authz.Actor {
	return authz.Actor{SubjectID: id, Role: authz.RoleStudent}
}

// memStore is an in-memory stand-in for the relational store. memTx
// serialises transactions, which models the activity row lock.
type memStore struct {
	mu          sync.Mutex
	activities  map[string]models.Activity
	enrollments map[string]models.Enrollment
	sessions    map[string]models.Session
	attendances []models.Attendance
	seq         int
}

func newMemStore() *memStore {
	return &memStore{
		activities:  map[string]models.Activity{},
		enrollments: map[string]models.Enrollment{},
		sessions:    map[string]models.Session{},
	}
}

type memSnapshot struct {
	activities  map[string]models.Activity
	enrollments map[string]models.Enrollment
	sessions    map[string]models.Session
	attendances []models.Attendance
}

func (m *memStore) snapshot() memSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	snap := memSnapshot{
		activities:  make(map[string]models.Activity, len(m.activities)),
		enrollments: make(map[string]models.Enrollment, len(m.enrollments)),
		sessions:    make(map[string]models.Session, len(m.sessions)),
		attendances: append([]models.Attendance(nil), m.attendances...),
	}
	for k, v := range m.activities {
		snap.activities[k] = v
	}
	for k, v := range m.enrollments {
		snap.enrollments[k] = v
	}
	for k, v := range m.sessions {
		snap.sessions[k] = v
	}
	return snap
}

func (m *memStore) restore(snap memSnapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.activities = snap.activities
	m.enrollments = snap.enrollments
	m.sessions = snap.sessions
	m.attendances = snap.attendances
}

func (m *memStore) nextID(prefix string) string {
	m.seq++
	return fmt.Sprintf("%s-%03d", prefix, m.seq)
}

func (m *memStore) putActivity(a models.Activity) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.activities[a.ID] = a
}

func (m *memStore) putEnrollment(e models.Enrollment) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e.UpdatedAt.IsZero() {
		e.UpdatedAt = e.EnrolledAt
	}
	m.enrollments[e.ID] = e
}

func (m *memStore) putSession(s models.Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.ID] = s
}

func (m *memStore) activity(id string) models.Activity {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.activities[id]
}

func (m *memStore) enrollment(id string) models.Enrollment {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.enrollments[id]
}

func (m *memStore) session(id string) models.Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessions[id]
}

func (m *memStore) attendanceRows() []models.Attendance {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.Attendance(nil), m.attendances...)
}

func (m *memStore) confirmedCount(activityID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, e := range m.enrollments {
		if e.ActivityID == activityID && e.Status == models.EnrollmentStatusConfirmed {
			count++
		}
	}
	return count
}

// seedActivity stores an OPEN activity of coordinator with confirmed members.
func seedActivity(store *memStore, id string, max, confirmed int) {
	store.putActivity(models.Activity{
		ID:                  id,
		CoordinatorID:       coordinator.SubjectID,
		Title:               "Beach cleanup " + id,
		MaxParticipants:     max,
		CurrentParticipants: confirmed,
		Status:              models.ActivityStatusOpen,
	})
	for i := 0; i < confirmed; i++ {
		store.putEnrollment(models.Enrollment{
			ID:         fmt.Sprintf("%s-member-%d", id, i),
			ActivityID: id,
			SubjectID:  fmt.Sprintf("member-%d", i),
			Status:     models.EnrollmentStatusConfirmed,
			EnrolledAt: fixedNow.Add(-48 * time.Hour),
		})
	}
}

func seedEnrollment(store *memStore, id, activityID, subjectID string, status models.EnrollmentStatus, enrolledAt time.Time) {
	store.putEnrollment(models.Enrollment{
		ID:         id,
		ActivityID: activityID,
		SubjectID:  subjectID,
		Status:     status,
		EnrolledAt: enrolledAt,
	})
}

func assertCapacityInvariant(t *testing.T, store *memStore, activityID string) {
	t.Helper()
	activity := store.activity(activityID)
	require.Equal(t, store.confirmedCount(activityID), activity.CurrentParticipants, "participant counter drifted")
	require.LessOrEqual(t, activity.CurrentParticipants, activity.MaxParticipants)
}

type memTx struct {
	store *memStore
	mu    sync.Mutex
}

func (t *memTx) WithinTx(ctx context.Context, fn database.TxFunc) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	snap := t.store.snapshot()
	if err := fn(nil); err != nil {
		t.store.restore(snap)
		return err
	}
	return nil
}

type memActivityRepo struct{ s *memStore }

func (r *memActivityRepo) List(ctx context.Context, filter models.ActivityFilter) ([]models.Activity, int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []models.Activity
	for _, a := range r.s.activities {
		if a.DeletedAt != nil {
			continue
		}
		if filter.Status != "" && a.Status != filter.Status {
			continue
		}
		if filter.CoordinatorID != "" && a.CoordinatorID != filter.CoordinatorID {
			continue
		}
		if filter.Search != "" && !strings.Contains(strings.ToLower(a.Title), strings.ToLower(filter.Search)) {
			continue
		}
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, len(out), nil
}

func (r *memActivityRepo) FindByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Activity, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	a, ok := r.s.activities[id]
	if !ok || a.DeletedAt != nil {
		return nil, sql.ErrNoRows
	}
	return &a, nil
}

func (r *memActivityRepo) LockByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Activity, error) {
	return r.FindByID(ctx, exec, id)
}

func (r *memActivityRepo) Create(ctx context.Context, activity *models.Activity) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if activity.ID == "" {
		activity.ID = r.s.nextID("act")
	}
	activity.CreatedAt = fixedNow
	activity.UpdatedAt = fixedNow
	r.s.activities[activity.ID] = *activity
	return nil
}

func (r *memActivityRepo) Update(ctx context.Context, exec sqlx.ExtContext, activity *models.Activity) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	current, ok := r.s.activities[activity.ID]
	if !ok {
		return sql.ErrNoRows
	}
	current.Title = activity.Title
	current.Description = activity.Description
	current.Location = activity.Location
	current.MaxParticipants = activity.MaxParticipants
	r.s.activities[activity.ID] = current
	return nil
}

func (r *memActivityRepo) UpdateStatus(ctx context.Context, exec sqlx.ExtContext, id string, status models.ActivityStatus) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	current := r.s.activities[id]
	current.Status = status
	r.s.activities[id] = current
	return nil
}

// SetParticipants enforces the same bounds as the activities CHECK constraints.
func (r *memActivityRepo) SetParticipants(ctx context.Context, exec sqlx.ExtContext, id string, count int) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	current, ok := r.s.activities[id]
	if !ok {
		return sql.ErrNoRows
	}
	if count < 0 || count > current.MaxParticipants {
		return &pq.Error{Code: "23514", Constraint: "activities_participants_check"}
	}
	current.CurrentParticipants = count
	r.s.activities[id] = current
	return nil
}

func (r *memActivityRepo) SoftDelete(ctx context.Context, exec sqlx.ExtContext, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	current := r.s.activities[id]
	deleted := fixedNow
	current.DeletedAt = &deleted
	r.s.activities[id] = current
	return nil
}

type memEnrollmentRepo struct{ s *memStore }

func (r *memEnrollmentRepo) List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []models.EnrollmentDetail
	for _, e := range r.s.enrollments {
		if filter.ActivityID != "" && e.ActivityID != filter.ActivityID {
			continue
		}
		if filter.SubjectID != "" && e.SubjectID != filter.SubjectID {
			continue
		}
		if filter.Status != "" && e.Status != filter.Status {
			continue
		}
		a := r.s.activities[e.ActivityID]
		out = append(out, models.EnrollmentDetail{Enrollment: e, ActivityTitle: a.Title, ActivityStatus: a.Status})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, len(out), nil
}

func (r *memEnrollmentRepo) FindByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Enrollment, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	e, ok := r.s.enrollments[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &e, nil
}

func (r *memEnrollmentRepo) LockByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Enrollment, error) {
	return r.FindByID(ctx, exec, id)
}

func (r *memEnrollmentRepo) LockByIDs(ctx context.Context, exec sqlx.ExtContext, activityID string, ids []string) ([]models.Enrollment, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []models.Enrollment
	for _, id := range ids {
		if e, ok := r.s.enrollments[id]; ok && e.ActivityID == activityID {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *memEnrollmentRepo) ExistsActive(ctx context.Context, exec sqlx.ExtContext, activityID, subjectID string) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.activeLocked(activityID, subjectID), nil
}

func (r *memEnrollmentRepo) activeLocked(activityID, subjectID string) bool {
	for _, e := range r.s.enrollments {
		if e.ActivityID == activityID && e.SubjectID == subjectID && e.Status != models.EnrollmentStatusCancelled {
			return true
		}
	}
	return false
}

func (r *memEnrollmentRepo) FindConfirmed(ctx context.Context, exec sqlx.ExtContext, activityID, subjectID string) (*models.Enrollment, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, e := range r.s.enrollments {
		if e.ActivityID == activityID && e.SubjectID == subjectID && e.Status == models.EnrollmentStatusConfirmed {
			found := e
			return &found, nil
		}
	}
	return nil, sql.ErrNoRows
}

// Create enforces the partial unique index on active (activity, subject) pairs.
func (r *memEnrollmentRepo) Create(ctx context.Context, exec sqlx.ExtContext, enrollment *models.Enrollment) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.activeLocked(enrollment.ActivityID, enrollment.SubjectID) {
		return fmt.Errorf("create enrollment: %w", &pq.Error{Code: "23505", Constraint: "enrollments_active_pair_key"})
	}
	if enrollment.ID == "" {
		enrollment.ID = r.s.nextID("enr")
	}
	enrollment.UpdatedAt = enrollment.EnrolledAt
	r.s.enrollments[enrollment.ID] = *enrollment
	return nil
}

func (r *memEnrollmentRepo) ApplyTransition(ctx context.Context, exec sqlx.ExtContext, t models.EnrollmentTransition) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	e, ok := r.s.enrollments[t.ID]
	if !ok {
		return sql.ErrNoRows
	}
	e.Status = t.Status
	if t.ReviewedAt != nil {
		e.ReviewedAt = t.ReviewedAt
	}
	if t.ReviewedBy != nil {
		e.ReviewedBy = t.ReviewedBy
	}
	e.RejectionReason = t.RejectionReason
	if t.CustomMessage != nil {
		e.CustomMessage = t.CustomMessage
	}
	r.s.enrollments[t.ID] = e
	return nil
}

func (r *memEnrollmentRepo) NextWaitlisted(ctx context.Context, exec sqlx.ExtContext, activityID string) (*models.Enrollment, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var waiting []models.Enrollment
	for _, e := range r.s.enrollments {
		if e.ActivityID == activityID && e.Status == models.EnrollmentStatusWaitlisted {
			waiting = append(waiting, e)
		}
	}
	if len(waiting) == 0 {
		return nil, sql.ErrNoRows
	}
	sort.Slice(waiting, func(i, j int) bool {
		if !waiting[i].EnrolledAt.Equal(waiting[j].EnrolledAt) {
			return waiting[i].EnrolledAt.Before(waiting[j].EnrolledAt)
		}
		return waiting[i].ID < waiting[j].ID
	})
	next := waiting[0]
	return &next, nil
}

type memSessionRepo struct{ s *memStore }

func (r *memSessionRepo) FindByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Session, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	session, ok := r.s.sessions[id]
	if !ok || session.DeletedAt != nil {
		return nil, sql.ErrNoRows
	}
	return &session, nil
}

func (r *memSessionRepo) ListByActivity(ctx context.Context, filter models.SessionFilter) ([]models.Session, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []models.Session
	for _, session := range r.s.sessions {
		if session.ActivityID != filter.ActivityID || session.DeletedAt != nil {
			continue
		}
		if !filter.IncludeCancelled && session.Status == models.SessionStatusCancelled {
			continue
		}
		out = append(out, session)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

func (r *memSessionRepo) Create(ctx context.Context, exec sqlx.ExtContext, session *models.Session) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if session.ID == "" {
		session.ID = r.s.nextID("ses")
	}
	if session.Status == "" {
		session.Status = models.SessionStatusScheduled
	}
	r.s.sessions[session.ID] = *session
	return nil
}

func (r *memSessionRepo) Reschedule(ctx context.Context, exec sqlx.ExtContext, session *models.Session) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	session.QRSecret = nil
	session.QRIssuedAt = nil
	r.s.sessions[session.ID] = *session
	return nil
}

func (r *memSessionRepo) UpdateStatus(ctx context.Context, exec sqlx.ExtContext, id string, status models.SessionStatus) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	session := r.s.sessions[id]
	session.Status = status
	session.QRSecret = nil
	session.QRIssuedAt = nil
	r.s.sessions[id] = session
	return nil
}

func (r *memSessionRepo) RotateToken(ctx context.Context, exec sqlx.ExtContext, id, nonce string, issuedAt time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	session, ok := r.s.sessions[id]
	if !ok || session.DeletedAt != nil || session.Status != models.SessionStatusScheduled {
		return sql.ErrNoRows
	}
	session.QRSecret = &nonce
	session.QRIssuedAt = &issuedAt
	r.s.sessions[id] = session
	return nil
}

func (r *memSessionRepo) SoftDelete(ctx context.Context, exec sqlx.ExtContext, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	session := r.s.sessions[id]
	deleted := fixedNow
	session.DeletedAt = &deleted
	r.s.sessions[id] = session
	return nil
}

type memAttendanceRepo struct{ s *memStore }

// Create enforces the (session_id, subject_id) unique constraint.
func (r *memAttendanceRepo) Create(ctx context.Context, exec sqlx.ExtContext, attendance *models.Attendance) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, existing := range r.s.attendances {
		if existing.SessionID == attendance.SessionID && existing.SubjectID == attendance.SubjectID {
			return fmt.Errorf("create attendance: %w", &pq.Error{Code: "23505", Constraint: "attendances_session_subject_key"})
		}
	}
	if attendance.ID == "" {
		attendance.ID = r.s.nextID("att")
	}
	r.s.attendances = append(r.s.attendances, *attendance)
	return nil
}

func (r *memAttendanceRepo) ListBySession(ctx context.Context, sessionID string) ([]models.Attendance, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []models.Attendance
	for _, a := range r.s.attendances {
		if a.SessionID == sessionID {
			out = append(out, a)
		}
	}
	return out, nil
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []models.Event
}

func (n *recordingNotifier) Notify(ctx context.Context, event models.Event) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
}

func (n *recordingNotifier) Events() []models.Event {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]models.Event(nil), n.events...)
}

func (n *recordingNotifier) ofType(eventType models.EventType) []models.Event {
	var out []models.Event
	for _, e := range n.Events() {
		if e.Type == eventType {
			out = append(out, e)
		}
	}
	return out
}
