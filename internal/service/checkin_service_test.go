package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/volunteer-hours-api/internal/dto"
	"github.com/noah-isme/volunteer-hours-api/internal/models"
	appErrors "github.com/noah-isme/volunteer-hours-api/pkg/errors"
	"github.com/noah-isme/volunteer-hours-api/pkg/qrtoken"
)

type recordingHours struct {
	mu       sync.Mutex
	subjects []string
}

func (r *recordingHours) Invalidate(ctx context.Context, subjectID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.subjects = append(r.subjects, subjectID)
}

type checkInFixture struct {
	svc      *CheckInService
	store    *memStore
	signer   *qrtoken.Signer
	hours    *recordingHours
	notifier *recordingNotifier

	mu    sync.Mutex
	clock time.Time
}

func (f *checkInFixture) setClock(t time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.clock = t
}

func (f *checkInFixture) now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.clock
}

func at(clock string) time.Time {
	parsed, err := time.Parse("15:04:05", clock)
	if err != nil {
		panic(err)
	}
	return time.Date(2024, 3, 4, parsed.Hour(), parsed.Minute(), parsed.Second(), 0, time.UTC)
}

// newCheckInFixture seeds act-1 with five confirmed members and session
// ses-1 on 2024-03-04 from 10:00 to 12:00 with a 15 minute grace.
func newCheckInFixture(t *testing.T) *checkInFixture {
	t.Helper()
	store := newMemStore()
	seedActivity(store, "act-1", 10, 5)
	store.putSession(models.Session{
		ID:         "ses-1",
		ActivityID: "act-1",
		Date:       time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC),
		StartTime:  "10:00:00",
		EndTime:    "12:00:00",
		Location:   "Harbour",
		Status:     models.SessionStatusScheduled,
	})
	signer, err := qrtoken.NewSigner("test-secret")
	require.NoError(t, err)

	f := &checkInFixture{
		store:    store,
		signer:   signer,
		hours:    &recordingHours{},
		notifier: &recordingNotifier{},
		clock:    fixedNow,
	}
	f.svc = NewCheckInService(
		&memSessionRepo{store},
		&memActivityRepo{store},
		&memEnrollmentRepo{store},
		&memAttendanceRepo{store},
		signer,
		f.hours,
		f.notifier,
		nil,
		CheckInConfig{TokenTTL: 30 * time.Second, WindowGrace: 15 * time.Minute, Location: time.UTC},
		nil,
		nil,
	)
	f.svc.now = f.now
	return f
}

func (f *checkInFixture) issue(t *testing.T) string {
	t.Helper()
	resp, err := f.svc.IssueToken(context.Background(), coordinator, "ses-1")
	require.NoError(t, err)
	return resp.Token
}

func TestIssueTokenRotatesSessionSecret(t *testing.T) {
	f := newCheckInFixture(t)

	resp, err := f.svc.IssueToken(context.Background(), coordinator, "ses-1")
	require.NoError(t, err)
	assert.Equal(t, "ses-1", resp.SessionID)
	assert.Equal(t, fixedNow, resp.IssuedAt)
	assert.Equal(t, fixedNow.Add(30*time.Second), resp.ExpiresAt)

	claims, err := f.signer.Parse(resp.Token)
	require.NoError(t, err)
	stored := f.store.session("ses-1")
	require.NotNil(t, stored.QRSecret)
	assert.Equal(t, claims.Nonce, *stored.QRSecret)
	require.NotNil(t, stored.QRIssuedAt)
	assert.True(t, fixedNow.Equal(*stored.QRIssuedAt))
}

func TestIssueTokenRequiresCoordinatorAndScheduledSession(t *testing.T) {
	f := newCheckInFixture(t)

	_, err := f.svc.IssueToken(context.Background(), otherProf, "ses-1")
	assert.True(t, errors.Is(err, appErrors.ErrForbidden))
	_, err = f.svc.IssueToken(context.Background(), volunteer("member-0"), "ses-1")
	assert.True(t, errors.Is(err, appErrors.ErrForbidden))
	_, err = f.svc.IssueToken(context.Background(), coordinator, "missing")
	assert.True(t, errors.Is(err, appErrors.ErrNotFound))

	session := f.store.session("ses-1")
	session.Status = models.SessionStatusCancelled
	f.store.putSession(session)
	_, err = f.svc.IssueToken(context.Background(), coordinator, "ses-1")
	assert.True(t, errors.Is(err, appErrors.ErrConflict))
}

func TestCheckInTokenFreshness(t *testing.T) {
	tests := []struct {
		name  string
		after time.Duration
		want  *appErrors.Error
	}{
		{name: "29 seconds old", after: 29 * time.Second},
		{name: "exactly 30 seconds old", after: 30 * time.Second},
		{name: "31 seconds old", after: 31 * time.Second, want: appErrors.ErrExpiredToken},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			f := newCheckInFixture(t)
			token := f.issue(t)
			f.setClock(fixedNow.Add(tc.after))

			result, err := f.svc.CheckIn(context.Background(), volunteer("member-0"), dto.CheckInRequest{Token: token})
			if tc.want != nil {
				require.Error(t, err)
				assert.True(t, errors.Is(err, tc.want), "got %v", err)
				assert.Empty(t, f.store.attendanceRows())
				return
			}
			require.NoError(t, err)
			assert.Equal(t, 2.0, result.HoursCredited)
			assert.Equal(t, models.CheckInMethodQR, result.Attendance.Method)
			assert.Equal(t, "act-1-member-0", result.Attendance.EnrollmentID)
			assert.Len(t, f.store.attendanceRows(), 1)
		})
	}
}

func TestCheckInWindowBoundaries(t *testing.T) {
	tests := []struct {
		clock string
		ok    bool
	}{
		{clock: "09:44:59", ok: false},
		{clock: "09:45:00", ok: true},
		{clock: "12:15:00", ok: true},
		{clock: "12:15:01", ok: false},
	}

	for _, tc := range tests {
		t.Run(tc.clock, func(t *testing.T) {
			f := newCheckInFixture(t)
			f.setClock(at(tc.clock))
			token := f.issue(t)

			_, err := f.svc.CheckIn(context.Background(), volunteer("member-1"), dto.CheckInRequest{Token: token})
			if tc.ok {
				assert.NoError(t, err)
				return
			}
			assert.True(t, errors.Is(err, appErrors.ErrOutsideWindow), "got %v", err)
		})
	}
}

func TestCheckInRejectsRotatedToken(t *testing.T) {
	f := newCheckInFixture(t)
	first := f.issue(t)
	f.setClock(fixedNow.Add(10 * time.Second))
	second := f.issue(t)

	_, err := f.svc.CheckIn(context.Background(), volunteer("member-0"), dto.CheckInRequest{Token: first})
	assert.True(t, errors.Is(err, appErrors.ErrExpiredToken))

	_, err = f.svc.CheckIn(context.Background(), volunteer("member-0"), dto.CheckInRequest{Token: second})
	assert.NoError(t, err)
}

func TestCheckInRejectsForgedTokens(t *testing.T) {
	f := newCheckInFixture(t)
	token := f.issue(t)

	tampered := token[:len(token)-1] + "0"
	if tampered == token {
		tampered = token[:len(token)-1] + "1"
	}
	_, err := f.svc.CheckIn(context.Background(), volunteer("member-0"), dto.CheckInRequest{Token: tampered})
	assert.True(t, errors.Is(err, appErrors.ErrInvalidToken))

	_, err = f.svc.CheckIn(context.Background(), volunteer("member-0"), dto.CheckInRequest{Token: "not-a-token"})
	assert.True(t, errors.Is(err, appErrors.ErrInvalidToken))

	otherSigner, err := qrtoken.NewSigner("another-secret")
	require.NoError(t, err)
	foreign, err := otherSigner.Sign(qrtoken.Claims{SessionID: "ses-1", ActivityID: "act-1", IssuedAt: fixedNow, Nonce: "n"})
	require.NoError(t, err)
	_, err = f.svc.CheckIn(context.Background(), volunteer("member-0"), dto.CheckInRequest{Token: foreign})
	assert.True(t, errors.Is(err, appErrors.ErrInvalidToken))
	assert.Empty(t, f.store.attendanceRows())
}

func TestCheckInRejectsTokenForAnotherActivity(t *testing.T) {
	f := newCheckInFixture(t)
	f.issue(t)
	nonce := *f.store.session("ses-1").QRSecret

	mismatched, err := f.signer.Sign(qrtoken.Claims{SessionID: "ses-1", ActivityID: "act-2", IssuedAt: fixedNow, Nonce: nonce})
	require.NoError(t, err)
	_, err = f.svc.CheckIn(context.Background(), volunteer("member-0"), dto.CheckInRequest{Token: mismatched})
	assert.True(t, errors.Is(err, appErrors.ErrInvalidToken))
}

func TestCheckInRejectsCancelledSession(t *testing.T) {
	f := newCheckInFixture(t)
	token := f.issue(t)
	session := f.store.session("ses-1")
	session.Status = models.SessionStatusCancelled
	f.store.putSession(session)

	_, err := f.svc.CheckIn(context.Background(), volunteer("member-0"), dto.CheckInRequest{Token: token})
	assert.True(t, errors.Is(err, appErrors.ErrConflict))
}

func TestCheckInRequiresConfirmedEnrollment(t *testing.T) {
	f := newCheckInFixture(t)
	seedEnrollment(f.store, "pending", "act-1", "stu-p", models.EnrollmentStatusPending, fixedNow)
	token := f.issue(t)

	_, err := f.svc.CheckIn(context.Background(), volunteer("stranger"), dto.CheckInRequest{Token: token})
	assert.True(t, errors.Is(err, appErrors.ErrNotEnrolled))
	_, err = f.svc.CheckIn(context.Background(), volunteer("stu-p"), dto.CheckInRequest{Token: token})
	assert.True(t, errors.Is(err, appErrors.ErrNotEnrolled))

	_, err = f.svc.CheckIn(context.Background(), coordinator, dto.CheckInRequest{Token: token})
	assert.True(t, errors.Is(err, appErrors.ErrForbidden))
	assert.Empty(t, f.store.attendanceRows())
}

func TestConcurrentDuplicateCheckInsRecordOnce(t *testing.T) {
	f := newCheckInFixture(t)
	token := f.issue(t)

	const attempts = 8
	var (
		wg         sync.WaitGroup
		mu         sync.Mutex
		succeeded  int
		duplicates int
	)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.CheckIn(context.Background(), volunteer("member-2"), dto.CheckInRequest{Token: token})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case errors.Is(err, appErrors.ErrDuplicateCheckIn):
				duplicates++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, succeeded)
	assert.Equal(t, attempts-1, duplicates)
	assert.Len(t, f.store.attendanceRows(), 1)
}

func TestCheckInInvalidatesHoursAndNotifies(t *testing.T) {
	f := newCheckInFixture(t)
	token := f.issue(t)

	_, err := f.svc.CheckIn(context.Background(), volunteer("member-3"), dto.CheckInRequest{
		Token:    token,
		Location: &models.GeoPoint{Latitude: -6.2, Longitude: 106.8},
	})
	require.NoError(t, err)

	rows := f.store.attendanceRows()
	require.Len(t, rows, 1)
	require.NotNil(t, rows[0].Latitude)
	assert.Equal(t, -6.2, *rows[0].Latitude)
	assert.Equal(t, []string{"member-3"}, f.hours.subjects)

	events := f.notifier.ofType(models.EventAttendanceRecorded)
	require.Len(t, events, 1)
	assert.Equal(t, "ses-1", events[0].SessionID)
	assert.Equal(t, 2.0, events[0].Hours)
}

func TestRecordManualAttendance(t *testing.T) {
	f := newCheckInFixture(t)
	f.setClock(at("18:00:00"))

	result, err := f.svc.RecordManual(context.Background(), coordinator, "ses-1", dto.ManualCheckInRequest{SubjectID: "member-4"})
	require.NoError(t, err)
	assert.Equal(t, models.CheckInMethodManual, result.Attendance.Method)
	require.NotNil(t, result.Attendance.RecordedBy)
	assert.Equal(t, coordinator.SubjectID, *result.Attendance.RecordedBy)

	_, err = f.svc.RecordManual(context.Background(), coordinator, "ses-1", dto.ManualCheckInRequest{SubjectID: "member-4"})
	assert.True(t, errors.Is(err, appErrors.ErrDuplicateCheckIn))

	_, err = f.svc.RecordManual(context.Background(), otherProf, "ses-1", dto.ManualCheckInRequest{SubjectID: "member-1"})
	assert.True(t, errors.Is(err, appErrors.ErrForbidden))

	_, err = f.svc.RecordManual(context.Background(), coordinator, "ses-1", dto.ManualCheckInRequest{SubjectID: "stranger"})
	assert.True(t, errors.Is(err, appErrors.ErrNotEnrolled))
}

func TestListAttendanceForCoordinator(t *testing.T) {
	f := newCheckInFixture(t)
	token := f.issue(t)
	for i := 0; i < 3; i++ {
		_, err := f.svc.CheckIn(context.Background(), volunteer(fmt.Sprintf("member-%d", i)), dto.CheckInRequest{Token: token})
		require.NoError(t, err)
	}

	rows, err := f.svc.ListAttendance(context.Background(), coordinator, "ses-1")
	require.NoError(t, err)
	assert.Len(t, rows, 3)

	_, err = f.svc.ListAttendance(context.Background(), volunteer("member-0"), "ses-1")
	assert.True(t, errors.Is(err, appErrors.ErrForbidden))
}
