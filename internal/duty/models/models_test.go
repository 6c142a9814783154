package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "dutyflow/pkg/domain"
	dErrors "dutyflow/pkg/domain-errors"
)

func TestNewDuty(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	assignee := id.NewUserID()

	t.Run("starts pending with trimmed title", func(t *testing.T) {
		due := time.Date(2026, 3, 5, 17, 30, 0, 0, time.FixedZone("x", 3600))
		d, err := NewDuty(id.NewDutyID(), "  Take out trash ", "", &due, assignee, now)
		require.NoError(t, err)
		assert.Equal(t, StatusPending, d.Status)
		assert.Equal(t, "Take out trash", d.Title)
		assert.Empty(t, d.EvidenceURL)
		assert.Equal(t, time.Date(2026, 3, 5, 0, 0, 0, 0, time.UTC), *d.DueDate)
	})

	t.Run("rejects blank title", func(t *testing.T) {
		_, err := NewDuty(id.NewDutyID(), "   ", "", nil, assignee, now)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvariantViolation))
	})

	t.Run("rejects missing assignee", func(t *testing.T) {
		_, err := NewDuty(id.NewDutyID(), "Dishes", "", nil, id.UserID{}, now)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvariantViolation))
	})
}

func TestTransitionPolicy(t *testing.T) {
	all := []Status{StatusPending, StatusPendingApproval, StatusApproved, StatusRejected}

	strictAllowed := map[Transition]map[Status]bool{
		TransitionComplete: {StatusPending: true},
		TransitionApprove:  {StatusPendingApproval: true},
		TransitionReject:   {StatusPendingApproval: true},
	}
	for tr, allowed := range strictAllowed {
		for _, from := range all {
			assert.Equal(t, allowed[from], PolicyStrict.Allows(tr, from), "strict %s from %s", tr, from)
		}
	}

	for _, from := range all {
		assert.True(t, PolicyLenient.Allows(TransitionComplete, from))
		assert.True(t, PolicyLenient.Allows(TransitionReject, from))
		assert.Equal(t, from == StatusPendingApproval, PolicyLenient.Allows(TransitionApprove, from))
	}

	t.Run("terminal states admit nothing under strict", func(t *testing.T) {
		for _, from := range []Status{StatusApproved, StatusRejected} {
			assert.True(t, from.IsTerminal())
			for _, tr := range []Transition{TransitionComplete, TransitionApprove, TransitionReject} {
				err := PolicyStrict.Check(tr, &Duty{Status: from})
				assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidState))
			}
		}
	})

	t.Run("unknown config value means strict", func(t *testing.T) {
		assert.Equal(t, PolicyStrict, ParsePolicy(""))
		assert.Equal(t, PolicyStrict, ParsePolicy("yolo"))
		assert.Equal(t, PolicyLenient, ParsePolicy("lenient"))
	})
}

func TestDueBefore(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	day := func(n int) *time.Time { d := base.AddDate(0, 0, n); return &d }

	late := &Duty{ID: id.NewDutyID(), DueDate: day(5), CreatedAt: base}
	early := &Duty{ID: id.NewDutyID(), DueDate: day(1), CreatedAt: base.Add(time.Hour)}
	undated := &Duty{ID: id.NewDutyID(), CreatedAt: base.Add(-time.Hour)}

	assert.True(t, DueBefore(early, late))
	assert.True(t, DueBefore(late, undated))
	assert.False(t, DueBefore(undated, early))
}

func TestParseDueDate(t *testing.T) {
	d, err := ParseDueDate("")
	require.NoError(t, err)
	assert.Nil(t, d)

	d, err = ParseDueDate("2026-04-30")
	require.NoError(t, err)
	assert.Equal(t, 30, d.Day())

	_, err = ParseDueDate("30/04/2026")
	assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
}

func TestVerifyChain(t *testing.T) {
	dutyID := id.NewDutyID()
	actor := id.NewUserID()
	now := time.Now()

	first := NewHistoryEntry(dutyID, StatusPending, actor, CommentCreated, "", now)
	second := NewHistoryEntry(dutyID, StatusPendingApproval, actor, "", first.Hash, now.Add(time.Minute))
	third := NewHistoryEntry(dutyID, StatusRejected, actor, "Photo is blurry", second.Hash, now.Add(2*time.Minute))

	require.NoError(t, VerifyChain([]*HistoryEntry{first, second, third}))
	require.NoError(t, VerifyChain(nil))

	t.Run("detects edited comment", func(t *testing.T) {
		tampered := *third
		tampered.Comment = "Looks great"
		assert.Error(t, VerifyChain([]*HistoryEntry{first, second, &tampered}))
	})

	t.Run("detects removed entry", func(t *testing.T) {
		assert.Error(t, VerifyChain([]*HistoryEntry{first, third}))
	})

	t.Run("detects reordering", func(t *testing.T) {
		assert.Error(t, VerifyChain([]*HistoryEntry{second, first, third}))
	})
}

func TestActorRequireAdmin(t *testing.T) {
	assert.NoError(t, Actor{ID: id.NewUserID(), Admin: true}.RequireAdmin())
	assert.True(t, dErrors.HasCode(Actor{ID: id.NewUserID()}.RequireAdmin(), dErrors.CodeForbidden))
	assert.True(t, dErrors.HasCode(Actor{}.RequireAdmin(), dErrors.CodeUnauthorized))
}
