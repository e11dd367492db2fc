package scheduler

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowstack-agency/leadflow/internal/model"
	"github.com/flowstack-agency/leadflow/internal/store"
)

func TestBuildItemsAllSequences(t *testing.T) {
	t.Parallel()
	s := New(nil)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	for _, name := range []model.SequenceName{
		model.SequenceImmediate,
		model.SequenceStandard,
		model.SequenceNurture,
		model.SequenceMinimal,
	} {
		items := s.BuildItems("sub-1", "score-1", name, now)
		require.NotEmpty(t, items, "sequence %s", name)

		for i, it := range items {
			assert.Equal(t, i+1, it.SequenceNumber, "sequence %s: numbers are contiguous from 1", name)
			assert.Equal(t, model.FollowupPending, it.Status)
			assert.Equal(t, "sub-1", it.SubmissionID)
			assert.Equal(t, "score-1", it.LeadScoreID)
			if i > 0 {
				assert.False(t, it.ScheduledFor.Before(items[i-1].ScheduledFor),
					"sequence %s: scheduled_for must be non-decreasing", name)
			}
		}
	}
}

func TestBuildItemsImmediateCadence(t *testing.T) {
	t.Parallel()
	s := New(nil)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	items := s.BuildItems("sub-1", "score-1", model.SequenceImmediate, now)
	require.Len(t, items, 3)

	assert.Equal(t, model.EmailWelcome, items[0].EmailType)
	assert.Equal(t, now, items[0].ScheduledFor)
	assert.Equal(t, model.EmailDemoInvite, items[1].EmailType)
	assert.Equal(t, now.Add(4*time.Hour), items[1].ScheduledFor)
	assert.Equal(t, model.EmailCheckIn, items[2].EmailType)
	assert.Equal(t, now.Add(24*time.Hour), items[2].ScheduledFor)
}

func TestBuildItemsUnknownSequenceFallsBackToMinimal(t *testing.T) {
	t.Parallel()
	s := New(nil)
	now := time.Now().UTC()

	items := s.BuildItems("sub-1", "", model.SequenceName("experimental"), now)
	require.Len(t, items, 1)
	assert.Equal(t, model.EmailWelcome, items[0].EmailType)
	assert.Equal(t, now.Add(time.Hour), items[0].ScheduledFor)
}

func TestScheduleWritesBatch(t *testing.T) {
	t.Parallel()

	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "scheduler_test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	ctx := context.Background()
	require.NoError(t, st.Migrate(ctx))

	sub := &model.Submission{Email: "jane@acme.com", FullName: "Jane Doe"}
	require.NoError(t, st.CreateSubmission(ctx, sub))

	s := New(st)
	now := time.Now().UTC().Truncate(time.Second)
	n, err := s.Schedule(ctx, sub.ID, "", model.SequenceImmediate, now)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	due, err := st.DueFollowups(ctx, now.Add(48*time.Hour), 10)
	require.NoError(t, err)
	assert.Len(t, due, 3)
}

func TestStepsForOverride(t *testing.T) {
	t.Parallel()

	s := New(nil, WithOverrides(map[model.SequenceName][]Step{
		model.SequenceStandard: {
			{EmailType: model.EmailWelcome, DelayHours: 2},
			{EmailType: model.EmailDemoInvite, DelayHours: 24},
		},
	}))

	steps := s.StepsFor(model.SequenceStandard)
	require.Len(t, steps, 2)
	assert.Equal(t, 2, steps[0].DelayHours)

	// Sequences absent from the override keep the built-in cadence.
	assert.Len(t, s.StepsFor(model.SequenceNurture), 5)
}

func TestLoadSequences(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "sequences.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
sequences:
  standard:
    - email_type: welcome
      delay_hours: 0
    - email_type: check_in
      delay_hours: 12
`), 0o644))

	overrides, err := LoadSequences(path)
	require.NoError(t, err)
	require.Len(t, overrides, 1)
	steps := overrides[model.SequenceStandard]
	require.Len(t, steps, 2)
	assert.Equal(t, model.EmailCheckIn, steps[1].EmailType)
	assert.Equal(t, 12, steps[1].DelayHours)
}

func TestLoadSequencesRejectsBadInput(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{
			name:    "unknown sequence name",
			yaml:    "sequences:\n  aggressive:\n    - email_type: welcome\n      delay_hours: 0\n",
			wantErr: "unknown sequence name",
		},
		{
			name:    "unknown email type",
			yaml:    "sequences:\n  standard:\n    - email_type: spam\n      delay_hours: 0\n",
			wantErr: "unknown email type",
		},
		{
			name:    "decreasing delays",
			yaml:    "sequences:\n  standard:\n    - email_type: welcome\n      delay_hours: 24\n    - email_type: final\n      delay_hours: 1\n",
			wantErr: "non-decreasing",
		},
		{
			name:    "empty sequence",
			yaml:    "sequences:\n  standard: []\n",
			wantErr: "no steps",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			path := filepath.Join(dir, tt.name+".yaml")
			require.NoError(t, os.WriteFile(path, []byte(tt.yaml), 0o644))

			_, err := LoadSequences(path)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
