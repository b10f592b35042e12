package domain

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransitionTable(t *testing.T) {
	statuses := []GroupStatus{
		GroupStatusNotSubmitted,
		GroupStatusPending,
		GroupStatusManualReview,
		GroupStatusApproved,
		GroupStatusRejected,
	}
	legal := map[GroupEvent]map[GroupStatus]GroupStatus{
		EventSubmit: {
			GroupStatusNotSubmitted: GroupStatusPending,
			GroupStatusRejected:     GroupStatusPending,
		},
		EventApprove: {
			GroupStatusPending:      GroupStatusApproved,
			GroupStatusManualReview: GroupStatusApproved,
		},
		EventReject: {
			GroupStatusPending:      GroupStatusRejected,
			GroupStatusManualReview: GroupStatusRejected,
		},
		EventFlagForManualReview: {
			GroupStatusPending: GroupStatusManualReview,
		},
	}

	for event, targets := range legal {
		for _, current := range statuses {
			next, err := Transition(current, event)
			want, ok := targets[current]
			if ok {
				require.NoError(t, err, "%s from %s", event, current)
				assert.Equal(t, want, next)
				continue
			}
			require.Error(t, err, "%s from %s", event, current)
			assert.True(t, errors.Is(err, ErrInvalidTransition))
			var te *TransitionError
			require.True(t, errors.As(err, &te))
			assert.Equal(t, event, te.Event)
			assert.Equal(t, current, te.Current)
			assert.Equal(t, current, next)
		}
	}
}

func TestApplyKeepsReasonInvariant(t *testing.T) {
	t.Run("reject stores reason verbatim", func(t *testing.T) {
		g := NewDocumentGroup(GroupKindIdentity)
		require.NoError(t, g.Apply(EventSubmit, ""))
		require.NoError(t, g.Apply(EventReject, "Photo blurry"))
		assert.Equal(t, GroupStatusRejected, g.Status)
		assert.Equal(t, "Photo blurry", g.RejectionReason)
	})

	t.Run("reject without reason leaves group untouched", func(t *testing.T) {
		g := NewDocumentGroup(GroupKindTax)
		require.NoError(t, g.Apply(EventSubmit, ""))
		err := g.Apply(EventReject, "   ")
		assert.ErrorIs(t, err, ErrMissingReason)
		assert.Equal(t, GroupStatusPending, g.Status)
		assert.Empty(t, g.RejectionReason)
	})

	t.Run("resubmission clears reason regardless of content", func(t *testing.T) {
		for _, reason := range []string{"x", "Photo blurry", "multi\nline reason with ünïcode"} {
			g := NewDocumentGroup(GroupKindIdentity)
			require.NoError(t, g.Apply(EventSubmit, ""))
			require.NoError(t, g.Apply(EventReject, reason))
			require.NoError(t, g.Apply(EventSubmit, ""))
			assert.Equal(t, GroupStatusPending, g.Status)
			assert.Empty(t, g.RejectionReason)
		}
	})

	t.Run("invariant holds along every legal path", func(t *testing.T) {
		paths := [][]GroupEvent{
			{EventSubmit, EventApprove},
			{EventSubmit, EventFlagForManualReview, EventReject, EventSubmit, EventApprove},
			{EventSubmit, EventReject, EventSubmit, EventFlagForManualReview, EventApprove},
		}
		for _, path := range paths {
			g := NewDocumentGroup(GroupKindBanking)
			for _, ev := range path {
				require.NoError(t, g.Apply(ev, "needs a clearer statement"))
				assert.Equal(t, g.Status == GroupStatusRejected, g.RejectionReason != "")
			}
		}
	})
}

func TestApplyDoesNotClearArtifacts(t *testing.T) {
	g := NewDocumentGroup(GroupKindIdentity)
	g.MergeArtifacts(map[string]string{"front": "f1", "back": "b1", "profile": "p1"})
	require.NoError(t, g.Apply(EventSubmit, ""))
	require.NoError(t, g.Apply(EventReject, "Photo blurry"))
	assert.Equal(t, map[string]string{"front": "f1", "back": "b1", "profile": "p1"}, g.Artifacts)
}

func TestParseGroupStatusRejectsUnknown(t *testing.T) {
	status, err := ParseGroupStatus(" Approved ")
	require.NoError(t, err)
	assert.Equal(t, GroupStatusApproved, status)

	_, err = ParseGroupStatus("accepted")
	assert.ErrorIs(t, err, ErrUnknownValue)
}
