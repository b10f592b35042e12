package domain

import (
	"testing"

	"github.com/stretchr/testify/suite"
)

type AggregateSuite struct {
	suite.Suite
}

func TestAggregateSuite(t *testing.T) {
	suite.Run(t, new(AggregateSuite))
}

func property(statuses map[GroupKind]GroupStatus) *VerificationSubject {
	subject := NewVerificationSubject("prop-1", SubjectKindProperty, "host-1")
	for kind, status := range statuses {
		g := subject.Group(kind)
		g.Status = status
		if status == GroupStatusRejected {
			g.RejectionReason = "bad scan"
		}
	}
	subject.Recompute()
	return subject
}

func (s *AggregateSuite) TestPropertyResolution() {
	s.Run("new property is pending", func() {
		subject := NewVerificationSubject("p", SubjectKindProperty, "h")
		s.Equal(OverallPending, subject.OverallStatus)
	})

	s.Run("one pending group blocks verification", func() {
		subject := property(map[GroupKind]GroupStatus{
			GroupKindOwnership: GroupStatusApproved,
			GroupKindTax:       GroupStatusApproved,
			GroupKindBanking:   GroupStatusPending,
		})
		s.Equal(OverallPending, subject.OverallStatus)
	})

	s.Run("manual review counts as pending", func() {
		subject := property(map[GroupKind]GroupStatus{
			GroupKindOwnership: GroupStatusApproved,
			GroupKindTax:       GroupStatusManualReview,
			GroupKindBanking:   GroupStatusApproved,
		})
		s.Equal(OverallPending, subject.OverallStatus)
	})

	s.Run("rejection dominates pending and approved siblings", func() {
		subject := property(map[GroupKind]GroupStatus{
			GroupKindOwnership: GroupStatusApproved,
			GroupKindTax:       GroupStatusPending,
			GroupKindBanking:   GroupStatusRejected,
		})
		s.Equal(OverallRejected, subject.OverallStatus)
	})

	s.Run("all approved is verified", func() {
		subject := property(map[GroupKind]GroupStatus{
			GroupKindOwnership: GroupStatusApproved,
			GroupKindTax:       GroupStatusApproved,
			GroupKindBanking:   GroupStatusApproved,
		})
		s.Equal(OverallVerified, subject.OverallStatus)
	})

	s.Run("zero groups is never vacuously verified", func() {
		subject := &VerificationSubject{Kind: SubjectKindProperty}
		s.Equal(OverallPending, ResolveOverallStatus(subject))
	})

	s.Run("reverification hold keeps approved property pending", func() {
		subject := property(map[GroupKind]GroupStatus{
			GroupKindOwnership: GroupStatusApproved,
			GroupKindTax:       GroupStatusApproved,
			GroupKindBanking:   GroupStatusApproved,
		})
		subject.ReverificationHold = true
		s.Equal(OverallPending, subject.Recompute())
	})
}

func (s *AggregateSuite) TestOverrideWins() {
	for _, status := range []OverallStatus{OverallVerified, OverallRejected, OverallSuspended} {
		subject := property(map[GroupKind]GroupStatus{
			GroupKindOwnership: GroupStatusRejected,
			GroupKindTax:       GroupStatusPending,
		})
		subject.Override = &Override{Status: status, Reason: "holistic call"}
		s.Equal(status, subject.Recompute())
	}
}

func (s *AggregateSuite) TestVerifiedImpliesApprovedOrOverride() {
	statuses := []GroupStatus{
		GroupStatusNotSubmitted, GroupStatusPending, GroupStatusManualReview,
		GroupStatusApproved, GroupStatusRejected,
	}
	for _, a := range statuses {
		for _, b := range statuses {
			for _, c := range statuses {
				subject := property(map[GroupKind]GroupStatus{
					GroupKindOwnership: a,
					GroupKindTax:       b,
					GroupKindBanking:   c,
				})
				if subject.OverallStatus == OverallVerified {
					for _, g := range subject.Groups {
						s.Equal(GroupStatusApproved, g.Status)
					}
				}
				if a == GroupStatusRejected || b == GroupStatusRejected || c == GroupStatusRejected {
					s.Equal(OverallRejected, subject.OverallStatus)
				}
			}
		}
	}
}

func (s *AggregateSuite) TestPartnerMirrorsIdentity() {
	cases := map[GroupStatus]OverallStatus{
		GroupStatusNotSubmitted: OverallNotSubmitted,
		GroupStatusPending:      OverallPending,
		GroupStatusManualReview: OverallManualReview,
		GroupStatusApproved:     OverallVerified,
		GroupStatusRejected:     OverallRejected,
	}
	for groupStatus, want := range cases {
		subject := NewVerificationSubject("partner-1", SubjectKindPartner, "user-1")
		subject.Group(GroupKindIdentity).Status = groupStatus
		s.Equal(want, subject.Recompute(), "identity %s", groupStatus)
		s.True(subject.OverallStatus.ValidFor(SubjectKindPartner))
	}
}
