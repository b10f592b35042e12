package domain

import (
	"fmt"
	"strings"
	"time"
)

// SubjectKind distinguishes the two verification subjects.
type SubjectKind string

const (
	SubjectKindPartner  SubjectKind = "partner"
	SubjectKindProperty SubjectKind = "property"
)

// OverallStatus is the derived (or operator-set) verification state of a subject.
type OverallStatus string

const (
	OverallNotSubmitted OverallStatus = "not_submitted"
	OverallPending      OverallStatus = "pending"
	OverallManualReview OverallStatus = "manual_review"
	OverallVerified     OverallStatus = "verified"
	OverallRejected     OverallStatus = "rejected"
	OverallSuspended    OverallStatus = "suspended"
)

var subjectGroups = map[SubjectKind][]GroupKind{
	SubjectKindPartner:  {GroupKindIdentity},
	SubjectKindProperty: {GroupKindOwnership, GroupKindTax, GroupKindBanking},
}

var overallByKind = map[SubjectKind]map[OverallStatus]struct{}{
	SubjectKindPartner: {
		OverallNotSubmitted: {},
		OverallPending:      {},
		OverallManualReview: {},
		OverallVerified:     {},
		OverallRejected:     {},
	},
	SubjectKindProperty: {
		OverallPending:   {},
		OverallVerified:  {},
		OverallRejected:  {},
		OverallSuspended: {},
	},
}

// ParseSubjectKind converts free-form input into a SubjectKind.
func ParseSubjectKind(raw string) (SubjectKind, error) {
	kind := SubjectKind(strings.ToLower(strings.TrimSpace(raw)))
	if _, ok := subjectGroups[kind]; !ok {
		return "", fmt.Errorf("%w: subject kind %q", ErrUnknownValue, raw)
	}
	return kind, nil
}

// ParseOverallStatus converts free-form input into an OverallStatus valid for kind.
func ParseOverallStatus(kind SubjectKind, raw string) (OverallStatus, error) {
	status := OverallStatus(strings.ToLower(strings.TrimSpace(raw)))
	if !status.ValidFor(kind) {
		return "", fmt.Errorf("%w: %s status %q", ErrUnknownValue, kind, raw)
	}
	return status, nil
}

// ValidFor reports whether s is part of kind's status vocabulary.
func (s OverallStatus) ValidFor(kind SubjectKind) bool {
	_, ok := overallByKind[kind][s]
	return ok
}

// IsOverrideStatus reports whether an operator may set s holistically.
func (s OverallStatus) IsOverrideStatus() bool {
	return s == OverallVerified || s == OverallRejected || s == OverallSuspended
}

// RequiredGroups returns the group kinds a subject of kind owns, in display order.
func RequiredGroups(kind SubjectKind) []GroupKind {
	return append([]GroupKind(nil), subjectGroups[kind]...)
}

// Override is an operator's holistic decision on a property.
type Override struct {
	Status OverallStatus
	Reason string
	SetBy  string
	SetAt  time.Time
}

// VerificationSubject is a partner or a property together with its document groups.
type VerificationSubject struct {
	ID                  string
	Kind                SubjectKind
	OwnerID             string
	Groups              []DocumentGroup
	OverallStatus       OverallStatus
	Override            *Override
	ReverificationHold  bool
	OnboardingCompleted bool
	IsListed            bool
	EventSequence       int64
	Version             int64
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// NewVerificationSubject builds an empty subject with every required group not submitted.
func NewVerificationSubject(id string, kind SubjectKind, ownerID string) *VerificationSubject {
	subject := &VerificationSubject{
		ID:      id,
		Kind:    kind,
		OwnerID: ownerID,
	}
	for _, gk := range subjectGroups[kind] {
		subject.Groups = append(subject.Groups, NewDocumentGroup(gk))
	}
	subject.Recompute()
	return subject
}

// Group returns the group of the given kind, or nil when the subject does not own it.
func (s *VerificationSubject) Group(kind GroupKind) *DocumentGroup {
	for i := range s.Groups {
		if s.Groups[i].Kind == kind {
			return &s.Groups[i]
		}
	}
	return nil
}

// Recompute refreshes the cached overall status from groups and override.
func (s *VerificationSubject) Recompute() OverallStatus {
	s.OverallStatus = ResolveOverallStatus(s)
	return s.OverallStatus
}

// IsSuspended reports an active suspension override.
func (s *VerificationSubject) IsSuspended() bool {
	return s.Override != nil && s.Override.Status == OverallSuspended
}

// NextSequence reserves the next push sequence number for this subject.
func (s *VerificationSubject) NextSequence() int64 {
	s.EventSequence++
	return s.EventSequence
}

// Clone returns a deep copy safe to hand to another goroutine.
func (s *VerificationSubject) Clone() *VerificationSubject {
	if s == nil {
		return nil
	}
	out := *s
	out.Groups = make([]DocumentGroup, len(s.Groups))
	for i := range s.Groups {
		out.Groups[i] = s.Groups[i].Clone()
	}
	if s.Override != nil {
		ov := *s.Override
		out.Override = &ov
	}
	return &out
}
