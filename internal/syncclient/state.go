// Package syncclient is the submitter-side view of verification state: a
// single-owner store fed by the realtime channel and by REST refetches.
package syncclient

import (
	"fmt"

	"github.com/staylink/verification-service/internal/domain"
)

// SubjectRef names a subject the client keeps in sync.
type SubjectRef struct {
	ID   string
	Kind domain.SubjectKind
}

// GroupState is the client's copy of one document group.
type GroupState struct {
	Kind      domain.GroupKind
	Status    domain.GroupStatus
	Reason    string
	Artifacts map[string]string
	CanEdit   bool
}

// SubjectState is the client's copy of a subject. LastSequence is the highest
// push sequence reflected in it.
type SubjectState struct {
	ID               string
	Kind             domain.SubjectKind
	OverallStatus    domain.OverallStatus
	Groups           []GroupState
	IsListed         bool
	CanToggleListing bool
	Warnings         []string
	LastSequence     int64
	// Stale is set when a push could not be applied on top of the local view
	// or a refetch failed; it clears on the next successful refetch.
	Stale bool
}

// Ref returns the subject's reference.
func (s SubjectState) Ref() SubjectRef {
	return SubjectRef{ID: s.ID, Kind: s.Kind}
}

// Group returns the group of the given kind, or nil.
func (s *SubjectState) Group(kind domain.GroupKind) *GroupState {
	for i := range s.Groups {
		if s.Groups[i].Kind == kind {
			return &s.Groups[i]
		}
	}
	return nil
}

func (s SubjectState) clone() SubjectState {
	out := s
	out.Groups = make([]GroupState, len(s.Groups))
	for i, g := range s.Groups {
		artifacts := make(map[string]string, len(g.Artifacts))
		for slot, ref := range g.Artifacts {
			artifacts[slot] = ref
		}
		g.Artifacts = artifacts
		out.Groups[i] = g
	}
	out.Warnings = append([]string(nil), s.Warnings...)
	return out
}

// remoteSubject is the subject as the REST API renders it. Status fields stay
// strings until parseSubject checks them.
type remoteSubject struct {
	ID               string        `json:"id"`
	Kind             string        `json:"kind"`
	OverallStatus    string        `json:"overall_status"`
	IsListed         bool          `json:"is_listed"`
	CanToggleListing bool          `json:"can_toggle_listing"`
	Sequence         int64         `json:"sequence"`
	Groups           []remoteGroup `json:"groups"`
}

type remoteGroup struct {
	Kind            string            `json:"kind"`
	Status          string            `json:"status"`
	RejectionReason string            `json:"rejection_reason"`
	Artifacts       map[string]string `json:"artifacts"`
	CanEdit         bool              `json:"can_edit"`
}

// parseSubject converts an API payload into SubjectState. Any status outside
// the closed vocabularies is an error.
func parseSubject(remote remoteSubject, warnings []string) (SubjectState, error) {
	kind, err := domain.ParseSubjectKind(remote.Kind)
	if err != nil {
		return SubjectState{}, err
	}
	overall, err := domain.ParseOverallStatus(kind, remote.OverallStatus)
	if err != nil {
		return SubjectState{}, err
	}
	if remote.ID == "" {
		return SubjectState{}, fmt.Errorf("%w: subject without id", domain.ErrUnknownValue)
	}

	state := SubjectState{
		ID:               remote.ID,
		Kind:             kind,
		OverallStatus:    overall,
		IsListed:         remote.IsListed,
		CanToggleListing: remote.CanToggleListing,
		Warnings:         append([]string(nil), warnings...),
		LastSequence:     remote.Sequence,
	}
	for _, rg := range remote.Groups {
		groupKind, err := domain.ParseGroupKind(rg.Kind)
		if err != nil {
			return SubjectState{}, err
		}
		status, err := domain.ParseGroupStatus(rg.Status)
		if err != nil {
			return SubjectState{}, err
		}
		artifacts := make(map[string]string, len(rg.Artifacts))
		for slot, ref := range rg.Artifacts {
			artifacts[slot] = ref
		}
		state.Groups = append(state.Groups, GroupState{
			Kind:      groupKind,
			Status:    status,
			Reason:    rg.RejectionReason,
			Artifacts: artifacts,
			CanEdit:   rg.CanEdit,
		})
	}
	return state, nil
}
