package dto

import (
	"sort"
	"time"

	"github.com/staylink/verification-service/internal/domain"
)

// SubjectResponse renders a verification subject. The can_* flags are the
// submission gate evaluated server side so clients do not re-derive it.
type SubjectResponse struct {
	ID                  string            `json:"id"`
	Kind                string            `json:"kind"`
	OwnerID             string            `json:"owner_id"`
	OverallStatus       string            `json:"overall_status"`
	Override            *OverrideResponse `json:"override,omitempty"`
	ReverificationHold  bool              `json:"reverification_hold"`
	OnboardingCompleted bool              `json:"onboarding_completed"`
	IsListed            bool              `json:"is_listed"`
	CanToggleListing    bool              `json:"can_toggle_listing"`
	Sequence            int64             `json:"sequence"`
	Groups              []GroupResponse   `json:"groups"`
	CreatedAt           time.Time         `json:"created_at"`
	UpdatedAt           time.Time         `json:"updated_at"`
}

// GroupResponse renders one document group.
type GroupResponse struct {
	Kind            string            `json:"kind"`
	Status          string            `json:"status"`
	RejectionReason string            `json:"rejection_reason,omitempty"`
	Artifacts       map[string]string `json:"artifacts"`
	MissingSlots    []string          `json:"missing_slots,omitempty"`
	CanEdit         bool              `json:"can_edit"`
	SubmittedAt     *time.Time        `json:"submitted_at,omitempty"`
	ReviewedAt      *time.Time        `json:"reviewed_at,omitempty"`
	ReviewedBy      *string           `json:"reviewed_by,omitempty"`
}

// OverrideResponse renders an operator's holistic decision.
type OverrideResponse struct {
	Status string    `json:"status"`
	Reason string    `json:"reason,omitempty"`
	SetBy  string    `json:"set_by"`
	SetAt  time.Time `json:"set_at"`
}

// SubjectEnvelope is the body of every single-subject response.
type SubjectEnvelope struct {
	Data     SubjectResponse `json:"data"`
	Warnings []string        `json:"warnings"`
}

// NewSubjectEnvelope renders subject with warnings; warnings is never null.
func NewSubjectEnvelope(subject *domain.VerificationSubject, warnings []string) SubjectEnvelope {
	if warnings == nil {
		warnings = []string{}
	}
	return SubjectEnvelope{Data: Subject(subject), Warnings: warnings}
}

// Subject renders subject.
func Subject(subject *domain.VerificationSubject) SubjectResponse {
	resp := SubjectResponse{
		ID:                  subject.ID,
		Kind:                string(subject.Kind),
		OwnerID:             subject.OwnerID,
		OverallStatus:       string(subject.OverallStatus),
		ReverificationHold:  subject.ReverificationHold,
		OnboardingCompleted: subject.OnboardingCompleted,
		IsListed:            subject.IsListed,
		CanToggleListing:    domain.CanToggleListing(subject),
		Sequence:            subject.EventSequence,
		Groups:              make([]GroupResponse, 0, len(subject.Groups)),
		CreatedAt:           subject.CreatedAt,
		UpdatedAt:           subject.UpdatedAt,
	}
	if ov := subject.Override; ov != nil {
		resp.Override = &OverrideResponse{
			Status: string(ov.Status),
			Reason: ov.Reason,
			SetBy:  ov.SetBy,
			SetAt:  ov.SetAt,
		}
	}
	for i := range subject.Groups {
		group := &subject.Groups[i]
		artifacts := make(map[string]string, len(group.Artifacts))
		for slot, ref := range group.Artifacts {
			artifacts[slot] = ref
		}
		missing := group.MissingSlots()
		sort.Strings(missing)
		resp.Groups = append(resp.Groups, GroupResponse{
			Kind:            string(group.Kind),
			Status:          string(group.Status),
			RejectionReason: group.RejectionReason,
			Artifacts:       artifacts,
			MissingSlots:    missing,
			CanEdit:         domain.CanSubmit(subject, group.Kind),
			SubmittedAt:     group.SubmittedAt,
			ReviewedAt:      group.ReviewedAt,
			ReviewedBy:      group.ReviewedBy,
		})
	}
	return resp
}

// Subjects renders a list of subjects.
func Subjects(subjects []domain.VerificationSubject) []SubjectResponse {
	out := make([]SubjectResponse, 0, len(subjects))
	for i := range subjects {
		out = append(out, Subject(&subjects[i]))
	}
	return out
}
