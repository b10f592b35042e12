package domain

import (
	"fmt"
	"strings"
	"time"
)

// GroupKind identifies one reviewable bundle of evidence.
type GroupKind string

const (
	GroupKindIdentity  GroupKind = "identity"
	GroupKindOwnership GroupKind = "ownership"
	GroupKindTax       GroupKind = "tax"
	GroupKindBanking   GroupKind = "banking"
)

// GroupStatus enumerates review states for a DocumentGroup.
type GroupStatus string

const (
	GroupStatusNotSubmitted GroupStatus = "not_submitted"
	GroupStatusPending      GroupStatus = "pending"
	GroupStatusManualReview GroupStatus = "manual_review"
	GroupStatusApproved     GroupStatus = "approved"
	GroupStatusRejected     GroupStatus = "rejected"
)

var groupKinds = map[GroupKind]struct{}{
	GroupKindIdentity:  {},
	GroupKindOwnership: {},
	GroupKindTax:       {},
	GroupKindBanking:   {},
}

var groupStatuses = map[GroupStatus]struct{}{
	GroupStatusNotSubmitted: {},
	GroupStatusPending:      {},
	GroupStatusManualReview: {},
	GroupStatusApproved:     {},
	GroupStatusRejected:     {},
}

// requiredSlots lists the artifact slots a group must hold once submitted.
var requiredSlots = map[GroupKind][]string{
	GroupKindIdentity:  {"front", "back", "profile"},
	GroupKindOwnership: {"deed"},
	GroupKindTax:       {"certificate"},
	GroupKindBanking:   {"statement"},
}

// ParseGroupKind converts free-form input into a GroupKind.
func ParseGroupKind(raw string) (GroupKind, error) {
	kind := GroupKind(strings.ToLower(strings.TrimSpace(raw)))
	if _, ok := groupKinds[kind]; !ok {
		return "", fmt.Errorf("%w: group kind %q", ErrUnknownValue, raw)
	}
	return kind, nil
}

// ParseGroupStatus converts free-form input into a GroupStatus. Unknown values are errors.
func ParseGroupStatus(raw string) (GroupStatus, error) {
	status := GroupStatus(strings.ToLower(strings.TrimSpace(raw)))
	if _, ok := groupStatuses[status]; !ok {
		return "", fmt.Errorf("%w: group status %q", ErrUnknownValue, raw)
	}
	return status, nil
}

// RequiredSlots returns the artifact slot names for kind.
func RequiredSlots(kind GroupKind) []string {
	return append([]string(nil), requiredSlots[kind]...)
}

// IsKnownSlot reports whether slot belongs to kind.
func IsKnownSlot(kind GroupKind, slot string) bool {
	for _, s := range requiredSlots[kind] {
		if s == slot {
			return true
		}
	}
	return false
}

// DocumentGroup is one reviewable bundle with its own status.
type DocumentGroup struct {
	Kind            GroupKind
	Status          GroupStatus
	RejectionReason string
	Artifacts       map[string]string
	SubmittedAt     *time.Time
	ReviewedAt      *time.Time
	ReviewedBy      *string
}

// NewDocumentGroup returns an empty, not-yet-submitted group.
func NewDocumentGroup(kind GroupKind) DocumentGroup {
	return DocumentGroup{
		Kind:      kind,
		Status:    GroupStatusNotSubmitted,
		Artifacts: map[string]string{},
	}
}

// Apply runs event through the state machine and updates the group in place.
// The rejection reason is stored on reject and cleared by every other event;
// artifacts are never touched here.
func (g *DocumentGroup) Apply(event GroupEvent, reason string) error {
	next, err := Transition(g.Status, event)
	if err != nil {
		return err
	}
	if event == EventReject {
		reason = strings.TrimSpace(reason)
		if reason == "" {
			return ErrMissingReason
		}
		g.RejectionReason = reason
	} else {
		g.RejectionReason = ""
	}
	g.Status = next
	return nil
}

// MergeArtifacts replaces the uploaded slots and keeps every other slot as is.
func (g *DocumentGroup) MergeArtifacts(uploaded map[string]string) {
	if g.Artifacts == nil {
		g.Artifacts = make(map[string]string, len(uploaded))
	}
	for slot, ref := range uploaded {
		if strings.TrimSpace(ref) == "" {
			continue
		}
		g.Artifacts[slot] = ref
	}
}

// MissingSlots lists required slots that hold no artifact.
func (g *DocumentGroup) MissingSlots() []string {
	var missing []string
	for _, slot := range requiredSlots[g.Kind] {
		if strings.TrimSpace(g.Artifacts[slot]) == "" {
			missing = append(missing, slot)
		}
	}
	return missing
}

// Clone returns a deep copy.
func (g DocumentGroup) Clone() DocumentGroup {
	out := g
	out.Artifacts = make(map[string]string, len(g.Artifacts))
	for k, v := range g.Artifacts {
		out.Artifacts[k] = v
	}
	if g.SubmittedAt != nil {
		t := *g.SubmittedAt
		out.SubmittedAt = &t
	}
	if g.ReviewedAt != nil {
		t := *g.ReviewedAt
		out.ReviewedAt = &t
	}
	if g.ReviewedBy != nil {
		id := *g.ReviewedBy
		out.ReviewedBy = &id
	}
	return out
}
