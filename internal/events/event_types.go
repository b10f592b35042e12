package events

import (
	"time"

	"github.com/staylink/verification-service/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventGroupSubmitted         EventType = "group_submitted"
	EventGroupApproved          EventType = "group_approved"
	EventGroupRejected          EventType = "group_rejected"
	EventGroupFlagged           EventType = "group_flagged"
	EventOverallStatusChanged   EventType = "overall_status_changed"
	EventReverificationRequired EventType = "reverification_required"
)

// Actor encapsulates actor metadata for an event.
type Actor struct {
	Type domain.ActorType `json:"type"`
	ID   *string          `json:"id,omitempty"`
}

// Event represents a domain event emitted by services. Sequence is the
// subject's EventSequence after the write that produced the event.
type Event struct {
	ID          string             `json:"id"`
	Type        EventType          `json:"type"`
	SubjectID   string             `json:"subject_id"`
	SubjectKind domain.SubjectKind `json:"subject_kind"`
	OwnerID     string             `json:"owner_id"`
	Sequence    int64              `json:"sequence"`
	Actor       Actor              `json:"actor"`
	Timestamp   time.Time          `json:"timestamp"`
	Payload     interface{}        `json:"payload"`
}

// GroupDecisionPayload accompanies GroupApproved, GroupRejected, GroupFlagged and GroupSubmitted.
type GroupDecisionPayload struct {
	GroupKind     domain.GroupKind     `json:"group_kind"`
	OldStatus     domain.GroupStatus   `json:"old_status"`
	NewStatus     domain.GroupStatus   `json:"new_status"`
	Reason        string               `json:"reason,omitempty"`
	OverallStatus domain.OverallStatus `json:"overall_status"`
}

// OverallStatusChangedPayload accompanies operator overrides.
type OverallStatusChangedPayload struct {
	OldStatus domain.OverallStatus `json:"old_status"`
	NewStatus domain.OverallStatus `json:"new_status"`
	Reason    string               `json:"reason,omitempty"`
	Cleared   bool                 `json:"cleared,omitempty"`
}

// ReverificationPayload tells the operator queue a verified subject needs another look.
type ReverificationPayload struct {
	Trigger   string               `json:"trigger"`
	OldStatus domain.OverallStatus `json:"old_status"`
	NewStatus domain.OverallStatus `json:"new_status"`
	IsListed  bool                 `json:"is_listed"`
}
