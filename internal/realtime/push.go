package realtime

import (
	"github.com/staylink/verification-service/internal/domain"
	"github.com/staylink/verification-service/internal/events"
)

// PushType names a realtime frame sent to a submitter.
type PushType string

const (
	PushPartnerApproved       PushType = "PARTNER_VERIFICATION_APPROVED"
	PushPartnerRejected       PushType = "PARTNER_VERIFICATION_REJECTED"
	PushPropertyDocApproved   PushType = "PROPERTY_DOCUMENT_APPROVED"
	PushPropertyDocRejected   PushType = "PROPERTY_DOCUMENT_REJECTED"
	PushPropertyStatusChanged PushType = "PROPERTY_STATUS_CHANGED"
)

// Push is the wire frame. Kind is "approved" or "rejected" for group decisions
// and the new overall status for PROPERTY_STATUS_CHANGED; Status is always the
// subject's overall status after the change.
type Push struct {
	Type        PushType `json:"type"`
	SubjectID   string   `json:"subject_id"`
	SubjectKind string   `json:"subject_kind"`
	GroupKind   string   `json:"group_kind,omitempty"`
	Kind        string   `json:"kind"`
	Sequence    int64    `json:"sequence"`
	Status      string   `json:"status"`
	Reason      string   `json:"reason,omitempty"`
}

// Envelope addresses a push to every live session of one submitter.
type Envelope struct {
	OwnerID string `json:"owner_id"`
	Push    Push   `json:"push"`
}

// EnvelopeFromEvent converts a domain event into a submitter push. The second
// result is false for events the submitter is not notified about.
func EnvelopeFromEvent(event events.Event) (Envelope, bool) {
	env := Envelope{
		OwnerID: event.OwnerID,
		Push: Push{
			SubjectID:   event.SubjectID,
			SubjectKind: string(event.SubjectKind),
			Sequence:    event.Sequence,
		},
	}

	switch payload := event.Payload.(type) {
	case events.GroupDecisionPayload:
		var approved bool
		switch event.Type {
		case events.EventGroupApproved:
			approved = true
		case events.EventGroupRejected:
			approved = false
		default:
			return Envelope{}, false
		}
		env.Push.Type = groupPushType(event.SubjectKind, approved)
		env.Push.GroupKind = string(payload.GroupKind)
		env.Push.Kind = string(payload.NewStatus)
		env.Push.Status = string(payload.OverallStatus)
		env.Push.Reason = payload.Reason
	case events.OverallStatusChangedPayload:
		if event.Type != events.EventOverallStatusChanged || event.SubjectKind != domain.SubjectKindProperty {
			return Envelope{}, false
		}
		env.Push.Type = PushPropertyStatusChanged
		env.Push.Kind = string(payload.NewStatus)
		env.Push.Status = string(payload.NewStatus)
		env.Push.Reason = payload.Reason
	default:
		return Envelope{}, false
	}
	if env.OwnerID == "" {
		return Envelope{}, false
	}
	return env, true
}

func groupPushType(kind domain.SubjectKind, approved bool) PushType {
	switch {
	case kind == domain.SubjectKindPartner && approved:
		return PushPartnerApproved
	case kind == domain.SubjectKindPartner:
		return PushPartnerRejected
	case approved:
		return PushPropertyDocApproved
	default:
		return PushPropertyDocRejected
	}
}
