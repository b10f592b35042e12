package dto

import (
	"time"

	"github.com/staylink/verification-service/internal/domain"
)

// GroupDecisionRequest is an operator's decision on one group.
type GroupDecisionRequest struct {
	Status string `json:"status" validate:"required,oneof=approved rejected manual_review"`
	Reason string `json:"reason" validate:"max=2000"`
}

// OverallStatusRequest sets a property's overall status holistically.
type OverallStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=verified rejected suspended"`
	Reason string `json:"reason" validate:"max=2000"`
}

// ListingRequest toggles a property's listed flag.
type ListingRequest struct {
	Listed *bool `json:"listed" validate:"required"`
}

// FieldEditRequest reports a property field the host just edited.
type FieldEditRequest struct {
	Field string `json:"field" validate:"required,max=64"`
}

// PageQuery bounds list endpoints.
type PageQuery struct {
	Limit  int `query:"limit" validate:"omitempty,min=1,max=100"`
	Offset int `query:"offset" validate:"omitempty,min=0"`
}

// HistoryResponse renders one audit entry.
type HistoryResponse struct {
	ID            string         `json:"id"`
	ChangedByType string         `json:"changed_by_type"`
	ChangedByID   *string        `json:"changed_by_id,omitempty"`
	ChangeType    string         `json:"change_type"`
	GroupKind     *string        `json:"group_kind,omitempty"`
	OldValue      map[string]any `json:"old_value"`
	NewValue      map[string]any `json:"new_value"`
	CreatedAt     time.Time      `json:"created_at"`
}

// History renders audit entries.
func History(entries []domain.VerificationHistory) []HistoryResponse {
	out := make([]HistoryResponse, 0, len(entries))
	for _, e := range entries {
		item := HistoryResponse{
			ID:            e.ID,
			ChangedByType: string(e.ChangedByType),
			ChangedByID:   e.ChangedByID,
			ChangeType:    string(e.ChangeType),
			OldValue:      e.OldValue,
			NewValue:      e.NewValue,
			CreatedAt:     e.CreatedAt,
		}
		if e.GroupKind != nil {
			kind := string(*e.GroupKind)
			item.GroupKind = &kind
		}
		out = append(out, item)
	}
	return out
}
