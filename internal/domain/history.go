package domain

import "time"

// HistoryChangeType captures what changed in a history entry.
type HistoryChangeType string

const (
	ChangeTypeGroupStatus    HistoryChangeType = "GROUP_STATUS_CHANGE"
	ChangeTypeOverride       HistoryChangeType = "OVERRIDE_CHANGE"
	ChangeTypeReverification HistoryChangeType = "REVERIFICATION_HOLD"
	ChangeTypeListing        HistoryChangeType = "LISTING_CHANGE"
)

// VerificationHistory is an immutable audit trail entry for a subject.
type VerificationHistory struct {
	ID            string
	SubjectID     string
	ChangedByType ActorType
	ChangedByID   *string
	ChangeType    HistoryChangeType
	GroupKind     *GroupKind
	OldValue      map[string]any
	NewValue      map[string]any
	CreatedAt     time.Time
}
