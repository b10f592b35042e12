package syncclient

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/staylink/verification-service/internal/domain"
	"github.com/staylink/verification-service/internal/realtime"
)

// ErrStoreStopped is returned by calls made after Run has returned.
var ErrStoreStopped = errors.New("sync store stopped")

// Fetcher loads the authoritative state of one subject.
type Fetcher interface {
	Fetch(ctx context.Context, ref SubjectRef) (SubjectState, error)
}

// Notice is a user-visible message produced by an applied push.
type Notice struct {
	SubjectID   string
	SubjectKind domain.SubjectKind
	GroupKind   domain.GroupKind
	Type        realtime.PushType
	Status      domain.OverallStatus
	Reason      string
	Sequence    int64
	Message     string
}

type command func(ctx context.Context, subjects map[string]*SubjectState)

// Store owns every tracked SubjectState. Pushes, refetch results and reads all
// pass through one inbox served by Run, so no two changes to a subject ever
// interleave. Readers get copies.
type Store struct {
	inbox   chan command
	done    chan struct{}
	notices chan Notice
	fetcher Fetcher
	logger  *zap.Logger
}

// NewStore builds a store. Run must be started before any other call returns.
func NewStore(fetcher Fetcher, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		inbox:   make(chan command),
		done:    make(chan struct{}),
		notices: make(chan Notice, 64),
		fetcher: fetcher,
		logger:  logger,
	}
}

// Run serves the inbox until ctx is cancelled.
func (s *Store) Run(ctx context.Context) error {
	defer close(s.done)
	subjects := make(map[string]*SubjectState)
	for {
		select {
		case <-ctx.Done():
			return nil
		case cmd := <-s.inbox:
			cmd(ctx, subjects)
		}
	}
}

// Notices delivers one Notice per applied push. Notices are dropped when the
// reader falls behind.
func (s *Store) Notices() <-chan Notice {
	return s.notices
}

func (s *Store) do(ctx context.Context, cmd command) error {
	finished := make(chan struct{})
	wrapped := func(runCtx context.Context, subjects map[string]*SubjectState) {
		defer close(finished)
		cmd(runCtx, subjects)
	}
	select {
	case s.inbox <- wrapped:
	case <-ctx.Done():
		return ctx.Err()
	case <-s.done:
		return ErrStoreStopped
	}
	<-finished
	return nil
}

// Track starts keeping ref in sync. Its state stays empty until the first refetch.
func (s *Store) Track(ctx context.Context, ref SubjectRef) error {
	return s.do(ctx, func(_ context.Context, subjects map[string]*SubjectState) {
		if _, ok := subjects[ref.ID]; !ok {
			subjects[ref.ID] = &SubjectState{ID: ref.ID, Kind: ref.Kind, Stale: true}
		}
	})
}

// Tracked lists tracked subjects ordered by id.
func (s *Store) Tracked(ctx context.Context) ([]SubjectRef, error) {
	var refs []SubjectRef
	err := s.do(ctx, func(_ context.Context, subjects map[string]*SubjectState) {
		for _, st := range subjects {
			refs = append(refs, st.Ref())
		}
	})
	sort.Slice(refs, func(i, j int) bool { return refs[i].ID < refs[j].ID })
	return refs, err
}

// Snapshot returns a copy of the subject's state.
func (s *Store) Snapshot(ctx context.Context, subjectID string) (SubjectState, bool, error) {
	var (
		out   SubjectState
		found bool
	)
	err := s.do(ctx, func(_ context.Context, subjects map[string]*SubjectState) {
		if st, ok := subjects[subjectID]; ok {
			out = st.clone()
			found = true
		}
	})
	return out, found, err
}

// Replace installs a fetched state. A result older than what the store has
// already applied is discarded; a newer refetch is on its way in that case.
func (s *Store) Replace(ctx context.Context, state SubjectState) error {
	return s.do(ctx, func(_ context.Context, subjects map[string]*SubjectState) {
		s.replace(subjects, state)
	})
}

func (s *Store) replace(subjects map[string]*SubjectState, state SubjectState) bool {
	if current, ok := subjects[state.ID]; ok && state.LastSequence < current.LastSequence {
		s.logger.Debug("discarding outdated refetch",
			zap.String("subject_id", state.ID),
			zap.Int64("fetched_sequence", state.LastSequence),
			zap.Int64("local_sequence", current.LastSequence))
		return false
	}
	next := state.clone()
	next.Stale = false
	subjects[state.ID] = &next
	return true
}

// Apply feeds one push into the store. Pushes at or below the subject's last
// applied sequence are ignored and report false. An applied push updates the
// local view, emits a Notice and schedules a refetch. Unrecognized values are
// returned as errors and leave the state untouched.
func (s *Store) Apply(ctx context.Context, push realtime.Push) (bool, error) {
	var (
		applied bool
		err     error
	)
	doErr := s.do(ctx, func(runCtx context.Context, subjects map[string]*SubjectState) {
		applied, err = s.apply(runCtx, subjects, push)
	})
	if doErr != nil {
		return false, doErr
	}
	return applied, err
}

func (s *Store) apply(runCtx context.Context, subjects map[string]*SubjectState, push realtime.Push) (bool, error) {
	update, err := parsePush(push)
	if err != nil {
		return false, err
	}

	current, ok := subjects[push.SubjectID]
	if !ok {
		current = &SubjectState{ID: push.SubjectID, Kind: update.subjectKind, Stale: true}
		subjects[push.SubjectID] = current
	}
	if push.Sequence <= current.LastSequence {
		s.logger.Debug("ignoring replayed push",
			zap.String("subject_id", push.SubjectID),
			zap.Int64("sequence", push.Sequence),
			zap.Int64("last_applied", current.LastSequence))
		return false, nil
	}

	next := current.clone()
	if update.group != "" {
		group := next.Group(update.group)
		if group == nil {
			next.Groups = append(next.Groups, GroupState{Kind: update.group, Status: domain.GroupStatusPending, Artifacts: map[string]string{}})
			group = &next.Groups[len(next.Groups)-1]
		}
		if _, terr := domain.Transition(group.Status, update.event); terr != nil {
			s.logger.Info("push does not follow local view, marking stale",
				zap.String("subject_id", push.SubjectID),
				zap.String("group_kind", string(update.group)),
				zap.Error(terr))
			next.Stale = true
		}
		group.Status = update.groupStatus
		group.Reason = ""
		if update.groupStatus == domain.GroupStatusRejected {
			group.Reason = push.Reason
		}
		group.CanEdit = domain.CanEdit(&domain.DocumentGroup{Status: update.groupStatus})
	}
	next.OverallStatus = update.overall
	next.LastSequence = push.Sequence
	subjects[push.SubjectID] = &next

	s.notify(Notice{
		SubjectID:   push.SubjectID,
		SubjectKind: update.subjectKind,
		GroupKind:   update.group,
		Type:        push.Type,
		Status:      update.overall,
		Reason:      push.Reason,
		Sequence:    push.Sequence,
		Message:     noticeMessage(update, push.Reason),
	})
	go s.refetch(runCtx, next.Ref())
	return true, nil
}

func (s *Store) notify(n Notice) {
	select {
	case s.notices <- n:
	default:
		s.logger.Warn("notice dropped, reader is behind", zap.String("subject_id", n.SubjectID))
	}
}

func (s *Store) refetch(ctx context.Context, ref SubjectRef) {
	if err := s.Refetch(ctx, ref); err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, ErrStoreStopped) {
		s.logger.Warn("refetch failed", zap.String("subject_id", ref.ID), zap.Error(err))
	}
}

// Refetch loads ref from the server and replaces the local state. A failed
// fetch marks the subject stale.
func (s *Store) Refetch(ctx context.Context, ref SubjectRef) error {
	if s.fetcher == nil {
		return nil
	}
	state, err := s.fetcher.Fetch(ctx, ref)
	if err != nil {
		_ = s.do(ctx, func(_ context.Context, subjects map[string]*SubjectState) {
			if st, ok := subjects[ref.ID]; ok {
				st.Stale = true
			}
		})
		return fmt.Errorf("fetch %s %s: %w", ref.Kind, ref.ID, err)
	}
	return s.Replace(ctx, state)
}

// RefetchAll refetches every tracked subject in parallel. It is the
// point-in-time resync performed after each (re)connect.
func (s *Store) RefetchAll(ctx context.Context) error {
	refs, err := s.Tracked(ctx)
	if err != nil {
		return err
	}
	g, gctx := errgroup.WithContext(ctx)
	for _, ref := range refs {
		ref := ref
		g.Go(func() error {
			return s.Refetch(gctx, ref)
		})
	}
	return g.Wait()
}

type pushUpdate struct {
	subjectKind domain.SubjectKind
	group       domain.GroupKind
	event       domain.GroupEvent
	groupStatus domain.GroupStatus
	overall     domain.OverallStatus
}

// parsePush checks every free-form field of a push against the closed vocabularies.
func parsePush(push realtime.Push) (pushUpdate, error) {
	if push.SubjectID == "" {
		return pushUpdate{}, fmt.Errorf("%w: push without subject id", domain.ErrUnknownValue)
	}
	var u pushUpdate
	switch push.Type {
	case realtime.PushPartnerApproved, realtime.PushPartnerRejected:
		u.subjectKind = domain.SubjectKindPartner
		u.group = domain.GroupKindIdentity
	case realtime.PushPropertyDocApproved, realtime.PushPropertyDocRejected:
		u.subjectKind = domain.SubjectKindProperty
		kind, err := domain.ParseGroupKind(push.GroupKind)
		if err != nil {
			return pushUpdate{}, err
		}
		u.group = kind
	case realtime.PushPropertyStatusChanged:
		u.subjectKind = domain.SubjectKindProperty
	default:
		return pushUpdate{}, fmt.Errorf("%w: push type %q", domain.ErrUnknownValue, push.Type)
	}

	overall, err := domain.ParseOverallStatus(u.subjectKind, push.Status)
	if err != nil {
		return pushUpdate{}, err
	}
	u.overall = overall

	if u.group == "" {
		if _, err := domain.ParseOverallStatus(u.subjectKind, push.Kind); err != nil {
			return pushUpdate{}, err
		}
		return u, nil
	}

	status, err := domain.ParseGroupStatus(push.Kind)
	if err != nil {
		return pushUpdate{}, err
	}
	approvedType := push.Type == realtime.PushPartnerApproved || push.Type == realtime.PushPropertyDocApproved
	switch {
	case status == domain.GroupStatusApproved && approvedType:
		u.event = domain.EventApprove
	case status == domain.GroupStatusRejected && !approvedType:
		u.event = domain.EventReject
	default:
		return pushUpdate{}, fmt.Errorf("%w: %s push with kind %q", domain.ErrUnknownValue, push.Type, push.Kind)
	}
	u.groupStatus = status
	return u, nil
}

func noticeMessage(u pushUpdate, reason string) string {
	if u.group == "" {
		msg := fmt.Sprintf("Property status changed to %s", u.overall)
		if reason != "" {
			msg += ": " + reason
		}
		return msg
	}
	if u.groupStatus == domain.GroupStatusApproved {
		return fmt.Sprintf("Your %s documents were approved", u.group)
	}
	msg := fmt.Sprintf("Your %s documents were rejected", u.group)
	if reason != "" {
		msg += ": " + reason
	}
	return msg
}
