package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/staylink/verification-service/internal/events"
	"github.com/staylink/verification-service/internal/queue"
	"github.com/staylink/verification-service/internal/realtime"
)

// ReviewSink accepts review tasks without blocking the caller.
type ReviewSink interface {
	Submit(task queue.ReviewTask) bool
}

// NotificationService routes domain events: decisions go to the submitter's
// live sessions, submissions and reverification requests go to the operator
// review queue. Delivery failures are logged and never fail the action that
// produced the event.
type NotificationService struct {
	dispatcher events.Dispatcher
	broker     realtime.Broker
	reviews    ReviewSink
	logger     *zap.Logger
}

// NewNotificationService creates the service.
func NewNotificationService(dispatcher events.Dispatcher, broker realtime.Broker, reviews ReviewSink, logger *zap.Logger) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationService{
		dispatcher: dispatcher,
		broker:     broker,
		reviews:    reviews,
		logger:     logger,
	}
}

// RegisterHandlers subscribes to events.
func (n *NotificationService) RegisterHandlers() {
	if n.dispatcher == nil {
		return
	}
	n.dispatcher.Subscribe(events.EventGroupApproved, n.handleDecision)
	n.dispatcher.Subscribe(events.EventGroupRejected, n.handleDecision)
	n.dispatcher.Subscribe(events.EventOverallStatusChanged, n.handleDecision)
	n.dispatcher.Subscribe(events.EventGroupSubmitted, n.handleReviewNeeded)
	n.dispatcher.Subscribe(events.EventGroupFlagged, n.handleReviewNeeded)
	n.dispatcher.Subscribe(events.EventReverificationRequired, n.handleReviewNeeded)
}

func (n *NotificationService) handleDecision(ctx context.Context, event events.Event) error {
	env, ok := realtime.EnvelopeFromEvent(event)
	if !ok {
		return nil
	}
	if n.broker == nil {
		return nil
	}
	if err := n.broker.Publish(ctx, env); err != nil {
		return fmt.Errorf("push %s to %s: %w", env.Push.Type, env.OwnerID, err)
	}
	n.logger.Debug("push published",
		zap.String("type", string(env.Push.Type)),
		zap.String("subject_id", env.Push.SubjectID),
		zap.Int64("sequence", env.Push.Sequence))
	return nil
}

func (n *NotificationService) handleReviewNeeded(_ context.Context, event events.Event) error {
	if n.reviews == nil {
		return nil
	}
	task := queue.ReviewTask{
		EventID:     event.ID,
		Type:        string(event.Type),
		SubjectID:   event.SubjectID,
		SubjectKind: string(event.SubjectKind),
		Sequence:    event.Sequence,
		At:          event.Timestamp,
	}
	switch payload := event.Payload.(type) {
	case events.GroupDecisionPayload:
		task.GroupKind = string(payload.GroupKind)
	case events.ReverificationPayload:
		task.Trigger = payload.Trigger
	}
	if !n.reviews.Submit(task) {
		return fmt.Errorf("review queue full, dropped task for %s", event.SubjectID)
	}
	return nil
}
