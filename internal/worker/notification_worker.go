package worker

import (
	"context"

	"github.com/staylink/verification-service/internal/service"
)

// StartNotificationWorker registers notification handlers and starts draining review tasks.
func StartNotificationWorker(ctx context.Context, notificationService *service.NotificationService, reviews *ReviewWorker) {
	if reviews != nil {
		go reviews.Run(ctx)
	}
	if notificationService == nil {
		return
	}
	notificationService.RegisterHandlers()
}
