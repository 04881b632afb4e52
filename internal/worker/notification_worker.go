package worker

import (
	"go.uber.org/zap"

	"github.com/festivo/ops-service/internal/service"
)

// StartNotificationWorker subscribes the notification handlers to the
// domain event stream. Dispatch is in-process, so there is no goroutine to
// manage; registration is the whole startup.
func StartNotificationWorker(notificationService *service.NotificationService, logger *zap.Logger) {
	if notificationService == nil {
		return
	}
	notificationService.RegisterHandlers()
	if logger != nil {
		logger.Info("notification handlers registered")
	}
}
