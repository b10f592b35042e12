package http

import (
	"context"
	"runtime/debug"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/staylink/verification-service/internal/observability"
	apperrors "github.com/staylink/verification-service/pkg/util/errorutil"
)

// Codes that mean the caller acted on an out-of-date view of the subject.
var resyncCodes = map[string]bool{
	"STALE_WRITE":        true,
	"INVALID_TRANSITION": true,
	"SUBMISSION_LOCKED":  true,
}

// RegisterMiddlewares attaches global middlewares such as error handling and logging.
func RegisterMiddlewares(app *fiber.App, logger *zap.Logger, metrics *observability.Metrics, timeout time.Duration) {
	if timeout > 0 {
		app.Use(requestTimeoutMiddleware(timeout))
	}
	app.Use(errorHandlingMiddleware(logger, metrics))
	app.Use(observability.RequestLogger(logger, metrics))
}

func requestTimeoutMiddleware(timeout time.Duration) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx, cancel := context.WithTimeout(c.UserContext(), timeout)
		defer cancel()
		c.SetUserContext(ctx)
		return c.Next()
	}
}

func errorHandlingMiddleware(logger *zap.Logger, metrics *observability.Metrics) fiber.Handler {
	return func(c *fiber.Ctx) (err error) {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("panic recovered", zap.Any("panic", r), zap.ByteString("stack", debug.Stack()))
				err = apperrors.NewInternalError(nil)
			}
			if err != nil {
				renderError(c, logger, metrics, apperrors.ToDomainError(err))
				err = nil
			}
		}()
		return c.Next()
	}
}

// renderError writes the error envelope. Conflicts caused by a stale client
// view carry resync=true so clients refetch the subject before retrying.
func renderError(c *fiber.Ctx, logger *zap.Logger, metrics *observability.Metrics, de *apperrors.DomainError) {
	// Route patterns keep subject ids out of the metric labels.
	route := c.Route().Path
	metrics.RecordError(route, c.Method(), de.Code)

	body := fiber.Map{
		"code":    de.Code,
		"message": de.Message,
	}
	if len(de.Details) > 0 {
		body["details"] = de.Details
	}
	resync := resyncCodes[de.Code]
	if resync {
		body["resync"] = true
	}

	switch {
	case de.HTTPStatus >= 500:
		logger.Error("request failed", zap.String("route", route), zap.Error(de))
	case resync:
		logger.Warn("request conflicts with current state",
			zap.String("route", route),
			zap.String("path", c.Path()),
			zap.String("code", de.Code),
			zap.Any("current_status", de.Details["current_status"]))
	}

	_ = c.Status(de.HTTPStatus).JSON(fiber.Map{"error": body})
}
