package app

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/dev-tams/cachesweep/internal/notify"
	"github.com/dev-tams/cachesweep/internal/retention"
)

const notificationTimeout = 5 * time.Second

// sweepNotifier forwards sweep results to the configured notification routes.
type sweepNotifier struct {
	dispatcher *notify.Dispatcher
	logger     *zap.Logger
}

func (n *sweepNotifier) NotifySweep(ctx context.Context, p retention.Policy, r retention.Result) {
	notifyCtx, cancel := notificationContext(ctx)
	defer cancel()

	if err := n.dispatcher.Notify(notifyCtx, notify.EventFromResult(p, r)); err != nil {
		n.logger.Warn("notification failed",
			zap.String("container", p.ContainerName),
			zap.String("status", string(r.Status)),
			zap.Error(err))
	}
}

func notificationContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		return context.WithTimeout(context.Background(), notificationTimeout)
	}
	return context.WithTimeout(context.WithoutCancel(ctx), notificationTimeout)
}
