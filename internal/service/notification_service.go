package service

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"github.com/spec-kit/issue-tracker/internal/config"
	"github.com/spec-kit/issue-tracker/internal/events"
	"github.com/spec-kit/issue-tracker/internal/persistence"
)

// NotificationService reacts to domain events: it logs them and journals
// them to a capped redis list for external inspection.
type NotificationService struct {
	dispatcher events.Dispatcher
	logger     *zap.Logger
	redis      *persistence.Redis
	cfg        config.JournalConfig
}

// NewNotificationService creates the service.
func NewNotificationService(dispatcher events.Dispatcher, logger *zap.Logger, redis *persistence.Redis, cfg config.JournalConfig) *NotificationService {
	return &NotificationService{
		dispatcher: dispatcher,
		logger:     logger,
		redis:      redis,
		cfg:        cfg,
	}
}

// RegisterHandlers subscribes to events.
func (n *NotificationService) RegisterHandlers() {
	if n.dispatcher == nil {
		return
	}
	n.dispatcher.Subscribe(events.EventUserRegistered, n.handleEvent)
	n.dispatcher.Subscribe(events.EventIssueCreated, n.handleEvent)
	n.dispatcher.Subscribe(events.EventIssueUpdated, n.handleEvent)
	n.dispatcher.Subscribe(events.EventIssueStatusChanged, n.handleEvent)
}

func (n *NotificationService) handleEvent(ctx context.Context, event events.Event) error {
	n.logger.Info(string(event.Type),
		zap.String("event_id", event.ID),
		zap.String("actor_id", event.ActorID),
		zap.Any("payload", event.Payload))
	n.journalEvent(ctx, event)
	return nil
}

// journalEvent appends the event to the redis journal, trimming it to the
// configured cap. Journal failures are logged and never fail the request.
func (n *NotificationService) journalEvent(ctx context.Context, event events.Event) {
	if n.redis == nil || n.redis.Client == nil || n.cfg.Key == "" {
		return
	}
	encoded, err := json.Marshal(event)
	if err != nil {
		n.logger.Warn("encode event for journal", zap.Error(err))
		return
	}
	pipe := n.redis.Client.Pipeline()
	pipe.LPush(ctx, n.cfg.Key, encoded)
	if n.cfg.MaxSize > 0 {
		pipe.LTrim(ctx, n.cfg.Key, 0, n.cfg.MaxSize-1)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		n.logger.Warn("journal event", zap.Error(err), zap.String("event_id", event.ID))
	}
}
