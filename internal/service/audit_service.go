package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/saber-em-movimento/backend/internal/events"
)

// AuditService writes auth events to the structured log.
type AuditService struct {
	dispatcher events.Dispatcher
	logger     *zap.Logger
}

// NewAuditService creates the service.
func NewAuditService(dispatcher events.Dispatcher, logger *zap.Logger) *AuditService {
	return &AuditService{dispatcher: dispatcher, logger: logger.Named("audit")}
}

// RegisterHandlers subscribes to events.
func (a *AuditService) RegisterHandlers() {
	if a.dispatcher == nil {
		return
	}
	a.dispatcher.Subscribe(events.EventUserRegistered, a.handleUserRegistered)
	a.dispatcher.Subscribe(events.EventUserLoggedIn, a.handleUserLoggedIn)
	a.dispatcher.Subscribe(events.EventPasswordChanged, a.handlePasswordChanged)
}

func (a *AuditService) handleUserRegistered(_ context.Context, event events.Event) error {
	fields := []zap.Field{zap.String("event_id", event.ID), zap.String("user_id", event.UserID)}
	if p, ok := event.Payload.(events.UserRegisteredPayload); ok {
		fields = append(fields, zap.String("role", string(p.Role)))
	}
	a.logger.Info("UserRegistered", fields...)
	return nil
}

func (a *AuditService) handleUserLoggedIn(_ context.Context, event events.Event) error {
	fields := []zap.Field{zap.String("event_id", event.ID), zap.String("user_id", event.UserID)}
	if p, ok := event.Payload.(events.UserLoggedInPayload); ok {
		fields = append(fields, zap.String("strategy", p.Strategy))
	}
	a.logger.Info("UserLoggedIn", fields...)
	return nil
}

func (a *AuditService) handlePasswordChanged(_ context.Context, event events.Event) error {
	fields := []zap.Field{zap.String("event_id", event.ID), zap.String("user_id", event.UserID)}
	if p, ok := event.Payload.(events.PasswordChangedPayload); ok {
		fields = append(fields, zap.Bool("via_reset", p.ViaReset))
	}
	a.logger.Info("PasswordChanged", fields...)
	return nil
}
