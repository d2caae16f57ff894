package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/saber-em-movimento/backend/internal/config"
	"github.com/saber-em-movimento/backend/internal/domain"
	"github.com/saber-em-movimento/backend/internal/events"
	"github.com/saber-em-movimento/backend/internal/identity"
	"github.com/saber-em-movimento/backend/internal/repository"
)

// Resolutions recorded on reconciliation entries.
const (
	ResolutionRecordPresent  = "directory_record_present"
	ResolutionAccountDeleted = "identity_account_deleted"
)

// ReconcileService tracks and repairs identity accounts left without a
// directory record by a partially failed registration.
type ReconcileService struct {
	entries     repository.ReconciliationRepository
	users       repository.UserRepository
	provider    identity.Provider
	dispatcher  events.Dispatcher
	logger      *zap.Logger
	compensate  bool
	callTimeout time.Duration
}

// ReconcileDependencies bundles collaborators for the reconcile service.
type ReconcileDependencies struct {
	ReconciliationRepo repository.ReconciliationRepository
	UserRepo           repository.UserRepository
	Provider           identity.Provider
	Dispatcher         events.Dispatcher
	Logger             *zap.Logger
}

// NewReconcileService builds the service.
func NewReconcileService(cfg config.Config, deps ReconcileDependencies) *ReconcileService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReconcileService{
		entries:     deps.ReconciliationRepo,
		users:       deps.UserRepo,
		provider:    deps.Provider,
		dispatcher:  deps.Dispatcher,
		logger:      logger.Named("reconcile"),
		compensate:  cfg.Auth.CompensateOrphans,
		callTimeout: cfg.Auth.CallTimeout(),
	}
}

// RegisterHandlers subscribes to orphaned registration events.
func (r *ReconcileService) RegisterHandlers() {
	if r.dispatcher == nil {
		return
	}
	r.dispatcher.Subscribe(events.EventRegistrationOrphaned, r.handleRegistrationOrphaned)
}

func (r *ReconcileService) handleRegistrationOrphaned(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.RegistrationOrphanedPayload)
	if !ok {
		return fmt.Errorf("unexpected payload %T for %s", event.Payload, event.Type)
	}
	entry := &domain.Reconciliation{
		ID:         uuid.NewString(),
		ExternalID: payload.ExternalID,
		Identifier: payload.Identifier,
		Stage:      payload.Stage,
		Reason:     payload.Reason,
	}
	callCtx, cancel := r.callContext(ctx)
	defer cancel()
	if err := r.entries.Create(callCtx, entry); err != nil {
		r.logger.Error("failed to queue orphaned account",
			zap.String("user_id", payload.ExternalID),
			zap.Error(err))
		return err
	}
	r.logger.Warn("orphaned account queued for reconciliation",
		zap.String("entry_id", entry.ID),
		zap.String("user_id", payload.ExternalID),
		zap.String("stage", payload.Stage))
	return nil
}

// ReconcileReport summarizes one reconciliation pass.
type ReconcileReport struct {
	Checked     int
	Resolved    int
	Compensated int
	Pending     int
	Failed      int
}

// Run processes every pending entry once.
func (r *ReconcileService) Run(ctx context.Context) (ReconcileReport, error) {
	var report ReconcileReport

	callCtx, cancel := r.callContext(ctx)
	pending, err := r.entries.ListPending(callCtx)
	cancel()
	if err != nil {
		return report, fmt.Errorf("list pending reconciliations: %w", err)
	}

	for _, entry := range pending {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		report.Checked++
		r.reconcile(ctx, entry, &report)
	}

	r.logger.Info("reconciliation pass finished",
		zap.Int("checked", report.Checked),
		zap.Int("resolved", report.Resolved),
		zap.Int("compensated", report.Compensated),
		zap.Int("pending", report.Pending),
		zap.Int("failed", report.Failed))
	return report, nil
}

func (r *ReconcileService) reconcile(ctx context.Context, entry domain.Reconciliation, report *ReconcileReport) {
	fields := []zap.Field{zap.String("entry_id", entry.ID), zap.String("user_id", entry.ExternalID)}

	callCtx, cancel := r.callContext(ctx)
	_, err := r.users.GetByID(callCtx, entry.ExternalID)
	cancel()
	switch {
	case err == nil:
		r.resolve(ctx, entry, ResolutionRecordPresent, report, fields)
		return
	case !errors.Is(err, repository.ErrNotFound):
		report.Failed++
		r.logger.Error("directory lookup failed", append(fields, zap.Error(err))...)
		return
	}

	if !r.compensate {
		report.Pending++
		r.logger.Warn("orphaned account awaits operator", fields...)
		return
	}

	callCtx, cancel = r.callContext(ctx)
	err = r.provider.DeleteAccount(callCtx, entry.ExternalID)
	cancel()
	if err != nil && !errors.Is(err, identity.ErrAccountNotFound) {
		report.Failed++
		r.logger.Error("compensating delete failed", append(fields, zap.Error(err))...)
		return
	}
	report.Compensated++
	r.resolve(ctx, entry, ResolutionAccountDeleted, report, fields)
}

func (r *ReconcileService) resolve(ctx context.Context, entry domain.Reconciliation, resolution string, report *ReconcileReport, fields []zap.Field) {
	callCtx, cancel := r.callContext(ctx)
	defer cancel()
	if err := r.entries.Resolve(callCtx, entry.ID, resolution); err != nil {
		report.Failed++
		r.logger.Error("failed to resolve reconciliation entry", append(fields, zap.Error(err))...)
		return
	}
	report.Resolved++
	r.logger.Info("reconciliation entry resolved", append(fields, zap.String("resolution", resolution))...)
}

func (r *ReconcileService) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.callTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, r.callTimeout)
}
