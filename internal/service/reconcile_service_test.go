package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saber-em-movimento/backend/internal/config"
	"github.com/saber-em-movimento/backend/internal/domain"
	"github.com/saber-em-movimento/backend/internal/identity"
	"github.com/saber-em-movimento/backend/internal/repository"
)

func orphan(t *testing.T, h *harness) string {
	t.Helper()
	h.dir.failInsert[repository.UsersCollection] = errBoom
	_, err := h.auth.Register(context.Background(), anaInput())
	require.Error(t, err)
	delete(h.dir.failInsert, repository.UsersCollection)

	pending, err := h.recon.ListPending(context.Background())
	require.NoError(t, err)
	require.Len(t, pending, 1)
	return pending[0].ExternalID
}

func TestReconcile_LeavesOrphanForOperatorByDefault(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	ctx := context.Background()
	externalID := orphan(t, h)

	report, err := h.reconcile.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, ReconcileReport{Checked: 1, Pending: 1}, report)

	_, err = h.provider.IssueToken(ctx, externalID)
	assert.NoError(t, err)
}

func TestReconcile_ResolvesWhenRecordAppears(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	ctx := context.Background()
	externalID := orphan(t, h)

	// an operator restores the directory record by hand
	require.NoError(t, h.users.Create(ctx, &domain.User{
		ID:         externalID,
		NationalID: "12345678901",
		Role:       domain.RoleStudent,
		FullName:   "Ana Silva",
		BirthDate:  "2010-01-01",
		Identifier: "restored@aprenderemmovimento.com",
	}))

	report, err := h.reconcile.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Resolved)
	assert.Zero(t, report.Compensated)

	pending, err := h.recon.ListPending(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestReconcile_CompensatesWhenEnabled(t *testing.T) {
	t.Parallel()
	h := newHarness(t, func(c *config.Config) { c.Auth.CompensateOrphans = true })
	ctx := context.Background()

	// registration compensation fails once, leaving an entry behind
	h.provider.deleteErr = errBoom
	externalID := orphan(t, h)
	h.provider.deleteErr = nil

	report, err := h.reconcile.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, ReconcileReport{Checked: 1, Resolved: 1, Compensated: 1}, report)

	_, err = h.provider.IssueToken(ctx, externalID)
	assert.ErrorIs(t, err, identity.ErrAccountNotFound)

	report, err = h.reconcile.Run(ctx)
	require.NoError(t, err)
	assert.Zero(t, report.Checked)
}
