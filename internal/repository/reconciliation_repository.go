package repository

import (
	"context"
	"time"

	"github.com/saber-em-movimento/backend/internal/directory"
	"github.com/saber-em-movimento/backend/internal/domain"
)

// ReconciliationCollection queues identity accounts that may lack a
// directory record.
const ReconciliationCollection = "reconciliation"

const (
	reconciliationPending  = "pending"
	reconciliationResolved = "resolved"
)

// ReconciliationRepository tracks partially failed registrations.
type ReconciliationRepository interface {
	Create(ctx context.Context, entry *domain.Reconciliation) error
	ListPending(ctx context.Context) ([]domain.Reconciliation, error)
	Resolve(ctx context.Context, id, resolution string) error
}

// ReconciliationIndexes lists the indexes the reconciliation job relies on.
func ReconciliationIndexes() []directory.IndexSpec {
	return []directory.IndexSpec{
		{Name: "reconciliation_status", Collection: ReconciliationCollection, Fields: []string{"status"}},
	}
}

type reconciliationRepository struct {
	dir directory.Directory
	now func() time.Time
}

// NewReconciliationRepository constructs repository.
func NewReconciliationRepository(dir directory.Directory) ReconciliationRepository {
	return &reconciliationRepository{dir: dir, now: time.Now}
}

func (r *reconciliationRepository) Create(ctx context.Context, entry *domain.Reconciliation) error {
	entry.CreatedAt = r.now().UTC()
	return mapDirectoryErr(r.dir.Insert(ctx, ReconciliationCollection, entry.ID, directory.Document{
		"id":         entry.ID,
		"externalId": entry.ExternalID,
		"identifier": entry.Identifier,
		"stage":      entry.Stage,
		"reason":     entry.Reason,
		"status":     reconciliationPending,
		"createdAt":  entry.CreatedAt,
	}))
}

func (r *reconciliationRepository) ListPending(ctx context.Context) ([]domain.Reconciliation, error) {
	docs, err := r.dir.QueryEquals(ctx, ReconciliationCollection, directory.Eq("status", reconciliationPending))
	if err != nil {
		return nil, mapDirectoryErr(err)
	}
	out := make([]domain.Reconciliation, 0, len(docs))
	for _, doc := range docs {
		out = append(out, domain.Reconciliation{
			ID:         doc.String("id"),
			ExternalID: doc.String("externalId"),
			Identifier: doc.String("identifier"),
			Stage:      doc.String("stage"),
			Reason:     doc.String("reason"),
			CreatedAt:  doc.Time("createdAt"),
		})
	}
	return out, nil
}

func (r *reconciliationRepository) Resolve(ctx context.Context, id, resolution string) error {
	return mapDirectoryErr(r.dir.Merge(ctx, ReconciliationCollection, id, directory.Document{
		"status":     reconciliationResolved,
		"resolution": resolution,
		"resolvedAt": r.now().UTC(),
	}))
}
