// Package retrieval reaches into tenant data: passage search over ingested
// documents and read-only SQL execution against the tenant's own database.
// Only guardrail-approved SQL ever reaches an executor.
package retrieval

import (
	"context"

	"github.com/google/uuid"

	"github.com/veridia-ai/veridia-core/pkg/models"
)

// VectorSearcher finds passages relevant to a natural-language query.
type VectorSearcher interface {
	// Search returns up to topK passages for the tenant, best first.
	Search(ctx context.Context, tenantID uuid.UUID, query string, topK int) ([]models.Passage, error)
}

// SQLExecutor runs one validated statement against a tenant data source.
type SQLExecutor interface {
	// Execute runs sql under the policy's timeout and returns columns and
	// rows. Timeouts map to apperrors.ErrExecutionTimeout, connection
	// problems to apperrors.ErrRetrievalFailure.
	Execute(ctx context.Context, tenantID uuid.UUID, policy *models.DatabasePolicy, sql string) (*models.RetrievalResult, error)
}

// ExecutorForDriver dispatches to the executor matching the policy driver.
type ExecutorForDriver struct {
	Postgres SQLExecutor
	MSSQL    SQLExecutor
}

// Execute routes to the driver-specific executor.
func (e *ExecutorForDriver) Execute(ctx context.Context, tenantID uuid.UUID, policy *models.DatabasePolicy, sql string) (*models.RetrievalResult, error) {
	switch policy.Driver {
	case models.DriverMSSQL:
		return e.MSSQL.Execute(ctx, tenantID, policy, sql)
	default:
		return e.Postgres.Execute(ctx, tenantID, policy, sql)
	}
}

var _ SQLExecutor = (*ExecutorForDriver)(nil)
