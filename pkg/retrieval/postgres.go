package retrieval

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/veridia-ai/veridia-core/pkg/apperrors"
	"github.com/veridia-ai/veridia-core/pkg/logging"
	"github.com/veridia-ai/veridia-core/pkg/models"
)

// postgresExecutor runs validated statements against tenant PostgreSQL
// databases through the shared pool manager.
type postgresExecutor struct {
	pools  *PoolManager
	logger *zap.Logger
}

// NewPostgresExecutor creates the executor for postgres-driver policies.
func NewPostgresExecutor(pools *PoolManager, logger *zap.Logger) SQLExecutor {
	return &postgresExecutor{pools: pools, logger: logger.Named("pg_executor")}
}

func (e *postgresExecutor) Execute(ctx context.Context, tenantID uuid.UUID, policy *models.DatabasePolicy, sql string) (*models.RetrievalResult, error) {
	pool, err := e.pools.GetOrCreate(ctx, tenantID, policy.DSN)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", apperrors.ErrRetrievalFailure, logging.SanitizeError(err))
	}

	execCtx, cancel := context.WithTimeout(ctx, policy.Timeout())
	defer cancel()

	rows, err := pool.Query(execCtx, sql)
	if err != nil {
		return nil, e.classify(execCtx, err)
	}
	defer rows.Close()

	fields := rows.FieldDescriptions()
	columns := make([]string, len(fields))
	for i, f := range fields {
		columns[i] = string(f.Name)
	}

	var data [][]any
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, e.classify(execCtx, err)
		}
		data = append(data, values)
	}
	if err := rows.Err(); err != nil {
		return nil, e.classify(execCtx, err)
	}

	e.logger.Debug("Statement executed",
		zap.String("tenant_id", tenantID.String()),
		zap.Int("rows", len(data)))

	return &models.RetrievalResult{
		Source:  models.SourceSQL,
		Columns: columns,
		Rows:    data,
		Count:   len(data),
	}, nil
}

func (e *postgresExecutor) classify(ctx context.Context, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return apperrors.ErrExecutionTimeout
	}
	return fmt.Errorf("%w: %s", apperrors.ErrRetrievalFailure, logging.SanitizeError(err))
}

var _ SQLExecutor = (*postgresExecutor)(nil)
