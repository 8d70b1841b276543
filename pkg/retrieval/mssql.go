package retrieval

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"sync"

	"github.com/google/uuid"
	_ "github.com/microsoft/go-mssqldb"
	"go.uber.org/zap"

	"github.com/veridia-ai/veridia-core/pkg/apperrors"
	"github.com/veridia-ai/veridia-core/pkg/logging"
	"github.com/veridia-ai/veridia-core/pkg/models"
)

// mssqlExecutor runs validated statements against tenant SQL Server
// databases. database/sql handles pooling; one handle is kept per tenant.
type mssqlExecutor struct {
	mu       sync.Mutex
	handles  map[string]*sql.DB // key: tenantID
	maxConns int
	logger   *zap.Logger
}

// NewMSSQLExecutor creates the executor for mssql-driver policies.
func NewMSSQLExecutor(maxConns int, logger *zap.Logger) SQLExecutor {
	if maxConns <= 0 {
		maxConns = DefaultPoolMaxConns
	}
	return &mssqlExecutor{
		handles:  make(map[string]*sql.DB),
		maxConns: maxConns,
		logger:   logger.Named("mssql_executor"),
	}
}

func (e *mssqlExecutor) handle(tenantID uuid.UUID, dsn string) (*sql.DB, error) {
	key := tenantID.String()

	e.mu.Lock()
	defer e.mu.Unlock()

	if db, ok := e.handles[key]; ok {
		return db, nil
	}

	db, err := sql.Open("sqlserver", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlserver handle: %s", logging.SanitizeError(err))
	}
	db.SetMaxOpenConns(e.maxConns)
	db.SetMaxIdleConns(1)

	e.handles[key] = db
	e.logger.Info("Tenant handle created", zap.String("tenant_id", key))
	return db, nil
}

// limitClause matches the trailing limit the validator appends. SQL Server
// has no LIMIT syntax, so the clause is stripped and the cap enforced while
// scanning.
var limitClause = regexp.MustCompile(`(?i)\s+limit\s+(?:(\d+),\s*)?(\d+)\s*$`)

// translateLimit removes a trailing LIMIT and returns (sql, offset, rowcount).
// rowcount 0 means no limit was present.
func translateLimit(query string) (string, int, int) {
	m := limitClause.FindStringSubmatch(query)
	if m == nil {
		return query, 0, 0
	}
	offset := 0
	if m[1] != "" {
		offset, _ = strconv.Atoi(m[1])
	}
	rowcount, _ := strconv.Atoi(m[2])
	return query[:len(query)-len(m[0])], offset, rowcount
}

func (e *mssqlExecutor) Execute(ctx context.Context, tenantID uuid.UUID, policy *models.DatabasePolicy, query string) (*models.RetrievalResult, error) {
	db, err := e.handle(tenantID, policy.DSN)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", apperrors.ErrRetrievalFailure, logging.SanitizeError(err))
	}

	query, skip, limit := translateLimit(query)

	execCtx, cancel := context.WithTimeout(ctx, policy.Timeout())
	defer cancel()

	rows, err := db.QueryContext(execCtx, query)
	if err != nil {
		return nil, e.classify(execCtx, err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, e.classify(execCtx, err)
	}

	var data [][]any
	for rows.Next() {
		if skip > 0 {
			skip--
			continue
		}
		if limit > 0 && len(data) >= limit {
			break
		}
		values := make([]any, len(columns))
		scanTargets := make([]any, len(columns))
		for i := range values {
			scanTargets[i] = &values[i]
		}
		if err := rows.Scan(scanTargets...); err != nil {
			return nil, e.classify(execCtx, err)
		}
		for i, v := range values {
			if b, ok := v.([]byte); ok {
				values[i] = string(b)
			}
		}
		data = append(data, values)
	}
	if err := rows.Err(); err != nil {
		return nil, e.classify(execCtx, err)
	}

	return &models.RetrievalResult{
		Source:  models.SourceSQL,
		Columns: columns,
		Rows:    data,
		Count:   len(data),
	}, nil
}

func (e *mssqlExecutor) classify(ctx context.Context, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return apperrors.ErrExecutionTimeout
	}
	return fmt.Errorf("%w: %s", apperrors.ErrRetrievalFailure, logging.SanitizeError(err))
}

// Close releases every tenant handle.
func (e *mssqlExecutor) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	var firstErr error
	for key, db := range e.handles {
		if err := db.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(e.handles, key)
	}
	return firstErr
}

var _ SQLExecutor = (*mssqlExecutor)(nil)
