package retrieval

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/veridia-ai/veridia-core/pkg/apperrors"
	"github.com/veridia-ai/veridia-core/pkg/database"
	"github.com/veridia-ai/veridia-core/pkg/logging"
	"github.com/veridia-ai/veridia-core/pkg/models"
)

// documentSearcher implements VectorSearcher over the documents ingested
// into the core store, using Postgres full-text ranking.
type documentSearcher struct {
	db     *database.DB
	logger *zap.Logger
}

// NewDocumentSearcher creates a passage searcher over ingested documents.
func NewDocumentSearcher(db *database.DB, logger *zap.Logger) VectorSearcher {
	return &documentSearcher{db: db, logger: logger.Named("doc_search")}
}

func (s *documentSearcher) Search(ctx context.Context, tenantID uuid.UUID, query string, topK int) ([]models.Passage, error) {
	if topK <= 0 {
		topK = 5
	}
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil
	}

	sql := `
		SELECT content, ts_rank(search_vector, q) AS rank
		FROM documents, plainto_tsquery('english', $2) q
		WHERE tenant_id = $1
		AND search_vector @@ q
		ORDER BY rank DESC
		LIMIT $3`

	rows, err := s.db.Query(ctx, sql, tenantID, query, topK)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", apperrors.ErrRetrievalFailure, logging.SanitizeError(err))
	}
	defer rows.Close()

	var passages []models.Passage
	for rows.Next() {
		var p models.Passage
		var rank float32
		if err := rows.Scan(&p.Text, &rank); err != nil {
			return nil, fmt.Errorf("%w: %s", apperrors.ErrRetrievalFailure, logging.SanitizeError(err))
		}
		p.Score = float64(rank)
		passages = append(passages, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %s", apperrors.ErrRetrievalFailure, logging.SanitizeError(err))
	}

	s.logger.Debug("Passage search complete",
		zap.String("tenant_id", tenantID.String()),
		zap.Int("hits", len(passages)))
	return passages, nil
}

// IngestDocument stores one document for a tenant.
func IngestDocument(ctx context.Context, db *database.DB, tenantID uuid.UUID, title, content string) (uuid.UUID, error) {
	var id uuid.UUID
	err := db.QueryRow(ctx,
		`INSERT INTO documents (tenant_id, title, content) VALUES ($1, $2, $3) RETURNING id`,
		tenantID, title, content).Scan(&id)
	if err != nil {
		return uuid.Nil, fmt.Errorf("insert document: %w", err)
	}
	return id, nil
}

var _ VectorSearcher = (*documentSearcher)(nil)
