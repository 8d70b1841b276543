// Package engine orchestrates one query end to end: routing, retrieval
// under guardrails, synthesis, session memory, audit, and metering.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/veridia-ai/veridia-core/pkg/apperrors"
	"github.com/veridia-ai/veridia-core/pkg/audit"
	"github.com/veridia-ai/veridia-core/pkg/guardrail"
	"github.com/veridia-ai/veridia-core/pkg/llm"
	"github.com/veridia-ai/veridia-core/pkg/logging"
	"github.com/veridia-ai/veridia-core/pkg/metering"
	"github.com/veridia-ai/veridia-core/pkg/models"
	"github.com/veridia-ai/veridia-core/pkg/policy"
	"github.com/veridia-ai/veridia-core/pkg/repositories"
	"github.com/veridia-ai/veridia-core/pkg/retrieval"
	"github.com/veridia-ai/veridia-core/pkg/router"
	"github.com/veridia-ai/veridia-core/pkg/session"
	"github.com/veridia-ai/veridia-core/pkg/synthesis"
	"github.com/veridia-ai/veridia-core/pkg/vault"
)

// QueryRequest is one user query against a tenant.
type QueryRequest struct {
	TenantID  uuid.UUID
	SessionID string
	Query     string
}

// QueryResponse is the synthesized answer with its provenance.
type QueryResponse struct {
	SessionID string                   `json:"session_id"`
	Answer    string                   `json:"answer"`
	Decision  models.RouteDecision     `json:"decision"`
	Sources   []models.RetrievalSource `json:"sources"`
	Partial   bool                     `json:"partial,omitempty"`
}

// GeneratorFactory builds a provider client from a resolved credential.
// Indirection for tests; production wiring uses llm.NewGenerator.
type GeneratorFactory func(provider models.ModelProvider, apiKey, model, endpoint string, logger *zap.Logger) (llm.Generator, error)

// Engine wires the query pipeline together.
type Engine struct {
	tenants    repositories.TenantRepository
	vault      vault.Vault
	policies   policy.Store
	router     router.Router
	validator  guardrail.Validator
	searcher   retrieval.VectorSearcher
	executor   retrieval.SQLExecutor
	synth      *synthesis.Engine
	sessions   session.Store
	trail      *audit.Trail
	meter      *metering.Recorder
	factory    GeneratorFactory
	topK       int
	invalidate func(tenantID uuid.UUID)
	logger     *zap.Logger
}

// Deps carries the engine's collaborators.
type Deps struct {
	Tenants   repositories.TenantRepository
	Vault     vault.Vault
	Policies  policy.Store
	Router    router.Router
	Validator guardrail.Validator
	Searcher  retrieval.VectorSearcher
	Executor  retrieval.SQLExecutor
	Synth     *synthesis.Engine
	Sessions  session.Store
	Trail     *audit.Trail
	Meter     *metering.Recorder
	Factory   GeneratorFactory

	// VectorTopK is the passage count requested per vector search.
	// Zero selects the default of 5.
	VectorTopK int

	// InvalidatePools drops cached tenant connections after a policy
	// change. Optional.
	InvalidatePools func(tenantID uuid.UUID)
}

// New creates the engine.
func New(deps Deps, logger *zap.Logger) *Engine {
	factory := deps.Factory
	if factory == nil {
		factory = llm.NewGenerator
	}
	topK := deps.VectorTopK
	if topK <= 0 {
		topK = 5
	}
	return &Engine{
		tenants:    deps.Tenants,
		vault:      deps.Vault,
		policies:   deps.Policies,
		router:     deps.Router,
		validator:  deps.Validator,
		searcher:   deps.Searcher,
		executor:   deps.Executor,
		synth:      deps.Synth,
		sessions:   deps.Sessions,
		trail:      deps.Trail,
		meter:      deps.Meter,
		factory:    factory,
		topK:       topK,
		invalidate: deps.InvalidatePools,
		logger:     logger.Named("engine"),
	}
}

// HandleQuery answers one query, blocking until the full answer is ready.
func (e *Engine) HandleQuery(ctx context.Context, req *QueryRequest) (*QueryResponse, error) {
	return e.handle(ctx, req, nil)
}

// HandleQueryStream answers one query, emitting answer fragments through
// onDelta as they arrive. If the stream is cut short, the partial answer is
// still recorded in session memory and returned with Partial set.
func (e *Engine) HandleQueryStream(ctx context.Context, req *QueryRequest, onDelta func(string) error) (*QueryResponse, error) {
	if onDelta == nil {
		return nil, fmt.Errorf("onDelta is required for streaming")
	}
	return e.handle(ctx, req, onDelta)
}

func (e *Engine) handle(ctx context.Context, req *QueryRequest, onDelta func(string) error) (*QueryResponse, error) {
	tenant, err := e.tenants.Get(ctx, req.TenantID)
	if err != nil {
		return nil, err
	}
	if !tenant.IsActive {
		return nil, fmt.Errorf("tenant %s: %w", req.TenantID, apperrors.ErrTenantInactive)
	}

	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = models.NewSessionID()
	}

	history, err := e.sessions.History(ctx, req.TenantID, sessionID)
	if err != nil {
		// Session memory is advisory; continue without it
		e.logger.Warn("Failed to load session history", zap.Error(err))
		history = nil
	}

	dbPolicy, err := e.policies.GetDatabasePolicy(ctx, req.TenantID)
	hasPolicy := err == nil
	if err != nil && !errors.Is(err, apperrors.ErrTenantNotConfigured) {
		return nil, err
	}

	decision := e.router.Route(req.Query, hasPolicy, history)
	// retrieve may amend the rationale when a path degrades

	cred, err := e.vault.Resolve(ctx, req.TenantID, "query")
	if err != nil {
		return nil, err
	}
	defer cred.Wipe()

	gen, err := e.factory(cred.Provider(), cred.APIKey(), cred.Model(), cred.Endpoint(), e.logger)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrInvalidCredential, err)
	}

	results, sources, err := e.retrieve(ctx, req.TenantID, sessionID, req.Query, &decision, dbPolicy, gen)
	if err != nil {
		e.recordUsage(ctx, req.TenantID, decision.Strategy, cred.Model(), 0, false)
		return nil, err
	}

	var answer *llm.Result
	partial := false
	if onDelta != nil {
		answer, err = e.synth.AnswerStream(ctx, gen, req.Query, history, results, onDelta)
		if err != nil {
			if answer == nil || answer.Content == "" {
				e.recordUsage(ctx, req.TenantID, decision.Strategy, cred.Model(), 0, false)
				return nil, err
			}
			// A cut stream still produced an answer prefix worth keeping
			partial = true
		}
	} else {
		answer, err = e.synth.Answer(ctx, gen, req.Query, history, results)
		if err != nil {
			e.recordUsage(ctx, req.TenantID, decision.Strategy, cred.Model(), 0, false)
			return nil, err
		}
	}

	turn := models.Turn{
		Query:    req.Query,
		Decision: decision,
		Answer:   answer.Content,
		At:       time.Now().UTC(),
	}
	if err := e.sessions.Append(ctx, req.TenantID, sessionID, turn); err != nil {
		e.logger.Warn("Failed to append session turn", zap.Error(err))
	}

	e.recordUsage(ctx, req.TenantID, decision.Strategy, cred.Model(),
		answer.PromptTokens+answer.CompletionTokens, true)

	return &QueryResponse{
		SessionID: sessionID,
		Answer:    answer.Content,
		Decision:  decision,
		Sources:   sources,
		Partial:   partial,
	}, nil
}

// retrieve runs the retrieval paths the decision calls for. A path whose
// backing dependency is down degrades to the other viable path, with the
// degradation noted in the decision's rationale; the query fails only when
// no path remains viable. Validation rejections surface as-is and never
// trigger a fallback.
func (e *Engine) retrieve(
	ctx context.Context,
	tenantID uuid.UUID,
	sessionID, query string,
	decision *models.RouteDecision,
	dbPolicy *models.DatabasePolicy,
	gen llm.Generator,
) ([]*models.RetrievalResult, []models.RetrievalSource, error) {
	switch decision.Strategy {
	case models.StrategyVector:
		result, err := e.vectorPath(ctx, tenantID, query)
		if err == nil {
			return []*models.RetrievalResult{result}, []models.RetrievalSource{models.SourceVector}, nil
		}
		if dbPolicy == nil {
			return nil, nil, fmt.Errorf("%w: %s", apperrors.ErrNoRetrievalPathAvailable, logging.SanitizeError(err))
		}
		sqlResult, sqlErr := e.sqlPath(ctx, tenantID, sessionID, query, dbPolicy, gen)
		if sqlErr != nil {
			return nil, nil, fmt.Errorf("%w: %s", apperrors.ErrNoRetrievalPathAvailable, logging.SanitizeError(err))
		}
		e.degrade(decision, tenantID, "vector path unavailable, degraded to sql", err)
		return []*models.RetrievalResult{sqlResult}, []models.RetrievalSource{models.SourceSQL}, nil

	case models.StrategySQL:
		result, err := e.sqlPath(ctx, tenantID, sessionID, query, dbPolicy, gen)
		if err == nil {
			return []*models.RetrievalResult{result}, []models.RetrievalSource{models.SourceSQL}, nil
		}
		if !transientRetrieval(err) {
			return nil, nil, err
		}
		vecResult, vecErr := e.vectorPath(ctx, tenantID, query)
		if vecErr != nil {
			return nil, nil, fmt.Errorf("%w: %s", apperrors.ErrNoRetrievalPathAvailable, logging.SanitizeError(err))
		}
		e.degrade(decision, tenantID, "sql path unavailable, degraded to vector", err)
		return []*models.RetrievalResult{vecResult}, []models.RetrievalSource{models.SourceVector}, nil

	case models.StrategyHybrid:
		return e.hybridPath(ctx, tenantID, sessionID, query, decision, dbPolicy, gen)

	default:
		return nil, nil, fmt.Errorf("unknown strategy %q", decision.Strategy)
	}
}

// transientRetrieval reports whether a path failure stems from the backing
// dependency rather than from validation or configuration.
func transientRetrieval(err error) bool {
	return errors.Is(err, apperrors.ErrRetrievalFailure) || errors.Is(err, apperrors.ErrExecutionTimeout)
}

// degrade records a path failure in the decision's rationale and the log.
func (e *Engine) degrade(decision *models.RouteDecision, tenantID uuid.UUID, note string, cause error) {
	decision.Rationale += "; " + note
	e.logger.Warn("Retrieval path degraded",
		zap.String("tenant_id", tenantID.String()),
		zap.String("note", note),
		zap.String("error", logging.SanitizeError(cause)))
}

func (e *Engine) vectorPath(ctx context.Context, tenantID uuid.UUID, query string) (*models.RetrievalResult, error) {
	passages, err := e.searcher.Search(ctx, tenantID, query, e.topK)
	if err != nil {
		// One retry for transient search failures
		passages, err = e.searcher.Search(ctx, tenantID, query, e.topK)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s", apperrors.ErrRetrievalFailure, logging.SanitizeError(err))
	}
	return &models.RetrievalResult{
		Source:   models.SourceVector,
		Passages: passages,
		Count:    len(passages),
	}, nil
}

func (e *Engine) sqlPath(
	ctx context.Context,
	tenantID uuid.UUID,
	sessionID, query string,
	dbPolicy *models.DatabasePolicy,
	gen llm.Generator,
) (*models.RetrievalResult, error) {
	if dbPolicy == nil {
		return nil, fmt.Errorf("sql path: %w", apperrors.ErrTenantNotConfigured)
	}

	generated, err := e.generateSQL(ctx, gen, query, dbPolicy)
	if err != nil {
		return nil, err
	}

	validated, err := e.validator.Validate(generated, dbPolicy)
	if err != nil {
		var rej *guardrail.RejectionError
		if errors.As(err, &rej) {
			if rej.Reason == guardrail.ReasonInjectionDetected {
				e.trail.InjectionAttempt(ctx, tenantID, sessionID, rej.Fingerprint)
			} else {
				e.trail.GuardrailRejection(ctx, tenantID, sessionID, string(rej.Reason), rej.Detail)
			}
		}
		return nil, err
	}

	result, err := e.executor.Execute(ctx, tenantID, dbPolicy, validated.SQL)
	if err != nil && (errors.Is(err, apperrors.ErrExecutionTimeout) || errors.Is(err, apperrors.ErrRetrievalFailure)) {
		// Transient execution failures get one retry with the same validated statement.
		result, err = e.executor.Execute(ctx, tenantID, dbPolicy, validated.SQL)
	}
	if err != nil {
		return nil, err
	}

	e.trail.Record(ctx, audit.Event{
		EventType: audit.EventQueryExecuted,
		TenantID:  tenantID,
		SessionID: sessionID,
		Severity:  "info",
		Details: map[string]any{
			"tables":    validated.Tables,
			"row_limit": validated.RowLimit,
			"rows":      result.Count,
		},
	})

	return result, nil
}

// hybridPath runs both retrieval paths concurrently. One failure degrades
// to the surviving path; only both failing kills the query.
func (e *Engine) hybridPath(
	ctx context.Context,
	tenantID uuid.UUID,
	sessionID, query string,
	decision *models.RouteDecision,
	dbPolicy *models.DatabasePolicy,
	gen llm.Generator,
) ([]*models.RetrievalResult, []models.RetrievalSource, error) {
	var (
		wg        sync.WaitGroup
		vecResult *models.RetrievalResult
		vecErr    error
		sqlResult *models.RetrievalResult
		sqlErr    error
	)

	wg.Add(2)
	go func() {
		defer wg.Done()
		vecResult, vecErr = e.vectorPath(ctx, tenantID, query)
	}()
	go func() {
		defer wg.Done()
		sqlResult, sqlErr = e.sqlPath(ctx, tenantID, sessionID, query, dbPolicy, gen)
	}()
	wg.Wait()

	if vecErr != nil && sqlErr != nil {
		return nil, nil, fmt.Errorf("%w: both retrieval paths failed", apperrors.ErrNoRetrievalPathAvailable)
	}

	var results []*models.RetrievalResult
	var sources []models.RetrievalSource
	if vecErr == nil {
		results = append(results, vecResult)
		sources = append(sources, models.SourceVector)
	} else {
		e.degrade(decision, tenantID, "vector path unavailable, degraded to sql only", vecErr)
	}
	if sqlErr == nil {
		results = append(results, sqlResult)
		sources = append(sources, models.SourceSQL)
	} else {
		e.degrade(decision, tenantID, "sql path unavailable, degraded to vector only", sqlErr)
	}

	return results, sources, nil
}

func (e *Engine) recordUsage(ctx context.Context, tenantID uuid.UUID, strategy models.Strategy, model string, tokens int, success bool) {
	if e.meter == nil {
		return
	}
	e.meter.Record(ctx, &models.UsageRecord{
		TenantID:        tenantID,
		Timestamp:       time.Now().UTC(),
		Strategy:        strategy,
		Model:           model,
		EstimatedTokens: tokens,
		Success:         success,
	})
}
