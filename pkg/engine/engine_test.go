package engine

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/veridia-ai/veridia-core/pkg/apperrors"
	"github.com/veridia-ai/veridia-core/pkg/audit"
	"github.com/veridia-ai/veridia-core/pkg/crypto"
	"github.com/veridia-ai/veridia-core/pkg/guardrail"
	"github.com/veridia-ai/veridia-core/pkg/llm"
	"github.com/veridia-ai/veridia-core/pkg/metering"
	"github.com/veridia-ai/veridia-core/pkg/models"
	"github.com/veridia-ai/veridia-core/pkg/policy"
	"github.com/veridia-ai/veridia-core/pkg/router"
	"github.com/veridia-ai/veridia-core/pkg/session"
	"github.com/veridia-ai/veridia-core/pkg/synthesis"
	"github.com/veridia-ai/veridia-core/pkg/vault"
)

// fakeTenants is an in-memory tenant repository.
type fakeTenants struct {
	byID map[uuid.UUID]*models.Tenant
}

func (f *fakeTenants) Create(_ context.Context, name string) (*models.Tenant, error) {
	t := &models.Tenant{ID: uuid.New(), Name: name, IsActive: true, CreatedAt: time.Now()}
	f.byID[t.ID] = t
	return t, nil
}

func (f *fakeTenants) Get(_ context.Context, id uuid.UUID) (*models.Tenant, error) {
	t, ok := f.byID[id]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	return t, nil
}

func (f *fakeTenants) List(_ context.Context) ([]*models.Tenant, error) { return nil, nil }

func (f *fakeTenants) SetActive(_ context.Context, id uuid.UUID, active bool) error {
	if t, ok := f.byID[id]; ok {
		t.IsActive = active
		return nil
	}
	return apperrors.ErrNotFound
}

// fakeCredentials is an in-memory credential repository backing a real vault.
type fakeCredentials struct {
	byTenant map[uuid.UUID]*models.CredentialRecord
}

func (f *fakeCredentials) Get(_ context.Context, id uuid.UUID) (*models.CredentialRecord, error) {
	rec, ok := f.byTenant[id]
	if !ok {
		return nil, apperrors.ErrTenantNotConfigured
	}
	return rec, nil
}

func (f *fakeCredentials) Upsert(_ context.Context, rec *models.CredentialRecord) error {
	f.byTenant[rec.TenantID] = rec
	return nil
}

func (f *fakeCredentials) Delete(_ context.Context, id uuid.UUID) error {
	delete(f.byTenant, id)
	return nil
}

func (f *fakeCredentials) ForEach(_ context.Context, fn func(*models.CredentialRecord) error) error {
	for _, rec := range f.byTenant {
		if err := fn(rec); err != nil {
			return err
		}
	}
	return nil
}

func (f *fakeCredentials) UpdateCiphertext(_ context.Context, id uuid.UUID, ct string) error {
	if rec, ok := f.byTenant[id]; ok {
		rec.Ciphertext = ct
	}
	return nil
}

// fakePolicies is an in-memory policy repository backing a real policy store.
type fakePolicies struct {
	byTenant map[uuid.UUID]*models.DatabasePolicy
}

func (f *fakePolicies) Get(_ context.Context, id uuid.UUID) (*models.DatabasePolicy, error) {
	p, ok := f.byTenant[id]
	if !ok {
		return nil, apperrors.ErrTenantNotConfigured
	}
	return p, nil
}

func (f *fakePolicies) Upsert(_ context.Context, id uuid.UUID, p *models.DatabasePolicy) error {
	f.byTenant[id] = p
	return nil
}

func (f *fakePolicies) Delete(_ context.Context, id uuid.UUID) error {
	delete(f.byTenant, id)
	return nil
}

// fakeSearcher is a controllable vector path.
type fakeSearcher struct {
	passages []models.Passage
	err      error
	calls    int
}

func (f *fakeSearcher) Search(_ context.Context, _ uuid.UUID, _ string, _ int) ([]models.Passage, error) {
	f.calls++
	return f.passages, f.err
}

// fakeExecutor is a controllable SQL path that records what it was given.
type fakeExecutor struct {
	result   *models.RetrievalResult
	err      error
	failOnce bool
	calls    int
	lastSQL  string
}

func (f *fakeExecutor) Execute(_ context.Context, _ uuid.UUID, _ *models.DatabasePolicy, sql string) (*models.RetrievalResult, error) {
	f.calls++
	f.lastSQL = sql
	if f.failOnce && f.calls == 1 {
		return nil, apperrors.ErrExecutionTimeout
	}
	if f.err != nil {
		return nil, f.err
	}
	if f.result != nil {
		return f.result, nil
	}
	return &models.RetrievalResult{
		Source:  models.SourceSQL,
		Columns: []string{"count"},
		Rows:    [][]any{{42}},
		Count:   1,
	}, nil
}

type testHarness struct {
	engine   *Engine
	tenantID uuid.UUID
	tenants  *fakeTenants
	policies *fakePolicies
	searcher *fakeSearcher
	executor *fakeExecutor
	gen      *llm.MockGenerator
	sessions session.Store
}

// newHarness wires an engine from real components with fakes at the edges.
// The mock generator answers SQL generation prompts with generatedSQL and
// synthesis prompts with a fixed answer.
func newHarness(t *testing.T, generatedSQL string) *testHarness {
	t.Helper()
	logger := zap.NewNop()

	tenantID := uuid.New()
	tenantRepo := &fakeTenants{byID: map[uuid.UUID]*models.Tenant{
		tenantID: {ID: tenantID, Name: "acme", IsActive: true},
	}}

	encryptor, err := crypto.NewCredentialEncryptor("engine-test-master-key")
	require.NoError(t, err)
	trail := audit.NewTrail(logger, nil)
	credRepo := &fakeCredentials{byTenant: map[uuid.UUID]*models.CredentialRecord{}}
	v := vault.New(credRepo, encryptor, trail, logger)
	require.NoError(t, v.Store(context.Background(), tenantID, models.ProviderOpenAI, "sk-test-key", "gpt-4o", ""))

	policyRepo := &fakePolicies{byTenant: map[uuid.UUID]*models.DatabasePolicy{
		tenantID: {
			Driver:        models.DriverPostgres,
			DSN:           "postgres://reader@tenant-db/sales",
			AllowedTables: []string{"orders", "customers"},
			AllowedColumns: map[string][]string{
				"orders": {"id", "customer_id", "total", "status", "created_at"},
			},
			MaxRows: 500,
		},
	}}

	gen := llm.NewMockGenerator()
	gen.GenerateFunc = func(_ context.Context, req *llm.Request) (*llm.Result, error) {
		if strings.Contains(req.Prompt, "Schema:") {
			return &llm.Result{Content: generatedSQL}, nil
		}
		return &llm.Result{Content: "There were 42 orders.", PromptTokens: 100, CompletionTokens: 10}, nil
	}

	searcher := &fakeSearcher{passages: []models.Passage{{Text: "orders ship daily", Score: 0.8}}}
	executor := &fakeExecutor{}
	sessions := session.NewMemoryStore(10, time.Minute)

	eng := New(Deps{
		Tenants:   tenantRepo,
		Vault:     v,
		Policies:  policy.NewStore(policyRepo, logger),
		Router:    router.New(router.Config{}, logger),
		Validator: guardrail.NewValidator(),
		Searcher:  searcher,
		Executor:  executor,
		Synth:     synthesis.NewEngine(logger),
		Sessions:  sessions,
		Trail:     trail,
		Meter:     metering.NewRecorder(nil, logger),
		Factory: func(provider models.ModelProvider, apiKey, model, endpoint string, _ *zap.Logger) (llm.Generator, error) {
			require.Equal(t, models.ProviderOpenAI, provider)
			require.Equal(t, "sk-test-key", apiKey)
			return gen, nil
		},
	}, logger)

	return &testHarness{
		engine:   eng,
		tenantID: tenantID,
		tenants:  tenantRepo,
		policies: policyRepo,
		searcher: searcher,
		executor: executor,
		gen:      gen,
		sessions: sessions,
	}
}

func TestHandleQuerySQLFlow(t *testing.T) {
	h := newHarness(t, "```sql\nSELECT COUNT(*) FROM orders\n```")

	resp, err := h.engine.HandleQuery(context.Background(), &QueryRequest{
		TenantID: h.tenantID,
		Query:    "how many orders were placed, count the total number of orders",
	})
	require.NoError(t, err)

	assert.Equal(t, models.StrategySQL, resp.Decision.Strategy)
	assert.Equal(t, "There were 42 orders.", resp.Answer)
	assert.Equal(t, []models.RetrievalSource{models.SourceSQL}, resp.Sources)
	assert.NotEmpty(t, resp.SessionID)

	// Fences stripped, statement validated and row-limited before execution
	assert.Equal(t, 1, h.executor.calls)
	assert.Contains(t, strings.ToLower(h.executor.lastSQL), "limit 500")
	assert.NotContains(t, h.executor.lastSQL, "```")

	// Turn recorded in session memory
	history, err := h.sessions.History(context.Background(), h.tenantID, resp.SessionID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "There were 42 orders.", history[0].Answer)
}

func TestHandleQueryGuardrailRejection(t *testing.T) {
	h := newHarness(t, "DROP TABLE orders")

	_, err := h.engine.HandleQuery(context.Background(), &QueryRequest{
		TenantID: h.tenantID,
		Query:    "how many orders, count the number of orders in total",
	})
	require.Error(t, err)

	var rej *guardrail.RejectionError
	require.True(t, errors.As(err, &rej))
	assert.Equal(t, guardrail.ReasonForbiddenStatement, rej.Reason)

	// Rejected statements never execute and generation is not retried
	assert.Equal(t, 0, h.executor.calls)
	assert.Equal(t, 1, h.gen.GenerateCalls, "rejected statements are not regenerated")
}

func TestHandleQueryRetriesTransientExecutionOnce(t *testing.T) {
	h := newHarness(t, "SELECT COUNT(*) FROM orders")
	h.executor.failOnce = true

	resp, err := h.engine.HandleQuery(context.Background(), &QueryRequest{
		TenantID: h.tenantID,
		Query:    "how many orders were placed, count the total number of orders",
	})
	require.NoError(t, err)

	assert.Equal(t, "There were 42 orders.", resp.Answer)
	assert.Equal(t, 2, h.executor.calls, "one retry with the same statement")
}

func TestHandleQuerySQLPathDegradesToVector(t *testing.T) {
	h := newHarness(t, "SELECT COUNT(*) FROM orders")
	h.executor.err = apperrors.ErrRetrievalFailure

	resp, err := h.engine.HandleQuery(context.Background(), &QueryRequest{
		TenantID: h.tenantID,
		Query:    "how many orders were placed, count the total number of orders",
	})
	require.NoError(t, err)

	assert.Equal(t, models.StrategySQL, resp.Decision.Strategy)
	assert.Contains(t, resp.Decision.Rationale, "degraded to vector")
	assert.Equal(t, []models.RetrievalSource{models.SourceVector}, resp.Sources)
	assert.Equal(t, 2, h.executor.calls, "one retry before falling back")
	assert.Equal(t, 1, h.searcher.calls)
}

func TestHandleQueryVectorPathDegradesToSQL(t *testing.T) {
	h := newHarness(t, "SELECT status, COUNT(*) FROM orders GROUP BY status")
	h.searcher.err = errors.New("index unavailable")

	resp, err := h.engine.HandleQuery(context.Background(), &QueryRequest{
		TenantID: h.tenantID,
		Query:    "why does the handbook describe refunds, explain the meaning",
	})
	require.NoError(t, err)

	assert.Equal(t, models.StrategyVector, resp.Decision.Strategy)
	assert.Contains(t, resp.Decision.Rationale, "degraded to sql")
	assert.Equal(t, []models.RetrievalSource{models.SourceSQL}, resp.Sources)
	assert.Equal(t, 1, h.executor.calls)
}

func TestHandleQuerySQLPathNoFallbackLeft(t *testing.T) {
	h := newHarness(t, "SELECT COUNT(*) FROM orders")
	h.executor.err = apperrors.ErrRetrievalFailure
	h.searcher.err = errors.New("index unavailable")

	_, err := h.engine.HandleQuery(context.Background(), &QueryRequest{
		TenantID: h.tenantID,
		Query:    "how many orders were placed, count the total number of orders",
	})
	assert.ErrorIs(t, err, apperrors.ErrNoRetrievalPathAvailable)
}

func TestHandleQueryUnauthorizedColumnRejection(t *testing.T) {
	h := newHarness(t, "SELECT internal_notes FROM orders")

	_, err := h.engine.HandleQuery(context.Background(), &QueryRequest{
		TenantID: h.tenantID,
		Query:    "how many orders, count the number of orders in total",
	})
	require.Error(t, err)

	var rej *guardrail.RejectionError
	require.True(t, errors.As(err, &rej))
	assert.Equal(t, guardrail.ReasonUnauthorizedColumn, rej.Reason)
	assert.Equal(t, 0, h.executor.calls)
}

func TestHandleQueryInactiveTenant(t *testing.T) {
	h := newHarness(t, "SELECT id FROM orders")
	require.NoError(t, h.tenants.SetActive(context.Background(), h.tenantID, false))

	_, err := h.engine.HandleQuery(context.Background(), &QueryRequest{
		TenantID: h.tenantID,
		Query:    "anything",
	})
	assert.ErrorIs(t, err, apperrors.ErrTenantInactive)
}

func TestHandleQueryUnknownTenant(t *testing.T) {
	h := newHarness(t, "SELECT id FROM orders")

	_, err := h.engine.HandleQuery(context.Background(), &QueryRequest{
		TenantID: uuid.New(),
		Query:    "anything",
	})
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestHandleQueryNoCredential(t *testing.T) {
	h := newHarness(t, "SELECT id FROM orders")
	otherTenant := uuid.New()
	h.tenants.byID[otherTenant] = &models.Tenant{ID: otherTenant, Name: "other", IsActive: true}

	_, err := h.engine.HandleQuery(context.Background(), &QueryRequest{
		TenantID: otherTenant,
		Query:    "anything",
	})
	assert.ErrorIs(t, err, apperrors.ErrTenantNotConfigured)
}

func TestHandleQueryVectorOnlyWithoutPolicy(t *testing.T) {
	h := newHarness(t, "SELECT id FROM orders")
	require.NoError(t, h.policies.Delete(context.Background(), h.tenantID))

	resp, err := h.engine.HandleQuery(context.Background(), &QueryRequest{
		TenantID: h.tenantID,
		Query:    "how many orders, count the number of orders in total",
	})
	require.NoError(t, err)

	assert.Equal(t, models.StrategyVector, resp.Decision.Strategy)
	assert.Equal(t, []models.RetrievalSource{models.SourceVector}, resp.Sources)
	assert.Equal(t, 1, h.searcher.calls)
	assert.Equal(t, 0, h.executor.calls)
}

func TestHandleQueryHybridDegradation(t *testing.T) {
	h := newHarness(t, "SELECT id, total FROM orders")
	h.searcher.err = errors.New("index unavailable")

	// No lexical signals routes hybrid; the dead vector path degrades
	resp, err := h.engine.HandleQuery(context.Background(), &QueryRequest{
		TenantID: h.tenantID,
		Query:    "xyzzy plugh",
	})
	require.NoError(t, err)

	assert.Equal(t, models.StrategyHybrid, resp.Decision.Strategy)
	assert.Equal(t, []models.RetrievalSource{models.SourceSQL}, resp.Sources)
	assert.Contains(t, resp.Decision.Rationale, "degraded to sql only")
}

func TestHandleQueryHybridBothPathsDead(t *testing.T) {
	h := newHarness(t, "SELECT id FROM orders")
	h.searcher.err = errors.New("index unavailable")
	h.executor.err = apperrors.ErrRetrievalFailure

	_, err := h.engine.HandleQuery(context.Background(), &QueryRequest{
		TenantID: h.tenantID,
		Query:    "xyzzy plugh",
	})
	assert.ErrorIs(t, err, apperrors.ErrNoRetrievalPathAvailable)
}

func TestHandleQueryStreamPartialAnswer(t *testing.T) {
	h := newHarness(t, "SELECT COUNT(*) FROM orders")
	h.gen.GenerateStreamFunc = func(_ context.Context, _ *llm.Request, onDelta func(string) error) (*llm.Result, error) {
		var b strings.Builder
		for _, delta := range []string{"There were ", "42 ", "orders."} {
			if err := onDelta(delta); err != nil {
				return &llm.Result{Content: b.String()}, err
			}
			b.WriteString(delta)
		}
		return &llm.Result{Content: b.String()}, nil
	}

	count := 0
	resp, err := h.engine.HandleQueryStream(context.Background(), &QueryRequest{
		TenantID: h.tenantID,
		Query:    "how many orders, count the number of orders in total",
	}, func(string) error {
		count++
		if count == 2 {
			return errors.New("client disconnected")
		}
		return nil
	})
	require.NoError(t, err)

	assert.True(t, resp.Partial)
	assert.Equal(t, "There were ", resp.Answer)

	// The partial answer is still recorded in session memory
	history, err := h.sessions.History(context.Background(), h.tenantID, resp.SessionID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "There were ", history[0].Answer)
}

func TestHandleQueryStreamFullAnswer(t *testing.T) {
	h := newHarness(t, "SELECT COUNT(*) FROM orders")

	var received strings.Builder
	resp, err := h.engine.HandleQueryStream(context.Background(), &QueryRequest{
		TenantID: h.tenantID,
		Query:    "how many orders, count the number of orders in total",
	}, func(delta string) error {
		received.WriteString(delta)
		return nil
	})
	require.NoError(t, err)

	assert.False(t, resp.Partial)
	assert.Equal(t, resp.Answer, received.String())
}

func TestConfigureDatabaseValidates(t *testing.T) {
	h := newHarness(t, "SELECT id FROM orders")

	err := h.engine.ConfigureDatabase(context.Background(), h.tenantID, &models.DatabasePolicy{
		Driver: "oracle",
	})
	assert.ErrorContains(t, err, "unsupported driver")
}

func TestSessionContinuityAcrossQueries(t *testing.T) {
	h := newHarness(t, "SELECT COUNT(*) FROM orders")
	ctx := context.Background()

	first, err := h.engine.HandleQuery(ctx, &QueryRequest{
		TenantID: h.tenantID,
		Query:    "how many orders, count the number of orders in total",
	})
	require.NoError(t, err)
	require.Equal(t, models.StrategySQL, first.Decision.Strategy)

	// Ambiguous follow-up in the same session inherits the SQL strategy
	second, err := h.engine.HandleQuery(ctx, &QueryRequest{
		TenantID:  h.tenantID,
		SessionID: first.SessionID,
		Query:     "xyzzy plugh",
	})
	require.NoError(t, err)
	assert.Equal(t, models.StrategySQL, second.Decision.Strategy)
	assert.Equal(t, "session continuity", second.Decision.Rationale)
}

func TestSynthesisPromptCarriesSessionHistory(t *testing.T) {
	h := newHarness(t, "SELECT COUNT(*) FROM orders")
	ctx := context.Background()

	first, err := h.engine.HandleQuery(ctx, &QueryRequest{
		TenantID: h.tenantID,
		Query:    "how many orders, count the number of orders in total",
	})
	require.NoError(t, err)

	var synthPrompt string
	h.gen.GenerateFunc = func(_ context.Context, req *llm.Request) (*llm.Result, error) {
		if strings.Contains(req.Prompt, "Schema:") {
			return &llm.Result{Content: "SELECT COUNT(*) FROM orders"}, nil
		}
		synthPrompt = req.Prompt
		return &llm.Result{Content: "Same as before."}, nil
	}

	// The follow-up's synthesis sees the earlier turn, not just the new evidence
	_, err = h.engine.HandleQuery(ctx, &QueryRequest{
		TenantID:  h.tenantID,
		SessionID: first.SessionID,
		Query:     "xyzzy plugh",
	})
	require.NoError(t, err)

	assert.Contains(t, synthPrompt, "Conversation so far:")
	assert.Contains(t, synthPrompt, "how many orders, count the number of orders in total")
	assert.Contains(t, synthPrompt, "There were 42 orders.")
}
