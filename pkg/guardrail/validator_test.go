package guardrail

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veridia-ai/veridia-core/pkg/models"
)

func testPolicy() *models.DatabasePolicy {
	return &models.DatabasePolicy{
		Driver:        models.DriverPostgres,
		DSN:           "postgres://reader@tenant-db/sales",
		AllowedTables: []string{"orders", "customers", "products"},
		AllowedColumns: map[string][]string{
			"orders": {"id", "customer_id", "total", "status", "created_at"},
		},
		MaxRows: 500,
	}
}

func rejectionReason(t *testing.T, err error) Reason {
	t.Helper()
	var rej *RejectionError
	require.True(t, errors.As(err, &rej), "expected RejectionError, got %v", err)
	return rej.Reason
}

func TestValidateAcceptsSelects(t *testing.T) {
	v := NewValidator()
	policy := testPolicy()

	tests := []struct {
		name string
		sql  string
	}{
		{"simple select", "SELECT id, total FROM orders"},
		{"trailing semicolon", "SELECT id FROM orders;"},
		{"where and order by", "SELECT id FROM orders WHERE status = 'shipped' ORDER BY created_at DESC"},
		{"alias", "SELECT o.total FROM orders o WHERE o.status = 'paid'"},
		{"join on allowed tables", "SELECT o.id, c.name FROM orders o JOIN customers c ON o.customer_id = c.id"},
		{"aggregate", "SELECT status, COUNT(*) FROM orders GROUP BY status"},
		{"union of allowed tables", "SELECT id FROM orders UNION SELECT id FROM customers"},
		{"subquery", "SELECT t.cnt FROM (SELECT COUNT(*) AS cnt FROM orders) t"},
		{"star on unrestricted table", "SELECT * FROM customers"},
		{"default schema qualifier", "SELECT id FROM public.orders"},
		{"existing limit under cap", "SELECT id FROM orders LIMIT 10"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := v.Validate(tt.sql, policy)
			require.NoError(t, err)
			assert.NotEmpty(t, result.SQL)
			assert.NotZero(t, result.RowLimit)
		})
	}
}

func TestValidateRejections(t *testing.T) {
	v := NewValidator()
	policy := testPolicy()

	tests := []struct {
		name   string
		sql    string
		reason Reason
	}{
		{"empty input", "   ", ReasonSyntaxError},
		{"unparseable", "SELECT FROM WHERE", ReasonSyntaxError},
		{"insert", "INSERT INTO orders (id) VALUES (1)", ReasonForbiddenStatement},
		{"update", "UPDATE orders SET status = 'x'", ReasonForbiddenStatement},
		{"delete", "DELETE FROM orders", ReasonForbiddenStatement},
		{"drop table", "DROP TABLE orders", ReasonForbiddenStatement},
		{"alter table", "ALTER TABLE orders ADD COLUMN x int", ReasonForbiddenStatement},
		{"set variable", "SET @x = 1", ReasonForbiddenStatement},
		{"select for update", "SELECT id FROM orders FOR UPDATE", ReasonForbiddenStatement},
		{"two statements", "SELECT id FROM orders; DELETE FROM orders", ReasonForbiddenStatement},
		{"stacked after semicolon", "SELECT 1; DROP TABLE orders", ReasonForbiddenStatement},
		{"stacked drop with trailing terminator", "SELECT * FROM orders; DROP TABLE orders;", ReasonForbiddenStatement},
		{"unknown table", "SELECT id FROM payments", ReasonUnauthorizedTable},
		{"whitelisted name in foreign schema", "SELECT id FROM archive.orders", ReasonUnauthorizedTable},
		{"default schema qualifier keeps column limits", "SELECT internal_notes FROM public.orders", ReasonUnauthorizedColumn},
		{"unknown table in join", "SELECT o.id FROM orders o JOIN payments p ON p.order_id = o.id", ReasonUnauthorizedTable},
		{"unknown table in subquery", "SELECT id FROM orders WHERE customer_id IN (SELECT id FROM payments)", ReasonUnauthorizedTable},
		{"hidden column", "SELECT internal_notes FROM orders", ReasonUnauthorizedColumn},
		{"hidden column in where", "SELECT id FROM orders WHERE internal_notes LIKE '%x%'", ReasonUnauthorizedColumn},
		{"hidden column via alias", "SELECT o.internal_notes FROM orders o", ReasonUnauthorizedColumn},
		{"star on whitelisted table", "SELECT * FROM orders", ReasonUnauthorizedColumn},
		{"qualified star on whitelisted table", "SELECT o.* FROM orders o", ReasonUnauthorizedColumn},
		{"unknown qualifier", "SELECT x.id FROM orders", ReasonUnauthorizedColumn},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := v.Validate(tt.sql, policy)
			require.Error(t, err)
			assert.Equal(t, tt.reason, rejectionReason(t, err))
		})
	}
}

func TestValidateSemicolonInLiteralIsNotSplit(t *testing.T) {
	v := NewValidator()

	result, err := v.Validate("SELECT id FROM orders WHERE status = 'a;b'", testPolicy())
	require.NoError(t, err)
	assert.Contains(t, result.SQL, "a;b")
}

func TestValidateSemicolonInCommentIsNotSplit(t *testing.T) {
	v := NewValidator()

	// A semicolon hidden in a comment must not read as a second statement,
	// and the statement itself still validates.
	_, err := v.Validate("SELECT id FROM orders -- tail; note\n", testPolicy())
	require.NoError(t, err)
}

func TestValidateLimitEnforcement(t *testing.T) {
	v := NewValidator()
	policy := testPolicy()

	t.Run("adds limit when absent", func(t *testing.T) {
		result, err := v.Validate("SELECT id FROM orders", policy)
		require.NoError(t, err)
		assert.Equal(t, 500, result.RowLimit)
		assert.Contains(t, strings.ToLower(result.SQL), "limit 500")
	})

	t.Run("caps limit above policy maximum", func(t *testing.T) {
		result, err := v.Validate("SELECT id FROM orders LIMIT 100000", policy)
		require.NoError(t, err)
		assert.Equal(t, 500, result.RowLimit)
		assert.Contains(t, strings.ToLower(result.SQL), "limit 500")
		assert.NotContains(t, result.SQL, "100000")
	})

	t.Run("keeps limit below policy maximum", func(t *testing.T) {
		result, err := v.Validate("SELECT id FROM orders LIMIT 25", policy)
		require.NoError(t, err)
		assert.Equal(t, 25, result.RowLimit)
		assert.Contains(t, strings.ToLower(result.SQL), "limit 25")
	})

	t.Run("union gets top-level limit", func(t *testing.T) {
		result, err := v.Validate("SELECT id FROM orders UNION SELECT id FROM customers", policy)
		require.NoError(t, err)
		assert.Equal(t, 500, result.RowLimit)
		assert.Contains(t, strings.ToLower(result.SQL), "limit 500")
	})
}

func TestValidateInjectionLiteral(t *testing.T) {
	v := NewValidator()

	// The literal parses as a plain string but carries a classic tautology
	// payload; the secondary scan refuses it.
	_, err := v.Validate("SELECT id FROM orders WHERE status = '1'' OR ''1''=''1'", testPolicy())
	require.Error(t, err)

	var rej *RejectionError
	require.True(t, errors.As(err, &rej))
	assert.Equal(t, ReasonInjectionDetected, rej.Reason)
	assert.NotEmpty(t, rej.Fingerprint)
}

func TestValidateReportsTables(t *testing.T) {
	v := NewValidator()

	result, err := v.Validate(
		"SELECT o.id, c.name FROM orders o JOIN customers c ON o.customer_id = c.id",
		testPolicy())
	require.NoError(t, err)
	assert.Equal(t, []string{"customers", "orders"}, result.Tables)
}

func TestValidateRejectionsAreNotRetryable(t *testing.T) {
	v := NewValidator()

	_, err := v.Validate("DELETE FROM orders", testPolicy())
	require.Error(t, err)

	var rej *RejectionError
	require.True(t, errors.As(err, &rej))
	assert.False(t, rej.IsRetryable())
}

func TestValidateRejectionOmitsStatementContent(t *testing.T) {
	v := NewValidator()

	_, err := v.Validate("SELECT id FROM orders WHERE secret_token = 'sk-abc123'", testPolicy())
	require.Error(t, err)
	// The rejection names the column, never the literal
	assert.NotContains(t, err.Error(), "sk-abc123")
	assert.Equal(t, ReasonUnauthorizedColumn, rejectionReason(t, err))
}

func TestValidatePolicySchemaBindsBareEntries(t *testing.T) {
	v := NewValidator()
	policy := testPolicy()
	policy.Schema = "guide"

	result, err := v.Validate("SELECT id FROM guide.orders", policy)
	require.NoError(t, err)
	assert.Contains(t, result.Tables, "orders")

	// With an explicit schema, other schemas are out of reach even for
	// whitelisted names
	_, err = v.Validate("SELECT id FROM public.orders", policy)
	require.Error(t, err)
	assert.Equal(t, ReasonUnauthorizedTable, rejectionReason(t, err))
}

func TestValidateMSSQLDefaultSchema(t *testing.T) {
	v := NewValidator()
	policy := testPolicy()
	policy.Driver = models.DriverMSSQL

	_, err := v.Validate("SELECT id FROM dbo.orders", policy)
	require.NoError(t, err)

	_, err = v.Validate("SELECT id FROM public.orders", policy)
	require.Error(t, err)
	assert.Equal(t, ReasonUnauthorizedTable, rejectionReason(t, err))
}

func TestValidateCaseInsensitivePolicy(t *testing.T) {
	v := NewValidator()

	result, err := v.Validate("SELECT ID, Total FROM Orders", testPolicy())
	require.NoError(t, err)
	assert.Contains(t, result.Tables, "orders")
}
