package engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/veridia-ai/veridia-core/pkg/llm"
	"github.com/veridia-ai/veridia-core/pkg/models"
	"github.com/veridia-ai/veridia-core/pkg/retry"
)

const sqlGenSystemPrompt = `You translate business questions into SQL.
Rules:
- Produce exactly ONE SELECT statement, nothing else.
- Use only the tables and columns listed in the schema.
- Use ANSI SQL: LIKE with LOWER() for case-insensitive matching, no ILIKE,
  no vendor extensions, no comments.
- Include a LIMIT clause.
- Output only the SQL, with no explanation and no code fences.`

// buildSQLGenPrompt describes the whitelisted schema to the model. Only
// policy-approved tables and columns appear; nothing else about the tenant
// database is disclosed.
func buildSQLGenPrompt(query string, policy *models.DatabasePolicy) string {
	var b strings.Builder

	b.WriteString("Schema:\n")
	for _, table := range policy.AllowedTables {
		fmt.Fprintf(&b, "- %s", table)
		if cols := policy.ColumnWhitelist(table); cols != nil {
			fmt.Fprintf(&b, " (%s)", strings.Join(cols, ", "))
		}
		b.WriteString("\n")
	}

	fmt.Fprintf(&b, "\nRow limit: %d\n\nQuestion: %s\n\nSQL:", policy.MaxRows, query)
	return b.String()
}

// generateSQL asks the model for a statement and cleans its output.
// Transient provider failures get one retry; what comes back is untrusted
// and goes straight to the guardrail.
func (e *Engine) generateSQL(ctx context.Context, gen llm.Generator, query string, policy *models.DatabasePolicy) (string, error) {
	req := &llm.Request{
		System:      sqlGenSystemPrompt,
		Prompt:      buildSQLGenPrompt(query, policy),
		Temperature: 0,
	}

	var result *llm.Result
	err := retry.DoIfRetryable(ctx, retry.SingleRetry(), func() error {
		r, err := gen.Generate(ctx, req)
		if err != nil {
			return err
		}
		result = r
		return nil
	})
	if err != nil {
		return "", err
	}

	return stripCodeFences(result.Content), nil
}

// stripCodeFences removes markdown fences models add despite instructions.
func stripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```sql")
		s = strings.TrimPrefix(s, "```")
		if idx := strings.LastIndex(s, "```"); idx >= 0 {
			s = s[:idx]
		}
	}
	return strings.TrimSpace(s)
}
