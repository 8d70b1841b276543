package synthesis

import (
	"fmt"
	"strings"

	"github.com/veridia-ai/veridia-core/pkg/models"
)

const systemPrompt = `You are a data assistant answering questions for a business user.
Answer using ONLY the evidence provided. If the evidence does not contain
the answer, say so plainly. Never invent values, never speculate about data
you were not given, and never mention SQL, queries, or retrieval mechanics.`

// maxRenderedRows bounds how much tabular evidence enters the prompt.
const maxRenderedRows = 50

// maxRenderedTurns bounds how much conversation history enters the prompt.
const maxRenderedTurns = 5

// buildPrompt assembles the grounded synthesis prompt from the user query,
// the session's prior turns, and the evidence each retrieval path produced.
// History carries only the questions and answers as the user saw them; the
// decisions behind them stay out of the prompt.
func buildPrompt(query string, history []models.Turn, results []*models.RetrievalResult) string {
	var b strings.Builder

	renderHistory(&b, history)

	b.WriteString("Question:\n")
	b.WriteString(query)
	b.WriteString("\n\nEvidence:\n")

	empty := true
	for _, result := range results {
		if result == nil || result.Count == 0 {
			continue
		}
		empty = false
		switch result.Source {
		case models.SourceVector:
			renderPassages(&b, result.Passages)
		case models.SourceSQL:
			renderTable(&b, result.Columns, result.Rows)
		}
	}
	if empty {
		b.WriteString("(no evidence was found)\n")
	}

	b.WriteString("\nAnswer the question using only the evidence above.")
	return b.String()
}

func renderHistory(b *strings.Builder, history []models.Turn) {
	if len(history) == 0 {
		return
	}
	turns := history
	if len(turns) > maxRenderedTurns {
		turns = turns[len(turns)-maxRenderedTurns:]
	}
	b.WriteString("Conversation so far:\n")
	for _, turn := range turns {
		fmt.Fprintf(b, "User: %s\nAssistant: %s\n", strings.TrimSpace(turn.Query), strings.TrimSpace(turn.Answer))
	}
	b.WriteString("\n")
}

func renderPassages(b *strings.Builder, passages []models.Passage) {
	b.WriteString("\nRelevant passages:\n")
	for i, p := range passages {
		fmt.Fprintf(b, "[%d] %s\n", i+1, strings.TrimSpace(p.Text))
	}
}

func renderTable(b *strings.Builder, columns []string, rows [][]any) {
	b.WriteString("\nQuery results:\n")
	b.WriteString(strings.Join(columns, " | "))
	b.WriteString("\n")

	rendered := rows
	truncated := 0
	if len(rendered) > maxRenderedRows {
		truncated = len(rendered) - maxRenderedRows
		rendered = rendered[:maxRenderedRows]
	}

	for _, row := range rendered {
		cells := make([]string, len(row))
		for i, v := range row {
			cells[i] = fmt.Sprintf("%v", v)
		}
		b.WriteString(strings.Join(cells, " | "))
		b.WriteString("\n")
	}
	if truncated > 0 {
		fmt.Fprintf(b, "(%d more rows omitted)\n", truncated)
	}
}
