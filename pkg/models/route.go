package models

// Strategy is the retrieval strategy chosen for one query.
type Strategy string

const (
	StrategyVector Strategy = "vector"
	StrategySQL    Strategy = "sql"
	StrategyHybrid Strategy = "hybrid"
)

// RouteDecision is the router's classification outcome. Exactly one decision
// is produced per query; Hybrid triggers both sub-paths under that single
// decision.
type RouteDecision struct {
	Strategy   Strategy `json:"strategy"`
	Confidence float64  `json:"confidence"`
	Rationale  string   `json:"rationale"`
}

// RetrievalSource identifies which path produced a RetrievalResult.
type RetrievalSource string

const (
	SourceVector RetrievalSource = "vector"
	SourceSQL    RetrievalSource = "sql"
)

// RetrievalResult is the unified evidence payload from either path.
// It is immutable once produced and consumed only by synthesis.
type RetrievalResult struct {
	Source   RetrievalSource  `json:"source"`
	Passages []Passage        `json:"passages,omitempty"`
	Columns  []string         `json:"columns,omitempty"`
	Rows     [][]any          `json:"rows,omitempty"`
	Count    int              `json:"count"`
}

// Passage is one semantic-search hit from the vector index.
type Passage struct {
	Text  string  `json:"text"`
	Score float64 `json:"score"`
}
