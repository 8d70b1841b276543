// Package guardrail validates model-generated SQL before it may touch a
// tenant data source. Validation is allowlist-based: a statement passes only
// if it is a single SELECT over tables and columns the tenant's policy
// permits, and every statement leaves with an enforced row limit.
package guardrail

import (
	"sort"
	"strconv"
	"strings"

	libinjection "github.com/corazawaf/libinjection-go"
	"github.com/xwb1989/sqlparser"

	"github.com/veridia-ai/veridia-core/pkg/models"
)

// Result is the outcome of a successful validation.
type Result struct {
	// SQL is the regenerated statement with the row limit applied. Only
	// this string may be executed; the input is discarded.
	SQL string
	// Tables lists the resolved table names the statement reads.
	Tables []string
	// RowLimit is the limit the statement carries after enforcement.
	RowLimit int
}

// Validator checks generated SQL against a tenant policy.
type Validator interface {
	// Validate returns the executable form of sql or a *RejectionError.
	Validate(sql string, policy *models.DatabasePolicy) (*Result, error)
}

type validator struct{}

// NewValidator creates a statement validator. The validator is stateless
// and safe for concurrent use.
func NewValidator() Validator {
	return &validator{}
}

func (v *validator) Validate(sql string, policy *models.DatabasePolicy) (*Result, error) {
	normalized, multiple := normalize(sql)
	if normalized == "" {
		return nil, reject(ReasonSyntaxError, "empty statement")
	}
	if multiple {
		return nil, reject(ReasonForbiddenStatement, "multiple statements")
	}

	stmt, err := sqlparser.Parse(normalized)
	if err != nil {
		// Parser internals stay out of the rejection; they may quote
		// statement content.
		return nil, reject(ReasonSyntaxError, "")
	}

	sel, ok := stmt.(sqlparser.SelectStatement)
	if !ok {
		return nil, reject(ReasonForbiddenStatement, statementKind(stmt))
	}
	if lock := selectLock(sel); lock != "" {
		return nil, reject(ReasonForbiddenStatement, "locking clause")
	}

	scope, err := collectTables(sel, policy)
	if err != nil {
		return nil, err
	}
	if err := checkColumns(sel, scope, policy); err != nil {
		return nil, err
	}
	if err := scanLiterals(sel); err != nil {
		return nil, err
	}

	rowLimit := enforceLimit(sel, policy.MaxRows)

	return &Result{
		SQL:      sqlparser.String(sel),
		Tables:   scope.tableNames(),
		RowLimit: rowLimit,
	}, nil
}

// statementKind names a rejected statement class without echoing content.
func statementKind(stmt sqlparser.Statement) string {
	switch stmt.(type) {
	case *sqlparser.Insert:
		return "insert"
	case *sqlparser.Update:
		return "update"
	case *sqlparser.Delete:
		return "delete"
	case *sqlparser.DDL:
		return "ddl"
	case *sqlparser.Set:
		return "set"
	case *sqlparser.Show:
		return "show"
	case *sqlparser.Use:
		return "use"
	case *sqlparser.Begin, *sqlparser.Commit, *sqlparser.Rollback:
		return "transaction control"
	default:
		return "unsupported statement"
	}
}

// selectLock returns any locking clause on the statement, descending through
// unions and parenthesized selects.
func selectLock(stmt sqlparser.SelectStatement) string {
	switch s := stmt.(type) {
	case *sqlparser.Select:
		return s.Lock
	case *sqlparser.Union:
		if s.Lock != "" {
			return s.Lock
		}
		if lock := selectLock(s.Left); lock != "" {
			return lock
		}
		return selectLock(s.Right)
	case *sqlparser.ParenSelect:
		return selectLock(s.Select)
	}
	return ""
}

// tableScope maps aliases and bare names to the resolved tables a statement
// references. Derived-table aliases map to "" and are unrestricted at the
// outer level because their inner columns are checked on their own.
type tableScope struct {
	byAlias map[string]string
	tables  map[string]bool
}

func (s *tableScope) tableNames() []string {
	names := make([]string, 0, len(s.tables))
	for name := range s.tables {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// collectTables walks the statement's FROM clauses, verifying every physical
// table against the policy and recording aliases for column resolution.
func collectTables(stmt sqlparser.SelectStatement, policy *models.DatabasePolicy) (*tableScope, error) {
	scope := &tableScope{
		byAlias: make(map[string]string),
		tables:  make(map[string]bool),
	}

	var rejection *RejectionError
	_ = sqlparser.Walk(func(node sqlparser.SQLNode) (bool, error) {
		if rejection != nil {
			return false, nil
		}

		aliased, ok := node.(*sqlparser.AliasedTableExpr)
		if !ok {
			return true, nil
		}

		switch expr := aliased.Expr.(type) {
		case sqlparser.TableName:
			qualifier := expr.Qualifier.String()
			name := expr.Name.String()
			if strings.EqualFold(name, "dual") && qualifier == "" {
				return true, nil
			}
			if !policy.AllowsTable(qualifier, name) {
				rejection = reject(ReasonUnauthorizedTable, fullTableName(qualifier, name))
				return false, nil
			}
			resolved := policy.ResolveTable(qualifier, name)
			scope.tables[resolved] = true
			if alias := aliased.As.String(); alias != "" {
				scope.byAlias[strings.ToLower(alias)] = resolved
			} else {
				scope.byAlias[strings.ToLower(name)] = resolved
			}
		case *sqlparser.Subquery:
			if alias := aliased.As.String(); alias != "" {
				scope.byAlias[strings.ToLower(alias)] = ""
			}
		}
		return true, nil
	}, stmt)

	if rejection != nil {
		return nil, rejection
	}
	return scope, nil
}

func fullTableName(qualifier, name string) string {
	if qualifier != "" {
		return qualifier + "." + name
	}
	return name
}

// checkColumns verifies every referenced column against the policy's column
// whitelists. Columns are checked wherever they appear, not only in the
// select list, so filters and sorts cannot probe hidden data.
func checkColumns(stmt sqlparser.SelectStatement, scope *tableScope, policy *models.DatabasePolicy) error {
	var rejection *RejectionError
	_ = sqlparser.Walk(func(node sqlparser.SQLNode) (bool, error) {
		if rejection != nil {
			return false, nil
		}

		switch n := node.(type) {
		case *sqlparser.FuncExpr:
			// count(*) reads no column values; skip its star
			if strings.EqualFold(n.Name.String(), "count") && len(n.Exprs) == 1 {
				if _, isStar := n.Exprs[0].(*sqlparser.StarExpr); isStar {
					return false, nil
				}
			}
		case *sqlparser.ColName:
			if !columnAllowed(n, scope, policy) {
				rejection = reject(ReasonUnauthorizedColumn, n.Name.String())
				return false, nil
			}
		case *sqlparser.StarExpr:
			if !starAllowed(n, scope, policy) {
				rejection = reject(ReasonUnauthorizedColumn, "*")
				return false, nil
			}
		}
		return true, nil
	}, stmt)

	if rejection != nil {
		return rejection
	}
	return nil
}

func columnAllowed(col *sqlparser.ColName, scope *tableScope, policy *models.DatabasePolicy) bool {
	column := col.Name.String()

	if qualifier := col.Qualifier.Name.String(); qualifier != "" {
		table, known := scope.byAlias[strings.ToLower(qualifier)]
		if !known {
			// Qualifier neither a table nor an alias in scope
			return false
		}
		if table == "" {
			// Derived table; inner columns already checked
			return true
		}
		return tableColumnAllowed(policy, table, column)
	}

	// Unqualified: allowed if any table in scope permits it
	if len(scope.tables) == 0 {
		return true
	}
	for table := range scope.tables {
		if tableColumnAllowed(policy, table, column) {
			return true
		}
	}
	return false
}

func starAllowed(star *sqlparser.StarExpr, scope *tableScope, policy *models.DatabasePolicy) bool {
	if qualifier := star.TableName.Name.String(); qualifier != "" {
		table, known := scope.byAlias[strings.ToLower(qualifier)]
		if !known {
			return false
		}
		if table == "" {
			return true
		}
		return policy.ColumnWhitelist(table) == nil
	}

	// Bare star: every table in scope must be unrestricted
	for table := range scope.tables {
		if policy.ColumnWhitelist(table) != nil {
			return false
		}
	}
	return true
}

func tableColumnAllowed(policy *models.DatabasePolicy, table, column string) bool {
	whitelist := policy.ColumnWhitelist(table)
	if whitelist == nil {
		return true
	}
	for _, allowed := range whitelist {
		if strings.EqualFold(allowed, column) {
			return true
		}
	}
	return false
}

// scanLiterals runs libinjection over every string literal. The parser has
// already accepted the statement, so a hit here means a literal smuggles
// SQL syntax past a naive consumer and the statement is refused outright.
func scanLiterals(stmt sqlparser.SelectStatement) error {
	var rejection *RejectionError
	_ = sqlparser.Walk(func(node sqlparser.SQLNode) (bool, error) {
		if rejection != nil {
			return false, nil
		}

		val, ok := node.(*sqlparser.SQLVal)
		if !ok || val.Type != sqlparser.StrVal {
			return true, nil
		}

		isSQLi, fingerprint := libinjection.IsSQLi(string(val.Val))
		if isSQLi {
			rejection = &RejectionError{
				Reason:      ReasonInjectionDetected,
				Fingerprint: string(fingerprint),
			}
			return false, nil
		}
		return true, nil
	}, stmt)

	if rejection != nil {
		return rejection
	}
	return nil
}

// enforceLimit ensures the top-level statement carries LIMIT <= maxRows,
// adding one when absent. Returns the effective limit.
func enforceLimit(stmt sqlparser.SelectStatement, maxRows int) int {
	if maxRows <= 0 {
		maxRows = 500
	}

	limit := topLevelLimit(stmt)
	if limit != nil {
		if current, ok := limitRowcount(limit); ok && current <= maxRows {
			return current
		}
		limit.Rowcount = sqlparser.NewIntVal([]byte(strconv.Itoa(maxRows)))
		return maxRows
	}

	setTopLevelLimit(stmt, &sqlparser.Limit{
		Rowcount: sqlparser.NewIntVal([]byte(strconv.Itoa(maxRows))),
	})
	return maxRows
}

func topLevelLimit(stmt sqlparser.SelectStatement) *sqlparser.Limit {
	switch s := stmt.(type) {
	case *sqlparser.Select:
		return s.Limit
	case *sqlparser.Union:
		return s.Limit
	case *sqlparser.ParenSelect:
		return topLevelLimit(s.Select)
	}
	return nil
}

func setTopLevelLimit(stmt sqlparser.SelectStatement, limit *sqlparser.Limit) {
	switch s := stmt.(type) {
	case *sqlparser.Select:
		s.Limit = limit
	case *sqlparser.Union:
		s.Limit = limit
	case *sqlparser.ParenSelect:
		setTopLevelLimit(s.Select, limit)
	}
}

// limitRowcount extracts an integer LIMIT value. Non-literal rowcounts
// (expressions, placeholders) report false and get replaced.
func limitRowcount(limit *sqlparser.Limit) (int, bool) {
	val, ok := limit.Rowcount.(*sqlparser.SQLVal)
	if !ok || val.Type != sqlparser.IntVal {
		return 0, false
	}
	n, err := strconv.Atoi(string(val.Val))
	if err != nil {
		return 0, false
	}
	return n, true
}

var _ Validator = (*validator)(nil)
