package models

import (
	"strings"
	"time"
)

// Driver identifies the SQL dialect/driver for a tenant database.
type Driver string

const (
	DriverPostgres Driver = "postgres"
	DriverMSSQL    Driver = "mssql"
)

// DatabasePolicy is a tenant's SQL access policy. The SQL retrieval path is
// enabled only when AllowedTables is non-empty and MaxRows is positive.
// The query path never mutates a policy; administrative updates replace it.
type DatabasePolicy struct {
	Driver Driver `json:"driver"`
	DSN    string `json:"dsn"` // connection descriptor; never logged raw
	Schema string `json:"schema,omitempty"`

	// AllowedTables is the table whitelist. Entries may be bare ("orders")
	// or schema-qualified ("guide.orders"); comparison is case-insensitive.
	// A bare entry binds to the policy's default schema, never to every
	// schema holding a table of that name.
	AllowedTables []string `json:"allowed_tables"`

	// AllowedColumns maps a table to its column whitelist. An absent or
	// empty entry means all columns of that table are permitted.
	AllowedColumns map[string][]string `json:"allowed_columns,omitempty"`

	MaxRows        int `json:"max_rows"`
	TimeoutSeconds int `json:"timeout_seconds"`
}

// Timeout returns the statement timeout as a duration, defaulting to 30s.
func (p *DatabasePolicy) Timeout() time.Duration {
	if p.TimeoutSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(p.TimeoutSeconds) * time.Second
}

// DefaultSchema returns the schema bare table references resolve to,
// lowercased: the policy's Schema when set, otherwise the driver's default.
func (p *DatabasePolicy) DefaultSchema() string {
	if p.Schema != "" {
		return strings.ToLower(strings.TrimSpace(p.Schema))
	}
	if p.Driver == DriverMSSQL {
		return "dbo"
	}
	return "public"
}

// ResolveTable canonicalizes a table reference for policy comparison. A
// qualifier equal to the default schema is dropped so bare and
// default-qualified references compare equal; any other qualifier is kept.
func (p *DatabasePolicy) ResolveTable(qualifier, name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	qualifier = strings.ToLower(strings.TrimSpace(qualifier))
	if qualifier == "" || qualifier == p.DefaultSchema() {
		return name
	}
	return qualifier + "." + name
}

func (p *DatabasePolicy) canonicalTable(table string) string {
	table = strings.ToLower(strings.TrimSpace(table))
	if i := strings.IndexByte(table, '.'); i >= 0 {
		return p.ResolveTable(table[:i], table[i+1:])
	}
	return table
}

// AllowsTable reports whether a referenced table is whitelisted.
// The qualifier (schema) may be empty. Matching is case-insensitive after
// canonicalization: a bare whitelist entry matches only references in the
// default schema, a qualified entry matches its schema exactly.
func (p *DatabasePolicy) AllowsTable(qualifier, name string) bool {
	ref := p.ResolveTable(qualifier, name)
	for _, entry := range p.AllowedTables {
		if p.canonicalTable(entry) == ref {
			return true
		}
	}
	return false
}

// ColumnWhitelist returns the column whitelist for a table, or nil when the
// table has no column restrictions. Keys and lookups are canonicalized, so
// a default-schema qualifier cannot sidestep a bare key's restrictions.
func (p *DatabasePolicy) ColumnWhitelist(table string) []string {
	table = p.canonicalTable(table)
	for t, cols := range p.AllowedColumns {
		if p.canonicalTable(t) == table && len(cols) > 0 {
			return cols
		}
	}
	return nil
}

// ModelProvider identifies a tenant's LLM provider variant.
type ModelProvider string

const (
	ProviderOpenAI    ModelProvider = "openai"
	ProviderAzure     ModelProvider = "azure"
	ProviderAnthropic ModelProvider = "anthropic"
)

// ValidProvider reports whether p is a known provider variant.
func ValidProvider(p ModelProvider) bool {
	switch p {
	case ProviderOpenAI, ProviderAzure, ProviderAnthropic:
		return true
	}
	return false
}

// ModelConfig is the non-secret part of a tenant's model configuration.
type ModelConfig struct {
	Provider ModelProvider `json:"provider"`
	Model    string        `json:"model"`
	// Endpoint is required for azure, optional for openai-compatible
	// servers, ignored for anthropic.
	Endpoint string `json:"endpoint,omitempty"`
}
