package config

import (
	"fmt"
	"net"
	"net/url"
	"strings"

	"legacy-migrate/internal/catalog"
)

// ValidationError represents a configuration validation error with context.
type ValidationError struct {
	Field   string
	Message string
	Hint    string
}

func (e ValidationError) Error() string {
	if e.Hint != "" {
		return fmt.Sprintf("%s: %s (hint: %s)", e.Field, e.Message, e.Hint)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationWarning represents a non-fatal configuration issue.
type ValidationWarning struct {
	Field   string
	Message string
	Hint    string
}

// ValidationResult contains the results of configuration validation.
type ValidationResult struct {
	Errors   []ValidationError
	Warnings []ValidationWarning
}

// HasErrors returns true if there are any validation errors.
func (r *ValidationResult) HasErrors() bool {
	return len(r.Errors) > 0
}

// Error returns a combined error message if there are validation errors.
func (r *ValidationResult) Error() string {
	if !r.HasErrors() {
		return ""
	}
	var msgs []string
	for _, e := range r.Errors {
		msgs = append(msgs, e.Error())
	}
	return strings.Join(msgs, "; ")
}

func (r *ValidationResult) addError(field, message, hint string) {
	r.Errors = append(r.Errors, ValidationError{Field: field, Message: message, Hint: hint})
}

func (r *ValidationResult) addWarning(field, message, hint string) {
	r.Warnings = append(r.Warnings, ValidationWarning{Field: field, Message: message, Hint: hint})
}

// Validate checks the configuration for errors and returns validation results.
// It returns both errors (fatal) and warnings (non-fatal issues).
func (c *Config) Validate() *ValidationResult {
	result := &ValidationResult{}
	c.NameStores()
	c.Legacy.validate(result)
	c.Target.validate(result)
	c.Migration.validate(result)
	c.Observability.validate(result)
	return result
}

func (d *DatabaseConfig) validate(result *ValidationResult) {
	prefix := d.StoreName()

	switch d.Driver {
	case DriverMySQL:
	case DriverSQLite:
		if strings.TrimSpace(d.ConnectionString) == "" {
			result.addError(prefix+".dsn", "dsn is required for the sqlite3 driver",
				"set the database file path, e.g. file:legacy.db?mode=ro")
		}
		if d.TLS.Mode != "" {
			result.addWarning(prefix+".tls.mode", "TLS settings are ignored for the sqlite3 driver", "")
		}
		d.validatePool(prefix, result)
		return
	default:
		result.addError(prefix+".driver", fmt.Sprintf("unsupported driver %q", d.Driver),
			"valid values are: mysql, sqlite3")
		return
	}

	if d.ConnectionString == "" && (d.Port < 1 || d.Port > 65535) {
		result.addError(prefix+".port", fmt.Sprintf("port %d is out of valid range (1-65535)", d.Port), "")
	}

	d.TLS.validate(prefix, result)
	d.validatePool(prefix, result)

	if d.ConnectionTimeout > 0 && d.ConnectionRetryInterval > d.ConnectionTimeout {
		result.addWarning(prefix+".connection_retry_interval",
			"connection_retry_interval is greater than connection_timeout",
			"only one connection attempt will be made")
	}
	if d.ConnectionRetryInterval < 0 {
		result.addError(prefix+".connection_retry_interval", "connection_retry_interval cannot be negative", "")
	}
	if d.ConnectionTimeout > 0 && d.ConnectionRetryInterval == 0 {
		result.addError(prefix+".connection_retry_interval",
			"connection_retry_interval must be greater than 0 when connection_timeout is set",
			"set a retry interval such as 2s, or set connection_timeout to 0 to disable retries")
	}
	if d.ConnectionTimeout < 0 {
		result.addError(prefix+".connection_timeout", "connection_timeout cannot be negative", "")
	}

	effective, err := d.EffectiveDatabaseName()
	if err != nil {
		result.addError(prefix+".database", err.Error(),
			"set "+prefix+".database or include a /database in "+prefix+".dsn")
		return
	}
	d.Database = effective
}

func (d *DatabaseConfig) validatePool(prefix string, result *ValidationResult) {
	if d.Pool.MaxOpen < 0 {
		result.addError(prefix+".pool.max_open", "max_open cannot be negative", "")
	}
	if d.Pool.MaxIdle < 0 {
		result.addError(prefix+".pool.max_idle", "max_idle cannot be negative", "")
	}
	if d.Pool.MaxIdle > d.Pool.MaxOpen && d.Pool.MaxOpen > 0 {
		result.addWarning(prefix+".pool.max_idle", "max_idle is greater than max_open",
			"idle connections will be limited to max_open")
	}
}

func (t *DatabaseTLSConfig) validate(prefix string, result *ValidationResult) {
	validModes := map[string]bool{"": true, "off": true, "skip-verify": true, "verify-ca": true, "verify-full": true}
	if !validModes[t.Mode] {
		result.addError(prefix+".tls.mode", fmt.Sprintf("invalid TLS mode %q", t.Mode),
			"valid values are: off, skip-verify, verify-ca, verify-full")
	}
	if (t.Mode == "verify-ca" || t.Mode == "verify-full") && t.CAFile == "" {
		result.addError(prefix+".tls.ca_file", "CA file is required for verify-ca and verify-full modes", "")
	}
	if (t.CertFile != "") != (t.KeyFile != "") {
		result.addError(prefix+".tls.cert_file",
			"both cert_file and key_file must be specified for client certificate authentication",
			"provide both cert_file and key_file, or neither")
	}
	if t.Mode == "skip-verify" {
		result.addWarning(prefix+".tls.mode", "skip-verify mode does not verify server certificates",
			"use verify-ca or verify-full in production")
	}
}

func (m *MigrationConfig) validate(result *ValidationResult) {
	if len(m.Classes) == 0 {
		result.addError("migration.classes", "at least one class is required",
			"known classes: "+knownClassNames())
	}
	seen := make(map[catalog.Class]bool, len(m.Classes))
	for _, name := range m.Classes {
		class, ok := LookupClass(name)
		if !ok {
			result.addError("migration.classes", fmt.Sprintf("unknown class %q", name),
				"known classes: "+knownClassNames())
			continue
		}
		if seen[class] {
			result.addWarning("migration.classes", fmt.Sprintf("class %q listed more than once", class), "")
		}
		seen[class] = true
		if !m.HasAdapter(class) {
			result.addError("migration.column_maps", fmt.Sprintf("class %q has no adapter", class),
				"add a column_maps entry for it")
		}
	}

	if len(m.Actions) == 0 {
		result.addError("migration.actions", "at least one action is required", "valid values are: create, update")
	}
	for _, name := range m.Actions {
		if _, ok := normalizeAction(name); !ok {
			result.addError("migration.actions", fmt.Sprintf("invalid action %q", name),
				"valid values are: create, update")
		}
	}

	if m.BatchSize < 1 {
		result.addError("migration.batch_size", "batch_size must be at least 1", "")
	}
	if m.LockTimeout < 0 {
		result.addError("migration.lock_timeout", "lock_timeout cannot be negative", "")
	}

	for name := range m.ClassOverrides {
		if _, ok := LookupClass(name); !ok {
			result.addError("migration.class_overrides", fmt.Sprintf("unknown class %q", name), "")
		}
	}

	for name, cm := range m.ColumnMaps {
		field := "migration.column_maps." + name
		if _, ok := LookupClass(name); !ok {
			result.addError("migration.column_maps", fmt.Sprintf("unknown class %q", name), "")
			continue
		}
		if strings.TrimSpace(cm.Table) == "" {
			result.addError(field+".table", "target table is required", "")
		}
		if len(cm.Columns) == 0 {
			result.addError(field+".columns", "at least one column mapping is required", "")
		}
		targets := make(map[string]bool, len(cm.Columns))
		for _, f := range cm.Columns {
			if strings.TrimSpace(f.From) == "" || strings.TrimSpace(f.To) == "" {
				result.addError(field+".columns", "column mappings need both from and to", "")
				continue
			}
			if targets[f.To] {
				result.addError(field+".columns", fmt.Sprintf("target column %q mapped twice", f.To), "")
			}
			targets[f.To] = true
		}
	}
}

func (o *ObservabilityConfig) validate(result *ValidationResult) {
	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[o.Logging.Level] {
		result.addError("observability.logging.level", fmt.Sprintf("invalid log level %q", o.Logging.Level),
			"valid values are: debug, info, warn, error")
	}

	validLogFormats := map[string]bool{"json": true, "text": true}
	if !validLogFormats[o.Logging.Format] {
		result.addError("observability.logging.format", fmt.Sprintf("invalid log format %q", o.Logging.Format),
			"valid values are: json, text")
	}

	if o.TraceSampleRatio < 0 || o.TraceSampleRatio > 1 {
		result.addError("observability.trace_sample_ratio",
			fmt.Sprintf("trace_sample_ratio %v must be between 0 and 1", o.TraceSampleRatio), "")
	}

	if o.MetricsTextfile != "" && !o.MetricsEnabled {
		result.addWarning("observability.metrics_textfile", "metrics_textfile is set but metrics are disabled",
			"set observability.metrics_enabled to true")
	}
	if o.MetricsTextfile != "" && !strings.HasSuffix(o.MetricsTextfile, ".prom") {
		result.addWarning("observability.metrics_textfile", "node-exporter only collects files ending in .prom", "")
	}

	if o.TracingEnabled || o.Logging.ExportsEnabled {
		o.OTLP.validate("observability.otlp", result)
	}
}

func (o *OTLPConfig) validate(prefix string, result *ValidationResult) {
	validProtocols := map[string]bool{"": true, "grpc": true, "http/protobuf": true}
	if !validProtocols[o.Protocol] {
		result.addError(prefix+".protocol", fmt.Sprintf("invalid OTLP protocol %q", o.Protocol),
			"valid values are: grpc, http/protobuf")
	}

	if !validOTLPEndpoint(o.Endpoint) {
		result.addError(prefix+".endpoint", fmt.Sprintf("invalid OTLP endpoint %q", o.Endpoint),
			"use host:port or a full URL")
	}

	validCompressions := map[string]bool{"": true, "none": true, "gzip": true}
	if !validCompressions[o.Compression] {
		result.addError(prefix+".compression", fmt.Sprintf("invalid OTLP compression %q", o.Compression),
			"valid values are: none, gzip")
	}
}

func validOTLPEndpoint(endpoint string) bool {
	if endpoint == "" {
		return false
	}
	if strings.Contains(endpoint, "://") {
		parsed, err := url.Parse(endpoint)
		if err != nil {
			return false
		}
		return parsed.Host != ""
	}
	_, _, err := net.SplitHostPort(endpoint)
	return err == nil
}
