package config

import (
	"testing"

	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"legacy-migrate/internal/catalog"
)

func TestDatabaseConfig_DSN(t *testing.T) {
	tests := []struct {
		name     string
		config   DatabaseConfig
		user     string
		passwd   string
		addr     string
		database string
	}{
		{
			name: "discrete fields",
			config: DatabaseConfig{
				Driver:   DriverMySQL,
				Host:     "localhost",
				Port:     3306,
				User:     "root",
				Password: "password",
				Database: "legacy",
			},
			user: "root", passwd: "password", addr: "localhost:3306", database: "legacy",
		},
		{
			name: "special characters in password",
			config: DatabaseConfig{
				Driver:   DriverMySQL,
				Host:     "db.example.com",
				Port:     4000,
				User:     "admin",
				Password: "p@ss:w0rd!",
				Database: "mydb",
			},
			user: "admin", passwd: "p@ss:w0rd!", addr: "db.example.com:4000", database: "mydb",
		},
		{
			name: "connection string keeps its database",
			config: DatabaseConfig{
				Driver:           DriverMySQL,
				ConnectionString: "migrate:secret@tcp(target:3306)/newapp",
			},
			user: "migrate", passwd: "secret", addr: "target:3306", database: "newapp",
		},
		{
			name: "connection string without database takes configured one",
			config: DatabaseConfig{
				Driver:           DriverMySQL,
				ConnectionString: "migrate:secret@tcp(target:3306)/",
				Database:         "newapp",
			},
			user: "migrate", passwd: "secret", addr: "target:3306", database: "newapp",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dsn, err := tt.config.DSN()
			require.NoError(t, err)

			parsed, err := mysql.ParseDSN(dsn)
			require.NoError(t, err)
			assert.Equal(t, tt.user, parsed.User)
			assert.Equal(t, tt.passwd, parsed.Passwd)
			assert.Equal(t, tt.addr, parsed.Addr)
			assert.Equal(t, tt.database, parsed.DBName)
			assert.True(t, parsed.ParseTime)
		})
	}
}

func TestDatabaseConfig_DSN_SQLitePassthrough(t *testing.T) {
	cfg := DatabaseConfig{Driver: DriverSQLite, ConnectionString: "file:legacy.db?mode=ro"}
	dsn, err := cfg.DSN()
	require.NoError(t, err)
	assert.Equal(t, "file:legacy.db?mode=ro", dsn)

	name, err := cfg.EffectiveDatabaseName()
	require.NoError(t, err)
	assert.Equal(t, "main", name)
}

func TestDatabaseConfig_DSN_TLS(t *testing.T) {
	cfg := DatabaseConfig{
		Driver:   DriverMySQL,
		Host:     "db",
		Port:     3306,
		User:     "root",
		Database: "legacy",
		TLS:      DatabaseTLSConfig{Mode: "verify-ca", CAFile: "/etc/ca.pem"},
		store:    "legacy",
	}
	dsn, err := cfg.DSN()
	require.NoError(t, err)
	assert.Contains(t, dsn, "tls=legacy-migrate-legacy")

	cfg.TLS.Mode = "skip-verify"
	dsn, err = cfg.DSN()
	require.NoError(t, err)
	assert.Contains(t, dsn, "tls=skip-verify")

	cfg.TLS.Mode = ""
	dsn, err = cfg.DSN()
	require.NoError(t, err)
	assert.NotContains(t, dsn, "tls=")
}

func TestDatabaseConfig_DSN_Invalid(t *testing.T) {
	cfg := DatabaseConfig{Driver: DriverMySQL, ConnectionString: "not a dsn", store: "target"}
	_, err := cfg.DSN()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "target.dsn is invalid")
}

func TestDatabaseConfig_EffectiveDatabaseName(t *testing.T) {
	tests := []struct {
		name    string
		config  DatabaseConfig
		want    string
		wantErr string
	}{
		{
			name:   "configured only",
			config: DatabaseConfig{Driver: DriverMySQL, Database: "legacy"},
			want:   "legacy",
		},
		{
			name:   "dsn only",
			config: DatabaseConfig{Driver: DriverMySQL, ConnectionString: "u:p@tcp(h:3306)/fromdsn"},
			want:   "fromdsn",
		},
		{
			name:   "matching",
			config: DatabaseConfig{Driver: DriverMySQL, Database: "same", ConnectionString: "u:p@tcp(h:3306)/same"},
			want:   "same",
		},
		{
			name:    "mismatch",
			config:  DatabaseConfig{Driver: DriverMySQL, Database: "a", ConnectionString: "u:p@tcp(h:3306)/b", store: "legacy"},
			wantErr: "database mismatch: legacy.database",
		},
		{
			name:    "missing",
			config:  DatabaseConfig{Driver: DriverMySQL, store: "target"},
			wantErr: "no database configured: set target.database",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.config.EffectiveDatabaseName()
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDatabaseConfig_RegisterTLS_NoopModes(t *testing.T) {
	for _, mode := range []string{"", "off", "skip-verify"} {
		cfg := DatabaseConfig{Driver: DriverMySQL, TLS: DatabaseTLSConfig{Mode: mode}}
		assert.NoError(t, cfg.RegisterTLS(), mode)
	}
	sqlite := DatabaseConfig{Driver: DriverSQLite, TLS: DatabaseTLSConfig{Mode: "verify-full"}}
	assert.NoError(t, sqlite.RegisterTLS())
}

func TestDatabaseConfig_RegisterTLS_MissingCA(t *testing.T) {
	cfg := DatabaseConfig{
		Driver: DriverMySQL,
		TLS:    DatabaseTLSConfig{Mode: "verify-ca", CAFile: "/nonexistent/ca.pem"},
		store:  "legacy",
	}
	err := cfg.RegisterTLS()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to build legacy TLS config")
}

func validConfig() *Config {
	return &Config{
		Legacy: DatabaseConfig{
			Driver:           DriverSQLite,
			ConnectionString: "file:legacy.db",
			store:            "legacy",
		},
		Target: DatabaseConfig{
			Driver:                  DriverMySQL,
			Host:                    "localhost",
			Port:                    3306,
			User:                    "root",
			Database:                "newapp",
			Pool:                    PoolConfig{MaxOpen: 4, MaxIdle: 2},
			ConnectionTimeout:       0,
			ConnectionRetryInterval: 0,
			store:                   "target",
		},
		Migration: MigrationConfig{
			Classes:   []string{"User", "PontajResource"},
			Actions:   []string{"create"},
			BatchSize: 100,
			ColumnMaps: map[string]ColumnMapConfig{
				"user": {Table: "users", Columns: []FieldMapping{{From: "user_name", To: "name"}}},
			},
		},
		Observability: ObservabilityConfig{
			MetricsEnabled: true,
			Logging:        LoggingConfig{Level: "info", Format: "json"},
			OTLP:           OTLPConfig{Endpoint: "localhost:4317", Protocol: "grpc", Compression: "gzip"},
		},
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name        string
		mutate      func(*Config)
		wantErrs    []string
		wantWarning string
	}{
		{
			name:   "valid config passes validation",
			mutate: func(*Config) {},
		},
		{
			name:     "unsupported driver",
			mutate:   func(c *Config) { c.Legacy.Driver = "postgres" },
			wantErrs: []string{"legacy.driver"},
		},
		{
			name:     "sqlite needs a dsn",
			mutate:   func(c *Config) { c.Legacy.ConnectionString = "" },
			wantErrs: []string{"legacy.dsn"},
		},
		{
			name:     "invalid target port",
			mutate:   func(c *Config) { c.Target.Port = 0 },
			wantErrs: []string{"target.port"},
		},
		{
			name:     "missing target database",
			mutate:   func(c *Config) { c.Target.Database = "" },
			wantErrs: []string{"target.database"},
		},
		{
			name:     "invalid TLS mode",
			mutate:   func(c *Config) { c.Target.TLS.Mode = "always" },
			wantErrs: []string{"target.tls.mode"},
		},
		{
			name:     "verify-ca needs a CA file",
			mutate:   func(c *Config) { c.Target.TLS.Mode = "verify-ca" },
			wantErrs: []string{"target.tls.ca_file"},
		},
		{
			name:        "skip-verify warns",
			mutate:      func(c *Config) { c.Target.TLS.Mode = "skip-verify" },
			wantWarning: "target.tls.mode",
		},
		{
			name:     "retry interval required with timeout",
			mutate:   func(c *Config) { c.Target.ConnectionTimeout = 10 },
			wantErrs: []string{"target.connection_retry_interval"},
		},
		{
			name:        "idle above open warns",
			mutate:      func(c *Config) { c.Target.Pool.MaxIdle = 10 },
			wantWarning: "target.pool.max_idle",
		},
		{
			name:     "no classes",
			mutate:   func(c *Config) { c.Migration.Classes = nil },
			wantErrs: []string{"migration.classes"},
		},
		{
			name:     "unknown class",
			mutate:   func(c *Config) { c.Migration.Classes = []string{"Invoice"} },
			wantErrs: []string{"unknown class \"Invoice\""},
		},
		{
			name:     "class without adapter",
			mutate:   func(c *Config) { c.Migration.Classes = []string{"Holiday"} },
			wantErrs: []string{"class \"Holiday\" has no adapter"},
		},
		{
			name:        "duplicate class warns",
			mutate:      func(c *Config) { c.Migration.Classes = []string{"User", "user"} },
			wantWarning: "migration.classes",
		},
		{
			name:     "invalid action",
			mutate:   func(c *Config) { c.Migration.Actions = []string{"delete"} },
			wantErrs: []string{"invalid action \"delete\""},
		},
		{
			name:     "batch size",
			mutate:   func(c *Config) { c.Migration.BatchSize = 0 },
			wantErrs: []string{"migration.batch_size"},
		},
		{
			name: "column map without table or duplicate target",
			mutate: func(c *Config) {
				c.Migration.ColumnMaps["user"] = ColumnMapConfig{Columns: []FieldMapping{
					{From: "a", To: "name"}, {From: "b", To: "name"}, {From: "", To: "x"},
				}}
			},
			wantErrs: []string{"migration.column_maps.user.table", "mapped twice", "need both from and to"},
		},
		{
			name:     "unknown override class",
			mutate:   func(c *Config) { c.Migration.ClassOverrides = map[string]ClassOverride{"invoice": {Table: "x"}} },
			wantErrs: []string{"migration.class_overrides"},
		},
		{
			name:     "invalid log level",
			mutate:   func(c *Config) { c.Observability.Logging.Level = "trace" },
			wantErrs: []string{"observability.logging.level"},
		},
		{
			name:     "invalid sample ratio",
			mutate:   func(c *Config) { c.Observability.TraceSampleRatio = 2 },
			wantErrs: []string{"observability.trace_sample_ratio"},
		},
		{
			name: "otlp endpoint checked when tracing",
			mutate: func(c *Config) {
				c.Observability.TracingEnabled = true
				c.Observability.OTLP.Endpoint = "no-port"
			},
			wantErrs: []string{"observability.otlp.endpoint"},
		},
		{
			name:        "textfile without metrics warns",
			mutate:      func(c *Config) { c.Observability.MetricsEnabled = false; c.Observability.MetricsTextfile = "/tmp/m.prom" },
			wantWarning: "observability.metrics_textfile",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			result := cfg.Validate()

			if len(tt.wantErrs) == 0 {
				assert.False(t, result.HasErrors(), result.Error())
			}
			for _, want := range tt.wantErrs {
				assert.Contains(t, result.Error(), want)
			}
			if tt.wantWarning != "" {
				var fields []string
				for _, w := range result.Warnings {
					fields = append(fields, w.Field)
				}
				assert.Contains(t, fields, tt.wantWarning)
			}
		})
	}
}

func TestConfig_Validate_NormalizesDatabaseFromDSN(t *testing.T) {
	cfg := validConfig()
	cfg.Target.Database = ""
	cfg.Target.ConnectionString = "root:pw@tcp(localhost:3306)/fromdsn"
	result := cfg.Validate()
	require.False(t, result.HasErrors(), result.Error())
	assert.Equal(t, "fromdsn", cfg.Target.Database)
}

func TestMigrationConfig_Lists(t *testing.T) {
	m := MigrationConfig{
		Classes: []string{"user", " PontajResource ", "Invoice"},
		Actions: []string{"CREATE", "update", "delete"},
	}
	assert.Equal(t, []catalog.Class{catalog.User, catalog.PontajResource}, m.ClassList())
	assert.Equal(t, []string{ActionCreate, ActionUpdate}, m.ActionList())
}

func TestMigrationConfig_ClassSpecs(t *testing.T) {
	m := MigrationConfig{
		ClassOverrides: map[string]ClassOverride{
			"pontajresource": {Table: "pontaj_resource", MarkerColumn: "migrated_id"},
			"user":           {PrimaryKey: "user_id"},
		},
	}
	specs := m.ClassSpecs()

	assert.Equal(t, "pontaj_resource", specs[catalog.PontajResource].Table)
	assert.Equal(t, "migrated_id", specs[catalog.PontajResource].MarkerColumn)
	assert.Equal(t, "users", specs[catalog.User].Table)
	assert.Equal(t, "user_id", specs[catalog.User].PrimaryKey)
	assert.Equal(t, catalog.DefaultMarkerColumn, specs[catalog.Holiday].MarkerColumn)
}

func TestMigrationConfig_ColumnMaps(t *testing.T) {
	m := MigrationConfig{
		ClassOverrides: map[string]ClassOverride{"holiday": {MarkerColumn: "migrated_id"}},
		ColumnMaps: map[string]ColumnMapConfig{
			"holiday": {Table: "holidays", Columns: []FieldMapping{
				{From: "holiday_days", To: "days"},
				{From: "u.new_id", To: "user_id"},
			}},
		},
	}
	maps := m.ResolvedColumnMaps()
	require.Contains(t, maps, catalog.Holiday)

	a := maps[catalog.Holiday]
	assert.Equal(t, "holidays", a.Table)
	assert.Equal(t, "migrated_id", a.MarkerColumn)
	assert.Equal(t, map[string]string{"holiday_days": "days", "u.new_id": "user_id"}, a.Columns)

	assert.True(t, m.HasAdapter(catalog.Holiday))
	assert.True(t, m.HasAdapter(catalog.PontajResource))
	assert.False(t, m.HasAdapter(catalog.User))
}

func TestValidationError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      ValidationError
		expected string
	}{
		{
			name:     "without hint",
			err:      ValidationError{Field: "legacy.port", Message: "invalid port"},
			expected: "legacy.port: invalid port",
		},
		{
			name:     "with hint",
			err:      ValidationError{Field: "legacy.tls.mode", Message: "invalid mode", Hint: "use verify-ca"},
			expected: "legacy.tls.mode: invalid mode (hint: use verify-ca)",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.err.Error())
		})
	}
}
