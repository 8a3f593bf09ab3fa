package config

import (
	"time"
)

// Config holds the application configuration.
type Config struct {
	Legacy        DatabaseConfig      `mapstructure:"legacy"`
	Target        DatabaseConfig      `mapstructure:"target"`
	Migration     MigrationConfig     `mapstructure:"migration"`
	Observability ObservabilityConfig `mapstructure:"observability"`
}

// Database drivers accepted for either store.
const (
	DriverMySQL  = "mysql"
	DriverSQLite = "sqlite3"
)

// PoolConfig holds connection pool parameters.
type PoolConfig struct {
	MaxOpen     int           `mapstructure:"max_open"`
	MaxIdle     int           `mapstructure:"max_idle"`
	MaxLifetime time.Duration `mapstructure:"max_lifetime"`
}

// DatabaseTLSConfig holds TLS settings for MySQL connections.
type DatabaseTLSConfig struct {
	// Mode controls TLS behavior:
	//   - "off": No TLS (plaintext connection)
	//   - "skip-verify": TLS without server certificate verification (insecure)
	//   - "verify-ca": TLS with CA verification
	//   - "verify-full": TLS with full verification including hostname
	Mode string `mapstructure:"mode"`

	CAFile     string `mapstructure:"ca_file"`
	CertFile   string `mapstructure:"cert_file"`
	KeyFile    string `mapstructure:"key_file"`
	ServerName string `mapstructure:"server_name"`
}

// DatabaseConfig holds connection parameters for one store.
type DatabaseConfig struct {
	// Driver is "mysql" (MySQL/TiDB) or "sqlite3" (local dumps and tests).
	Driver string `mapstructure:"driver"`

	// ConnectionString is a complete DSN for the driver. For mysql it overrides
	// the discrete fields below; for sqlite3 it is the database file path.
	ConnectionString string `mapstructure:"dsn"`
	// ConnectionStringFile is a path to a file containing the DSN. Supports "@-" for stdin.
	ConnectionStringFile string `mapstructure:"dsn_file"`

	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	PasswordFile   string `mapstructure:"password_file"`
	PasswordPrompt bool   `mapstructure:"password_prompt"`
	Database       string `mapstructure:"database"`

	TLS  DatabaseTLSConfig `mapstructure:"tls"`
	Pool PoolConfig        `mapstructure:"pool"`

	// ConnectionTimeout is the max time to wait for the store on startup.
	ConnectionTimeout time.Duration `mapstructure:"connection_timeout"`
	// ConnectionRetryInterval is the initial interval between connection retries.
	ConnectionRetryInterval time.Duration `mapstructure:"connection_retry_interval"`

	// store is the section name ("legacy" or "target"); set by Load.
	store string
}

// MigrationConfig selects what to migrate and how the stores are laid out.
type MigrationConfig struct {
	// Classes lists the entity classes to migrate, in run order.
	Classes []string `mapstructure:"classes"`
	// Actions lists the actions run for every class ("create", "update").
	Actions   []string `mapstructure:"actions"`
	BatchSize int      `mapstructure:"batch_size"`

	// LockFile guards against concurrent runs on one host. Empty disables it.
	LockFile    string        `mapstructure:"lock_file"`
	LockTimeout time.Duration `mapstructure:"lock_timeout"`

	// ClassOverrides replaces the derived legacy table, primary key or marker
	// column of a class. Keys are class names, matched case-insensitively.
	ClassOverrides map[string]ClassOverride `mapstructure:"class_overrides"`

	Conditions   ConditionColumns `mapstructure:"conditions"`
	Clocking     ClockingColumns  `mapstructure:"clocking"`
	TargetTables TargetTables     `mapstructure:"target_tables"`

	// ColumnMaps configures the generic column-copy adapter per class.
	ColumnMaps map[string]ColumnMapConfig `mapstructure:"column_maps"`
}

// ConditionColumns names the legacy columns read by the eligibility policies.
// Empty reference columns fall back to the class primary key.
type ConditionColumns struct {
	TaskLogReference   string `mapstructure:"task_log_reference"`
	ClockingReference  string `mapstructure:"clocking_reference"`
	ClockingAdminValid string `mapstructure:"clocking_admin_valid"`
	ClockingDate       string `mapstructure:"clocking_date"`
}

// ClockingColumns names the legacy columns the daily clocking adapter reads.
// Container columns are read through ContainerAlias.
type ClockingColumns struct {
	Details        string `mapstructure:"details"`
	Resource       string `mapstructure:"resource"`
	ContainerAlias string `mapstructure:"container_alias"`
	Date           string `mapstructure:"date"`
	AdminValid     string `mapstructure:"admin_valid"`
	LastAction     string `mapstructure:"last_action"`
}

// TargetTables names the target tables and columns written by the migration.
type TargetTables struct {
	IDColumn string `mapstructure:"id_column"`

	TaskLog            string `mapstructure:"task_log"`
	TaskLogValidatedAt string `mapstructure:"task_log_validated_at"`
	DailyClocking      string `mapstructure:"daily_clocking"`
	DailyClockingUser  string `mapstructure:"daily_clocking_user"`
	DailyClockingDate  string `mapstructure:"daily_clocking_date"`
	DailyClockingHours string `mapstructure:"daily_clocking_hours"`
	DailyClockingValid string `mapstructure:"daily_clocking_valid"`
}

// ClassOverride holds the per-class legacy naming overrides.
type ClassOverride struct {
	Table        string `mapstructure:"table"`
	PrimaryKey   string `mapstructure:"primary_key"`
	MarkerColumn string `mapstructure:"marker_column"`
}

// ColumnMapConfig copies legacy columns into one target table.
type ColumnMapConfig struct {
	Table   string         `mapstructure:"table"`
	Columns []FieldMapping `mapstructure:"columns"`
}

// FieldMapping maps one legacy result column (e.g. "user_name" or "u.new_id")
// to a target column. Kept as a list since map keys may not contain dots.
type FieldMapping struct {
	From string `mapstructure:"from"`
	To   string `mapstructure:"to"`
}

// LoggingConfig holds logging parameters.
type LoggingConfig struct {
	Level          string `mapstructure:"level"`           // debug, info, warn, error
	Format         string `mapstructure:"format"`          // json, text
	ExportsEnabled bool   `mapstructure:"exports_enabled"` // Enable OTLP log export
}

// ObservabilityConfig holds observability parameters.
type ObservabilityConfig struct {
	ServiceName         string        `mapstructure:"service_name"`
	ServiceVersion      string        `mapstructure:"service_version"`
	Environment         string        `mapstructure:"environment"`
	MetricsEnabled      bool          `mapstructure:"metrics_enabled"`
	MetricsTextfile     string        `mapstructure:"metrics_textfile"` // node-exporter textfile written at the end of a run
	TracingEnabled      bool          `mapstructure:"tracing_enabled"`
	TraceSampleRatio    float64       `mapstructure:"trace_sample_ratio"`
	SQLCommenterEnabled bool          `mapstructure:"sqlcommenter_enabled"`
	Logging             LoggingConfig `mapstructure:"logging"`

	// OTLP holds the exporter settings shared by traces and logs.
	OTLP OTLPConfig `mapstructure:"otlp"`
}

// OTLPConfig holds OTLP exporter configuration
type OTLPConfig struct {
	Endpoint    string            `mapstructure:"endpoint"`
	Protocol    string            `mapstructure:"protocol"` // "grpc", "http/protobuf"
	Insecure    bool              `mapstructure:"insecure"`
	TLSCertFile string            `mapstructure:"tls_cert_file"`
	Headers     map[string]string `mapstructure:"headers"`
	Timeout     time.Duration     `mapstructure:"timeout"`
	Compression string            `mapstructure:"compression"` // "none", "gzip"
}
