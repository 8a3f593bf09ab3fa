package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"golang.org/x/term"
)

// EnvPrefix prefixes every environment variable, e.g. LEGMIG_LEGACY_DSN.
const EnvPrefix = "LEGMIG"

var defineFlagsOnce sync.Once

var storeSections = []string{"legacy", "target"}

// Load loads configuration from multiple sources with the following precedence:
// 1. Explicit overrides (v.Set) – secrets read from files or the terminal
// 2. Command line flags
// 3. Environment variables
// 4. Config file
// 5. Default values
func Load() (*Config, error) {
	defineFlags()
	if !pflag.Parsed() {
		pflag.Parse()
	}
	cfgPath, _ := pflag.CommandLine.GetString("config")
	return load(pflag.CommandLine, cfgPath)
}

func load(flags *pflag.FlagSet, cfgPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	// --- Config file ---
	if cfgPath != "" {
		v.SetConfigFile(cfgPath)
	} else {
		v.SetConfigName("legacy-migrate")
		v.SetConfigType("yaml")
		v.AddConfigPath("/etc/legacy-migrate/")
		v.AddConfigPath("$HOME/.legacy-migrate")
		v.AddConfigPath(".")
	}
	if err := v.ReadInConfig(); err != nil {
		if cfgPath != "" {
			return nil, fmt.Errorf("failed to read config file %q: %w", cfgPath, err)
		}
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// --- Environment variables ---
	// Canonical keys: dot + snake_case
	// Env vars: LEGMIG_LEGACY_POOL_MAX_OPEN
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	// --- Flags (highest normal priority) ---
	if flags != nil {
		bindChangedFlags(v, flags)
	}

	if err := validateSingleStdinFileSource(v); err != nil {
		return nil, err
	}
	for _, store := range storeSections {
		if err := resolveSecrets(v, store); err != nil {
			return nil, err
		}
	}

	// --- Unmarshal (strict) ---
	var cfg Config
	if err := v.UnmarshalExact(
		&cfg,
		viper.DecodeHook(
			mapstructure.ComposeDecodeHookFunc(
				mapstructure.StringToTimeDurationHookFunc(),
				stringToStringSliceHookFunc(","),
			),
		),
	); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.NameStores()

	return &cfg, nil
}

// resolveSecrets fills the DSN and password of one store from files or an
// interactive prompt when they were not given directly.
func resolveSecrets(v *viper.Viper, store string) error {
	key := func(name string) string { return store + "." + name }

	if v.GetString(key("dsn")) == "" && v.GetString(key("dsn_file")) != "" {
		dsn, err := readSecretFile(v.GetString(key("dsn_file")))
		if err != nil {
			return fmt.Errorf("failed to read %s DSN file: %w", store, err)
		}
		v.Set(key("dsn"), dsn)
	}

	if v.GetString(key("password")) == "" && v.GetString(key("password_file")) != "" {
		pwd, err := readSecretFile(v.GetString(key("password_file")))
		if err != nil {
			return fmt.Errorf("failed to read %s password file: %w", store, err)
		}
		v.Set(key("password"), pwd)
	}
	if v.GetString(key("password")) == "" && v.GetBool(key("password_prompt")) {
		pwd, err := promptPassword(store)
		if err != nil {
			return fmt.Errorf("failed to read %s password: %w", store, err)
		}
		v.Set(key("password"), pwd)
	}
	return nil
}

// bindChangedFlags copies only explicitly-set flags into Viper,
// preserving precedence: flags > env > file > defaults.
func bindChangedFlags(v *viper.Viper, flags *pflag.FlagSet) {
	flags.Visit(func(f *pflag.Flag) {
		if f.Name == "config" || f.Name == "version" {
			return
		}

		switch f.Value.Type() {
		case "string":
			val, _ := flags.GetString(f.Name)
			v.Set(f.Name, val)
		case "int":
			val, _ := flags.GetInt(f.Name)
			v.Set(f.Name, val)
		case "bool":
			val, _ := flags.GetBool(f.Name)
			v.Set(f.Name, val)
		case "float64":
			val, _ := flags.GetFloat64(f.Name)
			v.Set(f.Name, val)
		case "duration":
			val, _ := flags.GetDuration(f.Name)
			v.Set(f.Name, val)
		case "stringSlice":
			val, _ := flags.GetStringSlice(f.Name)
			v.Set(f.Name, val)
		default:
			v.Set(f.Name, f.Value.String())
		}
	})
}

// defineFlags defines all command line flags on the global flag set.
func defineFlags() {
	defineFlagsOnce.Do(func() {
		registerFlags(pflag.CommandLine)
	})
}

// registerFlags defines flags using canonical snake_case keys.
func registerFlags(fs *pflag.FlagSet) {
	for _, store := range storeSections {
		fs.String(store+".driver", "", "Driver for the "+store+" store (mysql, sqlite3)")
		fs.String(store+".dsn", "", "Complete DSN for the "+store+" store")
		fs.String(store+".dsn_file", "", "Path to file containing the "+store+" DSN (use @- for stdin)")
		fs.String(store+".host", "", "Host of the "+store+" store")
		fs.Int(store+".port", 0, "Port of the "+store+" store")
		fs.String(store+".user", "", "User for the "+store+" store")
		fs.String(store+".password", "", "Password for the "+store+" store")
		fs.String(store+".password_file", "", "Path to file containing the "+store+" password (use @- for stdin)")
		fs.Bool(store+".password_prompt", false, "Prompt for the "+store+" password securely")
		fs.String(store+".database", "", "Database name of the "+store+" store")
		fs.String(store+".tls.mode", "", "TLS mode (off, skip-verify, verify-ca, verify-full)")
		fs.String(store+".tls.ca_file", "", "Path to CA certificate for server verification")
		fs.Int(store+".pool.max_open", 0, "Maximum open connections")
		fs.Int(store+".pool.max_idle", 0, "Maximum idle connections in pool")
		fs.Duration(store+".connection_timeout", 0, "Max time to wait for the store on startup (0 = fail immediately)")
	}

	// Migration flags
	fs.StringSlice("migration.classes", nil, "Entity classes to migrate, in order (comma-separated or repeated)")
	fs.StringSlice("migration.actions", nil, "Actions to run per class: create, update")
	fs.Int("migration.batch_size", 0, "Rows per batch")
	fs.String("migration.lock_file", "", "Lock file held for the duration of a run (empty disables locking)")

	// Observability flags
	fs.String("observability.service_name", "", "Service name for observability")
	fs.String("observability.environment", "", "Environment name (dev, staging, prod)")
	fs.Bool("observability.metrics_enabled", false, "Enable metrics collection")
	fs.String("observability.metrics_textfile", "", "Write Prometheus metrics to this textfile when the run ends")
	fs.Bool("observability.tracing_enabled", false, "Enable distributed tracing")
	fs.Float64("observability.trace_sample_ratio", 0, "Trace sampling ratio from 0.0 to 1.0")
	fs.String("observability.logging.level", "", "Log level (debug, info, warn, error)")
	fs.String("observability.logging.format", "", "Log format (json, text)")
	fs.Bool("observability.logging.exports_enabled", false, "Enable OTLP log export")
	fs.String("observability.otlp.endpoint", "", "OTLP endpoint (e.g., localhost:4317)")
	fs.String("observability.otlp.protocol", "", "OTLP protocol (grpc, http/protobuf)")
	fs.Bool("observability.otlp.insecure", false, "Use insecure connection (no TLS)")

	fs.StringP("config", "c", "", "Config file path")
}

// setDefaults sets default values (lowest precedence).
func setDefaults(v *viper.Viper) {
	for _, store := range storeSections {
		v.SetDefault(store+".driver", DriverMySQL)
		v.SetDefault(store+".dsn", "")
		v.SetDefault(store+".dsn_file", "")
		v.SetDefault(store+".host", "localhost")
		v.SetDefault(store+".port", 3306)
		v.SetDefault(store+".user", "migrate")
		v.SetDefault(store+".password", "")
		v.SetDefault(store+".password_file", "")
		v.SetDefault(store+".password_prompt", false)
		v.SetDefault(store+".database", "")
		v.SetDefault(store+".tls.mode", "")
		v.SetDefault(store+".tls.ca_file", "")
		v.SetDefault(store+".tls.cert_file", "")
		v.SetDefault(store+".tls.key_file", "")
		v.SetDefault(store+".tls.server_name", "")
		v.SetDefault(store+".pool.max_open", 4)
		v.SetDefault(store+".pool.max_idle", 2)
		v.SetDefault(store+".pool.max_lifetime", 5*time.Minute)
		v.SetDefault(store+".connection_timeout", 60*time.Second)
		v.SetDefault(store+".connection_retry_interval", 2*time.Second)
	}

	// Migration defaults
	v.SetDefault("migration.classes", []string{})
	v.SetDefault("migration.actions", []string{"create"})
	v.SetDefault("migration.batch_size", 500)
	v.SetDefault("migration.lock_file", filepath.Join(os.TempDir(), "legacy-migrate.lock"))
	v.SetDefault("migration.lock_timeout", "0s")
	v.SetDefault("migration.class_overrides", map[string]interface{}{})
	v.SetDefault("migration.conditions.task_log_reference", "")
	v.SetDefault("migration.conditions.clocking_reference", "")
	v.SetDefault("migration.conditions.clocking_admin_valid", "pontaj_admin_valid")
	v.SetDefault("migration.conditions.clocking_date", "pontaj_date")
	v.SetDefault("migration.clocking.details", "pontaj_resource_details")
	v.SetDefault("migration.clocking.resource", "pontaj_resource_resource")
	v.SetDefault("migration.clocking.container_alias", "t")
	v.SetDefault("migration.clocking.date", "pontaj_date")
	v.SetDefault("migration.clocking.admin_valid", "pontaj_admin_valid")
	v.SetDefault("migration.clocking.last_action", "pontaj_last_action_date_time")
	v.SetDefault("migration.target_tables.id_column", "id")
	v.SetDefault("migration.target_tables.task_log", "task_logs")
	v.SetDefault("migration.target_tables.task_log_validated_at", "validated_at")
	v.SetDefault("migration.target_tables.daily_clocking", "user_daily_clockings")
	v.SetDefault("migration.target_tables.daily_clocking_user", "user_id")
	v.SetDefault("migration.target_tables.daily_clocking_date", "date")
	v.SetDefault("migration.target_tables.daily_clocking_hours", "hours")
	v.SetDefault("migration.target_tables.daily_clocking_valid", "validated_at")
	v.SetDefault("migration.column_maps", map[string]interface{}{})

	// Observability defaults
	v.SetDefault("observability.service_name", "legacy-migrate")
	v.SetDefault("observability.service_version", "")
	v.SetDefault("observability.environment", "development")
	v.SetDefault("observability.metrics_enabled", true)
	v.SetDefault("observability.metrics_textfile", "")
	v.SetDefault("observability.tracing_enabled", false)
	v.SetDefault("observability.trace_sample_ratio", 1.0)
	v.SetDefault("observability.sqlcommenter_enabled", false)
	v.SetDefault("observability.logging.level", "info")
	v.SetDefault("observability.logging.format", "text")
	v.SetDefault("observability.logging.exports_enabled", false)
	v.SetDefault("observability.otlp.endpoint", "localhost:4317")
	v.SetDefault("observability.otlp.protocol", "grpc")
	v.SetDefault("observability.otlp.insecure", false)
	v.SetDefault("observability.otlp.tls_cert_file", "")
	v.SetDefault("observability.otlp.headers", map[string]string{})
	v.SetDefault("observability.otlp.timeout", 10*time.Second)
	v.SetDefault("observability.otlp.compression", "gzip")
}

// promptPassword prompts for a password without echoing to terminal.
func promptPassword(store string) (string, error) {
	fmt.Fprintf(os.Stderr, "Enter %s database password: ", store)
	bytePassword, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", err
	}
	return string(bytePassword), nil
}

var stdin io.Reader = os.Stdin

func readSecretFile(path string) (string, error) {
	var data []byte
	var err error

	if path == "@-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}

func validateSingleStdinFileSource(v *viper.Viper) error {
	var configured []string
	for _, store := range storeSections {
		for _, name := range []string{"dsn_file", "password_file"} {
			key := store + "." + name
			if strings.TrimSpace(v.GetString(key)) == "@-" {
				configured = append(configured, key)
			}
		}
	}

	if len(configured) > 1 {
		return fmt.Errorf(
			"multiple stdin-backed file settings use @- (%s); only one @- source is allowed",
			strings.Join(configured, ", "),
		)
	}
	return nil
}

func stringToStringSliceHookFunc(sep string) mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if from.Kind() != reflect.String || to != reflect.TypeOf([]string{}) {
			return data, nil
		}

		raw := strings.TrimSpace(data.(string))
		if raw == "" {
			return []string{}, nil
		}

		parts := strings.Split(raw, sep)
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		return parts, nil
	}
}
