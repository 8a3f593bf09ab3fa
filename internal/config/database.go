package config

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
)

// tlsConfigPrefix names custom TLS configs registered with the MySQL driver.
const tlsConfigPrefix = "legacy-migrate"

// StoreName returns the configuration section the store was loaded from.
func (d *DatabaseConfig) StoreName() string {
	if d.store == "" {
		return "database"
	}
	return d.store
}

// NameStores labels both stores with their section names. Load calls it;
// configs built in code should too.
func (c *Config) NameStores() {
	c.Legacy.store = "legacy"
	c.Target.store = "target"
}

// IsSQLite reports whether the store uses the sqlite3 driver.
func (d *DatabaseConfig) IsSQLite() bool {
	return d.Driver == DriverSQLite
}

// DSN returns the data source name handed to sql.Open.
// For mysql a DSN is normalized through the driver's parser; discrete fields
// are used when no DSN is set. sqlite3 DSNs are passed through unchanged.
func (d *DatabaseConfig) DSN() (string, error) {
	if d.IsSQLite() {
		return d.ConnectionString, nil
	}

	var cfg *mysql.Config
	if d.ConnectionString != "" {
		parsed, err := mysql.ParseDSN(d.ConnectionString)
		if err != nil {
			return "", fmt.Errorf("%s.dsn is invalid: %w", d.StoreName(), err)
		}
		cfg = parsed
		if cfg.DBName == "" {
			cfg.DBName = d.Database
		}
	} else {
		cfg = mysql.NewConfig()
		cfg.User = d.User
		cfg.Passwd = d.Password
		cfg.Net = "tcp"
		cfg.Addr = d.Host + ":" + strconv.Itoa(d.Port)
		cfg.DBName = d.Database
	}

	cfg.ParseTime = true
	cfg.Loc = time.UTC
	if param := d.tlsParam(); param != "" && cfg.TLSConfig == "" {
		cfg.TLSConfig = param
	}
	return cfg.FormatDSN(), nil
}

// EffectiveDatabaseName returns the schema name used for introspection.
// An explicit database must agree with the one in the DSN.
func (d *DatabaseConfig) EffectiveDatabaseName() (string, error) {
	if d.IsSQLite() {
		return "main", nil
	}

	configured := strings.TrimSpace(d.Database)
	fromDSN := ""
	if dsn := strings.TrimSpace(d.ConnectionString); dsn != "" {
		parsed, err := mysql.ParseDSN(dsn)
		if err != nil {
			return "", fmt.Errorf("%s.dsn is invalid: %w", d.StoreName(), err)
		}
		fromDSN = strings.TrimSpace(parsed.DBName)
	}

	switch {
	case configured != "" && fromDSN != "" && configured != fromDSN:
		return "", fmt.Errorf("database mismatch: %s.database=%q but %s.dsn targets %q",
			d.StoreName(), configured, d.StoreName(), fromDSN)
	case configured != "":
		return configured, nil
	case fromDSN != "":
		return fromDSN, nil
	default:
		return "", fmt.Errorf("no database configured: set %s.database or include /<database> in %s.dsn",
			d.StoreName(), d.StoreName())
	}
}

func (d *DatabaseConfig) tlsConfigName() string {
	return tlsConfigPrefix + "-" + d.StoreName()
}

func (d *DatabaseConfig) tlsParam() string {
	switch d.TLS.Mode {
	case "":
		return ""
	case "off":
		return "false"
	case "skip-verify":
		return "skip-verify"
	case "verify-ca", "verify-full":
		return d.tlsConfigName()
	default:
		return d.TLS.Mode
	}
}

// RegisterTLS registers the store's custom TLS configuration with the MySQL
// driver. It must run before the connection is opened and is a no-op unless
// the mode is verify-ca or verify-full.
func (d *DatabaseConfig) RegisterTLS() error {
	if d.IsSQLite() || (d.TLS.Mode != "verify-ca" && d.TLS.Mode != "verify-full") {
		return nil
	}

	tlsCfg, err := d.buildTLSConfig()
	if err != nil {
		return fmt.Errorf("failed to build %s TLS config: %w", d.StoreName(), err)
	}
	if err := mysql.RegisterTLSConfig(d.tlsConfigName(), tlsCfg); err != nil {
		return fmt.Errorf("failed to register %s TLS config: %w", d.StoreName(), err)
	}
	return nil
}

func (d *DatabaseConfig) buildTLSConfig() (*tls.Config, error) {
	tlsCfg := &tls.Config{MinVersion: tls.VersionTLS12}

	if d.TLS.CAFile != "" {
		caCert, err := os.ReadFile(d.TLS.CAFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read CA file %q: %w", d.TLS.CAFile, err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(caCert) {
			return nil, fmt.Errorf("failed to parse CA certificate from %q", d.TLS.CAFile)
		}
		tlsCfg.RootCAs = pool
	}

	switch {
	case d.TLS.CertFile != "" && d.TLS.KeyFile != "":
		cert, err := tls.LoadX509KeyPair(d.TLS.CertFile, d.TLS.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load client certificate: %w", err)
		}
		tlsCfg.Certificates = []tls.Certificate{cert}
	case d.TLS.CertFile != "" || d.TLS.KeyFile != "":
		return nil, fmt.Errorf("both cert_file and key_file must be specified for client certificate authentication")
	}

	if d.TLS.Mode == "verify-full" {
		tlsCfg.ServerName = d.TLS.ServerName
		if tlsCfg.ServerName == "" {
			tlsCfg.ServerName = d.Host
		}
	}
	return tlsCfg, nil
}
