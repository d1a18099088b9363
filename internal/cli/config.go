package cli

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/pthm/lattice/pkg/migrator"
)

// EnvPrefix prefixes every environment override, e.g. LATTICE_DATABASE_URL.
const EnvPrefix = "LATTICE"

const maxWalkDepth = 25

var configNames = []string{"lattice.yaml", "lattice.yml"}

// Config is the contents of lattice.yaml.
type Config struct {
	// Schema is the path of the schema document (JSON or YAML).
	Schema string `mapstructure:"schema" json:"schema"`

	Database DatabaseConfig `mapstructure:"database" json:"database"`
	Compile  CompileConfig  `mapstructure:"compile" json:"compile"`
	Migrate  MigrateConfig  `mapstructure:"migrate" json:"migrate"`
	Serve    ServeConfig    `mapstructure:"serve" json:"serve"`
	Doctor   DoctorConfig   `mapstructure:"doctor" json:"doctor"`
	Log      LogConfig      `mapstructure:"log" json:"log"`
}

// DatabaseConfig holds connection settings. URL wins over the discrete
// fields.
type DatabaseConfig struct {
	URL      string `mapstructure:"url" json:"url,omitempty"`
	Host     string `mapstructure:"host" json:"host,omitempty"`
	Port     int    `mapstructure:"port" json:"port"`
	Name     string `mapstructure:"name" json:"name,omitempty"`
	User     string `mapstructure:"user" json:"user,omitempty"`
	Password string `mapstructure:"password" json:"password,omitempty"`
	SSLMode  string `mapstructure:"sslmode" json:"sslmode,omitempty"`
}

// CompileConfig tunes compilation.
type CompileConfig struct {
	ForceRLS   bool   `mapstructure:"force_rls" json:"force_rls"`
	UsersTable string `mapstructure:"users_table" json:"users_table,omitempty"`
}

// MigrateConfig holds migrate defaults.
type MigrateConfig struct {
	DryRun bool `mapstructure:"dry_run" json:"dry_run"`
	Force  bool `mapstructure:"force" json:"force"`
}

// ServeConfig holds record API settings.
type ServeConfig struct {
	Addr      string `mapstructure:"addr" json:"addr"`
	JWTSecret string `mapstructure:"jwt_secret" json:"jwt_secret,omitempty"`
	// Role is assumed with SET LOCAL ROLE for every request so policies
	// apply even when the connection user bypasses them.
	Role    string `mapstructure:"role" json:"role,omitempty"`
	MaxRows int    `mapstructure:"max_rows" json:"max_rows"`
}

// DoctorConfig holds doctor settings.
type DoctorConfig struct {
	Verbose bool `mapstructure:"verbose" json:"verbose"`
}

// LogConfig selects the slog handler.
type LogConfig struct {
	Level  string `mapstructure:"level" json:"level"`
	Format string `mapstructure:"format" json:"format"`
}

// LoadConfig resolves configuration with the precedence flags > env > file >
// defaults. Flags are applied by the caller after loading.
//
// A .env file next to the config file (or in the working directory when
// there is none) is loaded first; variables already set in the environment
// are not replaced.
//
// Returns the config, the config file used (empty if none) and any error.
func LoadConfig(explicitConfigPath string) (*Config, string, error) {
	configPath, err := findConfigFile(explicitConfigPath)
	if err != nil {
		return nil, "", err
	}
	if err := loadDotEnv(configPath); err != nil {
		return nil, configPath, err
	}

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, configPath, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, configPath, fmt.Errorf("unmarshaling config: %w", err)
	}
	return &cfg, configPath, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("schema", "schema.json")

	v.SetDefault("database.url", "")
	v.SetDefault("database.host", "")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.name", "")
	v.SetDefault("database.user", "")
	v.SetDefault("database.password", "")
	v.SetDefault("database.sslmode", "prefer")

	v.SetDefault("compile.force_rls", false)
	v.SetDefault("compile.users_table", "")

	v.SetDefault("migrate.dry_run", false)
	v.SetDefault("migrate.force", false)

	v.SetDefault("serve.addr", ":8080")
	v.SetDefault("serve.jwt_secret", "")
	v.SetDefault("serve.role", "")
	v.SetDefault("serve.max_rows", 1000)

	v.SetDefault("doctor.verbose", false)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
}

// findConfigFile returns explicitPath after checking it exists. Without one
// it walks up from the working directory looking for lattice.yaml or
// lattice.yml, stopping at the repository root (.git) or after maxWalkDepth
// levels. An empty result means no config file.
func findConfigFile(explicitPath string) (string, error) {
	if explicitPath != "" {
		if _, err := os.Stat(explicitPath); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicitPath)
		}
		return explicitPath, nil
	}

	dir, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("getting cwd: %w", err)
	}
	for i := 0; i < maxWalkDepth; i++ {
		for _, name := range configNames {
			path := filepath.Join(dir, name)
			if _, err := os.Stat(path); err == nil {
				return path, nil
			}
		}
		if _, err := os.Stat(filepath.Join(dir, ".git")); err == nil {
			break
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return "", nil
}

func loadDotEnv(configPath string) error {
	dir := "."
	if configPath != "" {
		dir = filepath.Dir(configPath)
	}
	path := filepath.Join(dir, ".env")
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("loading %s: %w", path, err)
	}
	return nil
}

// DSN returns database.url, or a postgres:// URL built from the discrete
// fields.
func (c *Config) DSN() (string, error) {
	db := c.Database
	if db.URL != "" {
		return db.URL, nil
	}

	for _, req := range []struct{ key, value string }{
		{"database.host", db.Host},
		{"database.name", db.Name},
		{"database.user", db.User},
	} {
		if req.value == "" {
			return "", fmt.Errorf("%s is required when database.url is not set", req.key)
		}
	}

	u := &url.URL{
		Scheme: "postgres",
		Host:   db.Host + ":" + strconv.Itoa(db.Port),
		Path:   "/" + db.Name,
		User:   url.User(db.User),
	}
	if db.Password != "" {
		u.User = url.UserPassword(db.User, db.Password)
	}
	if db.SSLMode != "" {
		u.RawQuery = url.Values{"sslmode": {db.SSLMode}}.Encode()
	}
	return u.String(), nil
}

// MigrateOptions converts the migrate and compile sections.
func (c *Config) MigrateOptions() migrator.MigrateOptions {
	opts := migrator.MigrateOptions{Force: c.Migrate.Force}
	opts.Compile.ForceRLS = c.Compile.ForceRLS
	opts.Compile.UsersTable = c.Compile.UsersTable
	return opts
}

// Redacted returns a copy with secrets masked, for display.
func (c *Config) Redacted() Config {
	// The mask must survive URL encoding unchanged.
	const mask = "REDACTED"
	r := *c
	if r.Database.Password != "" {
		r.Database.Password = mask
	}
	if r.Serve.JWTSecret != "" {
		r.Serve.JWTSecret = mask
	}
	if u, err := url.Parse(r.Database.URL); err == nil && u.User != nil {
		if _, ok := u.User.Password(); ok {
			u.User = url.UserPassword(u.User.Username(), mask)
			r.Database.URL = u.String()
		}
	}
	return r
}
