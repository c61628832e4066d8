package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/allisson/go-env"
	"github.com/jellydator/validation"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	dserrors "github.com/systmms/vault-loader/internal/errors"
)

// Defaults.
const (
	DefaultMaxConcurrentRequests  = 20
	DefaultMaxOpenFileDescriptors = 1024
	DefaultMaxAttempts            = 10
	DefaultRetryInitialInterval   = 250 * time.Millisecond
	DefaultRetryMaxInterval       = 5 * time.Second
	DefaultTimeout                = 30 * time.Second
)

// Config holds the runtime configuration. Values are layered: defaults, then
// the YAML file, then the environment, then explicitly set CLI flags. The
// Vault token is never part of it; only the path to the token file is.
type Config struct {
	VaultAddr       string `yaml:"vault_addr" json:"vault_addr"`
	VaultPath       string `yaml:"vault_path" json:"vault_path"`
	VaultTokenPath  string `yaml:"vault_token_path" json:"vault_token_path"`
	VaultCACert     string `yaml:"vault_cacert,omitempty" json:"vault_cacert"`
	VaultClientCert string `yaml:"vault_client_cert,omitempty" json:"vault_client_cert"`
	VaultClientKey  string `yaml:"vault_client_key,omitempty" json:"vault_client_key"`

	// Download
	VaultPubkeysJSONGlob   string `yaml:"vault_pubkeys_json_glob,omitempty" json:"vault_pubkeys_json_glob"`
	Web3signerKeyStorePath string `yaml:"web3signer_key_store_path,omitempty" json:"web3signer_key_store_path"`

	// Upload
	VaultPrivkeysJSONGlob string `yaml:"vault_privkeys_json_glob,omitempty" json:"vault_privkeys_json_glob"`

	VaultMaxConcurrentRequests int           `yaml:"vault_max_concurrent_requests" json:"vault_max_concurrent_requests"`
	MaxOpenFileDescriptors     int           `yaml:"max_open_file_descriptors" json:"max_open_file_descriptors"`
	VaultMaxAttempts           int           `yaml:"vault_max_attempts" json:"vault_max_attempts"`
	VaultRetryInitialInterval  time.Duration `yaml:"vault_retry_initial_interval" json:"vault_retry_initial_interval"`
	VaultRetryMaxInterval      time.Duration `yaml:"vault_retry_max_interval" json:"vault_retry_max_interval"`
	VaultRequestsPerSecond     float64       `yaml:"vault_requests_per_second" json:"vault_requests_per_second"`
	VaultTimeout               time.Duration `yaml:"vault_timeout" json:"vault_timeout"`

	MetricsTextfile string `yaml:"metrics_textfile,omitempty" json:"metrics_textfile"`
	FailOnError     bool   `yaml:"fail_on_error" json:"fail_on_error"`
}

// Defaults returns a Config with every default applied.
func Defaults() *Config {
	return &Config{
		VaultMaxConcurrentRequests: DefaultMaxConcurrentRequests,
		MaxOpenFileDescriptors:     DefaultMaxOpenFileDescriptors,
		VaultMaxAttempts:           DefaultMaxAttempts,
		VaultRetryInitialInterval:  DefaultRetryInitialInterval,
		VaultRetryMaxInterval:      DefaultRetryMaxInterval,
		VaultTimeout:               DefaultTimeout,
	}
}

// Load builds a Config from defaults, the YAML file at path and the
// environment. Either path or envFile may be empty. Variables from envFile
// never override ones already set in the process environment.
func Load(path, envFile string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			return nil, dserrors.ConfigError{
				Field:      "env-file",
				Value:      envFile,
				Message:    fmt.Sprintf("failed to load environment file: %v", err),
				Suggestion: "Check that the file exists and uses KEY=value lines",
			}
		}
	}

	if err := cfg.loadEnv(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return dserrors.ConfigError{
				Field:      "config",
				Value:      path,
				Message:    "configuration file not found",
				Suggestion: "Pass an existing file with --config or configure through VAULT_* environment variables",
			}
		}
		return dserrors.UserError{
			Message:    "Failed to read configuration file",
			Details:    err.Error(),
			Suggestion: "Check file permissions and path",
			Err:        err,
		}
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return dserrors.ConfigError{
			Field:      "config",
			Value:      path,
			Message:    fmt.Sprintf("invalid YAML in configuration file: %v", err),
			Suggestion: "Check for indentation errors, missing quotes, or invalid characters",
		}
	}
	return nil
}

// loadEnv overrides fields from upper-cased environment variables, e.g.
// VAULT_ADDR for vault_addr.
func (c *Config) loadEnv() error {
	c.VaultAddr = env.GetString("VAULT_ADDR", c.VaultAddr)
	c.VaultPath = env.GetString("VAULT_PATH", c.VaultPath)
	c.VaultTokenPath = env.GetString("VAULT_TOKEN_PATH", c.VaultTokenPath)
	c.VaultCACert = env.GetString("VAULT_CACERT", c.VaultCACert)
	c.VaultClientCert = env.GetString("VAULT_CLIENT_CERT", c.VaultClientCert)
	c.VaultClientKey = env.GetString("VAULT_CLIENT_KEY", c.VaultClientKey)
	c.VaultPubkeysJSONGlob = env.GetString("VAULT_PUBKEYS_JSON_GLOB", c.VaultPubkeysJSONGlob)
	c.VaultPrivkeysJSONGlob = env.GetString("VAULT_PRIVKEYS_JSON_GLOB", c.VaultPrivkeysJSONGlob)
	c.Web3signerKeyStorePath = env.GetString("WEB3SIGNER_KEY_STORE_PATH", c.Web3signerKeyStorePath)
	c.VaultMaxConcurrentRequests = env.GetInt("VAULT_MAX_CONCURRENT_REQUESTS", c.VaultMaxConcurrentRequests)
	c.MaxOpenFileDescriptors = env.GetInt("MAX_OPEN_FILE_DESCRIPTORS", c.MaxOpenFileDescriptors)
	c.VaultMaxAttempts = env.GetInt("VAULT_MAX_ATTEMPTS", c.VaultMaxAttempts)
	c.VaultRequestsPerSecond = env.GetFloat64("VAULT_REQUESTS_PER_SECOND", c.VaultRequestsPerSecond)
	c.MetricsTextfile = env.GetString("METRICS_TEXTFILE", c.MetricsTextfile)
	c.FailOnError = env.GetBool("FAIL_ON_ERROR", c.FailOnError)

	durations := []struct {
		key string
		dst *time.Duration
	}{
		{"VAULT_RETRY_INITIAL_INTERVAL", &c.VaultRetryInitialInterval},
		{"VAULT_RETRY_MAX_INTERVAL", &c.VaultRetryMaxInterval},
		{"VAULT_TIMEOUT", &c.VaultTimeout},
	}
	for _, d := range durations {
		raw := env.GetString(d.key, "")
		if raw == "" {
			continue
		}
		parsed, err := time.ParseDuration(raw)
		if err != nil {
			return dserrors.ConfigError{
				Field:      strings.ToLower(d.key),
				Value:      raw,
				Message:    "invalid duration",
				Suggestion: "Use a Go duration such as 250ms, 5s or 1m",
			}
		}
		*d.dst = parsed
	}

	return nil
}

// Validate checks the settings every command needs.
func (c *Config) Validate() error {
	err := validation.ValidateStruct(c,
		validation.Field(&c.VaultAddr,
			validation.Required.Error("is required"),
			validation.By(isURL),
		),
		validation.Field(&c.VaultTokenPath,
			validation.Required.Error("is required"),
		),
		validation.Field(&c.VaultMaxConcurrentRequests,
			validation.Required.Error("must be at least 1"),
			validation.Min(1).Error("must be at least 1"),
		),
		validation.Field(&c.MaxOpenFileDescriptors,
			validation.Required.Error("must be at least 1"),
			validation.Min(1).Error("must be at least 1"),
		),
		validation.Field(&c.VaultMaxAttempts,
			validation.Min(0).Error("must not be negative"),
		),
		validation.Field(&c.VaultRequestsPerSecond,
			validation.Min(0.0).Error("must not be negative"),
		),
		validation.Field(&c.VaultRetryInitialInterval,
			validation.Min(time.Duration(0)).Error("must not be negative"),
		),
		validation.Field(&c.VaultRetryMaxInterval,
			validation.Min(time.Duration(0)).Error("must not be negative"),
		),
		validation.Field(&c.VaultTimeout,
			validation.Min(time.Duration(0)).Error("must not be negative"),
		),
	)
	if err != nil {
		return toConfigError(err)
	}

	if (c.VaultClientCert == "") != (c.VaultClientKey == "") {
		return dserrors.ConfigError{
			Field:      "vault_client_cert",
			Message:    "vault_client_cert and vault_client_key must be set together",
			Suggestion: "Set both for mutual TLS, or neither",
		}
	}

	return nil
}

// ValidateDownload checks the settings the download command needs.
func (c *Config) ValidateDownload() error {
	if err := c.Validate(); err != nil {
		return err
	}
	err := validation.ValidateStruct(c,
		validation.Field(&c.VaultPath, validation.Required.Error("is required")),
		validation.Field(&c.VaultPubkeysJSONGlob, validation.Required.Error("is required")),
		validation.Field(&c.Web3signerKeyStorePath, validation.Required.Error("is required")),
	)
	return toConfigError(err)
}

// ValidateUpload checks the settings the upload command needs.
func (c *Config) ValidateUpload() error {
	if err := c.Validate(); err != nil {
		return err
	}
	err := validation.ValidateStruct(c,
		validation.Field(&c.VaultPath, validation.Required.Error("is required")),
		validation.Field(&c.VaultPrivkeysJSONGlob, validation.Required.Error("is required")),
	)
	return toConfigError(err)
}

// String renders the effective configuration as YAML.
func (c *Config) String() string {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Sprintf("<invalid config: %v>", err)
	}
	return string(data)
}

func isURL(value interface{}) error {
	s, _ := value.(string)
	if s == "" {
		return nil
	}
	u, err := url.Parse(s)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return errors.New("must be a URL such as https://vault.example.com:8200")
	}
	return nil
}

// toConfigError reports the first failing field, in name order, as a
// ConfigError.
func toConfigError(err error) error {
	if err == nil {
		return nil
	}

	var fieldErrs validation.Errors
	if !errors.As(err, &fieldErrs) {
		return err
	}

	fields := make([]string, 0, len(fieldErrs))
	for field := range fieldErrs {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	field := fields[0]
	return dserrors.ConfigError{
		Field:      field,
		Message:    fieldErrs[field].Error(),
		Suggestion: fmt.Sprintf("Set %s in the config file, as %s in the environment, or with --%s", field, strings.ToUpper(field), strings.ReplaceAll(field, "_", "-")),
	}
}
