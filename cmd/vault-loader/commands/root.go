package commands

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/systmms/vault-loader/internal/config"
	"github.com/systmms/vault-loader/internal/logging"
)

// BuildInfo is stamped in at link time.
type BuildInfo struct {
	Version string
	Commit  string
	Date    string
}

// Runtime is shared by every command. The root command fills it in before
// any subcommand runs.
type Runtime struct {
	Config *config.Config
	Logger *logging.Logger
	Out    io.Writer
	// NoColor disables colour in command output as well as in logs.
	NoColor bool
}

// NewRootCommand builds the vault-loader command tree.
func NewRootCommand(info BuildInfo) *cobra.Command {
	var (
		configFile string
		envFile    string
		noColor    bool
		debug      bool
		logJSON    bool
	)

	rt := &Runtime{}
	overrides := &flagOverrides{}

	rootCmd := &cobra.Command{
		Use:   "vault-loader",
		Short: "Load web3signer keys from HashiCorp Vault",
		Long: `vault-loader reads validator key secrets from a Vault KV v2 mount and
writes them as web3signer key configuration files. It can also upload local
key secrets to Vault.

Configuration is layered: defaults, then the --config YAML file, then
environment variables (VAULT_ADDR, VAULT_PATH, ...), then flags.`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", info.Version, info.Commit, info.Date),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			rt.Logger = logging.NewWithOptions(logging.Options{
				Debug:   debug,
				NoColor: noColor,
				JSON:    logJSON,
				Output:  cmd.ErrOrStderr(),
			})
			rt.Out = cmd.OutOrStdout()
			rt.NoColor = noColor || logJSON

			cfg, err := config.Load(configFile, envFile)
			if err != nil {
				return err
			}
			overrides.apply(cmd, cfg)
			rt.Config = cfg

			rt.Logger.Debug("Effective configuration:\n%s", cfg)
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDownload(cmd.Context(), rt)
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&configFile, "config", "c", "", "Config file path (YAML)")
	flags.StringVar(&envFile, "env-file", "", "Load environment variables from this file first")
	flags.BoolVar(&noColor, "no-color", false, "Disable colored output")
	flags.BoolVar(&debug, "debug", false, "Enable debug logging")
	flags.BoolVar(&logJSON, "log-json", false, "Log as JSON lines")
	overrides.register(rootCmd)
	registerFlagCompletions(rootCmd)

	rootCmd.AddCommand(
		NewDownloadCommand(rt),
		NewUploadCommand(rt),
		NewDoctorCommand(rt),
		NewCompletionCommand(),
	)

	return rootCmd
}

// flagOverrides holds the values of the configuration flags. Only flags set
// on the command line replace what the file and environment provided.
type flagOverrides struct {
	vaultAddr              string
	vaultPath              string
	vaultTokenPath         string
	vaultCACert            string
	vaultClientCert        string
	vaultClientKey         string
	vaultPubkeysJSONGlob   string
	vaultPrivkeysJSONGlob  string
	web3signerKeyStorePath string
	maxConcurrentRequests  int
	maxOpenFileDescriptors int
	maxAttempts            int
	requestsPerSecond      float64
	timeout                time.Duration
	metricsTextfile        string
	failOnError            bool
}

func (o *flagOverrides) register(cmd *cobra.Command) {
	flags := cmd.PersistentFlags()
	flags.StringVar(&o.vaultAddr, "vault-addr", "", "Vault server URL")
	flags.StringVar(&o.vaultPath, "vault-path", "", "KV v2 path the keys live under, e.g. secret/data/web3signer")
	flags.StringVar(&o.vaultTokenPath, "vault-token-path", "", "File containing the Vault token")
	flags.StringVar(&o.vaultCACert, "vault-cacert", "", "PEM CA certificate to verify Vault with")
	flags.StringVar(&o.vaultClientCert, "vault-client-cert", "", "PEM client certificate for mutual TLS")
	flags.StringVar(&o.vaultClientKey, "vault-client-key", "", "PEM private key matching --vault-client-cert")
	flags.StringVar(&o.vaultPubkeysJSONGlob, "vault-pubkeys-json-glob", "", "Glob of JSON files listing public keys to download")
	flags.StringVar(&o.vaultPrivkeysJSONGlob, "vault-privkeys-json-glob", "", "Glob of JSON files with key secrets to upload")
	flags.StringVar(&o.web3signerKeyStorePath, "web3signer-key-store-path", "", "Existing directory to write key files into")
	flags.IntVar(&o.maxConcurrentRequests, "vault-max-concurrent-requests", config.DefaultMaxConcurrentRequests, "Maximum concurrent Vault requests")
	flags.IntVar(&o.maxOpenFileDescriptors, "max-open-file-descriptors", config.DefaultMaxOpenFileDescriptors, "Maximum files open for writing at once")
	flags.IntVar(&o.maxAttempts, "vault-max-attempts", config.DefaultMaxAttempts, "Attempts per key before giving up (0 retries forever)")
	flags.Float64Var(&o.requestsPerSecond, "vault-requests-per-second", 0, "Cap on Vault requests per second (0 disables)")
	flags.DurationVar(&o.timeout, "vault-timeout", config.DefaultTimeout, "Timeout for a single Vault request")
	flags.StringVar(&o.metricsTextfile, "metrics-textfile", "", "Write Prometheus metrics to this file after the run")
	flags.BoolVar(&o.failOnError, "fail-on-error", false, "Exit non-zero when any key fails")
}

func (o *flagOverrides) apply(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()
	set := func(name string, fn func()) {
		if flags.Changed(name) {
			fn()
		}
	}

	set("vault-addr", func() { cfg.VaultAddr = o.vaultAddr })
	set("vault-path", func() { cfg.VaultPath = o.vaultPath })
	set("vault-token-path", func() { cfg.VaultTokenPath = o.vaultTokenPath })
	set("vault-cacert", func() { cfg.VaultCACert = o.vaultCACert })
	set("vault-client-cert", func() { cfg.VaultClientCert = o.vaultClientCert })
	set("vault-client-key", func() { cfg.VaultClientKey = o.vaultClientKey })
	set("vault-pubkeys-json-glob", func() { cfg.VaultPubkeysJSONGlob = o.vaultPubkeysJSONGlob })
	set("vault-privkeys-json-glob", func() { cfg.VaultPrivkeysJSONGlob = o.vaultPrivkeysJSONGlob })
	set("web3signer-key-store-path", func() { cfg.Web3signerKeyStorePath = o.web3signerKeyStorePath })
	set("vault-max-concurrent-requests", func() { cfg.VaultMaxConcurrentRequests = o.maxConcurrentRequests })
	set("max-open-file-descriptors", func() { cfg.MaxOpenFileDescriptors = o.maxOpenFileDescriptors })
	set("vault-max-attempts", func() { cfg.VaultMaxAttempts = o.maxAttempts })
	set("vault-requests-per-second", func() { cfg.VaultRequestsPerSecond = o.requestsPerSecond })
	set("vault-timeout", func() { cfg.VaultTimeout = o.timeout })
	set("metrics-textfile", func() { cfg.MetricsTextfile = o.metricsTextfile })
	set("fail-on-error", func() { cfg.FailOnError = o.failOnError })
}
