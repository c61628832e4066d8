package commands

import (
	"fmt"
	"io"
	"sort"

	"github.com/spf13/cobra"
)

// completionGenerators writes the completion script for each shell.
var completionGenerators = map[string]func(root *cobra.Command, out io.Writer) error{
	"bash": func(root *cobra.Command, out io.Writer) error {
		return root.GenBashCompletionV2(out, true)
	},
	"zsh": func(root *cobra.Command, out io.Writer) error {
		return root.GenZshCompletion(out)
	},
	"fish": func(root *cobra.Command, out io.Writer) error {
		return root.GenFishCompletion(out, true)
	},
	"powershell": func(root *cobra.Command, out io.Writer) error {
		return root.GenPowerShellCompletionWithDesc(out)
	},
}

func completionShells() []string {
	shells := make([]string, 0, len(completionGenerators))
	for shell := range completionGenerators {
		shells = append(shells, shell)
	}
	sort.Strings(shells)
	return shells
}

// NewCompletionCommand creates the completion command for generating shell completions.
func NewCompletionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "completion [bash|zsh|fish|powershell]",
		Short: "Generate shell completion scripts",
		Long: `Generate a shell completion script for vault-loader.

Besides subcommands and flags, the script completes YAML files for --config,
PEM files for the TLS flags, JSON files for the key globs and directories for
--web3signer-key-store-path.

  $ source <(vault-loader completion bash)
  $ vault-loader completion zsh > "${fpath[1]}/_vault-loader"
  $ vault-loader completion fish > ~/.config/fish/completions/vault-loader.fish
  PS> vault-loader completion powershell | Out-String | Invoke-Expression`,
		DisableFlagsInUseLine: true,
		ValidArgs:             completionShells(),
		Args:                  cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		// Completion output must not depend on a loadable config.
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
		RunE: func(cmd *cobra.Command, args []string) error {
			gen, ok := completionGenerators[args[0]]
			if !ok {
				return fmt.Errorf("unsupported shell %q", args[0])
			}
			return gen(cmd.Root(), cmd.OutOrStdout())
		},
	}
}

// registerFlagCompletions tells the shell which files each path flag takes.
func registerFlagCompletions(root *cobra.Command) {
	files := map[string][]string{
		"config":                   {"yaml", "yml"},
		"env-file":                 {"env"},
		"vault-token-path":         nil,
		"vault-cacert":             {"pem", "crt"},
		"vault-client-cert":        {"pem", "crt"},
		"vault-client-key":         {"pem", "key"},
		"vault-pubkeys-json-glob":  {"json"},
		"vault-privkeys-json-glob": {"json"},
		"metrics-textfile":         {"prom"},
	}
	for name, exts := range files {
		_ = root.MarkPersistentFlagFilename(name, exts...)
	}
	_ = root.MarkPersistentFlagDirname("web3signer-key-store-path")
}
