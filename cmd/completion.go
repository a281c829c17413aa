package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var completionCmd = &cobra.Command{
	Use:   "completion [bash|zsh|fish|powershell]",
	Short: "Generate shell completion scripts",
	Long: `Generate shell completion scripts for the router CLI.

Bash:
  $ router completion bash > /etc/bash_completion.d/router

Zsh:
  # Ensure completion is enabled in your .zshrc (autoload -Uz compinit; compinit)
  $ router completion zsh > "${fpath[1]}/_router"

Fish:
  $ router completion fish > ~/.config/fish/completions/router.fish

PowerShell:
  PS> router completion powershell | Out-String | Invoke-Expression
`,
	ValidArgs: []string{"bash", "zsh", "fish", "powershell"},
	Args:      cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		switch args[0] {
		case "bash":
			return rootCmd.GenBashCompletion(os.Stdout)

		case "zsh":
			return rootCmd.GenZshCompletion(os.Stdout)

		case "fish":
			return rootCmd.GenFishCompletion(os.Stdout, true)

		case "powershell":
			return rootCmd.GenPowerShellCompletionWithDesc(os.Stdout)
		default:
			return fmt.Errorf("unsupported shell: %s", args[0])
		}
	},
}

func init() {
	rootCmd.AddCommand(completionCmd)
}
