package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cfgFile string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "router",
	Short: "router - semantic router and lifecycle manager for MCP tool servers",
	Long: `router indexes the tools exposed by a set of configured MCP servers into
a vector index, then serves a single semantic_router meta-tool that lets a
model discover, start, and invoke them without every tool's schema sitting
in context up front.

Features:
  - Semantic search over indexed tool descriptions
  - Lazy child-server lifecycle (start on demand, evict when idle)
  - Synchronous and background tool execution with a priority queue
  - Large results offloaded to content storage and fetched in chunks

Environment Variables:
  OPENAI_API_KEY      For text embedding/description/vision calls
  PINECONE_API_KEY    For Pinecone backend
  QDRANT_URL          For Qdrant backend`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	// Disable the default cobra completion command to avoid duplicate name conflict.
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is router.yaml in $HOME or the current directory)")
	rootCmd.PersistentFlags().Bool("verbose", false, "enable verbose output")

	// Bind to viper
	_ = viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
}

// initConfig reads in config file and ENV variables if set.
// Config loading priority: CLI flags > environment variables > config file > defaults.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(home)
		}
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName("router")
	}

	// Read environment variables with ROUTER_ prefix
	viper.SetEnvPrefix("ROUTER")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// Also accept the unprefixed PINECONE_API_KEY, OPENAI_API_KEY and QDRANT_URL
	_ = viper.BindEnv("storage.pinecone_api_key", "PINECONE_API_KEY")
	_ = viper.BindEnv("embedding.api_key", "OPENAI_API_KEY")
	_ = viper.BindEnv("storage.qdrant_url", "QDRANT_URL")

	// Read config file if it exists
	if err := viper.ReadInConfig(); err == nil {
		if viper.GetBool("verbose") {
			fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
		}
	}
}
