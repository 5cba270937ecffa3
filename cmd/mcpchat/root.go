// Package mcpchat defines the CLI commands for the chatbot backend.
package mcpchat

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/modelrelay/mcpchat/pkg/config"
	"github.com/modelrelay/mcpchat/pkg/log"
)

var (
	cfgFile string
	verbose bool
	cfg     *config.Config
	version string = "dev"
)

var RootCmd = &cobra.Command{
	Use:   "mcpchat",
	Short: "mcpchat - chatbot backend with tool-server integration",
	Long: `mcpchat is a chatbot backend that bridges language-model completion
providers with Model Context Protocol tool servers. User messages are
analyzed for tool relevance, matching tools are invoked over JSON-RPC,
and their output is folded into the generated reply.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "version" {
			return nil
		}

		log.SetDebug(verbose)

		var err error
		cfg, err = config.Load(cfgFile)
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}
		return nil
	},
}

func Execute() error {
	return RootCmd.Execute()
}

// GetRootCmd returns the root cobra command for testing purposes.
func GetRootCmd() *cobra.Command {
	return RootCmd
}

// SetVersion sets the version for the CLI.
func SetVersion(v string) {
	version = v
	RootCmd.Version = v
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("mcpchat version %s\n", version)
	},
}

func init() {
	RootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "configuration file path (default: ~/.mcpchat/mcpchat.toml or ./mcpchat.toml)")
	RootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose logging output")

	RootCmd.AddCommand(versionCmd)
	RootCmd.AddCommand(serveCmd)
	RootCmd.AddCommand(serversCmd)
}
