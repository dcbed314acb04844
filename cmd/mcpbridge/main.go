// Command mcpbridge serves the calculator tools over MCP,
// and runs an LLM agent that uses the tools of an MCP server.
package main

import (
	"os"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/mcpbridge/pkg/config"
	"github.com/effective-security/xlog"
	"github.com/spf13/cobra"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/mcpbridge", "cmd")

type cli struct {
	configFile string
	logLevel   string

	cfg *config.Config
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	c := &cli{}
	root := &cobra.Command{
		Use:          "mcpbridge",
		Short:        "MCP calculator server and tool-using agent",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := setLogLevel(c.logLevel); err != nil {
				return err
			}
			cfg, err := config.Load(c.configFile)
			if err != nil {
				return err
			}
			c.cfg = cfg
			return nil
		},
	}

	root.PersistentFlags().StringVarP(&c.configFile, "config", "c", "", "path to the config file, the defaults are used when empty")
	root.PersistentFlags().StringVar(&c.logLevel, "log-level", "info", "log level: debug|info|warning|error")

	root.AddCommand(c.serveCmd())
	root.AddCommand(c.toolsCmd())
	root.AddCommand(c.callCmd())
	root.AddCommand(c.runCmd())
	root.AddCommand(c.chatsCmd())
	root.AddCommand(c.configCmd())
	return root
}

func setLogLevel(level string) error {
	xlog.SetFormatter(xlog.NewStringFormatter(os.Stderr))
	switch strings.ToLower(level) {
	case "debug":
		xlog.SetGlobalLogLevel(xlog.DEBUG)
	case "info", "":
		xlog.SetGlobalLogLevel(xlog.INFO)
	case "warning", "warn":
		xlog.SetGlobalLogLevel(xlog.WARNING)
	case "error":
		xlog.SetGlobalLogLevel(xlog.ERROR)
	default:
		return errors.Newf("invalid log level: %s", level)
	}
	return nil
}
