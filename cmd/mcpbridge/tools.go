package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/mcpbridge/mcp"
	"github.com/effective-security/mcpbridge/mcp/transport"
	"github.com/effective-security/mcpbridge/pkg/config"
	"github.com/effective-security/xlog"
	"github.com/spf13/cobra"
)

func (c *cli) toolsCmd() *cobra.Command {
	var pattern string
	cmd := &cobra.Command{
		Use:   "tools",
		Short: "List the tools of the server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			client, err := connect(ctx, c.cfg, newClientTransport(c.cfg.Server.Transport, c.cfg.Server.Addr))
			if err != nil {
				return err
			}
			defer client.Close()

			var filter *mcp.ToolFilter
			if pattern != "" {
				filter = &mcp.ToolFilter{Pattern: pattern}
			}
			return printTools(ctx, cmd.OutOrStdout(), client, filter)
		},
	}
	cmd.Flags().StringVar(&pattern, "filter", "", "regular expression of the tool names")
	return cmd
}

func (c *cli) callCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "call <tool> [json arguments]",
		Short: "Call a tool of the server",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			client, err := connect(ctx, c.cfg, newClientTransport(c.cfg.Server.Transport, c.cfg.Server.Addr))
			if err != nil {
				return err
			}
			defer client.Close()

			input := "{}"
			if len(args) > 1 {
				input = args[1]
			}
			return callTool(ctx, cmd.OutOrStdout(), client, args[0], input)
		},
	}
}

// connect opens and initializes the client on tr
func connect(ctx context.Context, cfg *config.Config, tr transport.Transport) (*mcp.Client, error) {
	timeout, err := cfg.Client.GetRequestTimeout()
	if err != nil {
		return nil, err
	}

	client := mcp.NewClient(tr, mcp.WithRequestTimeout(timeout))
	if err = client.Open(ctx); err != nil {
		return nil, errors.WithMessage(err, "failed to connect")
	}

	res, err := client.Initialize(ctx, cfg.Client.Implementation(), mcp.ClientCapabilities{})
	if err != nil {
		_ = client.Close()
		return nil, errors.WithMessage(err, "failed to initialize")
	}

	logger.KV(xlog.DEBUG,
		"status", "connected",
		"server", res.ServerInfo.Name,
		"version", res.ServerInfo.Version,
	)
	return client, nil
}

func printTools(ctx context.Context, w io.Writer, client *mcp.Client, filter *mcp.ToolFilter) error {
	list, err := client.ListTools(ctx, filter)
	if err != nil {
		return err
	}
	for _, d := range list {
		fmt.Fprintf(w, "%s: %s\n", d.Name, d.Description)
		for _, p := range d.Parameters {
			req := ""
			if p.Required {
				req = ", required"
			}
			fmt.Fprintf(w, "  %s (%s%s): %s\n", p.Name, p.Type, req, p.Description)
		}
	}
	return nil
}

func callTool(ctx context.Context, w io.Writer, client *mcp.Client, name, input string) error {
	var args map[string]any
	if err := json.Unmarshal([]byte(input), &args); err != nil {
		return errors.Wrap(err, "invalid arguments")
	}

	res, err := client.CallTool(ctx, name, args)
	if err != nil {
		return err
	}
	if res.IsError {
		return errors.Newf("tool %s failed: %s", name, res.Text())
	}
	fmt.Fprintln(w, res.Text())
	return nil
}
