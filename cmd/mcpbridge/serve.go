package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/mcpbridge/mcp"
	"github.com/effective-security/mcpbridge/mcp/transport"
	"github.com/effective-security/mcpbridge/mcp/transport/httptransport"
	"github.com/effective-security/mcpbridge/mcp/transport/sse"
	"github.com/effective-security/mcpbridge/pkg/config"
	"github.com/effective-security/mcpbridge/tools/calculator"
	"github.com/effective-security/xlog"
	"github.com/spf13/cobra"
)

const stopTimeout = 5 * time.Second

func (c *cli) serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the calculator tools until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			server, acceptor, err := startServer(ctx, &c.cfg.Server)
			if err != nil {
				return err
			}
			logger.KV(xlog.INFO, "status", "serving", "url", endpointURL(c.cfg.Server.Transport, acceptor.Addr()))

			<-ctx.Done()
			return stopServer(server)
		},
	}
}

// newAcceptor returns the server endpoint of the configured transport
func newAcceptor(cfg *config.ServerConfig) transport.Acceptor {
	if cfg.Transport == config.TransportHTTP {
		return httptransport.NewEndpoint(cfg.Addr)
	}
	return sse.NewEndpoint(cfg.Addr)
}

// newClientTransport returns the client transport of the server at addr
func newClientTransport(transportName, addr string) transport.Transport {
	url := endpointURL(transportName, addr)
	if transportName == config.TransportHTTP {
		return httptransport.NewClientTransport(url, nil)
	}
	return sse.NewClientTransport(url)
}

func endpointURL(transportName, addr string) string {
	if transportName == config.TransportHTTP {
		return "http://" + addr + httptransport.Path
	}
	return "http://" + addr + sse.StreamPath
}

// startServer starts the calculator server at the configured endpoint
func startServer(ctx context.Context, cfg *config.ServerConfig) (*mcp.Server, transport.Acceptor, error) {
	reg, err := calculator.NewRegistry()
	if err != nil {
		return nil, nil, err
	}

	var opts []mcp.ServerOption
	if cfg.PageSize > 0 {
		opts = append(opts, mcp.WithPageSize(cfg.PageSize))
	}
	server := mcp.NewServer(calculator.Implementation(), reg, opts...)

	acceptor := newAcceptor(cfg)
	if err = server.Start(ctx, acceptor); err != nil {
		return nil, nil, errors.WithMessage(err, "failed to start server")
	}
	return server, acceptor, nil
}

func stopServer(server *mcp.Server) error {
	ctx, cancel := context.WithTimeout(context.Background(), stopTimeout)
	defer cancel()
	return server.Stop(ctx)
}
