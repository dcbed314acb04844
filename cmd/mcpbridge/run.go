package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/mcpbridge/assistants"
	"github.com/effective-security/mcpbridge/callbacks"
	"github.com/effective-security/mcpbridge/chatmodel"
	"github.com/effective-security/mcpbridge/mcp"
	"github.com/effective-security/mcpbridge/pkg/config"
	"github.com/effective-security/mcpbridge/pkg/llmfactory"
	"github.com/effective-security/mcpbridge/pkg/llms"
	"github.com/effective-security/mcpbridge/pkg/prompts"
	"github.com/effective-security/mcpbridge/store"
	"github.com/effective-security/mcpbridge/tools/mcptool"
	"github.com/effective-security/x/values"
	"github.com/effective-security/xlog"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
)

func (c *cli) runCmd() *cobra.Command {
	var (
		remote   bool
		verbose  bool
		reset    bool
		chatID   string
		provider string
	)
	cmd := &cobra.Command{
		Use:   "run [prompt]",
		Short: "Serve the calculator tools and run the agent prompt",
		Long: `Starts the calculator server, connects the client, binds the discovered
tools to the agent and prints the answer to the prompt.
With --remote, the agent uses the server at the configured address.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if reset && chatID == "" {
				return errors.New("--reset requires --chat")
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			addr := c.cfg.Server.Addr
			if !remote {
				server, acceptor, err := startServer(ctx, &c.cfg.Server)
				if err != nil {
					return err
				}
				defer func() {
					_ = stopServer(server)
				}()
				addr = acceptor.Addr()
			}

			client, err := connect(ctx, c.cfg, newClientTransport(c.cfg.Server.Transport, addr))
			if err != nil {
				return err
			}
			defer client.Close()

			factory, err := llmfactory.Load(c.cfg.LLM)
			if err != nil {
				return err
			}
			var model llms.Model
			if provider != "" {
				model, err = factory.ModelByType(strings.ToUpper(provider))
			} else {
				model, err = factory.AssistantModel(c.cfg.Agent.Name, c.cfg.Agent.Models...)
			}
			if err != nil {
				return err
			}

			st, closer := newStore(&c.cfg.Store)
			defer closer()

			run := &agentRun{
				cfg:    &c.cfg.Agent,
				client: client,
				model:  model,
				store:  st,
				mode:   callbacks.ModeDefault,
				reset:  reset,
			}
			if verbose {
				run.mode = callbacks.ModeVerbose
				run.events = cmd.ErrOrStderr()
			}

			run.prompt = c.cfg.Agent.Prompt
			if len(args) > 0 {
				run.prompt = args[0]
			}

			ctx = chatmodel.WithChatContext(ctx, chatmodel.NewChatContext("", chatID))
			return runAgent(ctx, cmd.OutOrStdout(), run)
		},
	}
	cmd.Flags().BoolVar(&remote, "remote", false, "use the server at the configured address")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "print the agent events with the tool inputs and outputs")
	cmd.Flags().StringVar(&chatID, "chat", "", "chat ID of the conversation history, a new chat is started when empty")
	cmd.Flags().BoolVar(&reset, "reset", false, "remove the history of the chat before the run")
	cmd.Flags().StringVar(&provider, "provider", "", "use the default model of the provider type: openai|anthropic|bedrock")
	return cmd
}

type agentRun struct {
	cfg    *config.AgentConfig
	client *mcp.Client
	model  llms.Model
	store  store.MessageStore
	mode   callbacks.Mode
	prompt string
	// reset removes the history of the chat before the run
	reset bool
	// events receives the agent events when set
	events io.Writer
}

// maxTitleLen is the length of a chat title taken from the prompt
const maxTitleLen = 60

// newStore returns the conversation history store,
// Redis is used when the address is configured
func newStore(cfg *config.StoreConfig) (store.MessageStore, func()) {
	if cfg.RedisAddr == "" {
		return store.NewMemoryStore(), func() {}
	}
	client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	return store.NewRedisStore(client, cfg.Prefix), func() {
		_ = client.Close()
	}
}

// runAgent binds the tools of the client to the agent,
// and writes the answer to the prompt
func runAgent(ctx context.Context, w io.Writer, r *agentRun) error {
	list, err := r.client.ListTools(ctx, nil)
	if err != nil {
		return err
	}

	names := make([]string, 0, len(list))
	for _, d := range list {
		names = append(names, d.Name)
	}
	logger.KV(xlog.INFO,
		"status", "tools_discovered",
		"count", len(list),
		"tools", strings.Join(names, ","),
	)

	timeout, err := r.cfg.GetTimeout()
	if err != nil {
		return err
	}

	scratchpad := callbacks.NewScratchpad(r.mode)
	cb := callbacks.NewFanout(callbacks.NewPackageLogger(logger), scratchpad)
	if r.events != nil {
		cb.Add(callbacks.NewPrinter(r.events, r.mode))
	}

	b := assistants.NewBuilder(r.model).
		WithName(r.cfg.Name).
		WithOptions(
			assistants.WithStore(r.store),
			assistants.WithMaxToolCalls(r.cfg.MaxToolCalls),
			assistants.WithMaxMessages(r.cfg.MaxMessages),
			assistants.WithTimeout(timeout),
			assistants.WithCallback(cb),
		)
	if r.cfg.SystemPrompt != "" {
		b = b.WithSystemPrompt(prompts.NewPromptTemplate(r.cfg.SystemPrompt, []string{"tools"}))
	}

	agent, err := mcptool.Bind(b, r.client, list).Build()
	if err != nil {
		return err
	}

	ctx = chatmodel.EnsureChatContext(ctx)
	if r.reset {
		if err = r.store.Reset(ctx); err != nil {
			return err
		}
	}

	scratchpad.StartRun(ctx)
	answer, err := agent.Prompt(ctx, r.prompt)
	stats, _ := scratchpad.EndRun(ctx)
	if stats != nil {
		logger.ContextKV(ctx, xlog.INFO,
			"status", "run_completed",
			"chat", chatmodel.GetChatContext(ctx).GetChatID(),
			"llm_calls", stats.LLMCalls,
			"tool_calls", stats.ToolsCalls,
			"duration", stats.Duration.String(),
		)
	}
	if err != nil {
		return err
	}
	nameChat(ctx, r)

	fmt.Fprintln(w, strings.TrimSpace(answer))
	return nil
}

// nameChat titles a new chat after its first prompt
func nameChat(ctx context.Context, r *agentRun) {
	info, err := r.store.GetChatInfo(ctx, "")
	if err != nil {
		logger.ContextKV(ctx, xlog.WARNING, "reason", "get_chat", "err", err.Error())
		return
	}
	if info.Title != store.DefaultChatTitle {
		return
	}
	err = r.store.UpdateChat(ctx, chatTitle(r.prompt), map[string]any{
		"assistant": r.cfg.Name,
		"model":     r.model.GetName(),
	})
	if err != nil {
		logger.ContextKV(ctx, xlog.WARNING, "reason", "update_chat", "err", err.Error())
	}
}

// chatTitle returns the first line of the prompt, shortened to maxTitleLen
func chatTitle(prompt string) string {
	title, _, _ := strings.Cut(strings.TrimSpace(prompt), "\n")
	if runes := []rune(title); len(runes) > maxTitleLen {
		title = string(runes[:maxTitleLen]) + "..."
	}
	return values.StringsCoalesce(title, store.DefaultChatTitle)
}
