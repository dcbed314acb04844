package main

import (
	"context"
	"fmt"
	"io"
	"slices"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/mcpbridge/chatmodel"
	"github.com/effective-security/mcpbridge/pkg/llmutils"
	"github.com/effective-security/mcpbridge/store"
	"github.com/spf13/cobra"
)

func (c *cli) chatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "chats [chat ID]",
		Short: "List the chats of the conversation history, or print the messages of a chat",
		Long: `Lists the chats kept in the conversation history store.
The history outlives the command only with store.redis_addr configured.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, closer := newStore(&c.cfg.Store)
			defer closer()

			chatID := ""
			if len(args) > 0 {
				chatID = args[0]
			}
			return printChats(cmd.Context(), cmd.OutOrStdout(), st, chatID)
		},
	}
}

// printChats writes the chats of the default tenant,
// or the messages of the chat when chatID is set
func printChats(ctx context.Context, w io.Writer, st store.MessageStore, chatID string) error {
	ctx = chatmodel.WithChatContext(ctx, chatmodel.NewChatContext("", chatID))
	ids, err := st.ListChats(ctx)
	if err != nil {
		return err
	}

	if chatID != "" {
		// GetChatInfo creates a missing chat
		if !slices.Contains(ids, chatID) {
			return errors.Newf("chat not found: %s", chatID)
		}
		info, err := st.GetChatInfo(ctx, chatID)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "%s: %s\n", info.ChatID, info.Title)
		llmutils.PrintMessages(w, info.Messages)
		return nil
	}

	for _, id := range ids {
		info, err := st.GetChatInfo(ctx, id)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "%s  %s  %d messages  %s\n",
			id, info.UpdatedAt.Format(time.RFC3339), len(info.Messages), info.Title)
	}
	return nil
}
