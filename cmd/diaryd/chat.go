package main

import (
	"bufio"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nabiya/diarymem/core"
	"github.com/nabiya/diarymem/engine"
)

var chatKind string

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Hold a diary conversation in the terminal",
	Long: `Runs a daily or theme conversation on stdin/stdout. Say that you want to
stop, confirm, and the conversation is written to the diary.`,
	Args: cobra.NoArgs,
	RunE: runChat,
}

func init() {
	chatCmd.Flags().StringVar(&chatKind, "kind", string(core.KindDaily), "conversation kind: daily_diary or theme")
	rootCmd.AddCommand(chatCmd)
}

func runChat(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	a, err := openEngine(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	conv, err := a.engine.NewConversation(userID, core.Kind(chatKind))
	if err != nil {
		return err
	}

	var streamed bool
	conv.OnChunk(func(chunk string) {
		streamed = true
		cmd.Print(chunk)
	})
	say := func(text string) {
		if streamed {
			cmd.Println()
		} else {
			cmd.Println(text)
		}
		streamed = false
	}

	opening, err := conv.Start(ctx)
	if err != nil {
		return err
	}
	say(opening)

	in := bufio.NewScanner(cmd.InOrStdin())
	for {
		cmd.Print("> ")
		if !in.Scan() {
			return in.Err()
		}
		text := strings.TrimSpace(in.Text())
		if text == "" {
			continue
		}

		reply, err := conv.Ask(ctx, text)
		if err != nil {
			if reply.Verdict != engine.Confirmed {
				return err
			}
			// The diary write failed after the user confirmed.
			say(reply.Text)
			if _, err := conv.Finish(ctx); err != nil {
				return err
			}
			cmd.Println(a.engine.Phrases().DiarySaved)
			return nil
		}
		say(reply.Text)
		if reply.Verdict == engine.Confirmed {
			return nil
		}
	}
}
