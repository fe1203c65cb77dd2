package main

import (
	"bufio"
	"errors"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nabiya/diarymem/core"
)

var recallDate string

var recallCmd = &cobra.Command{
	Use:   "recall",
	Short: "Take a memory quiz about the past week's diary",
	Long: `Generates questions from the diaries written in the week up to --date
and asks them one at a time. A wrong answer earns a hint; after five
attempts the quiz moves on.`,
	Args: cobra.NoArgs,
	RunE: runRecall,
}

func init() {
	recallCmd.Flags().StringVar(&recallDate, "date", "", "last day of the quiz window, YYYY-MM-DD (default today)")
	rootCmd.AddCommand(recallCmd)
}

func runRecall(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	a, err := openEngine(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	sess, err := a.engine.NewRecallSession(userID)
	if err != nil {
		return err
	}
	first, err := sess.Start(ctx, recallDate)
	if errors.Is(err, core.ErrNotFound) {
		cmd.Println("No diary entries in the past week.")
		return nil
	}
	if err != nil {
		return err
	}

	total := len(sess.Quiz().Items)
	cmd.Printf("Q1/%d (%s) %s\n", total, first.Type, first.Question)

	in := bufio.NewScanner(cmd.InOrStdin())
	for {
		cmd.Print("> ")
		if !in.Scan() {
			return in.Err()
		}
		answer := strings.TrimSpace(in.Text())
		if answer == "" {
			continue
		}

		res, err := sess.Answer(ctx, answer)
		if err != nil {
			return err
		}
		if res.Feedback != "" {
			cmd.Println(res.Feedback)
		}
		if !res.Correct && !res.Advanced && res.Hint != "" {
			cmd.Printf("Hint: %s\n", res.Hint)
		}
		if res.Done {
			cmd.Println("Quiz finished.")
			return nil
		}
		if res.Advanced {
			next, _ := sess.Current()
			cmd.Printf("Q%d/%d (%s) %s\n", res.Question+2, total, next.Type, next.Question)
		}
	}
}
