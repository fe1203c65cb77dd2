package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/nabiya/diarymem/core"
)

var (
	userID     string
	outputJSON bool

	indexDate  string
	indexTitle string
	indexTheme string

	windowDate string
	windowDays int
)

var indexCmd = &cobra.Command{
	Use:   "index [text]",
	Short: "Add a diary entry",
	Long:  `Indexes one diary entry for a user. Without an argument the text is read from stdin.`,
	Args:  cobra.MaximumNArgs(1),
	RunE:  runIndex,
}

var entriesCmd = &cobra.Command{
	Use:   "entries",
	Short: "List a user's diary entries",
	Args:  cobra.NoArgs,
	RunE:  runEntries,
}

var windowCmd = &cobra.Command{
	Use:   "window",
	Short: "List a user's entries in a date window",
	Args:  cobra.NoArgs,
	RunE:  runWindow,
}

var themesCmd = &cobra.Command{
	Use:   "themes",
	Short: "Show how often each theme was written about",
	Args:  cobra.NoArgs,
	RunE:  runThemes,
}

func init() {
	for _, c := range []*cobra.Command{indexCmd, entriesCmd, windowCmd, themesCmd, searchCmd, recallCmd, chatCmd} {
		c.Flags().StringVarP(&userID, "user", "u", "", "user ID")
		_ = c.MarkFlagRequired("user")
	}
	for _, c := range []*cobra.Command{entriesCmd, windowCmd, themesCmd, searchCmd} {
		c.Flags().BoolVar(&outputJSON, "json", false, "output as JSON")
	}

	indexCmd.Flags().StringVar(&indexDate, "date", "", "diary date, YYYY-MM-DD (default today)")
	indexCmd.Flags().StringVar(&indexTitle, "title", "", "diary title")
	indexCmd.Flags().StringVar(&indexTheme, "theme", "", "mark as a theme diary about this theme")

	windowCmd.Flags().StringVar(&windowDate, "date", "", "last day of the window, YYYY-MM-DD (default today)")
	windowCmd.Flags().IntVar(&windowDays, "days", 0, "window length in days (default store.window_days)")

	rootCmd.AddCommand(indexCmd, entriesCmd, windowCmd, themesCmd)
}

func runIndex(cmd *cobra.Command, args []string) error {
	var text string
	if len(args) == 1 {
		text = args[0]
	} else {
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return fmt.Errorf("read stdin: %w", err)
		}
		text = string(data)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return errors.New("diary text is empty")
	}

	meta := core.Metadata{}
	if indexDate != "" {
		meta[core.MetaDate] = indexDate
	}
	if indexTitle != "" {
		meta[core.MetaTitle] = indexTitle
	}
	if indexTheme != "" {
		meta[core.MetaKind] = string(core.KindTheme)
		meta[core.MetaTheme] = indexTheme
	} else {
		meta[core.MetaKind] = string(core.KindDaily)
	}

	a, err := openStore(cmd.Context())
	if err != nil {
		return err
	}
	defer a.close()

	doc, err := a.store.IndexEntry(cmd.Context(), userID, text, meta)
	if err != nil {
		return err
	}
	cmd.Printf("Indexed %s (%s)\n", doc.ID, doc.Metadata[core.MetaDate])
	return nil
}

func runEntries(cmd *cobra.Command, _ []string) error {
	a, err := openStore(cmd.Context())
	if err != nil {
		return err
	}
	defer a.close()

	docs, err := a.store.ListAllEntries(cmd.Context(), userID)
	if err != nil {
		return err
	}
	return printDocuments(cmd, docs)
}

func runWindow(cmd *cobra.Command, _ []string) error {
	a, err := openStore(cmd.Context())
	if err != nil {
		return err
	}
	defer a.close()

	date := windowDate
	if date == "" {
		date = time.Now().Format(core.DateLayout)
	}
	days := windowDays
	if days == 0 {
		days = cfg.Store.WindowDays
	}
	docs, err := a.store.EntriesInWindow(cmd.Context(), userID, date, days)
	if err != nil {
		return err
	}
	return printDocuments(cmd, docs)
}

func runThemes(cmd *cobra.Command, _ []string) error {
	a, err := openStore(cmd.Context())
	if err != nil {
		return err
	}
	defer a.close()

	counts, err := a.store.ThemeCounts(cmd.Context(), userID)
	if err != nil {
		return err
	}
	if outputJSON {
		return printJSON(cmd, counts)
	}
	if len(counts) == 0 {
		cmd.Println("No theme diaries yet.")
		return nil
	}
	for _, tc := range counts {
		cmd.Printf("  %-20s %d\n", tc.Theme, tc.Count)
	}
	return nil
}

func printDocuments(cmd *cobra.Command, docs []core.Document) error {
	if outputJSON {
		return printJSON(cmd, docs)
	}
	if len(docs) == 0 {
		cmd.Println("No entries found.")
		return nil
	}
	for _, d := range docs {
		title := d.Metadata[core.MetaTitle]
		if title == "" {
			title = d.ID
		}
		cmd.Printf("[%s] %s\n", d.Metadata[core.MetaDate], title)
		cmd.Printf("    %s\n", d.Content)
	}
	return nil
}

func printJSON(cmd *cobra.Command, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal output: %w", err)
	}
	cmd.Println(string(data))
	return nil
}
