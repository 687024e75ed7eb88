package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/koopa0/study-assistant/internal/app"
	"github.com/koopa0/study-assistant/internal/config"
	"github.com/koopa0/study-assistant/internal/log"
)

var (
	ingestCourseID    string
	ingestSourceLabel string
)

var ingestCmd = &cobra.Command{
	Use:   "ingest <file>",
	Short: "Index a reference document for a course",
	Long: `ingest reads a plain-text document, splits it into chunks, embeds each
chunk and stores the result for semantic search. Existing chunks for the
course are replaced.

Example:

  study-assistant ingest --course 6a1f... --source "Lecture 3 notes" notes.txt`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runIngest(cmd.Context(), args[0])
	},
}

func init() {
	ingestCmd.Flags().StringVar(&ingestCourseID, "course", "", "course UUID the document belongs to (required)")
	ingestCmd.Flags().StringVar(&ingestSourceLabel, "source", "", "human-readable label for the document")
	_ = ingestCmd.MarkFlagRequired("course")
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(ctx context.Context, path string) error {
	courseID, err := uuid.Parse(ingestCourseID)
	if err != nil {
		return fmt.Errorf("invalid course ID %q: %w", ingestCourseID, err)
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := log.New(log.Config{})

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("initializing application: %w", err)
	}
	defer a.Close()

	label := ingestSourceLabel
	if label == "" {
		label = path
	}

	count, err := a.Index.IndexCourseContent(ctx, courseID, string(content), label)
	if err != nil {
		return fmt.Errorf("indexing %s: %w", path, err)
	}

	logger.Info("document indexed", "course_id", courseID, "source", label, "chunks", count)
	return nil
}
