package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/aiist007/24life/engine/chunk"
	"github.com/aiist007/24life/engine/domain"
	"github.com/aiist007/24life/engine/index"
	"github.com/aiist007/24life/engine/search"
	"github.com/aiist007/24life/pkg/logging"
	"github.com/aiist007/24life/pkg/natsutil"
)

type globalFlags struct {
	logLevel     string
	chunkSize    int
	chunkOverlap int
	maxDepth     int
}

func newRootCmd() *cobra.Command {
	var g globalFlags
	root := &cobra.Command{
		Use:          "ragctl",
		Short:        "Index and search a local TCM document corpus",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&g.logLevel, "log-level", "warn", "log level (debug, info, warn, error)")
	root.PersistentFlags().IntVar(&g.chunkSize, "chunk-size", chunk.DefaultSize, "chunk size in characters")
	root.PersistentFlags().IntVar(&g.chunkOverlap, "chunk-overlap", chunk.DefaultOverlap, "overlap between consecutive chunks")
	root.PersistentFlags().IntVar(&g.maxDepth, "max-depth", index.DefaultMaxDepth, "maximum directory depth")

	root.AddCommand(newIndexCmd(&g), newSearchCmd(&g), newEventsCmd(&g), newAskCmd())
	return root
}

func (g *globalFlags) logger(cmd *cobra.Command) *slog.Logger {
	return logging.NewWriter(cmd.ErrOrStderr(), logging.Config{Level: g.logLevel, Format: "text"})
}

func (g *globalFlags) indexer(cmd *cobra.Command) *index.Indexer {
	return index.NewIndexer(index.NewStore(), index.Deps{
		Chunker:  chunk.New(g.chunkSize, g.chunkOverlap),
		MaxDepth: g.maxDepth,
		Logger:   g.logger(cmd),
	})
}

func newIndexCmd(g *globalFlags) *cobra.Command {
	var (
		verbose bool
		asJSON  bool
	)
	cmd := &cobra.Command{
		Use:   "index <dir>",
		Short: "Index a corpus directory and print the summary",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := g.indexer(cmd).Index(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(s)
			}
			printSummary(out, s, verbose)
			return nil
		},
	}
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "list every file outcome")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the summary as JSON")
	return cmd
}

func newSearchCmd(g *globalFlags) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "search <dir> <query>",
		Short: "Index a corpus directory, then print the ranked context for a query",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ix := g.indexer(cmd)
			s, err := ix.Index(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Indexed %d files, %d chunks\n\n", s.Indexed, s.Chunks)
			fmt.Fprintln(out, search.NewRanker(ix.Store(), g.logger(cmd), nil).Search(args[1], limit))
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", search.DefaultLimit, "maximum number of chunks")
	return cmd
}

func newEventsCmd(g *globalFlags) *cobra.Command {
	var url string
	cmd := &cobra.Command{
		Use:   "events",
		Short: "Print index summaries published by the API server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if url == "" {
				return fmt.Errorf("--nats is required")
			}
			logger := g.logger(cmd)
			nc, err := natsutil.Connect(url, "ragctl", logger)
			if err != nil {
				return err
			}
			defer nc.Close()

			out := cmd.OutOrStdout()
			sub, err := natsutil.Subscribe(nc, index.IndexedSubject, func(_ context.Context, s domain.IndexSummary) {
				printSummary(out, &s, false)
			})
			if err != nil {
				return err
			}
			defer sub.Unsubscribe()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			fmt.Fprintf(cmd.ErrOrStderr(), "listening on %s\n", index.IndexedSubject)
			<-ctx.Done()
			return nil
		},
	}
	cmd.Flags().StringVar(&url, "nats", os.Getenv("NATS_URL"), "NATS server URL")
	return cmd
}

func printSummary(w io.Writer, s *domain.IndexSummary, verbose bool) {
	fmt.Fprintf(w, "Indexed %s in %s\n", s.Root, s.Duration().Round(time.Millisecond))
	fmt.Fprintf(w, "  Files:   %d indexed, %d failed, %d skipped, %d empty\n", s.Indexed, s.Failed, s.Skipped, s.Empty)
	fmt.Fprintf(w, "  Chunks:  %d\n", s.Chunks)
	if s.DirErrors > 0 || s.SymlinksSkipped > 0 {
		fmt.Fprintf(w, "  Dirs:    %d unreadable, %d symlinks skipped\n", s.DirErrors, s.SymlinksSkipped)
	}
	if !verbose {
		return
	}
	for _, o := range s.Outcomes {
		line := fmt.Sprintf("  %-8s %4d  %s", o.Status, o.Chunks, o.Path)
		if o.Error != "" {
			line += "  (" + o.Error + ")"
		}
		fmt.Fprintln(w, line)
	}
}
