package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/nnaka2992/kql-extract/internal/catalog"
	"github.com/nnaka2992/kql-extract/internal/config"
	"github.com/nnaka2992/kql-extract/internal/extractor"
	"github.com/nnaka2992/kql-extract/internal/output"
	"github.com/nnaka2992/kql-extract/internal/stream"
)

// CLI configuration
var (
	version = "0.1.0"

	// Flags
	configFlag string
	idFlag     string
)

// Exit codes
const (
	exitOK          = 0
	exitSyntaxError = 1
	exitFailure     = 2
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	cmd := buildCommand()
	cmd.SetArgs(args)

	var exitCode int
	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		err := runExtract(cmd, args)
		if err != nil {
			exitCode = determineExitCode(err)
		}
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := cmd.ExecuteContext(ctx); err != nil {
		if exitCode == exitOK {
			return exitFailure // argument and flag errors
		}
		return exitCode
	}

	return exitOK
}

func buildCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "kql-extract [FILE]",
		Short: "Extract tables, joins, operators and function calls from KQL queries",
		Long: `Extract metadata from Kusto Query Language queries.

With FILE, the query text in FILE is extracted once. Without it, records of
the form <id>,<base64 query text> are read line by line from stdin (or
--input) and one result is written per record.`,
		Version:      version,
		Args:         cobra.MaximumNArgs(1),
		SilenceUsage: true,
	}

	// Reset flag targets so repeated runs in one process start clean
	configFlag, idFlag = "", ""

	cmd.Flags().StringVarP(&configFlag, "config", "c", "", "config file (default ./kql-extract.yaml)")
	cmd.Flags().StringVar(&idFlag, "id", "", "result id in single file mode (default random UUID)")
	config.RegisterFlags(cmd.Flags())

	return cmd
}

func runExtract(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configFlag, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := cfg.Log.NewLogger(cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	if cfg.FileUsed != "" {
		logger.Debug("loaded config", "file", cfg.FileUsed)
	}

	cat, err := catalog.Load(cfg.Catalog)
	if err != nil {
		return err
	}
	logger.Debug("loaded catalog", "tables", cat.Len())

	ex := extractor.New(extractor.Options{
		Logger:             logger,
		Catalog:            cat,
		Timeout:            cfg.Extract.Timeout,
		NormalizeJoinKinds: cfg.Extract.NormalizeJoinKinds,
	})

	w, err := output.NewWriter(cfg.Output, cmd.OutOrStdout())
	if err != nil {
		return err
	}

	if len(args) == 1 {
		err = extractFile(cmd, ex, w, args[0])
	} else {
		err = extractStream(cmd, ex, w, cfg, logger)
	}
	if err != nil {
		return err
	}
	return w.Close()
}

// extractFile runs single file mode
func extractFile(cmd *cobra.Command, ex *extractor.Extractor, w output.Writer, path string) error {
	content, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading file: %w", err)
	}

	id := idFlag
	if id == "" {
		id = uuid.NewString()
	}

	result, err := ex.Extract(cmd.Context(), extractor.Query{ID: id, Text: string(content)})
	if err != nil {
		var syntaxErr *extractor.SyntaxError
		if errors.As(err, &syntaxErr) {
			printDiagnostics(cmd.OutOrStdout(), syntaxErr)
		}
		return err
	}
	return w.Write(result)
}

// printDiagnostics writes one [start..end]: message line per diagnostic
func printDiagnostics(out io.Writer, err *extractor.SyntaxError) {
	for _, d := range err.Diagnostics {
		fmt.Fprintln(out, d.Error())
	}
}

// extractStream runs streaming mode over --input or stdin
func extractStream(cmd *cobra.Command, ex *extractor.Extractor, w output.Writer, cfg *config.Config, logger *slog.Logger) error {
	in := cmd.InOrStdin()
	if cfg.Input != "" {
		f, err := os.Open(cfg.Input)
		if err != nil {
			return fmt.Errorf("opening input: %w", err)
		}
		defer f.Close()
		in = f
	}

	p, err := stream.NewProcessor(ex, stream.Options{
		Workers:   cfg.Workers,
		CacheSize: cfg.CacheSize,
		Logger:    logger,
	})
	if err != nil {
		return err
	}

	err = p.Run(cmd.Context(), in, w)
	stats := p.Stats()
	logger.Info("stream finished",
		"records", stats.Records,
		"skipped", stats.Skipped,
		"emitted", stats.Emitted,
		"failed", stats.Failed,
		"cache_hits", stats.CacheHits,
	)
	return err
}

// Helper functions

func determineExitCode(err error) int {
	var syntaxErr *extractor.SyntaxError
	if errors.As(err, &syntaxErr) {
		return exitSyntaxError
	}
	return exitFailure
}
