package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jonathan/portfolio-admin/internal/observability"
	"github.com/jonathan/portfolio-admin/internal/schemas"
	"github.com/jonathan/portfolio-admin/internal/store"
	"github.com/jonathan/portfolio-admin/internal/types"
)

var (
	dumpCheck   bool
	dumpSummary bool
)

var dumpCmd = &cobra.Command{
	Use:   "dump <kind>",
	Short: "Print the stored documents of one content kind",
	Long:  "Reads a collection once and prints its documents as JSON, or as a summary box with --summary. With --check every document is validated against the kind's schema and the command fails if any is invalid.",
	Args:  cobra.ExactArgs(1),
	RunE:  runDump,
}

func init() {
	dumpCmd.Flags().BoolVar(&dumpCheck, "check", false, "Validate every document against its schema")
	dumpCmd.Flags().BoolVar(&dumpSummary, "summary", false, "Print a human-readable summary instead of JSON")
	rootCmd.AddCommand(dumpCmd)
}

func runDump(cmd *cobra.Command, args []string) error {
	kind, ok := types.KindByName(args[0])
	if !ok {
		return fmt.Errorf("unknown content kind %q", args[0])
	}
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	logger, err := observability.NewLogger(cfg.Verbose)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	b, err := openBackends(cmd.Context(), cfg, zap.NewNop())
	if err != nil {
		return err
	}
	defer b.Close()

	return dumpCollection(cmd.Context(), cmd.OutOrStdout(), b.Collection, kind, dumpOptions{
		check:   dumpCheck,
		summary: dumpSummary,
		logger:  logger,
	})
}

type dumpOptions struct {
	check   bool
	summary bool
	logger  *zap.Logger
}

// dumpCollection writes the collection of kind to out. It returns an error
// when check is set and any document fails its schema or cannot be decoded.
func dumpCollection(ctx context.Context, out io.Writer, coll store.Collection, kind types.Kind, opts dumpOptions) error {
	if opts.logger == nil {
		opts.logger = zap.NewNop()
	}
	snap, err := coll.FetchOnce(ctx, kind.Collection)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", kind.Name, err)
	}

	keys := make([]string, 0, len(snap.Docs))
	for k := range snap.Docs {
		keys = append(keys, k)
	}
	types.SortKeys(keys)

	entries := make([]observability.CollectionEntry, 0, len(keys))
	invalid := 0
	for _, key := range keys {
		doc := snap.Docs[key]
		entry := observability.CollectionEntry{Key: key}
		if opts.check {
			if err := schemas.ValidateDocument(kind.Name, doc); err != nil {
				entry.Err = err
			}
		}
		if entry.Err == nil {
			entry.Record, entry.Err = kind.Decode(doc)
		}
		if entry.Err != nil {
			invalid++
			opts.logger.Warn("invalid document", zap.String("kind", kind.Name), zap.String("key", key), zap.Error(entry.Err))
		}
		entries = append(entries, entry)
	}

	if opts.summary {
		observability.NewPrinter(out).PrintCollection(kind, entries)
	} else {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(snap.Docs); err != nil {
			return fmt.Errorf("failed to encode %s: %w", kind.Name, err)
		}
	}

	if opts.check && invalid > 0 {
		return fmt.Errorf("%d of %d %s documents are invalid", invalid, len(entries), kind.Name)
	}
	return nil
}
