package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/alexjbarnes/studio-sync/internal/config"
	"github.com/alexjbarnes/studio-sync/internal/logging"
	"github.com/alexjbarnes/studio-sync/internal/outdir"
	"github.com/alexjbarnes/studio-sync/internal/state"
	"github.com/alexjbarnes/studio-sync/internal/syncer"
	"github.com/spf13/cobra"
)

// app carries what every subcommand needs once config is loaded.
type app struct {
	cfg    *config.Config
	logger *slog.Logger
	engine *syncer.Engine

	// folder overrides the configured output dir, same as
	// outputFolderName in a request.
	folder string
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:           "studio-sync",
		Short:         "Sync exported scripts and instance trees to a local folder without losing local edits",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.load()
		},
	}

	root.PersistentFlags().StringVarP(&a.folder, "output", "o", "", "output folder (overrides STUDIO_SYNC_OUT)")

	root.AddCommand(
		newServeCmd(a),
		newUploadCmd(a),
		newUploadInstancesCmd(a),
		newDiffCmd(a),
		newDiffInstancesCmd(a),
		newIndexCmd(a, false),
		newIndexCmd(a, true),
		newGetCmd(a),
		newStatusCmd(a),
		newHistoryCmd(a),
	)

	return root
}

func (a *app) load() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	a.cfg = cfg
	a.logger = logging.NewLogger(cfg.Environment)
	a.engine = syncer.New(syncer.Options{
		OutputDir:    cfg.OutputDir,
		Decimals:     cfg.FloatDecimals,
		MaxReadBytes: cfg.MaxReadBytes,
	}, a.logger)

	return nil
}

// open resolves the output dir, letting a request folder win over the
// flag.
func (a *app) open(requested string) (*outdir.Dir, error) {
	if requested == "" {
		requested = a.folder
	}

	return a.engine.Open(requested)
}

// openState opens the history database. Callers must Close it.
func (a *app) openState() (*state.State, error) {
	st, err := state.LoadAt(a.cfg.StatePath)
	if err != nil {
		return nil, fmt.Errorf("loading state: %w", err)
	}

	return st, nil
}

// readInput reads a request body from the named file, or stdin when the
// name is empty or "-".
func readInput(cmd *cobra.Command, args []string) ([]byte, error) {
	if len(args) == 0 || args[0] == "-" {
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return nil, fmt.Errorf("reading stdin: %w", err)
		}

		return data, nil
	}

	data, err := os.ReadFile(args[0])
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", args[0], err)
	}

	return data, nil
}

// printJSON writes v as indented JSON to the command's stdout.
func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")

	return enc.Encode(v)
}
