package main

import (
	"fmt"
	"log/slog"

	"github.com/alexjbarnes/studio-sync/internal/outdir"
	"github.com/alexjbarnes/studio-sync/internal/state"
	"github.com/alexjbarnes/studio-sync/internal/syncer"
	"github.com/spf13/cobra"
)

func newUploadCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "upload [payload.json]",
		Short: "Write an exported script snapshot, skipping files edited locally",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := readInput(cmd, args)
			if err != nil {
				return err
			}

			p, err := syncer.ParseScriptPayload(data)
			if err != nil {
				return err
			}

			dir, err := a.open(p.OutputFolder)
			if err != nil {
				return err
			}

			res, err := a.engine.UploadScripts(dir, p)
			return a.finishUpload(cmd, state.KindUpload, dir, res, err)
		},
	}
}

func newUploadInstancesCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "upload-instances [payload.json]",
		Short: "Write an exported instance snapshot, skipping files edited locally",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := readInput(cmd, args)
			if err != nil {
				return err
			}

			p, err := syncer.ParseInstancePayload(data)
			if err != nil {
				return err
			}

			dir, err := a.open(p.OutputFolder)
			if err != nil {
				return err
			}

			res, err := a.engine.UploadInstances(dir, p)
			return a.finishUpload(cmd, state.KindUploadInstances, dir, res, err)
		},
	}
}

// finishUpload records the operation and prints the result.
func (a *app) finishUpload(cmd *cobra.Command, kind string, dir *outdir.Dir, res *syncer.UploadResult, uploadErr error) error {
	if res != nil {
		a.recordHistory(kind, dir, res.Wrote, res.Skipped)
	}

	if uploadErr != nil {
		return uploadErr
	}

	return printJSON(cmd, res)
}

func (a *app) recordHistory(kind string, dir *outdir.Dir, wrote, skipped int) {
	st, err := a.openState()
	if err != nil {
		a.logger.Warn("history unavailable", slog.String("error", err.Error()))
		return
	}
	defer st.Close()

	err = st.Record(state.Operation{Kind: kind, Output: dir.Root(), Wrote: wrote, Skipped: skipped})
	if err != nil {
		a.logger.Warn("recording operation", slog.String("error", err.Error()))
	}
}

func newDiffCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "diff [payload.json]",
		Short: "Compare an exported script snapshot with the files on disk",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := readInput(cmd, args)
			if err != nil {
				return err
			}

			p, err := syncer.ParseScriptPayload(data)
			if err != nil {
				return err
			}

			dir, err := a.open(p.OutputFolder)
			if err != nil {
				return err
			}

			res, err := a.engine.DiffScripts(dir, p)
			if err != nil {
				return err
			}

			return printJSON(cmd, res)
		},
	}
}

func newDiffInstancesCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "diff-instances [payload.json]",
		Short: "Compare an exported instance snapshot with the files on disk",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := readInput(cmd, args)
			if err != nil {
				return err
			}

			p, err := syncer.ParseInstancePayload(data)
			if err != nil {
				return err
			}

			dir, err := a.open(p.OutputFolder)
			if err != nil {
				return err
			}

			res, err := a.engine.DiffInstances(dir, p)
			if err != nil {
				return err
			}

			return printJSON(cmd, res)
		},
	}
}

func newIndexCmd(a *app, instances bool) *cobra.Command {
	var services []string

	use, short := "index", "List local script files and the paths they map to"
	if instances {
		use, short = "index-instances", "List local instance files and the paths they map to"
	}

	cmd := &cobra.Command{
		Use:   use + " [paths.json]",
		Short: short,
		Long: "Reads an optional request body ({services, studioPaths}) from the named file.\n" +
			"Without one, every service is indexed and legacy names are left unresolved.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := syncer.IndexRequest{}

			if len(args) > 0 {
				data, err := readInput(cmd, args)
				if err != nil {
					return err
				}

				if req, err = syncer.ParseIndexRequest(data); err != nil {
					return err
				}
			}

			if len(services) > 0 {
				req.Services = services
			}

			dir, err := a.open(req.OutputFolder)
			if err != nil {
				return err
			}

			index := a.engine.LocalIndex
			if instances {
				index = a.engine.LocalIndexInstances
			}

			res, err := index(dir, req)
			if err != nil {
				return err
			}

			return printJSON(cmd, res)
		},
	}

	cmd.Flags().StringSliceVar(&services, "service", nil, "only index these services")

	return cmd
}

func newGetCmd(a *app) *cobra.Command {
	var instance bool

	cmd := &cobra.Command{
		Use:   "get <relPath>",
		Short: "Print one file from the output folder",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, err := a.open("")
			if err != nil {
				return err
			}

			if instance {
				f, err := a.engine.GetInstance(dir, args[0])
				if err != nil {
					return err
				}

				_, err = fmt.Fprint(cmd.OutOrStdout(), f.Pretty)
				return err
			}

			f, err := a.engine.GetScript(dir, args[0])
			if err != nil {
				return err
			}

			_, err = fmt.Fprint(cmd.OutOrStdout(), f.Source)
			return err
		},
	}

	cmd.Flags().BoolVar(&instance, "instance", false, "read as an instance tree and print its canonical form")

	return cmd
}

func newStatusCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show tracked files edited or deleted since the last export",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			dir, err := a.open("")
			if err != nil {
				return err
			}

			return printJSON(cmd, a.engine.Status(dir))
		},
	}
}

func newHistoryCmd(a *app) *cobra.Command {
	var (
		limit   int
		outputs bool
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent write operations for the output folder",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			st, err := a.openState()
			if err != nil {
				return err
			}
			defer st.Close()

			if outputs {
				dirs, err := st.Outputs()
				if err != nil {
					return fmt.Errorf("reading history: %w", err)
				}

				return printJSON(cmd, dirs)
			}

			dir, err := a.open("")
			if err != nil {
				return err
			}

			ops, err := st.History(dir.Root(), limit)
			if err != nil {
				return fmt.Errorf("reading history: %w", err)
			}

			return printJSON(cmd, ops)
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", state.DefaultHistoryLimit, "number of operations to show")
	cmd.Flags().BoolVar(&outputs, "outputs", false, "list output folders that have history instead")

	return cmd
}
