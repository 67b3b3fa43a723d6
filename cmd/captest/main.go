package main

import (
	"context"
	"fmt"
	"io"
	"iter"
	"os"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"pvcaptest/domain/columns"
	"pvcaptest/domain/core"
	"pvcaptest/domain/frame"
	"pvcaptest/internal"
	"pvcaptest/internal/captest"
	"pvcaptest/internal/config"
	"pvcaptest/internal/container"
	"pvcaptest/internal/errors"
	"pvcaptest/ports"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(errors.ExitCode(err))
	}
}

func newRootCmd() *cobra.Command {
	var envFile string
	var logLevel string

	rootCmd := &cobra.Command{
		Use:           "captest",
		Short:         "Regression-based capacity testing for PV plants",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := config.LoadEnvFile(envFile); err != nil {
				return err
			}
			if logLevel == "" {
				logLevel = os.Getenv("LOG_LEVEL")
			}
			if logLevel != "" {
				level, ok := internal.ParseLogLevel(logLevel)
				if !ok {
					return errors.InvalidInput(fmt.Sprintf("unknown log level %q", logLevel))
				}
				internal.DefaultLogger.SetLevel(level)
			}
			return nil
		},
	}

	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "Environment file to load if present")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "ERROR, WARN, INFO, DEBUG or TRACE (default $LOG_LEVEL or INFO)")

	rootCmd.AddCommand(
		newRunCmd(),
		newConfigCmd(),
		newRunsCmd(),
		newShowCmd(),
	)
	return rootCmd
}

type runOptions struct {
	period  string
	minRows int
	workers int
	output  string
	save    bool
}

func newRunCmd() *cobra.Command {
	var opts runOptions

	cmd := &cobra.Command{
		Use:   "run [study.yaml] [data-file]",
		Short: "Fit the study's capacity model and print predictions at reference conditions",
		Long: `Fit the capacity model described by a study file to a dataset, once per
period when the study (or --period) asks for it, and write fit, lwr and upr
for every partition as CSV.

Paths default to $CAPTEST_STUDY_FILE, then $CAPTEST_DATA_FILE or the
dataset.path of the study. With $DATABASE_URL set (or --save) the results
are stored and the run ID is printed to stderr.

Example: captest run study.yaml measured.csv --period Monthly --workers 4`,
		Args: cobra.MaximumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			studyPath := cfg.Study.StudyFile
			dataPath := cfg.Study.DataFile
			if len(args) > 0 {
				studyPath = args[0]
			}
			if len(args) > 1 {
				dataPath = args[1]
			}
			if studyPath == "" {
				return errors.InvalidInput("a study file is required (argument or CAPTEST_STUDY_FILE)")
			}

			out := cmd.OutOrStdout()
			if opts.output != "" && opts.output != "-" {
				f, err := os.Create(opts.output)
				if err != nil {
					return errors.Wrapf(err, "failed to create %s", opts.output)
				}
				defer f.Close()
				out = f
			}
			c, err := container.New(cfg)
			if err != nil {
				return err
			}
			defer c.Shutdown()
			return runStudy(cmd.Context(), c, studyPath, dataPath, opts, out, cmd.ErrOrStderr())
		},
	}

	cmd.Flags().StringVar(&opts.period, "period", "", "Partition period (Monthly or Weekly); overrides the study")
	cmd.Flags().IntVar(&opts.minRows, "min-rows", 0, "Minimum rows per period; overrides the study")
	cmd.Flags().IntVar(&opts.workers, "workers", 0, "Partitions fitted concurrently; overrides the study")
	cmd.Flags().StringVarP(&opts.output, "output", "o", "-", "CSV output file")
	cmd.Flags().BoolVar(&opts.save, "save", false, "Store results even without DATABASE_URL (uses captest.db)")

	return cmd
}

func runStudy(ctx context.Context, c *container.Container, studyPath, dataPath string, opts runOptions, out, errOut io.Writer) error {
	log := internal.DefaultLogger.With("CLI")

	study, err := config.LoadStudy(studyPath)
	if err != nil {
		return err
	}
	study.Apply(c.Config.Run)
	study.Apply(config.RunConfig{Period: opts.period, MinRows: opts.minRows, Workers: opts.workers})
	if err := study.Validate(); err != nil {
		return err
	}
	if dataPath == "" {
		dataPath = study.Dataset.Path
	}
	if dataPath == "" {
		return errors.InvalidInput("a data file is required (argument, CAPTEST_DATA_FILE or dataset.path)")
	}

	reader, err := c.Reader(study.Dataset, dataPath)
	if err != nil {
		return err
	}
	data, err := reader.ReadDataset(ctx, dataPath)
	if err != nil {
		return err
	}
	data = data.SortByTime()
	log.Info("loaded %s: %d rows, %d columns", filepath.Base(dataPath), data.Len(), len(data.Names()))

	ti, err := study.TestInfo(c.Engine)
	if err != nil {
		return err
	}
	name := study.Dataset.Name
	if name == "" {
		name = captest.AllDataset
	}
	src := captest.OneDataset(name, data)

	period, periodic, err := study.Period()
	if err != nil {
		return err
	}
	partitions := captest.Whole(src)
	keyNames := []string{"Dataset"}
	if periodic {
		pr := captest.PeriodicRun{Period: period}
		if study.Run.MinRows != nil {
			pr.MinRows = *study.Run.MinRows
		}
		partitions = pr.Partitions(ti, src)
		keyNames = []string{"Dataset", period.ColumnName()}
	}

	workers := 1
	if study.Run.Workers != nil {
		workers = *study.Run.Workers
	}
	start := time.Now()
	results, err := captest.CollectParallel(ctx, ti, partitions, columns.NewSet(data.Names()...), nil, captest.FitConf, workers)
	if err != nil {
		return err
	}
	log.Info("fitted %d partitions with %d workers in %.2fms", len(results), workers, float64(time.Since(start).Nanoseconds())/1e6)

	table, err := captest.Combine(replay(results), keyNames, periodic)
	if err != nil {
		return err
	}
	if err := table.WriteCSV(out); err != nil {
		return errors.Wrap(err, "failed to write results")
	}

	if !c.PersistenceEnabled() && !opts.save {
		return nil
	}
	return saveRun(ctx, c, studyPath, table, errOut)
}

func saveRun(ctx context.Context, c *container.Container, studyPath string, table *captest.Table, errOut io.Writer) error {
	raw, err := os.ReadFile(studyPath)
	if err != nil {
		return errors.Wrapf(err, "failed to read study %s", studyPath)
	}
	if err := c.InitStore(ctx); err != nil {
		return err
	}

	run := ports.RunRecord{ID: core.NewRunID(), StudyHash: core.NewHash(raw), CreatedAt: time.Now()}
	if err := c.Store.SaveResults(ctx, run, table.ResultRows()); err != nil {
		return err
	}
	fmt.Fprintf(errOut, "run %s stored (study %s)\n", run.ID, run.StudyHash.Short())
	return nil
}

// openContainer loads the environment configuration and opens the store.
func openContainer(ctx context.Context) (*container.Container, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	c, err := container.New(cfg)
	if err != nil {
		return nil, err
	}
	if err := c.InitStore(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

func replay[T any](results []captest.Result[T]) iter.Seq2[captest.Result[T], error] {
	return func(yield func(captest.Result[T], error) bool) {
		for _, r := range results {
			if !yield(r, nil) {
				return
			}
		}
	}
}

func newConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the default study file",
		Long: `Print a complete study file for an ASTM E2848 test at a fixed reference
condition. Optional settings that are unset appear as null.

Example: captest config > study.yaml`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out, err := config.MarshalStudy(config.DefaultStudy())
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(out)
			return err
		},
	}
}

func newRunsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "runs",
		Short: "List stored runs, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := openContainer(cmd.Context())
			if err != nil {
				return err
			}
			defer c.Shutdown()

			runs, err := c.Store.ListRuns(cmd.Context())
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tCREATED\tSTUDY")
			for _, r := range runs {
				fmt.Fprintf(w, "%s\t%s\t%s\n", r.ID, r.CreatedAt.Format(time.RFC3339), r.StudyHash.Short())
			}
			return w.Flush()
		},
	}
}

func newShowCmd() *cobra.Command {
	var period string

	cmd := &cobra.Command{
		Use:   "show [run-id]",
		Short: "Print a stored run as CSV",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			runID, err := core.ParseRunID(args[0])
			if err != nil {
				return errors.InvalidInput(err.Error())
			}
			c, err := openContainer(cmd.Context())
			if err != nil {
				return err
			}
			defer c.Shutdown()

			rows, err := c.Store.LoadResults(cmd.Context(), runID)
			if err != nil {
				return err
			}
			keyNames := []string{"Dataset"}
			if len(rows) > 0 && !rows[0].Period.IsZero() {
				p, err := frame.ParsePeriod(period)
				if err != nil {
					return errors.InvalidInput(err.Error())
				}
				keyNames = []string{p.ColumnName()}
			}
			return captest.TableFromResultRows(rows, keyNames).WriteCSV(cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVar(&period, "period", string(frame.Monthly), "Period the run was partitioned by, for the key header")
	return cmd
}
