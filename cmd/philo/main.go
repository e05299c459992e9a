// Command philo runs the dining philosophers simulation and prints each
// status change as "<ms> <id> <message>".
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/tinytelemetry/symposium/internal/duckdb"
	"github.com/tinytelemetry/symposium/internal/journal"
	"github.com/tinytelemetry/symposium/internal/model"
	"github.com/tinytelemetry/symposium/internal/sim"
)

type options struct {
	record  string
	journal string
	noColor bool
}

func newRootCmd(stdout io.Writer) *cobra.Command {
	var opts options
	cmd := &cobra.Command{
		Use:   "philo number_of_philosophers time_to_die time_to_eat time_to_sleep [number_of_times_each_philosopher_must_eat]",
		Short: "Runs the dining philosophers simulation",
		Long: `Runs the dining philosophers simulation

Every philosopher is a goroutine and every fork a mutex. Times are in
milliseconds. The run stops when a philosopher starves, or once every
philosopher has eaten the optional number of meals.`,
		Args:          cobra.ArbitraryArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := sim.ParseArgs(args)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			_, err = runSimulation(ctx, cfg, opts, stdout)
			return err
		},
	}
	cmd.Flags().StringVar(&opts.record, "record", "", "record the run into the DuckDB database at this path")
	cmd.Flags().StringVar(&opts.journal, "journal", "", "journal recorded events to this file before they are written")
	cmd.Flags().BoolVar(&opts.noColor, "no-color", false, "disable colored output")
	return cmd
}

var errJournalWithoutRecord = errors.New("--journal requires --record")

// runSimulation runs one simulation, recording it when opts.record is set.
func runSimulation(ctx context.Context, cfg model.RunConfig, opts options, stdout io.Writer) (sim.Result, error) {
	colored := !opts.noColor && !color.NoColor
	sinks := sim.MultiSink{sim.NewTextSink(stdout, colored)}

	if opts.journal != "" && opts.record == "" {
		return sim.Result{}, errJournalWithoutRecord
	}
	if opts.record == "" {
		return sim.Run(ctx, cfg, sinks)
	}

	store, err := duckdb.NewStore(opts.record)
	if err != nil {
		return sim.Result{}, err
	}
	defer store.Close()

	var bufCfg duckdb.InsertBufferConfig
	if opts.journal != "" {
		j, err := journal.Open(opts.journal)
		if err != nil {
			return sim.Result{}, err
		}
		if _, err := duckdb.ReplayJournal(j, store, 0); err != nil {
			_ = j.Close()
			return sim.Result{}, fmt.Errorf("replay journal: %w", err)
		}
		bufCfg.Journal = j
	}
	buf := duckdb.NewInsertBuffer(store, bufCfg)
	defer buf.Stop()

	rec, err := duckdb.NewRecorder(store, buf).Begin("", cfg)
	if err != nil {
		return sim.Result{}, err
	}
	recSink := sim.NewRecordingSink(rec)
	sinks = append(sinks, recSink)

	res, runErr := sim.Run(ctx, cfg, sinks)
	recSink.Close()
	if _, err := rec.Finish(res.Outcome, res.DeadPhilosopher, res.TotalMeals()); err != nil {
		return res, fmt.Errorf("finish run %s: %w", rec.ID(), err)
	}
	return res, runErr
}

func main() {
	if err := newRootCmd(os.Stdout).Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
