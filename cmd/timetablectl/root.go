package main

import (
	"errors"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Oliskey-School/School-app--sub008/internal/timetable"
)

var errUnsolved = errors.New("one or more classes could not be scheduled")

type solverFlags struct {
	maxNodes     int
	timeout      time.Duration
	maxSolutions int
	verbose      bool
	weights      timetable.Weights
}

// bindWeights registers the soft-constraint weight flags on cmd.
func (f *solverFlags) bindWeights(cmd *cobra.Command) {
	defaults := timetable.DefaultWeights()
	cmd.Flags().Float64Var(&f.weights.Cluster, "weight-cluster", defaults.Cluster, "Score weight for back-to-back part-time lessons")
	cmd.Flags().Float64Var(&f.weights.Spread, "weight-spread", defaults.Spread, "Score weight for spreading full-time subjects over days")
	cmd.Flags().Float64Var(&f.weights.TimeOfDay, "weight-time-of-day", defaults.TimeOfDay, "Score weight for time band preferences")
	cmd.Flags().Float64Var(&f.weights.Repetition, "weight-repetition", defaults.Repetition, "Penalty weight for a subject taught three times a day")
	cmd.Flags().Float64Var(&f.weights.Preferred, "weight-preferred", defaults.Preferred, "Score weight for preferred slots")
}

func (f solverFlags) solver() *timetable.Solver {
	cfg := timetable.DefaultConfig()
	cfg.MaxNodes = f.maxNodes
	cfg.Timeout = f.timeout
	cfg.MaxSolutions = f.maxSolutions
	cfg.Weights = f.weights

	logger := zap.NewNop()
	if f.verbose {
		if l, err := zap.NewDevelopment(); err == nil {
			logger = l
		}
	}
	return timetable.NewSolver(cfg, logger)
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "timetablectl",
		Short:         "Generate and check school timetables",
		Long:          "timetablectl runs the timetable solver and validator against a problem file.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(newSolveCmd())
	root.AddCommand(newValidateCmd())
	return root
}
