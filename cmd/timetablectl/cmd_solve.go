package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Oliskey-School/School-app--sub008/internal/timetable"
)

func newSolveCmd() *cobra.Command {
	var (
		file     string
		output   string
		parallel int
		flags    solverFlags
	)

	cmd := &cobra.Command{
		Use:   "solve",
		Short: "Generate timetables for one or more classes",
		Long: "Solve schedules every class in the problem file. Several classes share one " +
			"session so a teacher is never booked twice across them.",
		RunE: func(cmd *cobra.Command, args []string) error {
			problem, err := readProblem(file, cmd.InOrStdin())
			if err != nil {
				return err
			}
			reqs := problem.requests()
			solver := flags.solver()
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}

			if len(reqs) == 1 {
				result := solver.NewSession().Schedule(ctx, reqs[0])
				if err := render(cmd.OutOrStdout(), output, reqs, result, []*timetable.GeneratedSchedule{result}); err != nil {
					return err
				}
				if !result.Solved() {
					return errUnsolved
				}
				return nil
			}

			session := solver.NewSession()
			var result *timetable.SessionResult
			if parallel > 0 {
				result, err = session.ScheduleAllParallel(ctx, reqs, parallel)
				if err != nil {
					return fmt.Errorf("parallel session: %w", err)
				}
			} else {
				result = session.ScheduleAll(ctx, reqs)
			}
			if err := render(cmd.OutOrStdout(), output, reqs, result, result.Classes); err != nil {
				return err
			}
			if result.Failed > 0 || !result.NoTeacherConflicts {
				return errUnsolved
			}
			return nil
		},
	}

	defaults := timetable.DefaultConfig()
	cmd.Flags().StringVarP(&file, "file", "f", "", "Problem file in YAML or JSON, - for stdin (required)")
	cmd.Flags().StringVarP(&output, "output", "o", outputJSON, "Output format: json or grid")
	cmd.Flags().IntVar(&parallel, "parallel", 0, "Schedule classes with no shared teachers on this many workers")
	cmd.Flags().IntVar(&flags.maxNodes, "max-nodes", defaults.MaxNodes, "Search node limit per class, 0 for none")
	cmd.Flags().DurationVar(&flags.timeout, "timeout", defaults.Timeout, "Search time limit per class, 0 for none")
	cmd.Flags().IntVar(&flags.maxSolutions, "max-solutions", defaults.MaxSolutions, "Complete schedules compared before the best is kept")
	cmd.Flags().BoolVarP(&flags.verbose, "verbose", "v", false, "Log solver progress")
	flags.bindWeights(cmd)
	_ = cmd.MarkFlagRequired("file")

	return cmd
}
