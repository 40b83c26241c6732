package main

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/Oliskey-School/School-app--sub008/internal/timetable"
)

func newValidateCmd() *cobra.Command {
	var (
		file   string
		output string
		flags  solverFlags
	)

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check a hand-made timetable against the hard constraints",
		Long: "Validate reads a class request plus its lessons and reports every " +
			"constraint the lessons break, along with the soft-constraint score.",
		RunE: func(cmd *cobra.Command, args []string) error {
			problem, err := readProblem(file, cmd.InOrStdin())
			if err != nil {
				return err
			}
			if len(problem.Classes) > 0 {
				return errors.New("validate takes a single class with its lessons")
			}

			result := timetable.Check(problem.Request, problem.Lessons, nil, flags.solver().Scorer())
			reqs := []timetable.Request{problem.Request}
			if err := render(cmd.OutOrStdout(), output, reqs, result, []*timetable.GeneratedSchedule{result}); err != nil {
				return err
			}
			if !result.Solved() {
				return errUnsolved
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "Problem file with lessons, - for stdin (required)")
	cmd.Flags().StringVarP(&output, "output", "o", outputJSON, "Output format: json or grid")
	flags.bindWeights(cmd)
	_ = cmd.MarkFlagRequired("file")

	return cmd
}
