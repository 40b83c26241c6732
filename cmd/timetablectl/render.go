package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/Oliskey-School/School-app--sub008/internal/timetable"
)

const (
	outputJSON = "json"
	outputGrid = "grid"
)

func render(w io.Writer, format string, req []timetable.Request, v interface{}, classes []*timetable.GeneratedSchedule) error {
	switch format {
	case outputJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case outputGrid:
		for i, class := range classes {
			if i > 0 {
				fmt.Fprintln(w)
			}
			if err := renderGrid(w, req[i], class); err != nil {
				return err
			}
		}
		return nil
	default:
		return fmt.Errorf("unknown output format %q (want %s or %s)", format, outputJSON, outputGrid)
	}
}

func renderGrid(w io.Writer, req timetable.Request, result *timetable.GeneratedSchedule) error {
	fmt.Fprintf(w, "%s: %s (score %.2f, %d nodes)\n", displayName(req, result), result.Status, result.Score.Total, result.Stats.Nodes)
	for _, warning := range result.Validation.Warnings {
		fmt.Fprintf(w, "  ! %s\n", warning)
	}
	if result.Status.Rejected() {
		return nil
	}

	teachers := make(map[string]string, len(result.Lessons))
	for _, lesson := range result.Lessons {
		teachers[lesson.Key()] = lesson.TeacherName
	}

	tw := tabwriter.NewWriter(w, 0, 2, 2, ' ', 0)
	fmt.Fprintf(tw, "Period\t%s\n", strings.Join(req.Days, "\t"))
	for period := 0; period < req.PeriodsPerDay; period++ {
		cells := make([]string, 0, len(req.Days))
		for _, day := range req.Days {
			key := timetable.SlotKey(strings.TrimSpace(day), period)
			cell := result.Schedule[key]
			if cell == "" {
				cell = timetable.FreeSlot
			}
			if name, ok := teachers[key]; ok {
				cell = fmt.Sprintf("%s (%s)", cell, name)
			}
			cells = append(cells, cell)
		}
		fmt.Fprintf(tw, "%d\t%s\n", period+1, strings.Join(cells, "\t"))
	}
	return tw.Flush()
}

func displayName(req timetable.Request, result *timetable.GeneratedSchedule) string {
	if result.ClassName != "" {
		return result.ClassName
	}
	if req.ClassName != "" {
		return req.ClassName
	}
	return "class"
}
