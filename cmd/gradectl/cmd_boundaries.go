package main

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/mind-engage/mindengage-results/internal/grading"
)

var boundariesFlags struct {
	marks      []string
	marksFile  string
	totalMax   float64
	eseMax     float64
	courseType string
	moderation string
}

var boundariesCmd = &cobra.Command{
	Use:   "boundaries",
	Short: "Compute grade boundaries for a pool of marks",
	Long:  "Computes the seven cutoffs for a statistics pool. Pools of 30 or more use mean and\nsigma; smaller pools fall back to the fixed table for the course type.",
	RunE:  runBoundaries,
}

func init() {
	f := boundariesCmd.Flags()
	f.StringSliceVar(&boundariesFlags.marks, "marks", nil, "Comma-separated marks in the pool")
	f.StringVar(&boundariesFlags.marksFile, "marks-file", "", "File with one mark per line")
	f.Float64Var(&boundariesFlags.totalMax, "total-max", 100, "Maximum total marks")
	f.Float64Var(&boundariesFlags.eseMax, "ese-max", 0, "Maximum ESE marks (default 60% of total)")
	f.StringVar(&boundariesFlags.courseType, "course-type", "theory", "theory or practical")
	f.StringVar(&boundariesFlags.moderation, "moderation", "", "cap (default) or redistribute")
}

func runBoundaries(cmd *cobra.Command, _ []string) error {
	typ, err := grading.ParseCourseType(boundariesFlags.courseType)
	if err != nil {
		return err
	}
	mod, err := grading.ParseModeration(boundariesFlags.moderation)
	if err != nil {
		return err
	}
	cfg := grading.CourseConfig{TotalMax: boundariesFlags.totalMax, ESEMax: boundariesFlags.eseMax, Type: typ}
	if cfg.ESEMax == 0 {
		cfg.ESEMax = grading.DefaultESEMax(cfg.TotalMax)
	}
	if err := cfg.Validate("pool"); err != nil {
		return err
	}

	raw := boundariesFlags.marks
	if boundariesFlags.marksFile != "" {
		lines, err := readLines(boundariesFlags.marksFile)
		if err != nil {
			return err
		}
		raw = append(raw, lines...)
	}
	pool := make([]float64, 0, len(raw))
	for _, s := range raw {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return fmt.Errorf("mark %q: %w", s, err)
		}
		pool = append(pool, v)
	}

	b := grading.ComputeBoundaries(pool, cfg, mod)
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Method: %s   Pool: %d", b.Method, b.PoolSize)
	if b.Method == grading.Relative {
		fmt.Fprintf(out, "   Mean: %.2f   Sigma: %.2f", b.Mean, b.Sigma)
	}
	fmt.Fprintln(out)
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "GRADE\tMIN\tPOINTS")
	for _, c := range b.Cutoffs {
		fmt.Fprintf(tw, "%s\t%.2f\t%.0f\n", c.Grade, c.Min, c.Grade.Point())
	}
	tw.Flush()
	for _, n := range b.Notes {
		fmt.Fprintf(out, "note: %s\n", n)
	}
	return nil
}

func readLines(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	var out []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		out = append(out, sc.Text())
	}
	return out, sc.Err()
}
