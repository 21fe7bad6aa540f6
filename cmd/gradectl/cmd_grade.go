package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/mind-engage/mindengage-results/internal/grading"
	"github.com/mind-engage/mindengage-results/internal/logging"
	"github.com/mind-engage/mindengage-results/internal/results"
	"github.com/mind-engage/mindengage-results/internal/sheets"
)

var gradeFlags struct {
	file       string
	catalog    string
	protocol   string
	moderation string
	subject    string
	credits    float64
	courseType string
	totalMax   float64
	eseMax     float64
	workers    int
	output     string
	asJSON     bool
}

var gradeCmd = &cobra.Command{
	Use:   "grade",
	Short: "Grade a marks sheet and print or export the master sheet",
	RunE:  runGrade,
}

func init() {
	f := gradeCmd.Flags()
	f.StringVarP(&gradeFlags.file, "file", "f", "", "Marks sheet (.csv or .xlsx, required)")
	f.StringVar(&gradeFlags.catalog, "catalog", "", "YAML course catalog for sheets without course columns")
	f.StringVar(&gradeFlags.protocol, "protocol", "", "Statistics pool: exclusive (default) or inclusive")
	f.StringVar(&gradeFlags.moderation, "moderation", "", "Moderation variant: cap (default) or redistribute")
	f.StringVar(&gradeFlags.subject, "subject", "", "Subject code for a single-subject sheet (default: file name)")
	f.Float64Var(&gradeFlags.credits, "credits", 0, "Credits for a single-subject sheet")
	f.StringVar(&gradeFlags.courseType, "course-type", "", "Course type for a single-subject sheet: theory or practical")
	f.Float64Var(&gradeFlags.totalMax, "total-max", 0, "Maximum total marks for a single-subject sheet")
	f.Float64Var(&gradeFlags.eseMax, "ese-max", 0, "Maximum ESE marks (default 60% of total)")
	f.IntVar(&gradeFlags.workers, "workers", 0, "Parallel workers (default: GOMAXPROCS)")
	f.StringVarP(&gradeFlags.output, "output", "o", "", "Write master sheet to .csv or workbook to .xlsx")
	f.BoolVar(&gradeFlags.asJSON, "json", false, "Print the full run as JSON")

	_ = gradeCmd.MarkFlagRequired("file")
}

func runGrade(cmd *cobra.Command, _ []string) error {
	data, err := os.ReadFile(gradeFlags.file)
	if err != nil {
		return fmt.Errorf("read sheet: %w", err)
	}

	opts := []results.Option{results.WithLogger(logging.New("gradectl")), results.WithWorkers(gradeFlags.workers)}
	if gradeFlags.catalog != "" {
		cat, err := sheets.LoadCatalog(gradeFlags.catalog)
		if err != nil {
			return err
		}
		opts = append(opts, results.WithCatalog(cat))
	}

	pol := &grading.Policy{}
	if gradeFlags.protocol != "" {
		if pol.Protocol, err = grading.ParseProtocol(gradeFlags.protocol); err != nil {
			return err
		}
	}
	if gradeFlags.moderation != "" {
		if pol.Moderation, err = grading.ParseModeration(gradeFlags.moderation); err != nil {
			return err
		}
	}

	sheetOpts, err := singleSubjectOptions()
	if err != nil {
		return err
	}

	svc := results.NewService(results.NewInMemoryStore(), opts...)
	run, err := svc.Grade(context.Background(), results.GradeRequest{
		Source: filepath.Base(gradeFlags.file),
		Data:   data,
		Sheet:  sheetOpts,
		Policy: pol,
	})
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if gradeFlags.asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(run)
	}
	printRun(out, run.Semester)
	if gradeFlags.output != "" {
		if err := writeOutput(gradeFlags.output, run.Semester); err != nil {
			return err
		}
		fmt.Fprintf(out, "\nWrote %s\n", gradeFlags.output)
	}
	return nil
}

// singleSubjectOptions leaves Course nil when neither --course-type nor --total-max is given;
// the subject then needs a --catalog entry or it is rejected.
func singleSubjectOptions() (sheets.Options, error) {
	opts := sheets.Options{Subject: gradeFlags.subject, Credits: gradeFlags.credits}
	if opts.Subject == "" {
		base := filepath.Base(gradeFlags.file)
		opts.Subject = strings.TrimSuffix(base, filepath.Ext(base))
	}
	if gradeFlags.courseType == "" && gradeFlags.totalMax == 0 {
		return opts, nil
	}
	cfg := grading.CourseConfig{Type: grading.Theory, TotalMax: gradeFlags.totalMax, ESEMax: gradeFlags.eseMax}
	if gradeFlags.courseType != "" {
		t, err := grading.ParseCourseType(gradeFlags.courseType)
		if err != nil {
			return opts, err
		}
		cfg.Type = t
	}
	if cfg.TotalMax == 0 {
		cfg.TotalMax = 100
	}
	if cfg.ESEMax == 0 {
		cfg.ESEMax = grading.DefaultESEMax(cfg.TotalMax)
	}
	opts.Course = &cfg
	return opts, nil
}

func printRun(out io.Writer, sem grading.Semester) {
	fmt.Fprintf(out, "Protocol: %s   Moderation: %s\n\n", sem.Policy.Protocol, sem.Policy.Moderation)
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SUBJECT\tMETHOD\tPOOL\tMEAN\tSIGMA\tD\tSTUDENTS\tPASS%")
	for _, b := range sem.Batches {
		bd := b.Boundaries
		fmt.Fprintf(tw, "%s\t%s\t%d\t%.2f\t%.2f\t%.2f\t%d\t%.1f\n",
			b.Subject, bd.Method, bd.PoolSize, bd.Mean, bd.Sigma, bd.D(), b.Stats.Students, b.Stats.PassPercent)
	}
	tw.Flush()
	for _, b := range sem.Batches {
		for _, n := range append(append([]string{}, b.Boundaries.Notes...), b.Notes...) {
			fmt.Fprintf(out, "  %s: %s\n", b.Subject, n)
		}
	}
	for _, rj := range sem.Rejected {
		fmt.Fprintf(out, "REJECTED %s (%d rows): %s\n", rj.Subject, rj.Records, rj.Reason)
	}

	fmt.Fprintln(out)
	master := sheets.MasterTable(sem)
	tw = tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, strings.Join(master.Header, "\t"))
	for _, row := range master.Rows {
		fmt.Fprintln(tw, strings.Join(row, "\t"))
	}
	tw.Flush()
}

func writeOutput(path string, sem grading.Semester) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx":
		err = sheets.WriteXLSX(f, sheets.MasterTable(sem), sheets.DetailTable(sem), sheets.BoundaryTable(sem))
	default:
		err = sheets.WriteCSV(f, sheets.MasterTable(sem))
	}
	if err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return f.Close()
}
