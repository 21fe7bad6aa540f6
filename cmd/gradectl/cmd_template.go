package main

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mind-engage/mindengage-results/internal/sheets"
)

var templateFlags struct {
	semester bool
	output   string
}

var templateCmd = &cobra.Command{
	Use:   "template",
	Short: "Write a sample marks sheet",
	RunE:  runTemplate,
}

func init() {
	f := templateCmd.Flags()
	f.BoolVar(&templateFlags.semester, "semester", false, "Multi-subject layout with course columns")
	f.StringVarP(&templateFlags.output, "output", "o", "", "Write to file (.csv or .xlsx); default stdout as CSV")
}

func runTemplate(cmd *cobra.Command, _ []string) error {
	layout := sheets.SingleSubject
	if templateFlags.semester {
		layout = sheets.Semester
	}
	t := sheets.TemplateTable(layout)
	if templateFlags.output == "" {
		return sheets.WriteCSV(cmd.OutOrStdout(), t)
	}
	f, err := os.Create(templateFlags.output)
	if err != nil {
		return err
	}
	defer f.Close()
	if strings.EqualFold(filepath.Ext(templateFlags.output), ".xlsx") {
		return sheets.WriteXLSX(f, t)
	}
	return sheets.WriteCSV(f, t)
}
