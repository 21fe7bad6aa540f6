// gradectl grades marks sheets from the command line.
//
// Usage:
//
//	gradectl grade -f marks.csv [--catalog courses.yaml] [--protocol exclusive] [--moderation cap] [-o master.xlsx]
//	gradectl boundaries --marks 45,52,61 --total-max 100 [--course-type theory]
//	gradectl template [--semester] [-o template.csv]
//	gradectl hash-password
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mind-engage/mindengage-results/internal/logging"
)

// version is set at build time via -ldflags.
var version = "dev"

var rootFlags struct {
	logLevel  string
	logFormat string
}

var rootCmd = &cobra.Command{
	Use:   "gradectl",
	Short: "Relative grading for semester marks sheets",
	Long:  "gradectl computes grade boundaries, assigns grades with attendance and ESE hurdles,\napplies grace marks and rolls results up into SGPA.",
	CompletionOptions: cobra.CompletionOptions{
		HiddenDefaultCmd: true,
	},
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, _ []string) {
		logging.Init(logging.ParseLevel(rootFlags.logLevel), rootFlags.logFormat, cmd.ErrOrStderr())
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&rootFlags.logLevel, "log-level", "warn", "Log level: debug, info, warn, error")
	pf.StringVar(&rootFlags.logFormat, "log-format", "text", "Log format: text or json")

	rootCmd.AddCommand(gradeCmd)
	rootCmd.AddCommand(boundariesCmd)
	rootCmd.AddCommand(templateCmd)
	rootCmd.AddCommand(hashCmd)
	rootCmd.Version = version
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
