// Command navigator answers questions against the ICO guidance corpus.
//
//	navigator "What does ICO say about documenting lawful basis?" [--use-llm]
//	navigator serve [--config navigator.yaml]
//
// The Response is written to stdout as JSON. Refusals, no-match answers and
// LLM fallbacks are all successful runs; only startup failures exit non-zero.
package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	apperrors "github.com/tinkerthinkerbytes/ico-guidance-navigator-llm/pkg/errors"
)

// version is set at build time via -ldflags "-X main.version=x.y.z".
var version = "dev"

// exitErr carries a numeric exit code through the cobra error path.
type exitErr struct {
	code int
	msg  string
}

func (e *exitErr) Error() string { return e.msg }

// startupError maps err onto its exit code.
func startupError(err error, format string, args ...any) error {
	return &exitErr{code: apperrors.ExitCode(err), msg: fmt.Sprintf(format, args...) + ": " + err.Error()}
}

type globalFlags struct {
	configPath string
	corpusDir  string
	logLevel   string
	logFormat  string
}

type askFlags struct {
	useLLM bool
	// useLLMSet is true when --use-llm was given; otherwise llm.enabled decides.
	useLLMSet bool
	topN      int
}

func main() {
	_ = godotenv.Load()
	os.Exit(execute(os.Args[1:], os.Stdout, os.Stderr))
}

// execute runs the command line and returns the process exit code.
func execute(args []string, stdout, stderr io.Writer) int {
	root := newRootCmd(stdout, stderr)
	root.SetArgs(args)
	if err := root.Execute(); err != nil {
		var ee *exitErr
		if errors.As(err, &ee) {
			fmt.Fprintln(stderr, "Error:", ee.msg)
			return ee.code
		}
		// flag and argument errors from cobra
		fmt.Fprintln(stderr, "Error:", err)
		return 2
	}
	return 0
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	var g globalFlags
	var a askFlags

	root := &cobra.Command{
		Use:           `navigator "<question>"`,
		Short:         "Ask the ICO guidance navigator a question",
		Long:          "Navigator retrieves ICO guidance passages relevant to a question and returns an advisory-only JSON response.",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		Args: func(cmd *cobra.Command, args []string) error {
			if len(args) != 1 {
				return &exitErr{code: 2, msg: "expected exactly one question argument"}
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			a.useLLMSet = cmd.Flags().Changed("use-llm")
			return runAsk(cmd.Context(), args[0], g, a, stdout, stderr)
		},
	}
	root.SetOut(stdout)
	root.SetErr(stderr)

	pf := root.PersistentFlags()
	pf.StringVar(&g.configPath, "config", "", "Path to a YAML config file")
	pf.StringVar(&g.corpusDir, "corpus-dir", "", "Directory holding the guidance corpus (overrides config)")
	pf.StringVar(&g.logLevel, "log-level", "", "Log level: debug, info, warn or error")
	pf.StringVar(&g.logFormat, "log-format", "", "Log format: text or json")

	f := root.Flags()
	f.BoolVar(&a.useLLM, "use-llm", false, "Paraphrase the summary with the configured model (default from llm.enabled)")
	f.IntVar(&a.topN, "top-n", 0, "Number of sections in the summary (overrides config)")

	root.AddCommand(newServeCmd(&g, stderr))
	return root
}
