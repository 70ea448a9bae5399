package commands

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"

	"github.com/celltrace/celltrace-go/pkg/candb"
	"github.com/celltrace/celltrace-go/pkg/candb/bmsdb"
)

// ValidateOptions configures the validate command.
type ValidateOptions struct {
	Strict  bool
	JSON    bool
	Verbose bool
}

// ValidationOutput represents the validation result.
type ValidationOutput struct {
	Valid    bool          `json:"valid"`
	Messages int           `json:"messages"`
	Errors   []IssueOutput `json:"errors,omitempty"`
	Warnings []IssueOutput `json:"warnings,omitempty"`
}

// IssueOutput represents a single validation issue.
type IssueOutput struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Context string `json:"context,omitempty"`
}

// RunValidate runs the validate command.
func RunValidate(args []string, stdout, stderr io.Writer) int {
	opts, err := parseValidateArgs(args)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitCommandError
	}

	db := bmsdb.New()
	validator := candb.NewValidator()
	validator.Strict = opts.Strict
	result := validator.Validate(db)

	output := &ValidationOutput{
		Valid:    result.Valid,
		Messages: len(db.Messages),
	}
	for _, e := range result.Errors {
		output.Errors = append(output.Errors, IssueOutput{
			Code: e.Code, Message: e.Message, Context: e.Context,
		})
	}
	for _, w := range result.Warnings {
		output.Warnings = append(output.Warnings, IssueOutput{
			Code: w.Code, Message: w.Message, Context: w.Context,
		})
	}

	if opts.JSON {
		data, _ := json.MarshalIndent(output, "", "  ")
		fmt.Fprintln(stdout, string(data))
	} else {
		printValidationResult(stdout, output, opts.Verbose)
	}

	if !result.Valid {
		return exitValidation
	}
	return exitSuccess
}

func printValidationResult(w io.Writer, result *ValidationOutput, verbose bool) {
	if result.Valid && len(result.Warnings) == 0 {
		fmt.Fprintf(w, "OK (%d messages)\n", result.Messages)
		return
	}

	if result.Valid {
		fmt.Fprintf(w, "OK (%d messages, %d warnings)\n", result.Messages, len(result.Warnings))
	} else {
		fmt.Fprintf(w, "FAILED (%d errors, %d warnings)\n", len(result.Errors), len(result.Warnings))
	}

	for _, e := range result.Errors {
		if e.Context != "" {
			fmt.Fprintf(w, "  ERROR [%s] %s: %s\n", e.Context, e.Code, e.Message)
		} else {
			fmt.Fprintf(w, "  ERROR %s: %s\n", e.Code, e.Message)
		}
	}

	if verbose {
		for _, warn := range result.Warnings {
			if warn.Context != "" {
				fmt.Fprintf(w, "  WARNING [%s] %s: %s\n", warn.Context, warn.Code, warn.Message)
			} else {
				fmt.Fprintf(w, "  WARNING %s: %s\n", warn.Code, warn.Message)
			}
		}
	}
}

func parseValidateArgs(args []string) (ValidateOptions, error) {
	fs := flag.NewFlagSet("validate", flag.ContinueOnError)
	opts := ValidateOptions{}

	fs.BoolVar(&opts.Strict, "strict", false, "Require receivers and cycle times")
	fs.BoolVar(&opts.JSON, "json", false, "Output results as JSON")
	fs.BoolVar(&opts.Verbose, "verbose", false, "Show all warnings")
	fs.BoolVar(&opts.Verbose, "v", false, "Show all warnings (shorthand)")

	fs.Usage = func() {}

	if err := fs.Parse(args); err != nil {
		return opts, err
	}
	return opts, nil
}
