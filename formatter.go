package acceptor

import (
	"fmt"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"go.uber.org/zap"

	"github.com/virtinfra/guest-acceptor/runner"
	"github.com/virtinfra/guest-acceptor/types"
)

// ResultFormatter is responsible for formatting and displaying test results.
type ResultFormatter interface {
	FormatResults(result *runner.RunnerResult) error
}

// ConsoleResultFormatter implements the ResultFormatter interface.
type ConsoleResultFormatter struct {
	logger *zap.SugaredLogger
}

// NewConsoleResultFormatter creates a new ConsoleResultFormatter.
func NewConsoleResultFormatter(logger *zap.SugaredLogger) *ConsoleResultFormatter {
	return &ConsoleResultFormatter{
		logger: logger,
	}
}

// FormatResults formats and displays the test results.
func (f *ConsoleResultFormatter) FormatResults(result *runner.RunnerResult) error {
	f.logger.Info("Printing results...")
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetTitle(fmt.Sprintf("Guest Acceptance Results (%s)", formatDuration(result.Duration)))

	// Configure columns
	t.AppendHeader(table.Row{
		"Type", "ID", "Duration", "Cases", "Completed", "Failed", "Aborted", "Skipped", "Status", "Error",
	})

	// Set column configurations for better readability
	t.SetColumnConfigs([]table.ColumnConfig{
		{Name: "Type", AutoMerge: true},
		{Name: "ID", WidthMax: 50, WidthMaxEnforcer: text.WrapSoft},
		{Name: "Duration", Align: text.AlignRight},
		{Name: "Cases", Align: text.AlignRight},
		{Name: "Completed", Align: text.AlignRight},
		{Name: "Failed", Align: text.AlignRight},
		{Name: "Aborted", Align: text.AlignRight},
		{Name: "Skipped", Align: text.AlignRight},
		{Name: "Error", WidthMax: 80, WidthMaxEnforcer: text.WrapSoft},
	})

	// Print suites and their cases
	for _, suite := range result.Suites {
		t.AppendRow(table.Row{
			"Suite",
			suite.ID,
			formatDuration(suite.Duration),
			"-", // Don't count the suite row as a case
			suite.Stats.Completed,
			suite.Stats.Failed,
			suite.Stats.Aborted,
			suite.Stats.Skipped,
			getStateString(suite.State),
			"",
		})

		for i, cr := range suite.Cases {
			prefix := "├─"
			if i == len(suite.Cases)-1 {
				prefix = "└─"
			}

			t.AppendRow(table.Row{
				"Case",
				fmt.Sprintf("%s %s", prefix, cr.Name),
				formatDuration(cr.Duration),
				"1",
				boolToInt(!cr.Skipped && cr.State == types.TestStateCompleted),
				boolToInt(!cr.Skipped && cr.State == types.TestStateFailed),
				boolToInt(!cr.Skipped && cr.State == types.TestStateAborted),
				boolToInt(cr.Skipped),
				getResultString(cr),
				caseErrorMessage(cr),
			})
		}

		t.AppendSeparator()
	}

	// Update the table style setting based on result state
	if result.State == types.TestStateCompleted && result.Stats.Skipped == 0 {
		t.SetStyle(table.StyleColoredBlackOnGreenWhite)
	} else if result.State == types.TestStateCompleted {
		t.SetStyle(table.StyleColoredBlackOnYellowWhite)
	} else {
		t.SetStyle(table.StyleColoredBlackOnRedWhite)
	}

	// Add summary footer
	t.AppendFooter(table.Row{
		"TOTAL",
		"",
		formatDuration(result.Duration),
		result.Stats.Total,
		result.Stats.Completed,
		result.Stats.Failed,
		result.Stats.Aborted,
		result.Stats.Skipped,
		getStateString(result.State),
		"",
	})

	t.Render()
	fmt.Println(result.String())

	return nil
}

// caseErrorMessage picks the detail column content for a case row
func caseErrorMessage(cr *runner.CaseResult) string {
	if cr.Skipped {
		return cr.SkipReason
	}
	return cr.Error
}
