package cli

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/JonMunkholm/stageload/internal/core"
	"github.com/JonMunkholm/stageload/internal/domain"
	"github.com/JonMunkholm/stageload/internal/validation"
	"github.com/fatih/color"
)

var (
	green  = color.New(color.FgGreen)
	yellow = color.New(color.FgYellow)
	red    = color.New(color.FgRed)
	cyan   = color.New(color.FgCyan)
	faint  = color.New(color.Faint)
)

func statusLabel(s domain.Status) string {
	switch s {
	case domain.StatusCompleted:
		return green.Sprint(s)
	case domain.StatusFailed:
		return red.Sprint(s)
	default:
		return yellow.Sprint(s)
	}
}

func batchLabel(s domain.BatchStatus) string {
	switch s {
	case domain.BatchSuccess, domain.BatchAlreadyProcessed:
		return green.Sprint(s)
	case domain.BatchFailed:
		return red.Sprint(s)
	default:
		return yellow.Sprint(s)
	}
}

func severityLabel(s domain.Severity) string {
	switch s {
	case domain.SeverityCritical, domain.SeverityError:
		return red.Sprint(s)
	case domain.SeverityWarning:
		return yellow.Sprint(s)
	default:
		return faint.Sprint(s)
	}
}

func printManifest(w io.Writer, m *domain.Manifest) {
	fmt.Fprintf(w, "Batch:    %s\n", m.BatchID)
	if m.ParentBatchID != nil {
		fmt.Fprintf(w, "Parent:   %s\n", *m.ParentBatchID)
	}
	fmt.Fprintf(w, "File:     %s (%d bytes)\n", m.FileName, m.FileSizeBytes)
	fmt.Fprintf(w, "Status:   %s", statusLabel(m.Status))
	if m.AlreadyProcessed {
		fmt.Fprint(w, faint.Sprint(" (already processed)"))
	}
	fmt.Fprintln(w)
	if m.TableName != "" {
		fmt.Fprintf(w, "Table:    %s\n", cyan.Sprint(m.TableName))
	}
	fmt.Fprintf(w, "Rows:     %d loaded, %d failed, %d corrected of %d\n",
		m.ProcessedRecords, m.FailedRecords, m.CorrectedRecords, m.TotalRecords)
	if m.DataQuality != "" {
		fmt.Fprintf(w, "Quality:  %s (%d warnings, %d errors)\n", m.DataQuality, m.WarningCount, m.ErrorCount)
	}
	if m.DurationMs > 0 {
		fmt.Fprintf(w, "Duration: %s\n", time.Duration(m.DurationMs)*time.Millisecond)
	}
	if m.ErrorMessage != "" {
		fmt.Fprintf(w, "Error:    %s\n", red.Sprint(m.ErrorMessage))
	}
}

func printBatch(w io.Writer, res *domain.BatchResult) {
	fmt.Fprintf(w, "Archive:  %s\n", res.FileName)
	fmt.Fprintf(w, "Batch:    %s\n", res.ParentBatchID)
	fmt.Fprintf(w, "Status:   %s\n", batchLabel(res.Status))
	fmt.Fprintf(w, "Files:    %d total, %d loaded, %d failed, %d duplicate\n",
		res.TotalFiles, res.Succeeded, res.Failed, res.Duplicates)
	fmt.Fprintf(w, "Rows:     %d\n", res.TotalRows)
	if res.Message != "" {
		fmt.Fprintf(w, "Message:  %s\n", res.Message)
	}

	if len(res.Files) > 0 {
		fmt.Fprintln(w)
	}
	for _, f := range res.Files {
		line := fmt.Sprintf("  %-8s %s", memberLabel(f.Status), f.FileName)
		if f.TableName != "" {
			line += " -> " + f.TableName
		}
		if f.Error != "" {
			line += " " + faint.Sprint(f.Error)
		}
		fmt.Fprintln(w, line)
	}
}

func memberLabel(s domain.MemberStatus) string {
	switch s {
	case domain.MemberSuccess:
		return green.Sprint(s)
	case domain.MemberFailed:
		return red.Sprint(s)
	default:
		return yellow.Sprint(s)
	}
}

func printAnalysis(w io.Writer, a *domain.ArchiveAnalysis) {
	fmt.Fprintf(w, "Archive:  %s\n", a.FileName)
	fmt.Fprintf(w, "Entries:  %d (%d eligible)\n", a.TotalEntries, a.EligibleEntries)
	for _, e := range a.Entries {
		mark := faint.Sprint("skip")
		if e.Eligible {
			mark = green.Sprint("load")
		}
		line := fmt.Sprintf("  %s %s ~%d rows", mark, e.FileName, e.EstimatedRows)
		if e.SuggestedTable != "" {
			line += " -> " + e.SuggestedTable
			if e.TableExists {
				line += faint.Sprint(" (exists)")
			}
		}
		fmt.Fprintln(w, line)
	}
	for _, r := range a.Recommendations {
		fmt.Fprintf(w, "  * %s\n", r)
	}
}

func printReport(w io.Writer, r *validation.Report, limit int) {
	fmt.Fprintf(w, "Batch:     %s\n", r.BatchID)
	fmt.Fprintf(w, "Issues:    %d (%d auto-fixed)\n", r.TotalIssues, r.AutoFixedCount)

	sevs := make([]string, 0, len(r.SeverityCounts))
	for s, n := range r.SeverityCounts {
		sevs = append(sevs, fmt.Sprintf("%s=%d", severityLabel(s), n))
	}
	sort.Strings(sevs)
	if len(sevs) > 0 {
		fmt.Fprintf(w, "Severity:  %s\n", strings.Join(sevs, " "))
	}

	for i, is := range r.Issues {
		if limit > 0 && i == limit {
			fmt.Fprintln(w, faint.Sprintf("  ... %d more", len(r.Issues)-limit))
			break
		}
		fixed := ""
		if is.AutoFixed {
			fixed = green.Sprint(" fixed")
		}
		fmt.Fprintf(w, "  line %-6d %-8s %s%s\n", is.LineNumber, severityLabel(is.Severity), is.Description, fixed)
	}
}

func printRules(w io.Writer, list []domain.Rule) {
	if len(list) == 0 {
		fmt.Fprintln(w, "No validation rules.")
		return
	}
	for _, r := range list {
		state := green.Sprint("on ")
		if !r.ValidationEnabled {
			state = faint.Sprint("off")
		}
		fmt.Fprintf(w, "%s %-30s delimiters=%d", state, r.FilePattern, r.ExpectedDelimiters)
		var flags []string
		if r.AutoFixEnabled {
			flags = append(flags, "autofix")
		}
		if r.RejectOnViolation {
			flags = append(flags, "reject")
		}
		if r.TransformEnabled && r.Transformer != "" {
			flags = append(flags, "transform:"+r.Transformer)
		}
		if len(flags) > 0 {
			fmt.Fprintf(w, " [%s]", strings.Join(flags, ","))
		}
		fmt.Fprintln(w)
	}
}

// printError writes the user-facing rendering of err.
func printError(w io.Writer, err error) {
	msg := core.MapError(err)
	fmt.Fprintf(w, "%s %s (Code: %s)\n", red.Sprint("Error:"), msg.Message, msg.Code)
	if msg.Action != "" {
		fmt.Fprintf(w, "       %s\n", msg.Action)
	}
}
