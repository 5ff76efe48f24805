package commands

import (
	"fmt"
	"sort"
	"strings"

	"github.com/wonny/camps/internal/contracts"
	"github.com/wonny/camps/internal/scheduler"
	"github.com/wonny/camps/internal/trends"
)

// ═══════════════════════════════════════════════════════════
// Common Formatting Utilities
// 모든 커맨드가 동일한 출력 포맷을 사용하도록 통일
// ═══════════════════════════════════════════════════════════

const displayTime = "2006-01-02 15:04:05"

func printHeader(title string, w trends.Window) {
	fmt.Println()
	fmt.Println("═══════════════════════════════════════════════════════════")
	fmt.Printf("  %s\n", title)
	fmt.Println("───────────────────────────────────────────────────────────")
	fmt.Printf("  Window    : %s\n", w.String())
	fmt.Println("───────────────────────────────────────────────────────────")
}

func printRunResult(r *contracts.RunResult) {
	if r == nil {
		return
	}

	fmt.Println()
	switch r.Status {
	case contracts.RunSkipped:
		printInfo("이미 완료된 기간입니다 (--force 로 재계산)")
		return
	case contracts.RunFailed:
		printError(fmt.Sprintf("Run failed: %s", r.Error))
	default:
		if r.AllItemsSucceeded {
			printSuccess(fmt.Sprintf("Run completed in %.2fs", r.Duration.Seconds()))
		} else {
			printWarning(fmt.Sprintf("Run completed with %d failed items", r.ItemsFailed))
		}
	}

	if r.LogID != nil {
		printKeyValue("Log ID", r.LogID.String(), 10)
	}
	printKeyValue("Written", fmt.Sprint(r.SnapshotsWritten), 10)
	printKeyValue("Skipped", fmt.Sprint(r.ItemsSkipped), 10)
	printKeyValue("Failed", fmt.Sprint(r.ItemsFailed), 10)
}

func printJobResult(r scheduler.JobResult) {
	if r.Success {
		printSuccess(fmt.Sprintf("%s completed in %v (attempts: %d)", r.JobName, r.Duration, r.Attempts))
		return
	}
	printError(fmt.Sprintf("%s failed after %d attempts: %s", r.JobName, r.Attempts, r.Error))
}

func printRuns(runs []contracts.ProcessingLog) {
	if len(runs) == 0 {
		printInfo("실행 이력이 없습니다")
		return
	}

	widths := []int{36, 10, 10, 23, 19}
	printTableHeader([]string{"ID", "TYPE", "STATUS", "WINDOW", "RUN AT"}, widths)
	for _, r := range runs {
		window := r.WindowStart.Format("2006-01-02") + " ~ " + r.WindowEnd.Format("2006-01-02")
		printTableRow([]string{r.ID.String(), string(r.WindowType), string(r.Status), window, r.RunAt.Format(displayTime)}, widths)
		if r.ErrorMessage != nil {
			fmt.Printf("    ↳ %s\n", *r.ErrorMessage)
		}
	}
}

// printSnapshotSummary shows team and organization values computed in a dry run
func printSnapshotSummary(snaps []contracts.TrendSnapshot) {
	var rows []contracts.TrendSnapshot
	employees := 0
	for _, s := range snaps {
		if s.Scope == contracts.ScopeEmployee {
			employees++
			continue
		}
		rows = append(rows, s)
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Scope != rows[j].Scope {
			return rows[i].Scope > rows[j].Scope // TEAM before ORGANIZATION
		}
		return entityKey(rows[i]) < entityKey(rows[j])
	})

	fmt.Println()
	widths := []int{12, 36, 16, 7, 8}
	printTableHeader([]string{"SCOPE", "ENTITY", "CATEGORY", "VALUE", "Δ WEEK"}, widths)
	for _, s := range rows {
		printTableRow([]string{
			string(s.Scope),
			entityKey(s),
			string(s.Category),
			fmt.Sprintf("%.2f", s.CurrentValue),
			optional(s.DeltaWeek),
		}, widths)
	}
	fmt.Printf("\n(+ %d employee snapshots)\n", employees)
}

// printSnapshotHistory lists snapshots oldest first with every lag delta
func printSnapshotHistory(snaps []contracts.TrendSnapshot) {
	if len(snaps) == 0 {
		printInfo("No snapshots in this window")
		return
	}

	fmt.Println()
	widths := []int{20, 16, 7, 8, 8, 9, 8}
	printTableHeader([]string{"RECORD DATE", "CATEGORY", "VALUE", "Δ WEEK", "Δ MONTH", "Δ QUARTER", "Δ YEAR"}, widths)
	for _, s := range snaps {
		printTableRow([]string{
			s.RecordDate.Format(displayTime),
			string(s.Category),
			fmt.Sprintf("%.2f", s.CurrentValue),
			optional(s.DeltaWeek),
			optional(s.DeltaMonth),
			optional(s.DeltaQuarter),
			optional(s.DeltaYear),
		}, widths)
	}
	fmt.Printf("\n%d snapshots\n", len(snaps))
}

func entityKey(s contracts.TrendSnapshot) string {
	if s.EntityID == nil {
		return "-"
	}
	return s.EntityID.String()
}

func optional(v *float64) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf("%+.2f", *v)
}

// printWarning prints a warning message
func printWarning(message string) {
	fmt.Printf("⚠️  %s\n", message)
}

// printSuccess prints a success message
func printSuccess(message string) {
	fmt.Printf("✅ %s\n", message)
}

// printError prints an error message
func printError(message string) {
	fmt.Printf("❌ %s\n", message)
}

// printInfo prints an info message
func printInfo(message string) {
	fmt.Printf("ℹ️  %s\n", message)
}

// printTableHeader prints a table header
func printTableHeader(columns []string, widths []int) {
	printTableRow(columns, widths)

	totalWidth := 0
	for i, width := range widths {
		totalWidth += width
		if i < len(widths)-1 {
			totalWidth += 2 // spacing
		}
	}
	fmt.Println(strings.Repeat("─", totalWidth))
}

// printTableRow prints a table row
func printTableRow(values []string, widths []int) {
	for i, val := range values {
		fmt.Printf("%-*s", widths[i], val)
		if i < len(values)-1 {
			fmt.Print("  ")
		}
	}
	fmt.Println()
}

// printKeyValue prints key-value pairs
func printKeyValue(key string, value string, keyWidth int) {
	fmt.Printf("   %-*s : %s\n", keyWidth, key, value)
}
