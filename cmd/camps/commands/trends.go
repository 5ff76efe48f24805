package commands

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/wonny/camps/internal/contracts"
	"github.com/wonny/camps/internal/engine"
	"github.com/wonny/camps/internal/memstore"
	"github.com/wonny/camps/internal/trends"
)

// trendsCmd represents the trends command
var trendsCmd = &cobra.Command{
	Use:   "trends",
	Short: "트렌드 계산 / 조회",
	Long: `참여도 트렌드 스냅샷을 계산하거나 실행 이력을 조회합니다.

Subcommands:
  run     - 기간을 지정해 즉시 계산 (ON_DEMAND)
  status  - 최근 실행 이력
  window  - 기간별 집계 단위 / 지난 주 윈도우
  show    - 팀·직원·조직의 스냅샷 이력

Example:
  go run ./cmd/camps trends run --from 2024-01-01 --to 2024-01-07
  go run ./cmd/camps trends run --from 2024-01-01 --to 2024-01-07 --force
  go run ./cmd/camps trends run --last-week --dry-run
  go run ./cmd/camps trends status --type WEEKLY --limit 10
  go run ./cmd/camps trends window --from 2024-01-01 --to 2024-06-30
  go run ./cmd/camps trends show --scope ORGANIZATION --from 2024-01-01 --to 2024-03-31`,
}

var (
	trendsRunCmd = &cobra.Command{
		Use:   "run",
		Short: "트렌드 즉시 계산",
		Long: `지정한 기간의 마지막 시각을 기준일로 모든 팀·직원·조직의 스냅샷을 계산합니다.

--force 없이 이미 완료된 기간은 건너뜁니다.
--dry-run 은 DB의 평가/이전 스냅샷을 읽기만 하고 결과는 메모리에만 기록합니다.`,
		RunE: runTrends,
	}

	trendsStatusCmd = &cobra.Command{
		Use:   "status",
		Short: "최근 실행 이력",
		RunE:  showTrendStatus,
	}

	trendsWindowCmd = &cobra.Command{
		Use:   "window",
		Short: "기간별 집계 단위",
		RunE:  showWindow,
	}

	trendsShowCmd = &cobra.Command{
		Use:   "show",
		Short: "스냅샷 이력 조회",
		Long: `한 범위(팀·직원·조직)의 기준일별 스냅샷을 오래된 순으로 보여줍니다.

--scope TEAM / EMPLOYEE 는 --entity 가 필요하고, ORGANIZATION 은 --entity 없이 조회합니다.`,
		RunE: showSnapshots,
	}
)

var (
	trendFrom     string
	trendTo       string
	trendForce    bool
	trendDryRun   bool
	trendLastWeek bool
	statusType    string
	statusLimit   int
	showScope     string
	showEntity    string
)

func init() {
	rootCmd.AddCommand(trendsCmd)
	trendsCmd.AddCommand(trendsRunCmd)
	trendsCmd.AddCommand(trendsStatusCmd)
	trendsCmd.AddCommand(trendsWindowCmd)
	trendsCmd.AddCommand(trendsShowCmd)

	// run flags
	trendsRunCmd.Flags().StringVar(&trendFrom, "from", "", "시작일 (YYYY-MM-DD)")
	trendsRunCmd.Flags().StringVar(&trendTo, "to", "", "종료일 (YYYY-MM-DD, 해당일 23:59:59까지)")
	trendsRunCmd.Flags().BoolVar(&trendForce, "force", false, "완료된 기간도 다시 계산")
	trendsRunCmd.Flags().BoolVar(&trendDryRun, "dry-run", false, "DB에 쓰지 않고 계산만")
	trendsRunCmd.Flags().BoolVar(&trendLastWeek, "last-week", false, "지난 주(월-일)를 WEEKLY로 계산")

	// status flags
	trendsStatusCmd.Flags().StringVar(&statusType, "type", "", "WEEKLY | MONTHLY | ON_DEMAND (기본값: 전체)")
	trendsStatusCmd.Flags().IntVar(&statusLimit, "limit", 20, "조회 개수")

	// window flags
	trendsWindowCmd.Flags().StringVar(&trendFrom, "from", "", "시작일 (YYYY-MM-DD)")
	trendsWindowCmd.Flags().StringVar(&trendTo, "to", "", "종료일 (YYYY-MM-DD)")

	// show flags
	trendsShowCmd.Flags().StringVar(&showScope, "scope", "ORGANIZATION", "EMPLOYEE | TEAM | ORGANIZATION")
	trendsShowCmd.Flags().StringVar(&showEntity, "entity", "", "팀 또는 직원 id")
	trendsShowCmd.Flags().StringVar(&trendFrom, "from", "", "시작일 (YYYY-MM-DD)")
	trendsShowCmd.Flags().StringVar(&trendTo, "to", "", "종료일 (YYYY-MM-DD)")
}

func runTrends(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	s := a.dbStores()
	var dry *dryRunSnapshots
	if trendDryRun {
		dry = &dryRunSnapshots{read: a.snapshots, write: memstore.NewSnapshots()}
		s.snapshots = dry
		s.runs = memstore.NewProcessingLogs()
	}
	eng := a.newEngine(s)

	ctx := cmd.Context()
	windowType := contracts.WindowOnDemand
	var start, end time.Time
	if trendLastWeek {
		w := trends.LastCompletedWeek(time.Now(), a.location)
		windowType, start, end = contracts.WindowWeekly, w.Start, w.End
	} else {
		if start, end, err = parseRange(trendFrom, trendTo, a.location); err != nil {
			return err
		}
	}

	header := "TREND RUN"
	if trendDryRun {
		header += " (dry-run)"
	}
	printHeader(header, trends.Window{Start: start, End: end})

	result, err := eng.RunWindow(ctx, windowType, start, end, trendForce)
	switch {
	case errors.Is(err, trends.ErrInvalidWindow):
		printError(err.Error())
		return err
	case errors.Is(err, contracts.ErrRunInProgress):
		printWarning("이 기간은 다른 프로세스에서 계산 중입니다")
		return err
	case errors.Is(err, engine.ErrRunFailed):
		printRunResult(result)
		return err
	case err != nil:
		return fmt.Errorf("run trends: %w", err)
	}

	printRunResult(result)
	if dry != nil {
		printSnapshotSummary(dry.write.All())
	}
	return nil
}

func showTrendStatus(cmd *cobra.Command, args []string) error {
	var windowType contracts.WindowType
	if statusType != "" {
		wt, ok := contracts.ParseWindowType(statusType)
		if !ok {
			return fmt.Errorf("invalid --type %q (valid: WEEKLY, MONTHLY, ON_DEMAND)", statusType)
		}
		windowType = wt
	}

	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	runs, err := a.runs.ListRecent(cmd.Context(), windowType, statusLimit)
	if err != nil {
		return fmt.Errorf("list runs: %w", err)
	}

	printRuns(runs)
	return nil
}

func showWindow(cmd *cobra.Command, args []string) error {
	if trendFrom == "" && trendTo == "" {
		w := trends.LastCompletedWeek(time.Now(), time.Local)
		printKeyValue("Last week", w.String(), 12)
		return nil
	}

	start, end, err := parseRange(trendFrom, trendTo, time.Local)
	if err != nil {
		return err
	}

	days := int(end.Sub(start).Hours() / 24)
	printKeyValue("Window", trends.Window{Start: start, End: end}.String(), 12)
	printKeyValue("Days", strconv.Itoa(days), 12)
	printKeyValue("Granularity", string(trends.ChooseGranularity(start, end)), 12)
	return nil
}

func showSnapshots(cmd *cobra.Command, args []string) error {
	scope, entityID, err := parseScopeFilter(showScope, showEntity)
	if err != nil {
		return err
	}

	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	start, end, err := parseRange(trendFrom, trendTo, a.location)
	if err != nil {
		return err
	}

	snaps, err := a.snapshots.ListByRecordDate(cmd.Context(), scope, entityID, start, end)
	if err != nil {
		return fmt.Errorf("list snapshots: %w", err)
	}

	printHeader(fmt.Sprintf("%s SNAPSHOTS", scope), trends.Window{Start: start, End: end})
	printSnapshotHistory(snaps)
	return nil
}

// parseScopeFilter validates --scope and --entity together
func parseScopeFilter(scopeArg, entityArg string) (contracts.Scope, *uuid.UUID, error) {
	scope := contracts.Scope(strings.ToUpper(strings.TrimSpace(scopeArg)))
	if !scope.Valid() {
		return "", nil, fmt.Errorf("invalid --scope %q (valid: EMPLOYEE, TEAM, ORGANIZATION)", scopeArg)
	}

	if scope == contracts.ScopeOrganization {
		if entityArg != "" {
			return "", nil, fmt.Errorf("--entity is not used with ORGANIZATION")
		}
		return scope, nil, nil
	}

	if entityArg == "" {
		return "", nil, fmt.Errorf("--entity is required for %s", scope)
	}
	id, err := uuid.Parse(entityArg)
	if err != nil {
		return "", nil, fmt.Errorf("invalid --entity: %w", err)
	}
	return scope, &id, nil
}

// parseRange parses YYYY-MM-DD bounds in loc; the upper bound covers the whole day
func parseRange(from, to string, loc *time.Location) (time.Time, time.Time, error) {
	if from == "" || to == "" {
		return time.Time{}, time.Time{}, fmt.Errorf("--from and --to are required")
	}
	start, err := time.ParseInLocation("2006-01-02", from, loc)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid --from: %w", err)
	}
	end, err := time.ParseInLocation("2006-01-02", to, loc)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid --to: %w", err)
	}
	return start, end.Add(24*time.Hour - time.Second), nil
}

// dryRunSnapshots reads history from the database and keeps new snapshots in memory
type dryRunSnapshots struct {
	read  contracts.SnapshotStore
	write *memstore.Snapshots
}

func (d *dryRunSnapshots) Save(ctx context.Context, s *contracts.TrendSnapshot) error {
	return d.write.Save(ctx, s)
}

func (d *dryRunSnapshots) FindNearest(ctx context.Context, q contracts.SnapshotQuery) (*contracts.TrendSnapshot, error) {
	return d.read.FindNearest(ctx, q)
}
