package commands

import (
	"github.com/spf13/cobra"
)

var (
	// Global flags
	verbose bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "camps",
	Short: "CAMPS - 팀 참여도 트렌드 엔진",
	Long: `CAMPS Unified CLI

Certainty, Autonomy, Meaning, Progress, Social inclusion 참여도 평가를
직원·팀·조직 단위로 집계하고 주/월/분기/연 대비 변화량을 스냅샷으로 저장합니다.

Usage:
  go run ./cmd/camps [command]

Examples:
  go run ./cmd/camps api --startup-check
  go run ./cmd/camps scheduler start
  go run ./cmd/camps trends run --from 2024-01-01 --to 2024-01-07
  go run ./cmd/camps migrate`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug 로그 출력")
}
