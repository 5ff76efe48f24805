package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/wonny/camps/pkg/config"
	"github.com/wonny/camps/pkg/database"
)

// migrateCmd represents the migrate command
var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "스키마 생성",
	Long: `트렌드 엔진이 사용하는 테이블과 인덱스를 생성합니다.

생성 대상:
- teams, employees, engagement_ratings
- trend_snapshots (lag 조회 인덱스)
- analytics_processing_log (PENDING 중복 방지 unique index)

이미 존재하는 객체는 건너뜁니다.

Example:
  go run ./cmd/camps migrate`,
	RunE: runMigrate,
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}

func runMigrate(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	db, err := database.New(cfg)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(cmd.Context(), time.Minute)
	defer cancel()

	if err := db.EnsureSchema(ctx); err != nil {
		printError("Schema migration failed")
		return err
	}

	printSuccess("Schema is up to date")
	return nil
}
