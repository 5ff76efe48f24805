package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/wonny/camps/internal/contracts"
)

// seedCmd represents the seed command
var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "팀 / 직원 / 평가 데이터 적재",
	Long: `JSON 파일에서 팀, 직원, 참여도 평가를 읽어 DB에 적재합니다.

팀과 직원은 id 기준 upsert, 평가는 id가 같으면 건너뜁니다.
매니저는 같은 파일 안에서 먼저 나온 직원이어야 합니다.

File format:
  {
    "teams":     [{"id": "...", "name": "platform"}],
    "employees": [{"id": "...", "name": "ana", "team_id": "..."}],
    "ratings":   [{"employee_id": "...", "category": "CERTAINTY", "rating": 7, "rating_date": "2024-01-03T00:00:00Z"}]
  }

Example:
  go run ./cmd/camps seed --file testdata/seed.json`,
	RunE: runSeed,
}

var seedPath string

func init() {
	rootCmd.AddCommand(seedCmd)

	seedCmd.Flags().StringVar(&seedPath, "file", "", "적재할 JSON 파일")
	_ = seedCmd.MarkFlagRequired("file")
}

// seedData is the on-disk seed document
type seedData struct {
	Teams     []contracts.Team        `json:"teams"`
	Employees []contracts.Employee    `json:"employees"`
	Ratings   []contracts.RatingPoint `json:"ratings"`
}

// loadSeed decodes and validates a seed document
func loadSeed(r io.Reader) (*seedData, error) {
	var data seedData
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&data); err != nil {
		return nil, fmt.Errorf("decode seed: %w", err)
	}

	teams := make(map[uuid.UUID]bool, len(data.Teams))
	for _, t := range data.Teams {
		if t.ID == uuid.Nil || t.Name == "" {
			return nil, fmt.Errorf("team %q: id and name are required", t.Name)
		}
		teams[t.ID] = true
	}

	employees := make(map[uuid.UUID]bool, len(data.Employees))
	for _, e := range data.Employees {
		if e.ID == uuid.Nil || e.Name == "" {
			return nil, fmt.Errorf("employee %q: id and name are required", e.Name)
		}
		if e.TeamID != nil && !teams[*e.TeamID] {
			return nil, fmt.Errorf("employee %s: unknown team %s", e.ID, *e.TeamID)
		}
		if e.ManagerID != nil && !employees[*e.ManagerID] {
			return nil, fmt.Errorf("employee %s: manager %s must appear earlier", e.ID, *e.ManagerID)
		}
		employees[e.ID] = true
	}

	for i, p := range data.Ratings {
		if !employees[p.EmployeeID] {
			return nil, fmt.Errorf("rating %d: unknown employee %s", i, p.EmployeeID)
		}
		if !p.Category.Valid() {
			return nil, fmt.Errorf("rating %d: unknown category %q", i, p.Category)
		}
		if p.Rating < contracts.MinRating || p.Rating > contracts.MaxRating {
			return nil, fmt.Errorf("rating %d: %d is outside %d-%d", i, p.Rating, contracts.MinRating, contracts.MaxRating)
		}
		if p.RatingDate.IsZero() {
			return nil, fmt.Errorf("rating %d: rating_date is required", i)
		}
	}

	return &data, nil
}

func runSeed(cmd *cobra.Command, args []string) error {
	f, err := os.Open(seedPath)
	if err != nil {
		return fmt.Errorf("open seed file: %w", err)
	}
	defer f.Close()

	data, err := loadSeed(f)
	if err != nil {
		printError(err.Error())
		return err
	}

	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Minute)
	defer cancel()

	for i := range data.Teams {
		if err := a.ratings.SaveTeam(ctx, &data.Teams[i]); err != nil {
			return err
		}
	}
	for i := range data.Employees {
		if err := a.ratings.SaveEmployee(ctx, &data.Employees[i]); err != nil {
			return err
		}
	}
	if err := a.ratings.SaveRatings(ctx, data.Ratings); err != nil {
		return err
	}

	a.log.WithFields(map[string]interface{}{
		"file":      seedPath,
		"teams":     len(data.Teams),
		"employees": len(data.Employees),
		"ratings":   len(data.Ratings),
	}).Info("Seed loaded")

	printSuccess(fmt.Sprintf("Loaded %d teams, %d employees, %d ratings",
		len(data.Teams), len(data.Employees), len(data.Ratings)))
	return nil
}
