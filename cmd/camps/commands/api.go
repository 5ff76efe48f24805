package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/wonny/camps/internal/api"
	"github.com/wonny/camps/internal/api/handlers"
	"github.com/wonny/camps/internal/scheduler"
	"github.com/wonny/camps/pkg/logger"
	"github.com/wonny/camps/pkg/redis"
)

// apiCmd represents the api command
var apiCmd = &cobra.Command{
	Use:   "api",
	Short: "API 서버 시작",
	Long: `REST API 서버를 시작합니다.

이 명령어는:
- HTTP API 서버 시작
- 트렌드 재계산 트리거 제공 (관리자)
- 실행 이력 / 스케줄러 상태 조회
- (옵션) 시작 시 지난 주 트렌드 확인
- (옵션) 같은 프로세스에서 스케줄러 실행

Endpoints:
  GET  /health                          - Health check
  POST /api/admin/trends/recalculate    - 트렌드 재계산
  GET  /api/admin/trends/runs           - 실행 이력
  GET  /api/admin/trends/latest         - 최근 완료 실행
  GET  /api/admin/trends/granularity    - 기간별 집계 단위
  GET  /api/admin/jobs                  - 작업 통계 (--with-scheduler)
  POST /api/admin/jobs/{name}/run       - 작업 즉시 실행 (--with-scheduler)

Example:
  go run ./cmd/camps api
  go run ./cmd/camps api --port 8080 --startup-check --with-scheduler`,
	RunE: runAPIServer,
}

var (
	apiPort          string
	apiStartupCheck  bool
	apiWithScheduler bool
)

func init() {
	rootCmd.AddCommand(apiCmd)

	// Flags
	apiCmd.Flags().StringVar(&apiPort, "port", "", "API 서버 포트 (기본값: PORT)")
	apiCmd.Flags().BoolVar(&apiStartupCheck, "startup-check", false, "시작 시 지난 주 트렌드 확인")
	apiCmd.Flags().BoolVar(&apiWithScheduler, "with-scheduler", false, "스케줄러를 같은 프로세스에서 실행")
}

func runAPIServer(cmd *cobra.Command, args []string) error {
	fmt.Println("=== CAMPS API Server ===")

	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	// Override port if flag is set
	if apiPort != "" {
		a.cfg.Port = apiPort
	}

	log := a.log
	log.WithFields(map[string]interface{}{
		"port": a.cfg.Port,
		"env":  a.cfg.Env,
	}).Info("Initializing API server")

	// Async recalculations live until shutdown
	baseCtx, cancelRuns := context.WithCancel(context.Background())
	defer cancelRuns()

	eng := a.newEngine(a.dbStores())

	// Optional in-process scheduler
	var sched *scheduler.Scheduler
	if apiWithScheduler {
		sched, err = a.newScheduler(eng)
		if err != nil {
			return fmt.Errorf("init scheduler: %w", err)
		}
	}

	// Handlers
	trendHandler := handlers.NewTrendHandler(
		baseCtx,
		eng,
		redis.NewRateLimiter(a.redis, keyPrefix),
		redis.TriggerRateLimit(a.cfg.Admin.TriggerLimitPerMinute),
		redis.NewCache(a.redis, keyPrefix),
		log,
	)
	h := api.Handlers{
		Health: handlers.NewHealthHandler(map[string]handlers.Pinger{
			"postgres": a.db,
			"redis":    a.redis,
		}),
		Trends: trendHandler,
	}
	if sched != nil {
		h.Jobs = handlers.NewJobHandler(sched, log)
	}

	server := api.New(a.cfg, log, api.NewRouter(h, a.metrics, log))

	go func() {
		if err := server.Start(); err != nil {
			log.WithError(err).Fatal("Failed to start server")
		}
	}()

	var metricsServer *api.Server
	if a.metrics != nil {
		metricsServer = api.NewMetrics(a.cfg, log, a.metrics.Handler())
		go func() {
			if err := metricsServer.Start(); err != nil {
				log.WithError(err).Error("Metrics server stopped")
			}
		}()
	}

	if sched != nil {
		sched.Start()
	}

	var startup sync.WaitGroup
	if apiStartupCheck {
		startup.Add(1)
		go func() {
			defer startup.Done()
			a.startupCheck(baseCtx, eng)
		}()
	}

	log.Info("API server started successfully")
	fmt.Printf("\n✅ Server running on http://localhost:%s\n", a.cfg.Port)
	if metricsServer != nil {
		fmt.Printf("📈 Metrics on http://localhost:%s/metrics\n", a.cfg.MetricsPort)
	}
	fmt.Println("\nPress Ctrl+C to stop")

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server...")

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	servers := []shutdowner{server}
	if metricsServer != nil {
		servers = append(servers, metricsServer)
	}
	stopSched := func() {}
	if sched != nil {
		stopSched = sched.Stop
	}

	// In-flight recalculations and the startup run write their terminal log
	// rows before the deferred a.Close() releases the pool
	shutdownErr := drainServices(ctx, log, servers, stopSched, cancelRuns, trendHandler.Wait, startup.Wait)

	log.Info("Server stopped")
	return shutdownErr
}

type shutdowner interface {
	Shutdown(ctx context.Context) error
}

// drainServices stops the servers, then the scheduler, then cancels and joins
// background runs. A server error is logged and returned after every step ran.
func drainServices(ctx context.Context, log *logger.Logger, servers []shutdowner, stopSched, cancelRuns func(), waits ...func()) error {
	var firstErr error
	for i, srv := range servers {
		if err := srv.Shutdown(ctx); err != nil {
			log.WithError(err).WithField("server", i).Error("Server shutdown failed")
			if firstErr == nil {
				firstErr = fmt.Errorf("server shutdown failed: %w", err)
			}
		}
	}

	stopSched()
	cancelRuns()
	for _, wait := range waits {
		wait()
	}
	return firstErr
}
