package cli

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/ppiankov/codepatrol/internal/api"
	"github.com/ppiankov/codepatrol/internal/config"
	"github.com/ppiankov/codepatrol/internal/metrics"
	"github.com/ppiankov/codepatrol/internal/models"
	"github.com/ppiankov/codepatrol/internal/patrol"
)

var (
	serveAddr     string
	serveInterval time.Duration
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve stored reports and metrics over HTTP, optionally patrolling on a schedule",
	Long: `Serve exposes a read-only HTTP endpoint:

  GET /healthz                       liveness
  GET /metrics                       prometheus metrics
  GET /api/v1/runs/latest            latest report (secret snippets removed)
  GET /api/v1/runs/latest/findings   ?kind=secret|dependency|static&status=open|fixed
  GET /api/v1/trend                  ?last=N

With --interval the server also runs one patrol per interval. Runs never
overlap; a tick that finds the working tree locked is skipped. On shutdown
an in-flight patrol is allowed to finish so stashed work is restored.

Example:
  codepatrol serve
  codepatrol serve --addr :9420 --interval 24h`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "",
		"listen address (default from config serve.addr)")
	serveCmd.Flags().DurationVar(&serveInterval, "interval", 0,
		"run a patrol every interval (0 disables scheduling)")
}

func runServe(cmd *cobra.Command, args []string) error {
	addr := serveAddr
	if addr == "" {
		addr = cfg.Serve.Addr
	}
	if serveInterval < 0 {
		return &ValidationError{Message: "interval must not be negative"}
	}

	store, err := openStore()
	if err != nil {
		return err
	}

	m := metrics.Default()
	if latest, err := store.GetLatestRun(); err == nil {
		m.SetFindings("before", latest.BeforeFindings)
	}

	srv := api.NewServer(api.Options{
		Reports:     store,
		Registry:    m.Registry(),
		RateLimit:   cfg.Serve.RateLimit,
		DefaultLast: cfg.LastRuns,
		Version:     version,
	}, logger).NewHTTPServer(addr)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info().Str("addr", addr).Msg("serving")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	if serveInterval > 0 {
		g.Go(func() error {
			schedule(gctx, serveInterval, func(runCtx context.Context) {
				scheduledPatrol(runCtx, cfg, logger)
			})
			return nil
		})
	}

	return g.Wait()
}

// schedule calls fn once per interval until ctx is done. fn gets a context
// that is not cancelled by ctx, so a started patrol always completes.
func schedule(ctx context.Context, interval time.Duration, fn func(context.Context)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fn(context.WithoutCancel(ctx))
		}
	}
}

func scheduledPatrol(ctx context.Context, c *config.Config, log zerolog.Logger) *models.PatrolReport {
	report, err := patrolOnce(ctx, c, log)
	switch {
	case errors.Is(err, patrol.ErrRunInProgress):
		log.Info().Msg("skipping scheduled patrol: another run holds the working tree")
	case err != nil:
		log.Error().Err(err).Msg("scheduled patrol failed to start")
	default:
		log.Info().Str("run_id", report.RunID).Str("summary", report.Summary).Msg("scheduled patrol finished")
	}
	return report
}
