package txl

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"
	"github.com/zefrenchwan/txl.git/config"
	"github.com/zefrenchwan/txl.git/continuous"
	"github.com/zefrenchwan/txl.git/geometry"
	"github.com/zefrenchwan/txl.git/metrics"
	"github.com/zefrenchwan/txl.git/pattern"
	"github.com/zefrenchwan/txl.git/serving"
	"github.com/zefrenchwan/txl.git/storage"
	"github.com/zefrenchwan/txl.git/store"
	"golang.org/x/sync/errgroup"
)

// SHUTDOWN_DELAY is the time given to running requests once the server stops
const SHUTDOWN_DELAY = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Load the last revision and serve the http api",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().StringP("port", "p", config.DEFAULT_HTTP_PORT, "Listening port, as :number")
	settings.BindPFlag(config.HTTP_PORT_KEY, serveCmd.Flags().Lookup("port"))
}

func runServe(cmd *cobra.Command, args []string) error {
	current, logger, errSettings := loadSettings()
	if errSettings != nil {
		return errSettings
	}

	defer logger.Sync()
	sugar := logger.Sugar()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dao, errDao := storage.NewDao(ctx, current.DatabaseURL)
	if errDao != nil {
		return errDao
	}

	defer dao.Close()
	if err := dao.Ping(ctx); err != nil {
		return errors.Wrap(err, "database unreachable")
	}

	content, errLoad := dao.LoadHead(ctx)
	if errLoad != nil {
		return errors.Wrap(errLoad, "cannot load last revision")
	}

	metricsStore := metrics.NewMetricsStore()
	manager := store.NewManager(store.Options{
		MaxRetries: current.MaxRetries,
		QueueSize:  current.QueueSize,
		Logger:     sugar.Named("store"),
		Metrics:    metricsStore,
		Persister:  &dao,
		Dictionary: content.Dictionary,
		Timeline:   content.Timeline,
		SavedTerms: content.SavedTerms,
	})

	defer manager.Close()
	sugar.Infow("store loaded", "revision", manager.Head().ID(), "count", manager.Dictionary().Len())

	evaluator := pattern.NewEvaluator(manager, sugar.Named("pattern"), metricsStore)
	engine := continuous.NewEngine(continuous.Options{
		Manager:   manager,
		Evaluator: evaluator,
		Logger:    sugar.Named("continuous"),
		Metrics:   metricsStore,
		History:   current.History,
	})

	defer engine.Close()
	mux := serving.InitService(serving.ServiceParameters{
		Users:      &dao,
		Manager:    manager,
		Evaluator:  evaluator,
		Continuous: engine,
		Coverer:    geometry.NewCoverer(current.Coverer),
		Metrics:    metricsStore,
		Ctx:        ctx,
		Logger:     sugar.Named("serving"),
	})

	server := &http.Server{
		Addr:              current.Port,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		sugar.Infow("serving", "operation", "listen", "port", current.Port)
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}

		return nil
	})

	group.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), SHUTDOWN_DELAY)
		defer cancel()
		sugar.Infow("stopping", "operation", "shutdown")
		return server.Shutdown(shutdownCtx)
	})

	return group.Wait()
}
