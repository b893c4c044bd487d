package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/rangira/stacklens/pkg/config"
	"github.com/rangira/stacklens/pkg/httputil"
	mw "github.com/rangira/stacklens/pkg/httputil/middleware"
	"github.com/rangira/stacklens/pkg/metrics"
	"github.com/rangira/stacklens/pkg/pgdb"
	"github.com/rangira/stacklens/pkg/tabular"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the table API server",
	Long:  `Starts an HTTP server exposing the dataset's tables and reporting views as read endpoints`,
	Run:   runServe,
}

func init() {
	f := serveCmd.Flags()
	f.StringP("pg.connString", "c", "", "PostgreSQL connection string")
	f.StringP("server.listenAddr", "l", "", "server listen address")
	f.String("server.baseURL", "", "Base URL for API endpoints")
	f.Bool("metrics.enabled", false, "Expose Prometheus metrics")
	f.String("metrics.addr", "", "Metrics server listen address")

	viper.BindPFlags(f)
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) {
	if cfg == nil {
		log.Fatal("Configuration not loaded")
	}

	connString := cfg.PG.ConnString
	if connString == "" {
		connString = os.Getenv("STACKLENS_PG_CONN_STRING")
		if connString == "" {
			log.Fatal("PostgreSQL connection string required")
		}
	}

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := pgdb.Connect(ctx, connString)
	if err != nil {
		log.Fatalf("Failed to create connection pool: %v", err)
	}
	defer pool.Close()

	// flag overrides
	if listenAddr := viper.GetString("server.listenAddr"); listenAddr != "" {
		cfg.Server.ListenAddr = listenAddr
	}

	router := httputil.NewRouter()
	router.Use(
		mw.RequestID,
		mw.CORSWithOptions(nil),
	)
	if logLevel != "none" {
		router.Use(mw.LoggerWithOptions(&mw.LoggerOptions{Logger: logger}))
	}

	api := router
	if cfg.Server.BaseURL != "" {
		api = router.Group(cfg.Server.BaseURL)
	}
	api.Handle("GET /{$}", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		httputil.JSON(w, http.StatusOK, map[string]string{"service": "stacklens", "version": config.Version})
	}))

	newSource := func(table string) tabular.RowSource {
		return pgdb.NewSource(pool, table)
	}
	if err := tabular.Register(api, newSource, logger); err != nil {
		log.Fatalf("Failed to register entities: %v", err)
	}

	var wg sync.WaitGroup
	if cfg.Metrics.Enabled || viper.GetBool("metrics.enabled") {
		metrics.StartPrometheusServer(ctx, &wg, &metrics.PromServerOpts{Addr: cfg.Metrics.Addr})
	}

	// Handle graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	go func() {
		if err := router.ListenAndServe(cfg.Server.ListenAddr); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	<-stop
	log.Println("Shutting down server...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := router.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("Server shutdown error: %v", err)
	}
	wg.Wait()

	log.Println("Server gracefully stopped")
}
