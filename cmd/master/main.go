// Command master runs the polling half of modbus-watch: it dials out
// to every configured Modbus-TCP connection, polls, decodes and
// persists values, builds aggregates, and serves the read-only HTTP
// API.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jordise2002/modbus-watch/internal/aggregator"
	"github.com/jordise2002/modbus-watch/internal/api"
	"github.com/jordise2002/modbus-watch/internal/config"
	"github.com/jordise2002/modbus-watch/internal/logger"
	"github.com/jordise2002/modbus-watch/internal/mbus"
	"github.com/jordise2002/modbus-watch/internal/metrics"
	"github.com/jordise2002/modbus-watch/internal/model"
	"github.com/jordise2002/modbus-watch/internal/planner"
	"github.com/jordise2002/modbus-watch/internal/poller"
	"github.com/jordise2002/modbus-watch/internal/store"
)

var (
	dbPath      string
	logLevel    string
	logFile     string
	apiPort     uint16
	metricsPort uint16
)

var rootCmd = &cobra.Command{
	Use:   "master config_file",
	Short: "Poll Modbus-TCP devices, persist samples and serve the read API",
	Args:  cobra.ExactArgs(1),
	RunE:  run,
}

func init() {
	rootCmd.Flags().StringVar(&dbPath, "db", "modbus-watch.db3", "path to the SQLite database file")
	rootCmd.Flags().StringVar(&logLevel, "log-level", "info", "log level: no, debug, info, warning, error")
	rootCmd.Flags().StringVar(&logFile, "log-file", "", "log file path (empty means stdout)")
	rootCmd.Flags().Uint16Var(&apiPort, "api-port", 8000, "port to serve the read-only HTTP API on")
	rootCmd.Flags().Uint16Var(&metricsPort, "metrics-port", 9100, "port to serve /metrics and /health on")
}

func main() {
	rootCmd.SilenceUsage = true
	rootCmd.SilenceErrors = true
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "master:", err)
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	if err := logger.Init(logger.Config{
		Level:      logLevel,
		LogFile:    logFile,
		MaxSizeMB:  50,
		MaxBackups: 5,
		MaxAgeDays: 7,
		Compress:   true,
	}); err != nil {
		return fmt.Errorf("master: failed to initialise logger: %w", err)
	}
	defer logger.Sync()
	log := logger.Get()

	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("master: failed to read config file %q: %w", args[0], err)
	}
	conns, err := config.LoadMasterConfig(data)
	if err != nil {
		return fmt.Errorf("master: invalid configuration: %w", err)
	}

	db, err := store.Open(dbPath)
	if err != nil {
		return fmt.Errorf("master: failed to open database: %w", err)
	}
	defer db.Close()

	allValues := flattenValues(conns)
	if err := db.SyncDescriptors(buildDescriptors(conns)); err != nil {
		return fmt.Errorf("master: failed to sync value descriptors: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sampleCh := make(chan model.Sample, 1024)
	go db.RunWriter(ctx, sampleCh)
	go metrics.WatchChannelDepth(ctx, sampleCh, time.Second)

	var masterConns []*mbus.MasterConn
	for _, conn := range conns {
		mc, err := mbus.Dial(conn)
		if err != nil {
			return fmt.Errorf("master: failed to dial %s:%d: %w", conn.IP, conn.Port, err)
		}
		masterConns = append(masterConns, mc)

		label := fmt.Sprintf("%s:%d", conn.IP, conn.Port)
		plan := planner.Build(conn)
		p := poller.New(label, mc, plan, sampleCh)
		go func() {
			if err := p.Run(ctx); err != nil && ctx.Err() == nil {
				log.Error("poller: exited unexpectedly", zap.String("connection", label), zap.Error(err))
			}
		}()
	}
	defer func() {
		for _, mc := range masterConns {
			mc.Close()
		}
	}()

	agg := aggregator.New(db, allValues)
	go func() {
		if err := agg.Run(ctx); err != nil && ctx.Err() == nil {
			log.Error("aggregator: exited unexpectedly", zap.Error(err))
		}
	}()

	app := fiber.New(fiber.Config{AppName: "modbus-watch master", DisableStartupMessage: true})
	app.Use(recover.New())
	app.Use(fiberlogger.New())
	api.NewMasterHandler(db, conns).SetupRoutes(app)

	go func() {
		addr := fmt.Sprintf(":%d", apiPort)
		log.Info("master: serving read API", zap.String("addr", addr))
		if err := app.Listen(addr); err != nil {
			log.Error("master: HTTP API server stopped", zap.Error(err))
		}
	}()

	metricsSrv := metrics.NewServer(metricsPort)
	go func() {
		log.Info("master: serving metrics", zap.Uint16("port", metricsPort))
		if err := metricsSrv.Start(); err != nil {
			log.Error("master: metrics server stopped", zap.Error(err))
		}
	}()

	<-ctx.Done()
	log.Info("master: shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	app.ShutdownWithContext(shutdownCtx)
	metricsSrv.Stop(shutdownCtx)

	return nil
}

func flattenValues(conns []config.PolledConnection) []config.PolledValue {
	var values []config.PolledValue
	for _, conn := range conns {
		for _, slave := range conn.Slaves {
			values = append(values, slave.Values...)
		}
	}
	return values
}

func buildDescriptors(conns []config.PolledConnection) []store.ValueDescriptor {
	var descs []store.ValueDescriptor
	for _, conn := range conns {
		for _, slave := range conn.Slaves {
			for _, v := range slave.Values {
				blob, err := json.Marshal(v)
				if err != nil {
					continue
				}
				descs = append(descs, store.ValueDescriptor{
					Name:       v.ID,
					Address:    v.StartingAddress,
					Table:      v.Table,
					SlaveID:    slave.ID,
					ConfigJSON: string(blob),
				})
			}
		}
	}
	return descs
}
