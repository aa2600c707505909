// Command slave emulates the configured Modbus-TCP register tables:
// it serves them to real Modbus masters and exposes a GET/PUT HTTP
// API for tests and fixtures to drive them.
package main

import (
	"context"
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

	"github.com/jordise2002/modbus-watch/internal/api"
	"github.com/jordise2002/modbus-watch/internal/config"
	"github.com/jordise2002/modbus-watch/internal/grid"
	"github.com/jordise2002/modbus-watch/internal/logger"
	"github.com/jordise2002/modbus-watch/internal/mbus"
	"github.com/jordise2002/modbus-watch/internal/metrics"
)

// apiPort is fixed rather than a flag: the slave CLI has no
// --api-port flag, unlike the master.
const apiPort = 8001

var (
	logLevel    string
	logFile     string
	metricsPort uint16
)

var rootCmd = &cobra.Command{
	Use:   "slave config_file",
	Short: "Emulate Modbus-TCP register tables and serve the GET/PUT value API",
	Args:  cobra.ExactArgs(1),
	RunE:  run,
}

func init() {
	rootCmd.Flags().StringVar(&logLevel, "log-level", "info", "log level: no, debug, info, warning, error")
	rootCmd.Flags().StringVar(&logFile, "log-file", "", "log file path (empty means stdout)")
	rootCmd.Flags().Uint16Var(&metricsPort, "metrics-port", 9101, "port to serve /metrics and /health on")
}

func main() {
	rootCmd.SilenceUsage = true
	rootCmd.SilenceErrors = true
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "slave:", err)
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
		return fmt.Errorf("slave: failed to initialise logger: %w", err)
	}
	defer logger.Sync()
	log := logger.Get()

	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("slave: failed to read config file %q: %w", args[0], err)
	}
	conns, err := config.LoadSlaveConfig(data)
	if err != nil {
		return fmt.Errorf("slave: invalid configuration: %w", err)
	}

	g, err := grid.New(conns)
	if err != nil {
		return fmt.Errorf("slave: failed to build register grid: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var servers []*mbus.Server
	for _, conn := range conns {
		srv, err := mbus.NewServer(conn, g)
		if err != nil {
			return fmt.Errorf("slave: failed to create server on port %d: %w", conn.Port, err)
		}
		servers = append(servers, srv)

		port := conn.Port
		go func() {
			log.Info("slave: serving Modbus-TCP", zap.Uint16("port", port))
			if err := srv.Start(); err != nil {
				log.Error("slave: Modbus-TCP server stopped", zap.Uint16("port", port), zap.Error(err))
			}
		}()
	}
	defer func() {
		for _, srv := range servers {
			srv.Stop()
		}
	}()

	app := fiber.New(fiber.Config{AppName: "modbus-watch slave", DisableStartupMessage: true})
	app.Use(recover.New())
	app.Use(fiberlogger.New())
	api.NewSlaveHandler(g, flattenIDs(conns)).SetupRoutes(app)

	go func() {
		addr := fmt.Sprintf(":%d", apiPort)
		log.Info("slave: serving value API", zap.String("addr", addr))
		if err := app.Listen(addr); err != nil {
			log.Error("slave: HTTP API server stopped", zap.Error(err))
		}
	}()

	metricsSrv := metrics.NewServer(metricsPort)
	go func() {
		log.Info("slave: serving metrics", zap.Uint16("port", metricsPort))
		if err := metricsSrv.Start(); err != nil {
			log.Error("slave: metrics server stopped", zap.Error(err))
		}
	}()

	<-ctx.Done()
	log.Info("slave: shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	app.ShutdownWithContext(shutdownCtx)
	metricsSrv.Stop(shutdownCtx)

	return nil
}

func flattenIDs(conns []config.ServedConnection) []string {
	var ids []string
	for _, conn := range conns {
		for _, slave := range conn.Slaves {
			for _, v := range slave.Values {
				ids = append(ids, v.ID)
			}
		}
	}
	return ids
}
