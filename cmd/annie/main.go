package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"annie/internal/config"
	"annie/internal/index"
	"annie/internal/server"
	"annie/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
)

var (
	configPath string
	addr       string
	dataDir    string
)

var rootCmd = &cobra.Command{
	Use:          "annie",
	Short:        "In-memory vector similarity search server",
	SilenceUsage: true,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		conf := config.Default()
		if configPath != "" {
			var err error
			if conf, err = config.FromFile(configPath); err != nil {
				return err
			}
		}
		if addr != "" {
			conf.Server.Addr = addr
		}
		if dataDir != "" {
			conf.Dir = dataDir
		}
		if err := conf.Validate(); err != nil {
			return err
		}
		if err := logger.Init(conf.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}
		defer func() { _ = logger.Sync() }()

		if !strings.EqualFold(conf.Log.Level, logger.DebugLevel) {
			gin.SetMode(gin.ReleaseMode)
		}

		manager, err := index.NewIndexManager(conf)
		if err != nil {
			return fmt.Errorf("failed to open indexes: %w", err)
		}
		defer func() {
			if err := manager.Close(); err != nil {
				logger.Error("Failed to close index manager", "error", err)
			}
		}()

		srv := server.New(manager, conf.Server)
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		errCh := make(chan error, 1)
		go func() { errCh <- srv.Run() }()

		select {
		case err := <-errCh:
			return err
		case <-ctx.Done():
		}
		logger.Info("Shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	},
}

var inspectCmd = &cobra.Command{
	Use:   "inspect <path>",
	Short: "Print the configuration and size of a flat index snapshot",
	Long:  "Restores <path>" + index.SnapshotSuffix + " and prints its metric, dimension and entry count as JSON.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := strings.TrimSuffix(args[0], index.SnapshotSuffix)
		idx, err := index.LoadFlatIndex(path)
		if err != nil {
			return err
		}
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(idx.Info())
	},
}

func init() {
	serveCmd.Flags().StringVarP(&configPath, "config", "c", "", "path to a yaml config file")
	serveCmd.Flags().StringVar(&addr, "addr", "", "listen address, overrides the config file")
	serveCmd.Flags().StringVar(&dataDir, "dir", "", "data directory, overrides the config file")
	rootCmd.AddCommand(serveCmd, inspectCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
