package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/neo/arbiter_backend/internal/catalog"
	"github.com/neo/arbiter_backend/internal/database"
	"github.com/neo/arbiter_backend/internal/engine"
	"github.com/neo/arbiter_backend/internal/events"
	"github.com/neo/arbiter_backend/internal/llm"
	"github.com/neo/arbiter_backend/internal/logging"
	"github.com/neo/arbiter_backend/internal/server"
	"github.com/neo/arbiter_backend/internal/store"
)

var (
	port      int
	dataDir   string
	noArchive bool
	logLevel  string
	logFile   string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the debate server",
	Long: `Start the Arbiter server with the specified configuration.
This will initialize the debate engine, the provider gateway, and begin
accepting HTTP and WebSocket connections.`,
	PreRun: func(cmd *cobra.Command, args []string) {
		if _, err := os.Stat(".env"); os.IsNotExist(err) {
			fmt.Println("Warning: .env file not found. Provider API keys must come from the environment")
		}
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := godotenv.Load(); err != nil {
			logging.Warn("No .env file loaded", map[string]interface{}{"error": err.Error()})
		}

		if err := logging.InitDefaultLogger(logging.Config{
			Level:       logging.ParseLogLevel(logLevel),
			Prefix:      "Arbiter",
			Colored:     true,
			LogToFile:   logFile != "",
			LogFilePath: logFile,
		}); err != nil {
			return fmt.Errorf("failed to initialize logging: %v", err)
		}

		var archive engine.Archiver
		if !noArchive {
			db, err := database.NewArchive(dataDir)
			if err != nil {
				return fmt.Errorf("failed to open archive: %v", err)
			}
			defer db.Close()
			archive = db
		}

		broadcaster := events.NewBroadcaster()
		manager := engine.NewDebateManager(
			store.NewMemoryStore(),
			llm.NewChainGateway(),
			broadcaster,
			archive,
			catalog.IsKnownProvider,
		)

		srv := server.NewServer(manager, broadcaster)

		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

		errChan := make(chan error, 1)
		go func() {
			addr := fmt.Sprintf(":%d", port)
			if err := srv.Run(addr); err != nil {
				errChan <- fmt.Errorf("server error: %v", err)
			}
		}()

		select {
		case err := <-errChan:
			return err
		case sig := <-sigChan:
			logging.Info("Shutting down", map[string]interface{}{"signal": sig.String()})

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				return fmt.Errorf("shutdown error: %v", err)
			}
			return nil
		}
	},
}

func init() {
	serveCmd.Flags().IntVarP(&port, "port", "p", 8080, "port to listen on")
	serveCmd.Flags().StringVar(&dataDir, "data-dir", "data", "directory for the debate archive")
	serveCmd.Flags().BoolVar(&noArchive, "no-archive", false, "disable the SQLite debate archive")
	serveCmd.Flags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	serveCmd.Flags().StringVar(&logFile, "log-file", "", "optional log file path")
	rootCmd.AddCommand(serveCmd)
}
