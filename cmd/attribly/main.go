// main.go - attribution dashboard API server
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"attribly/internal"
	"attribly/internal/config"
)

const (
	defaultShutdownTimeout = 30 * time.Second
)

func main() {
	// A missing .env is fine; production sets the environment directly
	_ = godotenv.Load()

	app, err := internal.NewApp()
	if err != nil {
		log.Fatalf("Failed to create app: %v", err)
	}

	// Postgres tables belong to the tracker and the CMS; only a local
	// sqlite database is created here
	if app.Config.DatabaseType == config.SQLiteDatabase && !app.Config.IsProduction() {
		log.Println("Running database migrations...")
		if err := app.DBManager.MigrateDatabase(); err != nil {
			log.Fatalf("Failed to run migrations: %v", err)
		}
		log.Println("Migrations completed")
	}

	log.Println("Starting application...")
	errCh := app.StartAsync()

	waitForShutdownSignal(app, errCh)
}

// waitForShutdownSignal blocks until a termination signal or a listen error,
// then shuts the application down gracefully.
func waitForShutdownSignal(app *internal.Application, errCh <-chan error) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	exitCode := 0
	select {
	case sig := <-sigChan:
		log.Printf("Received signal: %v", sig)
	case err := <-errCh:
		log.Printf("Server stopped: %v", err)
		exitCode = 1
	}

	ctx, cancel := context.WithTimeout(context.Background(), defaultShutdownTimeout)
	defer cancel()

	log.Println("Initiating graceful shutdown...")
	if err := app.Shutdown(ctx); err != nil {
		log.Printf("Error during shutdown: %v", err)
		os.Exit(1)
	}
	log.Println("Server shutdown complete")
	os.Exit(exitCode)
}
