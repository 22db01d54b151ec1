package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/fadilmartias/climate-tracker/internal/client"
)

var rootCmd = &cobra.Command{
	Use:           "climatectl",
	Short:         "Submit climate assessment PDFs, follow extraction jobs and import results",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().String("server", envOr("CLIMATE_API_URL", "http://localhost:8080"), "API base URL")
	rootCmd.PersistentFlags().String("token", os.Getenv("CLIMATE_API_TOKEN"), "bearer token")

	rootCmd.AddCommand(submitCmd, statusCmd, listCmd, importCmd, extractCmd)
}

func main() {
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newAPIClient(cmd *cobra.Command, opts ...client.Option) (*client.Client, error) {
	server, _ := cmd.Flags().GetString("server")
	token, _ := cmd.Flags().GetString("token")
	if token == "" {
		return nil, fmt.Errorf("a bearer token is required (--token or CLIMATE_API_TOKEN)")
	}
	return client.New(server, token, opts...), nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
