// Package main provides the CLI entry point for csvreport.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/FulgerX2007/csv-scatter-reports/pkg/api"
	"github.com/FulgerX2007/csv-scatter-reports/pkg/config"
	"github.com/FulgerX2007/csv-scatter-reports/pkg/cron"
	"github.com/FulgerX2007/csv-scatter-reports/pkg/ingest"
	"github.com/FulgerX2007/csv-scatter-reports/pkg/mail"
	"github.com/FulgerX2007/csv-scatter-reports/pkg/model"
	"github.com/FulgerX2007/csv-scatter-reports/pkg/render"
	"github.com/FulgerX2007/csv-scatter-reports/pkg/report"
	"github.com/FulgerX2007/csv-scatter-reports/pkg/store"
	"github.com/spf13/cobra"
)

const shutdownTimeout = 15 * time.Second

var (
	configPath string

	xColumn     string
	yColumn     string
	colorColumn string
	outputPath  string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "csvreport",
		Short: "Explore CSV files as scatter plots and export PDF reports",
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config.yaml", "Path to the YAML config file")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the web application",
		Args:  cobra.NoArgs,
		RunE:  runServe,
	}

	reportCmd := &cobra.Command{
		Use:   "report [input.csv]",
		Short: "Build a PDF report from a file without starting the server",
		Args:  cobra.ExactArgs(1),
		RunE:  runReport,
	}
	reportCmd.Flags().StringVarP(&xColumn, "x", "x", "", "X axis column (default: first numeric column)")
	reportCmd.Flags().StringVarP(&yColumn, "y", "y", "", "Y axis column (default: second numeric column)")
	reportCmd.Flags().StringVar(&colorColumn, "color", model.NoColor, "Color column")
	reportCmd.Flags().StringVarP(&outputPath, "output", "o", "", "Output file path (default: report filename from config)")

	rootCmd.AddCommand(serveCmd, reportCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadOrDefault(configPath)
	if err != nil {
		return nil, err
	}
	cfg.ApplyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	st, err := store.NewStore(cfg.Store.DBPath)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer st.Close()

	renderer, err := render.NewBackend(cfg.Renderer)
	if err != nil {
		return err
	}
	defer renderer.Close()

	mailer := mail.NewMailer(cfg.SMTP)
	if !mailer.Enabled() {
		log.Printf("[MAIL] SMTP not configured, email delivery disabled")
	}

	handler, err := api.NewHandler(st, renderer, mailer, cfg)
	if err != nil {
		return err
	}

	janitor, err := cron.NewJanitor(st, cfg.Sessions.TTL, cfg.Sessions.SweepCron, cfg.Sessions.SweepTimezone, handler.EvictSession)
	if err != nil {
		return err
	}
	if err := janitor.Start(); err != nil {
		return err
	}
	defer janitor.Stop()

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           handler.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		log.Printf("[API] Listening on %s (renderer: %s, session ttl: %s)", cfg.Server.Addr, renderer.Name(), cfg.Sessions.TTL)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Printf("[API] Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down server: %w", err)
	}
	return nil
}

func runReport(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	inputPath := args[0]
	data, err := os.ReadFile(inputPath)
	if err != nil {
		return fmt.Errorf("failed to read input: %w", err)
	}

	ctx := cmd.Context()
	ds, err := ingest.Parse(ctx, inputPath, data)
	if err != nil {
		return fmt.Errorf("%s: %w", model.UserMessage(err), err)
	}

	sel, err := model.DefaultSelection(ds)
	if err != nil {
		return err
	}
	if xColumn != "" {
		sel.X = xColumn
	}
	if yColumn != "" {
		sel.Y = yColumn
	}
	sel.Color = colorColumn
	if err := model.ValidateSelection(ds, sel); err != nil {
		return err
	}

	renderer := render.NewNativeRenderer(cfg.Renderer)
	defer renderer.Close()

	res, err := report.NewAssembler(cfg.Report.Title).Build(ctx, report.Input{
		Dataset:    ds,
		Selection:  sel,
		Rasterizer: renderer,
	})
	if err != nil {
		return fmt.Errorf("failed to build report: %w", err)
	}
	if res.ChartFallback {
		log.Printf("[REPORT] WARNING: chart replaced by text: %s", res.ChartError)
	}

	if outputPath == "" {
		outputPath = cfg.Report.Filename
	}
	if err := os.WriteFile(outputPath, res.PDF, 0644); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}

	fmt.Printf("Wrote %s (%d pages, %d bytes, sha256 %s)\n", outputPath, res.Pages, len(res.PDF), res.Checksum)
	return nil
}
