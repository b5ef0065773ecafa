package cmd

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/pixelfederation/spark-guide/calculator"
	"github.com/pixelfederation/spark-guide/exporter"
	"github.com/pixelfederation/spark-guide/pricing"
	"github.com/pixelfederation/spark-guide/server"
)

const shutdownTimeout = 30 * time.Second

func newServeCmd(o *options) *cobra.Command {
	var addr, metricsPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the calculator API and pricing metrics over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if addr != "" {
				o.cfg.Server.Address = addr
			}
			if metricsPath != "" {
				o.cfg.Server.MetricsPath = metricsPath
			}
			if err := o.cfg.Validate(); err != nil {
				return err
			}

			catalog, err := o.loadCatalog(cmd.Context())
			if err != nil {
				return err
			}
			return serve(o, catalog)
		},
	}

	cmd.Flags().StringVar(&addr, "listen-address", "", "The address to listen on for HTTP requests (defaults to config).")
	cmd.Flags().StringVar(&metricsPath, "metrics-path", "", "path to metrics endpoint (defaults to config)")

	return cmd
}

// newHTTPServer wires the catalog exporter, the calculator cache and the API
// routes into an http.Server configured from o.
func newHTTPServer(o *options, catalog *pricing.Catalog) *http.Server {
	cfg := o.cfg

	if !catalog.HasRegion(cfg.Catalog.DefaultRegion) {
		log.Warnf("Default region is not in the pricing catalog, requests must pass one [region=%s, available=%v]", cfg.Catalog.DefaultRegion, catalog.Regions())
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		exporter.NewExporter(catalog, cfg.Catalog.Currency),
	)

	srv := server.New(catalog, calculator.NewMemo(cfg.Cache.TTL, cfg.Cache.CleanupInterval), server.Options{
		DefaultRegion: cfg.Catalog.DefaultRegion,
		Currency:      cfg.Catalog.Currency,
		MetricsPath:   cfg.Server.MetricsPath,
		Registry:      reg,
	})

	return &http.Server{
		Addr:         cfg.Server.Address,
		Handler:      srv.Routes(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}
}

func serve(o *options, catalog *pricing.Catalog) error {
	srv := newHTTPServer(o, catalog)

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
		sig := <-sigCh
		log.Infof("Received %s, shutting down...", sig)
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		srv.Shutdown(ctx)
	}()

	log.Infof("Starting Spark Guide http endpoint [address=%s, metrics-path=%s, region=%s, currency=%s, cache-ttl=%s]",
		srv.Addr, o.cfg.Server.MetricsPath, o.cfg.Catalog.DefaultRegion, o.cfg.Catalog.Currency, o.cfg.Cache.TTL)
	if err := srv.ListenAndServe(); err != http.ErrServerClosed {
		return err
	}
	return nil
}
