package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"locationcore/internal/approval"
	"locationcore/internal/certificate"
	"locationcore/internal/events"
	"locationcore/internal/httpapi"
	"locationcore/internal/ledger"
	"locationcore/internal/location"
	"locationcore/internal/lock"
	"locationcore/internal/metrics"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx)
		},
	}
}

func serve(ctx context.Context) error {
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			a.logger.Error("close resources", "error", err)
		}
	}()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	logSink := events.NewLogSink(a.logger)
	fanout := events.Fanout{Publishers: []events.Publisher{logSink}, Sinks: []events.AuditSink{logSink}}
	if len(a.cfg.KafkaBrokers) > 0 {
		kafka, err := events.NewKafkaSink(ctx, events.KafkaConfig{
			Brokers:    a.cfg.KafkaBrokers,
			EventTopic: a.cfg.EventTopic,
			AuditTopic: a.cfg.AuditTopic,
		})
		if err != nil {
			return fmt.Errorf("connect kafka: %w", err)
		}
		a.onClose(func() error { kafka.Close(); return nil })
		fanout.Publishers = append(fanout.Publishers, kafka)
		fanout.Sinks = append(fanout.Sinks, kafka)
	}

	var locker lock.Locker = lock.NewLocal()
	if a.cfg.RedisURL != "" {
		redisLocker, client, err := lock.DialRedis(ctx, lock.RedisConfig{URL: a.cfg.RedisURL, TTL: a.cfg.LockTTL})
		if err != nil {
			return err
		}
		a.onClose(client.Close)
		locker = redisLocker
	}

	workflow := approval.New(a.store, a.registry, a.registry,
		approval.WithLogger(a.logger),
		approval.WithMetrics(m),
		approval.WithEvents(fanout),
		approval.WithAudit(fanout),
		approval.WithLocker(locker),
		approval.WithArchive(a.archive),
		approval.WithDeactivationPolicy(a.cfg.DeactivationPolicy),
	)
	locations := location.New(a.store, a.registry,
		location.WithLogger(a.logger),
		location.WithMetrics(m),
		location.WithEvents(fanout),
		location.WithAudit(fanout),
		location.WithDeactivationPolicy(a.cfg.DeactivationPolicy),
	)
	handler := httpapi.New(locations, workflow, certificate.NewService(a.store), ledger.NewService(a.store),
		httpapi.WithLogger(a.logger),
		httpapi.WithTimeout(a.cfg.RequestTimeout),
	)
	handler.Gatherer = reg

	srv := &http.Server{
		Addr:              a.cfg.Addr,
		Handler:           handler.Routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.logger.Info("starting locationcore",
			"addr", a.cfg.Addr,
			"storage", a.cfg.Storage.Driver,
			"blob", a.cfg.Blob.Driver,
			"prisons", len(a.registry.Prisons()),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.cfg.ShutdownTimeout)
		defer cancel()
		a.logger.Info("shutting down")
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
