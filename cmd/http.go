package cmd

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"ration-kiosk/common/constant"
	"ration-kiosk/common/otel"
	"ration-kiosk/dispense"
	inboundCron "ration-kiosk/inbound/cron"
	inboundHttp "ration-kiosk/inbound/http"
	"ration-kiosk/notify"
	serialOutbound "ration-kiosk/outbound/serial"
	"ration-kiosk/outbound/store"
	"runtime/pprof"
	"time"

	"github.com/go-playground/validator/v10"
)

func runHttpServerCmd(ctx context.Context) {
	cfg := newCfg("env")

	if cfg.GetString("env") == "dev" {
		cpu, err := os.Create("http-cpu.prof")
		if err != nil {
			log.Fatalf("could not create CPU profile: %v", err)
		}
		defer cpu.Close()

		err = pprof.StartCPUProfile(cpu)
		if err != nil {
			log.Fatalf("could not start CPU profile: %v", err)
		}
		defer pprof.StopCPUProfile()

		mem, err := os.Create("http-mem.prof")
		if err != nil {
			log.Fatalf("could not create memory profile: %v", err)
		}
		defer mem.Close()

		err = pprof.WriteHeapProfile(mem)
		if err != nil {
			log.Fatalf("could not write memory profile: %v", err)
		}
		defer mem.Close()
	}

	if cfg.GetBool("otel.enabled") {
		shutdown, err := otel.InitTracerProvider(ctx, cfg)
		if err != nil {
			log.Fatalln("unable to init tracer provider", err)
		}
		defer func() {
			if err := shutdown(context.Background()); err != nil {
				slog.Error("failed to shutdown tracer provider", slog.Any(constant.LogFieldErr, err))
			}
		}()
	}

	validate := validator.New()

	db := newDb(cfg)
	defer db.Close()

	cacheClient := newRedis(cfg)
	defer cacheClient.Close()

	natsConn := newNats(cfg)
	defer natsConn.Close()

	js := newJs(natsConn)
	createStreamWorkQueue(ctx, js)

	querier := store.New(db)
	broadcaster := notify.NewBroadcaster()

	link := newLink(cfg)
	if err := link.Open(); err != nil {
		slog.Warn("dispenser link unavailable at startup", slog.Any(constant.LogFieldErr, err))
	}
	defer link.Close()

	// Watchdog: reopen the link when it is closed. Requests arriving
	// while it is down are rejected, never silently retried.
	go func() {
		reopenTicker := time.NewTicker(cfg.GetDuration("serial.reopen_interval"))
		defer reopenTicker.Stop()

		for {
			select {
			case <-reopenTicker.C:
				if link.State() != serialOutbound.StateClosed {
					continue
				}
				if err := link.Open(); err != nil {
					slog.Warn("dispenser link reopen failed", slog.Any(constant.LogFieldErr, err))
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	ledger := &dispense.Ledger{Querier: querier, Cache: cacheClient}
	txLog := dispense.StoreTransactionLog{Querier: querier}
	coordinator := dispense.NewCoordinator(cfg, link, ledger, txLog, broadcaster, js)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		slog.DebugContext(r.Context(), "health check")
		w.WriteHeader(http.StatusOK)
	})

	timeoutMiddleware := inboundHttp.TimeoutMiddleware(20 * time.Second)

	inboundHttp.RegisterDispenseHttp(mux, coordinator, cacheClient, validate)
	inboundHttp.RegisterInventoryHttp(mux, querier, cacheClient, validate)
	inboundHttp.RegisterFamilyHttp(mux, querier)
	inboundHttp.RegisterTransactionHttp(mux, cfg, querier)

	// The SSE stream sits outside the timeout middleware: a timeout
	// writer cannot flush and would cut long-lived streams.
	root := http.NewServeMux()
	inboundHttp.RegisterEventsHttp(root, broadcaster)
	root.Handle("/", timeoutMiddleware(mux))

	inventoryCron := &inboundCron.InventoryCron{
		Cfg:     cfg,
		Cache:   cacheClient,
		Querier: querier,
	}

	err := inventoryCron.InitQuantityCache(ctx)
	if err != nil {
		log.Fatalln("unable to init inventory cache", err)
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.GetInt("server.port")),
		Handler:           inboundHttp.CorsMiddleware(root),
		ReadTimeout:       5 * time.Second,
		// WriteTimeout stays 0 for the SSE stream; API routes are
		// bounded by the timeout middleware instead.
		WriteTimeout:      0,
		IdleTimeout:       120 * time.Second,
		ReadHeaderTimeout: 2 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalln("unable to start server", err)
		}
	}()

	slog.Info("http server started")

	go func() {
		inventoryCron.Start(ctx)
	}()

	<-ctx.Done()

	ctxShutDown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctxShutDown); err != nil {
		log.Fatalln("unable to shutdown server", err)
	}

	slog.Info("http server stopped")
}
