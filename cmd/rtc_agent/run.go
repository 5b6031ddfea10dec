package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/arzzra/rtc_sdk/pkg/events"
	"github.com/arzzra/rtc_sdk/pkg/media"
	"github.com/arzzra/rtc_sdk/pkg/sdk"
)

var (
	autoAccept  bool
	screenShare bool
	metricsAddr string
)

// run: подключение и обработка событий до SIGINT/SIGTERM
func runCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Connect and serve sessions until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}
			if metricsAddr != "" {
				cfg.Metrics.Enabled = true
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			client, err := sdk.NewClient(*cfg, sdk.Options{
				Logger:     logger,
				Registerer: prometheus.DefaultRegisterer,
				Media: media.NewSyntheticProvider(media.SyntheticOptions{
					PacketInterval: 20 * time.Millisecond,
					Logger:         logger,
				}),
			})
			if err != nil {
				return err
			}

			var srv *http.Server
			if metricsAddr != "" {
				srv = serveMetrics(metricsAddr, logger)
			}

			ch, cancel := client.Subscribe()
			defer cancel()
			go logEvents(ctx, client, ch, logger)

			if err := client.Connect(ctx); err != nil {
				_ = client.Close(context.Background())
				return err
			}
			if screenShare {
				if err := client.StartScreenShare(ctx); err != nil {
					logger.Error("screen share failed", slog.String("error", err.Error()))
				}
			}

			<-ctx.Done()
			logger.Info("shutting down")

			shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancelShutdown()
			if srv != nil {
				_ = srv.Shutdown(shutdownCtx)
			}
			return client.Close(shutdownCtx)
		},
	}
	cmd.Flags().BoolVar(&autoAccept, "accept", false, "accept every pending session")
	cmd.Flags().BoolVar(&screenShare, "screen-share", false, "start screen share after connect (guest only)")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address (e.g. :9102)")
	return cmd
}

func serveMetrics(addr string, logger *slog.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", slog.String("error", err.Error()))
		}
	}()
	logger.Info("serving metrics", slog.String("addr", addr))
	return srv
}

func logEvents(ctx context.Context, client *sdk.Client, ch <-chan events.Event, logger *slog.Logger) {
	for ev := range ch {
		attrs := []any{
			slog.String("event", ev.Type()),
			slog.String("session_id", ev.SessionID),
		}
		if ev.ConversationID != "" {
			attrs = append(attrs, slog.String("conversation_id", ev.ConversationID))
		}
		if ev.Reason != "" {
			attrs = append(attrs, slog.String("reason", ev.Reason))
		}
		if ev.Err != nil {
			attrs = append(attrs, slog.String("error", ev.Err.Error()))
		}

		switch ev.EventType {
		case events.Error:
			logger.Warn("sdk event", attrs...)
		case events.Trace:
			logger.Debug("trace", slog.String("level", ev.Level), slog.String("message", ev.Message))
		default:
			logger.Info("sdk event", attrs...)
		}

		if autoAccept && needsAccept(ev) {
			if err := client.AcceptPendingSession(ctx, ev.SessionID); err != nil {
				logger.Error("accept failed", slog.String("session_id", ev.SessionID), slog.String("error", err.Error()))
			}
		}
	}
}

// needsAccept предложение без автоответа или сессия, ждущая подтверждения
// при выключенном автоподключении
func needsAccept(ev events.Event) bool {
	switch ev.EventType {
	case events.PendingSession:
		return !ev.AutoAnswer
	case events.SessionStarted:
		return ev.AwaitingAccept
	default:
		return false
	}
}
