package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	router "github.com/dkeye/confclient/internal/adapters/http"
	"github.com/dkeye/confclient/internal/adapters/rtc"
	"github.com/dkeye/confclient/internal/adapters/signalws"
	"github.com/dkeye/confclient/internal/app/orch"
	"github.com/dkeye/confclient/internal/config"
	"github.com/dkeye/confclient/internal/core"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Initialize zerolog global logger early so config.Load can use it.
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	// Human-friendly output for terminal; in production you may want JSON only.
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	sig, err := signalws.Dial(cfg.ServerURL, cfg.PingPeriod)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect signaling")
	}
	defer sig.Close()

	dev := rtc.NewDevice(cfg.ICEServers)
	sess := orch.NewSession(cfg, sig, dev)

	events, unsubscribe := sess.Events()
	defer unsubscribe()
	go logEvents(events)

	joinCtx, joinCancel := context.WithTimeout(ctx, cfg.CallTimeout)
	err = sess.Join(joinCtx)
	joinCancel()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to join conference")
	}

	r := router.SetupRouter(cfg, sess)
	addr := fmt.Sprintf(":%d", cfg.StatusPort)

	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	go func() {
		log.Info().Str("addr", addr).Msg("status API started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("status server error")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down")

	leaveCtx, leaveCancel := context.WithTimeout(context.Background(), cfg.CallTimeout)
	if err := sess.Leave(leaveCtx); err != nil {
		log.Error().Err(err).Msg("leave failed")
	}
	leaveCancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	log.Info().Msg("Client exited gracefully")
}

func logEvents(events <-chan core.Event) {
	for ev := range events {
		switch e := ev.(type) {
		case core.Joined:
			log.Info().Str("conference", string(e.ConferenceID)).Str("self", string(e.ParticipantID)).Msg("event: joined")
		case core.Left:
			log.Info().Msg("event: left")
		case core.Error:
			log.Warn().Str("message", e.Message).Msg("event: error")
		case core.ParticipantJoined:
			log.Info().Str("participant", string(e.ParticipantID)).Str("name", e.ParticipantName).Msg("event: participant joined")
		case core.ParticipantLeft:
			log.Info().Str("participant", string(e.ParticipantID)).Msg("event: participant left")
		case core.RemoteStreamAdded:
			log.Info().Str("participant", string(e.ParticipantID)).Str("source", string(e.SourceID)).Str("kind", string(e.Kind)).Msg("event: remote stream added")
		case core.RemoteStreamRemoved:
			log.Info().Str("participant", string(e.ParticipantID)).Str("source", string(e.SourceID)).Msg("event: remote stream removed")
		case core.LocalStreamReady:
			log.Info().Str("role", string(e.Role)).Int("tracks", len(e.Tracks)).Msg("event: local stream ready")
		case core.LocalStreamRemoved:
			log.Info().Str("source", string(e.SourceID)).Msg("event: local stream removed")
		case core.LocalAudioToggled:
			log.Info().Bool("enabled", e.Enabled).Msg("event: audio toggled")
		case core.LocalVideoToggled:
			log.Info().Bool("enabled", e.Enabled).Msg("event: video toggled")
		case core.RemoteAudioToggled:
			log.Info().Str("participant", string(e.ParticipantID)).Bool("enabled", e.Enabled).Msg("event: remote audio toggled")
		case core.RemoteVideoToggled:
			log.Info().Str("participant", string(e.ParticipantID)).Bool("enabled", e.Enabled).Msg("event: remote video toggled")
		}
	}
}
