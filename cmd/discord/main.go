// cmd/discord/main.go
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/keshon/jukebox/internal/command/music"
	"github.com/keshon/jukebox/internal/config"
	"github.com/keshon/jukebox/internal/discord"
	"github.com/keshon/jukebox/internal/health"
	"github.com/keshon/jukebox/internal/logging"
	"github.com/keshon/jukebox/internal/middleware"
	"github.com/keshon/jukebox/internal/music/playback"
	"github.com/keshon/jukebox/internal/music/session"
	"github.com/keshon/jukebox/internal/music/sources/youtube"
	"github.com/keshon/jukebox/internal/music/stream"
	"github.com/keshon/jukebox/pkg/cmd"
	"github.com/keshon/jukebox/pkg/jobmgr"
)

const appName = "jukebox"

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "[ERR]", err)
		os.Exit(1)
	}
}

func run() error {
	envFound, err := config.Load()
	if err != nil {
		return err
	}
	cfg, err := config.New()
	if err != nil {
		return err
	}

	root, logCloser, err := logging.New(logging.Options{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
		File:   cfg.LogFile,
	})
	if err != nil {
		return err
	}
	defer logCloser.Close()

	log := logging.Component(root, "main")
	log.Info().Msgf("starting %s bot", appName)
	if !envFound {
		log.Debug().Msg("no .env file found, using process environment")
	}

	httpClient, err := youtube.NewHTTPClient(cfg.YouTubeProxy)
	if err != nil {
		return err
	}
	source := youtube.New(youtube.Options{
		HTTPClient: httpClient,
		SearchRate: cfg.SearchRate,
		Logger:     logging.Component(root, "resolver"),
	})
	transport := stream.NewTransport(source, cfg.FFmpegPath, logging.Component(root, "transport"))

	bot, err := discord.New(cfg, cmd.DefaultRegistry, logging.Component(root, "discord"))
	if err != nil {
		return err
	}

	registry := session.NewRegistry()
	sessionLog := logging.Component(root, "session")
	factory := func(ctx context.Context, key session.ChannelKey) (*session.Session, error) {
		return session.Open(ctx, key, session.Options{
			Connector:      bot.Voice(),
			Transport:      transport,
			ConnectTimeout: cfg.ConnectTimeout,
			Logger:         sessionLog,
		})
	}

	jobs := jobmgr.NewManager(logging.Component(root, "jobs"))
	idle := playback.NewIdleMonitor(registry, bot.Guilds(), jobs, cfg.IdleGrace, logging.Component(root, "idle"))
	bot.OnVoiceActivity(idle.Observe)

	controller := playback.NewController(playback.Options{
		Registry:    registry,
		Resolver:    source,
		Permissions: bot.Guilds(),
		Factory:     factory,
		Joined:      idle.Observe,
		Logger:      logging.Component(root, "controller"),
	})

	cmdLog := logging.Component(root, "command")
	music.Register(cmd.DefaultRegistry, controller, bot.Guilds(),
		middleware.WithGuildOnly(),
		middleware.WithRecover(cmdLog),
		middleware.WithCommandLogger(cmdLog),
	)

	liveness := health.NewServer(cfg.HealthPort, registry, jobs, logging.Component(root, "health"))
	if err := jobs.StartAsync("health", liveness.Run); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		errCh <- bot.Run(ctx)
		close(errCh)
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)

	var runErr error
	select {
	case s := <-sig:
		log.Info().Stringer("signal", s).Msg("shutting down")
		// Leave voice channels while the gateway is still open.
		controller.Shutdown()
		cancel()
		runErr = <-errCh
	case runErr = <-errCh:
		cancel()
		controller.Shutdown()
	}

	shutdownCtx, stop := context.WithTimeout(context.Background(), 10*time.Second)
	defer stop()
	if err := jobs.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("background jobs did not stop in time")
	}

	if runErr != nil {
		return fmt.Errorf("discord bot: %w", runErr)
	}
	log.Info().Msg("discord bot exited cleanly")
	return nil
}
