// cli resolves queries and media links the way the bot does, without
// connecting to Discord.
//
//	go run ./cmd/cli resolve never gonna give you up
//	go run ./cmd/cli stream-url https://youtu.be/dQw4w9WgXcQ
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/keshon/jukebox/internal/music/sources/youtube"
	"github.com/keshon/jukebox/pkg/cmd"
)

type cliConfig struct {
	YouTubeProxy string  `env:"YOUTUBE_PROXY"`
	SearchRate   float64 `env:"SEARCH_RPS" envDefault:"2"`
	Debug        bool    `env:"DEBUG"`
}

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	_ = godotenv.Load()
	cfg, err := env.ParseAs[cliConfig]()
	if err != nil {
		return err
	}

	level := zerolog.WarnLevel
	if cfg.Debug {
		level = zerolog.DebugLevel
	}
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).Level(level).With().Timestamp().Logger()

	client, err := youtube.NewHTTPClient(cfg.YouTubeProxy)
	if err != nil {
		return err
	}
	src := youtube.New(youtube.Options{HTTPClient: client, SearchRate: cfg.SearchRate, Logger: log})

	reg := cmd.NewRegistry()
	reg.Register(&resolveCommand{src: src})
	reg.Register(&streamURLCommand{src: src})

	if len(args) == 0 {
		usage(reg)
		return errors.New("missing command")
	}
	c := reg.Get(args[0])
	if c == nil {
		usage(reg)
		return fmt.Errorf("unknown command %q", args[0])
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	return c.Run(ctx, &cmd.Invocation{Args: args[1:]})
}

func usage(reg *cmd.Registry) {
	fmt.Fprintln(os.Stderr, "usage: cli <command> [args]")
	for _, c := range reg.GetAll() {
		fmt.Fprintf(os.Stderr, "  %-12s %s\n", c.Name(), c.Description())
	}
}

type resolveCommand struct {
	src *youtube.Source
}

func (c *resolveCommand) Name() string        { return "resolve" }
func (c *resolveCommand) Description() string { return "resolve a link or search text to a video" }

func (c *resolveCommand) Run(ctx context.Context, inv *cmd.Invocation) error {
	query := strings.Join(inv.Args, " ")
	if query == "" {
		return errors.New("resolve needs a link or search text")
	}
	entry, err := c.src.Resolve(ctx, query)
	if err != nil {
		return err
	}
	fmt.Printf("%s\n%s (%s)\n", entry.SourceURL, entry.Title, entry.DisplayDuration())
	return nil
}

type streamURLCommand struct {
	src *youtube.Source
}

func (c *streamURLCommand) Name() string        { return "stream-url" }
func (c *streamURLCommand) Description() string { return "print the media URL ffmpeg would open" }

func (c *streamURLCommand) Run(ctx context.Context, inv *cmd.Invocation) error {
	if len(inv.Args) != 1 {
		return errors.New("stream-url needs exactly one video link")
	}
	link, err := c.src.StreamURL(ctx, youtube.CleanVideoURL(inv.Args[0]))
	if err != nil {
		return err
	}
	fmt.Println(link)
	return nil
}
