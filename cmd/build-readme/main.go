// build-readme regenerates README.md from README.md.tmpl and the registered
// slash commands.
package main

import (
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/keshon/jukebox/internal/command/music"
	"github.com/keshon/jukebox/internal/docs"
	"github.com/keshon/jukebox/pkg/cmd"
)

func main() {
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.DateTime}).With().Timestamp().Logger()

	// Definitions only; the commands never run here.
	reg := cmd.NewRegistry()
	music.Register(reg, nil, nil)

	if err := docs.UpdateReadme(reg, "README.md.tmpl", "README.md", nil); err != nil {
		log.Fatal().Err(err).Msg("update README")
	}
	log.Info().Msg("README.md updated with current commands")
}
