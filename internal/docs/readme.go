// Package docs renders the command reference for the README.
package docs

import (
	"cmp"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"
	"text/template"

	"github.com/keshon/jukebox/internal/command"
	"github.com/keshon/jukebox/pkg/cmd"
)

// CommandSections renders the registry as markdown, one section per
// category. categoryWeights orders the sections, lower first; commands are
// sorted by name within a section.
func CommandSections(registry *cmd.Registry, categoryWeights map[string]int) string {
	commands := registry.GetAll()
	slices.SortStableFunc(commands, func(a, b cmd.Command) int {
		return cmp.Compare(categoryWeights[category(a)], categoryWeights[category(b)])
	})

	var sb strings.Builder
	current := ""
	for i, c := range commands {
		if cat := category(c); i == 0 || cat != current {
			if i > 0 {
				sb.WriteString("\n")
			}
			current = cat
			fmt.Fprintf(&sb, "### %s\n\n", cmp.Or(current, "Other"))
		}
		fmt.Fprintf(&sb, "- **/%s** %s\n", c.Name(), c.Description())
	}
	return sb.String()
}

func category(c cmd.Command) string {
	if meta, ok := cmd.Root(c).(command.DiscordMeta); ok {
		return meta.Category()
	}
	return ""
}

// RenderReadme executes the template at tmplPath with the command sections.
func RenderReadme(w io.Writer, tmplPath, sections string) error {
	tmpl, err := template.ParseFiles(tmplPath)
	if err != nil {
		return err
	}
	return tmpl.Execute(w, struct{ CommandSections string }{sections})
}

// UpdateReadme regenerates outPath from tmplPath.
func UpdateReadme(registry *cmd.Registry, tmplPath, outPath string, categoryWeights map[string]int) error {
	f, err := os.Create(outPath)
	if err != nil {
		return err
	}
	if err := RenderReadme(f, tmplPath, CommandSections(registry, categoryWeights)); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
