// Package schema renders the command tree as JSON so agent callers can
// discover the CLI surface without scraping help text.
package schema

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

type Command struct {
	Path        string    `json:"path"`
	Use         string    `json:"use"`
	Short       string    `json:"short"`
	Aliases     []string  `json:"aliases,omitempty"`
	Flags       []Flag    `json:"flags,omitempty"`
	Subcommands []Command `json:"subcommands,omitempty"`
}

type Flag struct {
	Name      string `json:"name"`
	Shorthand string `json:"shorthand,omitempty"`
	Type      string `json:"type"`
	Usage     string `json:"usage"`
	Default   string `json:"default,omitempty"`
}

// Build describes the command at path, or the whole tree when path is
// empty. Path segments match command names or aliases.
func Build(root *cobra.Command, path string) (Command, error) {
	cmd, err := resolve(root, path)
	if err != nil {
		return Command{}, err
	}
	return describe(cmd), nil
}

func resolve(root *cobra.Command, path string) (*cobra.Command, error) {
	cmd := root
	for _, segment := range strings.Fields(strings.TrimSpace(path)) {
		next := childNamed(cmd, segment)
		if next == nil {
			return nil, fmt.Errorf("command not found: %s", path)
		}
		cmd = next
	}
	return cmd, nil
}

func childNamed(cmd *cobra.Command, name string) *cobra.Command {
	for _, child := range cmd.Commands() {
		if child.Name() == name {
			return child
		}
		for _, alias := range child.Aliases {
			if alias == name {
				return child
			}
		}
	}
	return nil
}

func describe(cmd *cobra.Command) Command {
	doc := Command{
		Path:    strings.TrimSpace(cmd.CommandPath()),
		Use:     cmd.Use,
		Short:   cmd.Short,
		Aliases: cmd.Aliases,
		Flags:   describeFlags(cmd),
	}
	for _, child := range cmd.Commands() {
		if child.Hidden {
			continue
		}
		doc.Subcommands = append(doc.Subcommands, describe(child))
	}
	return doc
}

func describeFlags(cmd *cobra.Command) []Flag {
	flags := []Flag{}
	cmd.NonInheritedFlags().VisitAll(func(f *pflag.Flag) {
		flags = append(flags, Flag{
			Name:      f.Name,
			Shorthand: f.Shorthand,
			Type:      f.Value.Type(),
			Usage:     f.Usage,
			Default:   f.DefValue,
		})
	})
	return flags
}
