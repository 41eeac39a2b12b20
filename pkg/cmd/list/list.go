package list

import (
	"fmt"
	"sort"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/ensoft/marple/pkg/cmd/options"
	"github.com/ensoft/marple/pkg/config"
)

const CmdName = "list"

type Options struct {
	*options.CommonOptions
}

func NewCommand(opts *options.CommonOptions) *cobra.Command {
	o := &Options{opts}

	cmd := &cobra.Command{
		Use:               CmdName,
		Short:             "List the collection interfaces, aliases and display modes",
		DisableAutoGenTag: true,
		SilenceUsage:      true,
		RunE:              o.Run,
	}

	return cmd
}

func (o *Options) Run(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(o.ConfigFile, o.Logger)
	if err != nil {
		return errors.Wrap(err, "failed to load configuration")
	}

	out := cmd.OutOrStdout()

	fmt.Fprintln(out, "Interfaces:")
	for _, iface := range config.Interfaces() {
		mode, _ := cfg.DefaultMode(iface)
		fmt.Fprintf(out, "  %-14s %s\n", iface, mode)
	}

	aliases := make([]string, 0, len(cfg.Aliases))
	for name := range cfg.Aliases {
		aliases = append(aliases, name)
	}
	sort.Strings(aliases)

	if len(aliases) > 0 {
		fmt.Fprintln(out, "\nAliases:")
		for _, name := range aliases {
			ifaces := make([]string, 0, len(cfg.Aliases[name]))
			for _, iface := range cfg.Aliases[name] {
				ifaces = append(ifaces, string(iface))
			}
			fmt.Fprintf(out, "  %-14s %s\n", name, strings.Join(ifaces, ","))
		}
	}

	fmt.Fprintln(out, "\nModes:")
	for _, mode := range config.Modes() {
		fmt.Fprintf(out, "  %s\n", mode)
	}

	return nil
}
