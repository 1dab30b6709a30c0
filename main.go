package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/briangreenhill/fetchkit/internal/config"
	"github.com/briangreenhill/fetchkit/internal/providers"
)

var version = "dev"

func main() {
	if err := run(context.Background(), os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, out, errOut io.Writer) error {
	a := &app{errOut: errOut}
	defer a.close()

	root := newRootCmd(a)
	root.SetArgs(args)
	root.SetOut(out)
	root.SetErr(errOut)
	return root.ExecuteContext(ctx)
}

// app lazily loads configuration and providers for the subcommands.
type app struct {
	configPath string
	verbose    bool
	errOut     io.Writer

	log zerolog.Logger
	cfg *config.Config
	set *providers.Set
}

func (a *app) config() (*config.Config, error) {
	if a.cfg != nil {
		return a.cfg, nil
	}
	var err error
	if a.configPath != "" {
		a.cfg, err = config.LoadFile(a.configPath)
	} else {
		a.cfg, err = config.Load()
	}
	if err != nil {
		return nil, err
	}

	lvl := zerolog.WarnLevel
	if a.verbose {
		lvl = zerolog.DebugLevel
	}
	a.log = zerolog.New(zerolog.ConsoleWriter{Out: a.errOut}).With().Timestamp().Logger().Level(lvl)
	return a.cfg, nil
}

func (a *app) providers(ctx context.Context) (*providers.Set, error) {
	if a.set != nil {
		return a.set, nil
	}
	cfg, err := a.config()
	if err != nil {
		return nil, err
	}
	a.set, err = providers.Setup(ctx, cfg, providers.WithLogger(a.log))
	return a.set, err
}

func (a *app) close() {
	if a.set != nil {
		a.set.Close()
	}
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "fetchkit",
		Short:         "Fetch REST and GraphQL data through a TTL cache",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&a.configPath, "config", "c", "", "path to a YAML config file (default $"+config.PathEnv+")")
	root.PersistentFlags().BoolVar(&a.verbose, "verbose", false, "log debug output to stderr")

	root.AddCommand(
		newGetCmd(a),
		newGraphQLCmd(a),
		newWeatherCmd(a),
		newContactsCmd(a),
		newCacheCmd(a),
		newVersionCmd(),
	)
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "fetchkit %s\n", version)
			return err
		},
	}
}

// parsePairs turns repeated key=value flags into a map.
func parsePairs(pairs []string) (map[string]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	m := make(map[string]string, len(pairs))
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("expected key=value, got %q", p)
		}
		m[k] = v
	}
	return m, nil
}
