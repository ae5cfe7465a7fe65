// Command configobj loads a configuration document, resolves its references and prints
// the resolved tree.
//
//	configobj -config config.json [-env .env] [-providers providers.yaml] [-output json|yaml]
package main

import (
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/animalet/configobj/internal/logging"
	"github.com/animalet/configobj/pkg/config"
	"github.com/animalet/configobj/pkg/node"
	"github.com/animalet/configobj/pkg/secrets"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

// Version information set during build
var (
	version = "dev"
)

const (
	exitOK    = 0
	exitError = 1
	exitUsage = 2
)

type cliOptions struct {
	configPath    string
	envFiles      []string
	providersPath string
	output        string
	debug         bool
	showHelp      bool
	showVersion   bool
}

type stringList []string

func (s *stringList) String() string {
	return fmt.Sprint(*s)
}

func (s *stringList) Set(value string) error {
	*s = append(*s, value)
	return nil
}

func newFlagSet(opts *cliOptions) *flag.FlagSet {
	fs := flag.NewFlagSet("configobj", flag.ContinueOnError)
	fs.StringVar(&opts.configPath, "config", "", "Path to the configuration document (.json, .yaml, .yml)")
	fs.Var((*stringList)(&opts.envFiles), "env", "Dot-env file to merge before resolving (repeatable)")
	fs.StringVar(&opts.providersPath, "providers", "", "Path to a YAML file configuring secret providers")
	fs.StringVar(&opts.output, "output", "json", "Output format: json or yaml")
	fs.BoolVar(&opts.debug, "debug", false, "Enable debug logging")
	fs.BoolVar(&opts.showVersion, "version", false, "Show version information")
	return fs
}

func parseFlags(args []string) (*cliOptions, error) {
	opts := &cliOptions{}
	fs := newFlagSet(opts)
	fs.SetOutput(io.Discard)
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			opts.showHelp = true
			return opts, nil
		}
		return nil, err
	}
	return opts, nil
}

func usage(w io.Writer) {
	fs := newFlagSet(&cliOptions{})
	fs.SetOutput(w)
	_, _ = fmt.Fprintln(w, "Usage: configobj -config <file> [options]")
	fs.PrintDefaults()
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// run executes the command and returns its exit code. Logs go to stderr so that
// stdout carries only the document.
func run(args []string, stdout, stderr io.Writer) int {
	opts, err := parseFlags(args)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		usage(stderr)
		return exitUsage
	}

	if opts.showHelp {
		usage(stdout)
		return exitOK
	}

	if opts.showVersion {
		_, _ = fmt.Fprintf(stdout, "%s %s\n", "configobj", version)
		return exitOK
	}

	if opts.configPath == "" {
		_, _ = fmt.Fprintln(stderr, "Error: -config flag is required")
		return exitUsage
	}

	marshal, err := marshaller(opts.output)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitUsage
	}

	logging.Setup(stderr, opts.debug)

	registry := secrets.NewRegistry(nil)
	envFiles, err := config.MergeEnvFiles(registry.Environment(), opts.envFiles...)
	if err != nil {
		log.Error().Err(err).Msg("Unable to load dot-env files")
		return exitError
	}

	cleanup, err := loadProviders(opts.providersPath, registry)
	if err != nil {
		log.Error().Err(err).Msg("Unable to configure secret providers")
		return exitError
	}
	defer cleanup()

	configOpts := []config.Option{config.WithRegistry(registry), config.WithEnvFile(envFiles...)}
	cfg, err := config.New(opts.configPath, configOpts...)
	if err != nil {
		log.Error().Err(err).Str("document", opts.configPath).Msg("Unable to load configuration")
		return exitError
	}

	for _, msg := range cfg.Errors() {
		log.Warn().Str("document", opts.configPath).Msg(msg)
	}

	out, err := marshal(cfg.Items())
	if err != nil {
		log.Error().Err(err).Msg("Unable to render configuration")
		return exitError
	}
	if _, err := stdout.Write(out); err != nil {
		log.Error().Err(err).Msg("Unable to write configuration")
		return exitError
	}
	return exitOK
}

func marshaller(format string) (func(*node.Node) ([]byte, error), error) {
	switch format {
	case "json":
		return func(n *node.Node) ([]byte, error) {
			data, err := node.EncodeJSON(n, "  ")
			if err != nil {
				return nil, err
			}
			return append(data, '\n'), nil
		}, nil
	case "yaml":
		return func(n *node.Node) ([]byte, error) {
			return yaml.Marshal(n)
		}, nil
	default:
		return nil, errors.Errorf("unsupported output format %q (supported: json, yaml)", format)
	}
}
