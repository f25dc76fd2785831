package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"

	"github.com/blackstreet-ai/animated-invention/internal/agents"
)

const defaultConfigPath = "configs/default.yml"

// ExitError carries the process exit code for a failure.
type ExitError struct {
	Code    int
	Message string
}

func (e *ExitError) Error() string {
	return e.Message
}

// Exit codes.
const (
	exitOK      = 0
	exitAborted = 1
	exitUsage   = 2
)

// options are the parsed command-line flags.
type options struct {
	Topic          string
	ConfigPath     string
	DiscoverTopics bool
	Serve          bool
	Competitors    []string
	Audience       string
}

// parseArgs processes command-line arguments. It returns the options, whether
// the program should exit cleanly (help was requested), or an *ExitError.
func parseArgs(args []string, output io.Writer) (*options, bool, error) {
	flagSet := flag.NewFlagSet("videopipeline", flag.ContinueOnError)
	flagSet.SetOutput(output)

	flagSet.Usage = func() {
		fmt.Fprint(output, `
videopipeline - runs the video essay pipeline.

Usage:
  videopipeline [options]            run the pipeline once and print the result
  videopipeline --serve [options]    serve the HTTP and gRPC APIs

Environment variables (LOG_LEVEL, ORCH_*, WORKER_*, TIMEOUT_*, EVENTS_*,
REDIS_*, PIPELINE_*_PORT) configure the runtime.

Options:
`)
		flagSet.PrintDefaults()
	}

	topic := flagSet.String("topic", "", "Topic of the video essay.")
	configPath := flagSet.String("config", defaultConfigPath, "Path to a pipeline definition (.yml, .yaml or .hcl).")
	discover := flagSet.Bool("discover-topics", false, "Run topic generation before research.")
	serve := flagSet.Bool("serve", false, "Serve the APIs instead of running once.")
	competitors := flagSet.String("competitors", "", "Comma-separated competitor channels for topic discovery.")
	audience := flagSet.String("audience", "", "Target audience for topic discovery.")

	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil, true, nil
		}
		return nil, false, &ExitError{Code: exitUsage, Message: err.Error()}
	}
	if flagSet.NArg() > 0 {
		return nil, false, &ExitError{Code: exitUsage, Message: fmt.Sprintf("unexpected arguments: %s", strings.Join(flagSet.Args(), " "))}
	}

	return &options{
		Topic:          strings.TrimSpace(*topic),
		ConfigPath:     *configPath,
		DiscoverTopics: *discover,
		Serve:          *serve,
		Competitors:    splitList(*competitors),
		Audience:       strings.TrimSpace(*audience),
	}, false, nil
}

func splitList(raw string) []string {
	var out []string
	for _, item := range strings.Split(raw, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// inputs returns the run inputs carried by the flags.
func (o *options) inputs() map[string]any {
	in := make(map[string]any)
	if o.Topic != "" {
		in[agents.InputTopic] = o.Topic
	}
	if len(o.Competitors) > 0 {
		in[agents.InputCompetitors] = o.Competitors
	}
	if o.Audience != "" {
		in[agents.InputAudience] = o.Audience
	}
	return in
}
