// beacon-sink is a development ingest endpoint for the collector. It
// validates and logs received envelopes and relays them to live tail
// viewers. It stores nothing.
package main

import (
	"errors"
	"fmt"
	"log"
	"os"

	"github.com/AtRiskMedia/tractstack-beacon/internal/application/startup"
	"github.com/AtRiskMedia/tractstack-beacon/pkg/config"
	"github.com/spf13/pflag"
)

func main() {
	flagSet := pflag.NewFlagSet("beacon-sink", pflag.ContinueOnError)
	port := flagSet.StringP("port", "p", config.Port, "port to listen on")
	requireCSRF := flagSet.Bool("require-csrf", config.SinkRequireCSRF, "reject track requests without a valid X-CSRFToken header")
	origins := flagSet.StringSlice("allow-origin", config.SinkAllowedOrigins, "origins allowed to post telemetry (repeatable, * for any)")
	logLevel := flagSet.String("log-level", config.LogLevel, "default log level")

	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(2)
	}

	config.SinkRequireCSRF = *requireCSRF
	config.SinkAllowedOrigins = *origins
	config.LogLevel = *logLevel

	if err := startup.InitializeSink(*port); err != nil {
		log.Fatalf("Sink startup failed: %v", err)
	}
}
