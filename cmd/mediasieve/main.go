// The mediasieve command runs the local companion daemon for the media
// capture extension: it ingests observed network requests over HTTP,
// tracks media assets per browser tab, and reconstructs complete videos
// (single files, numbered segments, HLS playlists) into the local
// filesystem on demand.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/hashicorp/go-hclog"

	"github.com/mediasieve/mediasieve/internal/assembler"
	"github.com/mediasieve/mediasieve/internal/classifier"
	"github.com/mediasieve/mediasieve/internal/job"
	"github.com/mediasieve/mediasieve/internal/playlist"
	"github.com/mediasieve/mediasieve/internal/server"
	"github.com/mediasieve/mediasieve/internal/sink"
	"github.com/mediasieve/mediasieve/internal/tracker"
)

const version = "1.0.0"

func main() {
	var (
		listen       = flag.String("listen", "127.0.0.1:8974", "HTTP listen address for the extension API")
		outDir       = flag.String("out", "downloads", "Root directory for downloaded media")
		capacity     = flag.Int("capacity", tracker.DefaultCapacity, "Maximum number of tracked assets across all tabs")
		segmentLimit = flag.Int("segment-limit", playlist.DefaultSegmentsPerPart, "Maximum segments per output file for playlist downloads")
		rulesPath    = flag.String("rules", "", "Path to a JSON classification rules file (built-in rules if not set)")
		logLevel     = flag.String("log-level", "info", "Log level (trace, debug, info, warn, error)")
		showVersion  = flag.Bool("version", false, "Show version and exit")
	)

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "mediasieve - media capture companion daemon v%s\n\n", version)
		fmt.Fprintf(os.Stderr, "Usage: %s [options]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  %s --out ~/Videos/captures\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s --listen 127.0.0.1:9000 --segment-limit 200\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s --rules ./rules.json --log-level debug\n", os.Args[0])
	}

	flag.Parse()

	if *showVersion {
		fmt.Printf("mediasieve v%s\n", version)
		os.Exit(0)
	}

	if err := validateFlags(*listen, *capacity, *segmentLimit); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	logger := hclog.New(&hclog.LoggerOptions{
		Name:  "mediasieve",
		Level: hclog.LevelFromString(*logLevel),
	})

	logger.Info("mediasieve starting", "version", version)

	if err := run(*listen, *outDir, *capacity, *segmentLimit, *rulesPath, logger); err != nil {
		logger.Error("application error", "error", err)
		os.Exit(1)
	}

	logger.Info("mediasieve stopped")
}

func validateFlags(listen string, capacity, segmentLimit int) error {
	if listen == "" {
		return fmt.Errorf("listen address must not be empty")
	}
	if capacity < 1 {
		return fmt.Errorf("capacity must be at least 1")
	}
	if segmentLimit < 1 {
		return fmt.Errorf("segment limit must be at least 1")
	}
	return nil
}

func run(listen, outDir string, capacity, segmentLimit int, rulesPath string, logger hclog.Logger) error {
	rules := classifier.DefaultRules()
	if rulesPath != "" {
		loaded, err := classifier.LoadRules(rulesPath)
		if err != nil {
			return err
		}
		rules = loaded
		logger.Info("loaded classification rules", "path", rulesPath, "version", rules.Version)
	}

	out, err := sink.New(outDir, logger.Named("sink"))
	if err != nil {
		return err
	}

	c := classifier.New(rules)
	t := tracker.New(capacity, logger.Named("tracker"))
	jobs := job.NewManager(logger.Named("jobs"))
	a := assembler.New(out, jobs, segmentLimit, logger.Named("assembler"))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		logger.Info("received signal", "signal", sig)
		cancel()
	}()

	srv := server.New(c, t, a, jobs, listen, logger.Named("server"))

	logger.Info("media capture API ready",
		"events", fmt.Sprintf("http://%s/api/events", listen),
		"health", fmt.Sprintf("http://%s/health", listen),
		"output", out.Root(),
	)

	return srv.Start(ctx)
}
