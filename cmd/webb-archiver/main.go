package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"webb-archiver/pkg/config"
	"webb-archiver/pkg/crawler"
	"webb-archiver/pkg/fetch"
	applog "webb-archiver/pkg/log"
)

const (
	version           = "1.0.0"
	defaultConfigFile = "config.yaml"
)

func main() {
	args := os.Args[1:]

	// No subcommand (bare flags or nothing at all) means archive
	if len(args) == 0 || (strings.HasPrefix(args[0], "-") && !isHelpArg(args[0])) {
		os.Exit(runArchive(args))
	}

	switch args[0] {
	case "archive":
		os.Exit(runArchive(args[1:]))
	case "validate":
		runValidate(args[1:])
	case "version":
		fmt.Printf("webb-archiver %s\n", version)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", args[0])
		printUsage()
		os.Exit(1)
	}
}

func isHelpArg(arg string) bool {
	return arg == "-h" || arg == "--help" || arg == "-help"
}

func printUsage() {
	printUsageTo(os.Stdout)
}

// printUsageTo writes usage information to the provided writer.
func printUsageTo(w io.Writer) {
	fmt.Fprintln(w, `webb-archiver - Archives James Webb Space Telescope NIRCam images including metadata

Usage:
  webb-archiver [archive] [options]
  webb-archiver <command> [options]

Commands:
  archive     Download new gallery images and their metadata (default)
  validate    Validate configuration file
  version     Show version info

Run 'webb-archiver <command> -h' for command-specific help.`)
}

// loadConfig loads and parses the config file.
// When optional is set, a missing file yields the built-in defaults.
func loadConfig(path string, optional bool) (*config.AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if optional && errors.Is(err, os.ErrNotExist) {
			return &config.AppConfig{}, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg config.AppConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	return &cfg, nil
}

// archiveOptions carries the archive subcommand's flags
type archiveOptions struct {
	configPath     string
	configExplicit bool // -config was given, so the file must exist
	outputDir      string
	logLevel       string
	abortOnError   bool
	manifest       bool
	target         *config.Target // Overrides the gallery location; only set by tests
}

// runArchive handles the archive subcommand and the bare-flags form
func runArchive(args []string) int {
	fs := flag.NewFlagSet("archive", flag.ExitOnError)
	configFile := fs.String("config", defaultConfigFile, "Path to config file (optional when left at the default)")
	var outputDir string
	fs.StringVar(&outputDir, "o", "", "Output folder, created if missing (shorthand)")
	fs.StringVar(&outputDir, "output", "", "Output folder, created if missing")
	logLevel := fs.String("loglevel", "info", "Log level (debug, info, warn, error, fatal)")
	abortOnError := fs.Bool("abort-on-error", false, "Stop the whole run at the first failed entry")
	manifest := fs.Bool("manifest", false, "Write a YAML run manifest to the output folder")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: webb-archiver archive [options]\n\nOptions:\n")
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  webb-archiver -o nircam\n")
		fmt.Fprintf(os.Stderr, "  webb-archiver archive -config config.yaml -manifest\n")
	}

	if err := fs.Parse(args); err != nil {
		return 1
	}

	opts := archiveOptions{
		configPath:   *configFile,
		outputDir:    outputDir,
		logLevel:     *logLevel,
		abortOnError: *abortOnError,
		manifest:     *manifest,
	}
	fs.Visit(func(f *flag.Flag) {
		if f.Name == "config" {
			opts.configExplicit = true
		}
	})

	// ===========================================================
	// == Setup Context & Signal Handling ==
	// ===========================================================
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		sig := <-sigChan
		fmt.Fprintf(os.Stderr, "Received signal: %v. Stopping after the current entry...\n", sig)
		cancel()

		// Force exit on second signal or after the grace period
		select {
		case <-sigChan:
			fmt.Fprintln(os.Stderr, "Received second signal. Forcing exit.")
		case <-time.After(30 * time.Second):
			fmt.Fprintln(os.Stderr, "Graceful shutdown period exceeded after signal. Forcing exit.")
		}
		os.Exit(1)
	}()

	return doArchive(ctx, opts, os.Stdout)
}

// prepareConfig loads the config file, applies flag overrides and validates the result
func prepareConfig(opts archiveOptions, log *logrus.Logger) (*config.AppConfig, error) {
	appCfg, err := loadConfig(opts.configPath, !opts.configExplicit)
	if err != nil {
		return nil, err
	}
	if opts.target != nil {
		appCfg.Target = *opts.target
	}
	if opts.outputDir != "" {
		appCfg.OutputDir = opts.outputDir
	}
	if opts.abortOnError {
		appCfg.AbortOnError = true
	}
	if opts.manifest {
		appCfg.EnableManifest = true
	}

	warnings, err := appCfg.Validate()
	for _, w := range warnings {
		log.Warn(w)
	}
	if err != nil {
		return nil, err
	}
	return appCfg, nil
}

// prepareOutputDir creates the output folder (with parents) when it does not exist yet
func prepareOutputDir(dir string, log *logrus.Logger) error {
	if dir == "." {
		return nil
	}
	log.Infof("Using output folder: %s", dir)
	if _, err := os.Stat(dir); err == nil {
		return nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("checking output folder '%s': %w", dir, err)
	}
	log.Info("Folder does not exist. Creating it...")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating output folder '%s': %w", dir, err)
	}
	return nil
}

// doArchive runs one archive pass and writes progress to out.
// Returns exit code (0 = success, 1 = error).
func doArchive(ctx context.Context, opts archiveOptions, out io.Writer) int {
	log := applog.New(opts.logLevel, out)

	appCfg, err := prepareConfig(opts, log)
	if err != nil {
		log.Errorf("Configuration error: %v", err)
		return 1
	}
	logAppConfig(appCfg, log)

	if err := prepareOutputDir(appCfg.OutputDir, log); err != nil {
		log.Error(err)
		return 1
	}

	if appCfg.GlobalRunTimeout > 0 {
		log.Debugf("Setting global run timeout: %v", appCfg.GlobalRunTimeout)
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, appCfg.GlobalRunTimeout)
		defer cancel()
	}

	httpClient := fetch.NewClient(appCfg.HTTPClientSettings, applog.Component(log, "http"))
	fetcher := fetch.NewFetcher(httpClient, appCfg, applog.Component(log, "fetch"))
	crawlerInstance := crawler.NewCrawler(appCfg, fetcher, applog.Component(log, "crawler"))

	summary, err := crawlerInstance.Run(ctx)
	if err != nil {
		switch {
		case errors.Is(err, context.Canceled):
			log.Warn("Run cancelled gracefully.")
			return 0
		case errors.Is(err, context.DeadlineExceeded):
			log.Error("Run timed out (global timeout).")
		default:
			log.Errorf("Run finished with error: %v", err)
		}
		return 1
	}

	log.WithFields(logrus.Fields{
		"archived": summary.Archived,
		"skipped":  summary.Skipped,
		"no_title": summary.NoTitle,
		"failed":   summary.Failed,
	}).Debug("Run summary")
	return 0
}

// runValidate handles the validate subcommand
func runValidate(args []string) {
	fs := flag.NewFlagSet("validate", flag.ExitOnError)
	configFile := fs.String("config", defaultConfigFile, "Path to config file")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: webb-archiver validate [options]\n\nOptions:\n")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	os.Exit(doValidate(*configFile, os.Stdout, os.Stderr))
}

// doValidate performs validation and writes output to provided writers.
// Returns exit code (0 = success, 1 = error).
func doValidate(configPath string, stdout, stderr io.Writer) int {
	appCfg, err := loadConfig(configPath, false)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	warnings, err := appCfg.Validate()
	for _, w := range warnings {
		fmt.Fprintf(stdout, "WARN: %s\n", w)
	}
	if err != nil {
		fmt.Fprintf(stderr, "ERROR: %v\n", err)
		return 1
	}

	fmt.Fprintf(stdout, "OK: output to '%s', listing %s\n", appCfg.OutputDir, appCfg.Target.ListingURL)
	fmt.Fprintln(stdout, "\nConfiguration valid.")
	return 0
}

// logAppConfig logs the effective configuration
func logAppConfig(appCfg *config.AppConfig, log *logrus.Logger) {
	log.Debugf("Config: Listing:%s, OutputDir:%s, UserAgent:'%s'",
		appCfg.Target.ListingURL, appCfg.OutputDir, appCfg.UserAgent)
	log.Debugf("Config: ChunkSize:%d, MaxDownloadBytes:%d, AbortOnError:%t, Manifest:%t ('%s')",
		appCfg.ChunkSize, appCfg.MaxDownloadBytes, appCfg.AbortOnError, appCfg.EnableManifest, config.GetEffectiveManifestFilename(*appCfg))
	log.Debugf("Config Politeness: Delay:%v, RespectRobots:%t",
		appCfg.DelayPerRequest, appCfg.RespectRobotsTxt)
	log.Debugf("Config Retries: Max:%d, InitialDelay:%v, MaxDelay:%v, GlobalRunTimeout:%v",
		appCfg.MaxRetries, appCfg.InitialRetryDelay, appCfg.MaxRetryDelay, appCfg.GlobalRunTimeout)
	log.Debugf("Config HTTP Client: Timeout:%v, MaxIdle:%d, MaxIdlePerHost:%d, IdleTimeout:%v, TLSTimeout:%v, DialerTimeout:%v",
		appCfg.HTTPClientSettings.Timeout, appCfg.HTTPClientSettings.MaxIdleConns, appCfg.HTTPClientSettings.MaxIdleConnsPerHost,
		appCfg.HTTPClientSettings.IdleConnTimeout, appCfg.HTTPClientSettings.TLSHandshakeTimeout, appCfg.HTTPClientSettings.DialerTimeout)
}
