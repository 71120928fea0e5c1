// Package main is the ajimi CLI entry point.
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/hyperjump/ajimi/internal/config"
	"github.com/hyperjump/ajimi/pkg/utils"
	"go.uber.org/zap"
)

var version = "dev"

const defaultConfigPath = "/usr/local/etc/ajimi/config.yaml"

// loadConfig loads config from path. When path is the default, it first looks for
// config.yaml in the current directory; if that exists it is used. When neither exists,
// defaults relative to the current directory are used.
// Returns the config and the path that was actually loaded.
func loadConfig(path string) (*config.Config, string, error) {
	if path == defaultConfigPath {
		if cwd, cwdErr := os.Getwd(); cwdErr == nil {
			fallback := filepath.Join(cwd, "config.yaml")
			if _, statErr := os.Stat(fallback); statErr == nil {
				cfg, loadErr := config.Load(fallback)
				if loadErr != nil {
					return nil, "", loadErr
				}
				return cfg, fallback, nil
			}
			if _, statErr := os.Stat(path); os.IsNotExist(statErr) {
				return config.Default(cwd), "", nil
			}
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

// commandFlags are the flags every command accepts.
type commandFlags struct {
	configPath *string
	debug      *bool
}

func newCommandFlags(fs *flag.FlagSet) commandFlags {
	return commandFlags{
		configPath: fs.String("config", defaultConfigPath, "config file path"),
		debug:      fs.Bool("debug", false, "enable debug logging"),
	}
}

// setup loads the config and creates the logger, exiting on failure.
func (f commandFlags) setup() (*config.Config, *zap.Logger) {
	cfg, resolved, err := loadConfig(*f.configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	debugMode := cfg.Debug || *f.debug
	logger, err := utils.NewLogger(debugMode)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	logger.Debug("config loaded", zap.String("config_path", resolved), zap.Bool("debug", debugMode))
	return cfg, logger
}

// argsReorder moves any flags (and their values) that appear after the positional
// arguments to the front so that flag.Parse() sees them. Go's flag package stops at the
// first non-flag argument, so "ajimi predict photo.jpg -output json" would otherwise
// leave -output unparsed.
func argsReorder(args []string) []string {
	for i, a := range args {
		if len(a) > 0 && a[0] == '-' {
			if i == 0 {
				return args
			}
			reordered := make([]string, 0, len(args))
			reordered = append(reordered, args[i:]...)
			reordered = append(reordered, args[:i]...)
			return reordered
		}
	}
	return args
}

// joinQuery joins all positional args with spaces so multi-word queries
// work the same with or without shell quoting.
func joinQuery(args []string) string {
	return strings.TrimSpace(strings.Join(args, " "))
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	command := os.Args[1]
	args := os.Args[2:]
	switch command {
	case "server":
		runServer(args)
	case "manifest":
		runManifest(args)
	case "build-index":
		runBuildIndex(args)
	case "build-centroids":
		runBuildCentroids(args)
	case "import-recipes":
		runImportRecipes(args)
	case "predict":
		runPredict(args)
	case "search":
		runSearch(args)
	case "evaluate":
		runEvaluate(args)
	case "status":
		runStatus(args)
	case "version", "--version", "-v":
		fmt.Printf("ajimi version %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`ajimi - Dish identification by photo, with recipes and related dishes

Usage:
  ajimi server [flags]                 Start the HTTP server
  ajimi manifest [flags]               Scan the image folder and write the manifest CSV
  ajimi build-index [flags]            Encode manifest images and build the index and centroids
  ajimi build-centroids [flags]        Rebuild class centroids from the saved index
  ajimi import-recipes [flags]         Load the recipes CSV into the recipe store
  ajimi predict [flags] <image>        Identify the dish in a photo
  ajimi search [flags] <query>         Find dishes by name or ingredient
  ajimi evaluate [flags]               Measure accuracy on the test split
  ajimi status [flags]                 Show server status
  ajimi version                        Show version
  ajimi help                           Show this help

Common Flags:
  --config string    Config file path (default: /usr/local/etc/ajimi/config.yaml, or ./config.yaml)
  --debug            Enable debug logging

Manifest Flags:
  --images string    Image folder laid out as {split}/{class}/*.jpg (default from config)
  --out string       Manifest path (default from config)

Build Flags:
  --manifest string  Manifest path (default from config; scanned from the image folder when missing)
  --centroids        Also build centroids (build-index only, default: true)

Predict / Search / Evaluate / Status Flags:
  --output string    Output format: text or json (default: text)
  --server string    Server URL (predict, status); empty predicts locally
  --session string   Session id whose feedback personalizes the ranking (with --server)
  --limit int        Number of results (search, default: 10)
  --report string    Report path (evaluate, default from config)

Examples:
  ajimi manifest --images ./data/Images
  ajimi build-index
  ajimi import-recipes
  ajimi server
  ajimi predict photo.jpg
  ajimi predict --output json --server http://localhost:8080 photo.jpg
  ajimi search bun bo
  ajimi evaluate --report reports/eval.json`)
}
