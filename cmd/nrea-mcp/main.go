package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/ironsheep/nrea-snr-mcp/internal/config"
	"github.com/ironsheep/nrea-snr-mcp/internal/logging"
	"github.com/ironsheep/nrea-snr-mcp/internal/server"
)

// Version information - set by ldflags during build
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func usage() {
	fmt.Println("nrea-mcp - MCP server for NREA accumulation and SNR estimation")
	fmt.Println()
	fmt.Println("Usage: nrea-mcp [options]")
	fmt.Println()
	fmt.Println("Options:")
	fmt.Println("  --version, -v       Print version information")
	fmt.Println("  --help, -h          Print this help message")
	fmt.Println("  --config <file>     YAML configuration (defaults apply when missing)")
	fmt.Println("  --log-json          Log JSON lines instead of console output")
	fmt.Println("  --workers <n>       Concurrent frame compensations (0 = all CPUs)")
	fmt.Println()
	fmt.Println("Environment variables:")
	fmt.Printf("  %s=debug     Override the configured log level\n", logging.LevelEnv)
	fmt.Println()
	fmt.Println("This server communicates via MCP protocol over stdin/stdout.")
	fmt.Println("Configure it in your MCP client (e.g., Claude Desktop).")
}

func main() {
	// Handle --version and -v flags
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "--version", "-v", "version":
			fmt.Printf("nrea-mcp %s\n", Version)
			fmt.Printf("  Build time: %s\n", BuildTime)
			fmt.Printf("  Git commit: %s\n", GitCommit)
			return
		case "--help", "-h", "help":
			usage()
			return
		}
	}

	var (
		configPath = flag.String("config", "", "YAML configuration file")
		logJSON    = flag.Bool("log-json", false, "Log JSON lines instead of console output")
		workers    = flag.Int("workers", -1, "Concurrent frame compensations (0 = all CPUs)")
	)
	flag.Usage = usage
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "nrea-mcp: %v\n", err)
		os.Exit(1)
	}
	if *logJSON {
		cfg.Log.JSON = true
	}
	if *workers >= 0 {
		cfg.Workers = *workers
	}

	// Logs go to stderr; stdout is for the MCP protocol.
	logger, err := logging.FromEnv(logging.Options{Level: cfg.Log.Level, JSON: cfg.Log.JSON})
	if err != nil {
		fmt.Fprintf(os.Stderr, "nrea-mcp: %v\n", err)
		os.Exit(1)
	}
	logger.Debug().
		Str("version", Version).
		Str("built", BuildTime).
		Str("commit", GitCommit).
		Str("config", *configPath).
		Msg("starting")

	srv := server.New(
		server.WithConfig(cfg),
		server.WithLogger(logger),
		server.WithVersion(Version),
	)
	if err := srv.Run(); err != nil {
		logger.Fatal().Err(err).Msg("server error")
	}
}
