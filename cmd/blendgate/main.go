package main

import (
	"fmt"
	"os"
	"runtime"

	"github.com/Srjnnnn/blendgate/pkg/config"
)

var (
	version   = "dev"
	buildTime string
)

const displayName = "blendgate"

func main() {
	if len(os.Args) < 2 {
		printHelp()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "init":
		initCmd()
	case "serve":
		serveCmd()
	case "console":
		consoleCmd()
	case "send":
		sendCmd()
	case "validate":
		validateCmd()
	case "status":
		statusCmd()
	case "monitor":
		monitorCmd()
	case "history":
		historyCmd()
	case "version", "--version", "-v":
		printVersion()
	case "help", "--help", "-h":
		printHelp()
	default:
		fmt.Printf("Unknown command: %s\n", os.Args[1])
		printHelp()
		os.Exit(1)
	}
}

func printVersion() {
	fmt.Printf("%s v%s\n", displayName, version)
	if buildTime != "" {
		fmt.Printf("  Build: %s\n", buildTime)
	}
	fmt.Printf("  Go: %s\n", runtime.Version())
}

func printHelp() {
	fmt.Printf("%s - remote control gateway for 3D scene tooling v%s\n\n", displayName, version)
	fmt.Printf("Usage: %s <command>\n", displayName)
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  init        Create the config file and workspace directories")
	fmt.Println("  serve       Run the gateway (HTTP, WebSocket, file watcher)")
	fmt.Println("  console     Interactive command console against an in-process gateway")
	fmt.Println("  send        Send a request envelope to a running gateway")
	fmt.Println("  validate    Check a request envelope file against the schema")
	fmt.Println("  status      Show a running gateway's status")
	fmt.Println("  monitor     Live terminal dashboard for a running gateway")
	fmt.Println("  history     List archived batches")
	fmt.Println("  version     Show version information")
	fmt.Println()
	fmt.Println("Common flags:")
	fmt.Println("  --config <path>   Config file (default ~/.blendgate/config.json)")
	fmt.Println("  --addr <url>      Gateway base URL for send/status/monitor")
	fmt.Println("  --json            Machine-readable output where supported")
}

// configPathFromArgs scans args for --config, falling back to the default
// location.
func configPathFromArgs(args []string) string {
	for i := 0; i < len(args); i++ {
		if args[i] == "--config" && i+1 < len(args) {
			return args[i+1]
		}
	}
	return config.DefaultPath()
}

// addrFromArgs scans args for --addr, falling back to the local default.
func addrFromArgs(args []string) string {
	for i := 0; i < len(args); i++ {
		if args[i] == "--addr" && i+1 < len(args) {
			return args[i+1]
		}
	}
	return "http://localhost:8080"
}

func hasFlag(args []string, name string) bool {
	for _, arg := range args {
		if arg == name {
			return true
		}
	}
	return false
}

func fatalf(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}

func initCmd() {
	configPath := configPathFromArgs(os.Args[2:])

	if _, err := os.Stat(configPath); err == nil {
		cfg, err := config.LoadConfig(configPath)
		if err != nil {
			fatalf("Config at %s exists but does not parse: %v", configPath, err)
		}
		if err := cfg.EnsureWorkspace(); err != nil {
			fatalf("Error creating workspace: %v", err)
		}
		fmt.Printf("Config already exists at %s (left untouched)\n", configPath)
		fmt.Printf("Workspace ready at %s\n", cfg.Workspace)
		return
	}

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		fatalf("Error building config: %v", err)
	}
	if err := config.SaveConfig(configPath, cfg); err != nil {
		fatalf("Error saving config: %v", err)
	}
	if err := cfg.EnsureWorkspace(); err != nil {
		fatalf("Error creating workspace: %v", err)
	}
	fmt.Printf("Created config at %s\n", configPath)
	fmt.Printf("Workspace ready at %s\n", cfg.Workspace)
	fmt.Printf("\nStart the gateway with: %s serve\n", displayName)
}
