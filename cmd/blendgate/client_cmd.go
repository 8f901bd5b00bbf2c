package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"sort"
	"strconv"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/Srjnnnn/blendgate/pkg/archive"
	"github.com/Srjnnnn/blendgate/pkg/config"
	"github.com/Srjnnnn/blendgate/pkg/gateway"
	"github.com/Srjnnnn/blendgate/pkg/schema"
)

var (
	styleOK    = lipgloss.NewStyle().Foreground(lipgloss.Color("#50C878")).Bold(true)
	styleErr   = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF6961")).Bold(true)
	styleLabel = lipgloss.NewStyle().Foreground(lipgloss.Color("#808080")).Width(16)
	styleTitle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#C4B5FD"))
)

func httpClient() *http.Client {
	return &http.Client{Timeout: 30 * time.Second}
}

// readEnvelopeArg returns the envelope bytes from the first non-flag
// argument, or stdin when the argument is missing or "-".
func readEnvelopeArg(args []string) ([]byte, error) {
	path := ""
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--config", "--addr":
			i++
		case "--json", "--debug", "-d":
		default:
			path = args[i]
		}
	}
	if path == "" || path == "-" {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(path)
}

// sendCmd posts a request envelope file (or stdin) to a running gateway
// and prints the response.
func sendCmd() {
	args := os.Args[2:]
	raw, err := readEnvelopeArg(args)
	if err != nil {
		fatalf("Error reading envelope: %v", err)
	}
	if _, err := schema.ParseEnvelope(raw); err != nil {
		fatalf("Invalid envelope: %v", err)
	}

	addr := addrFromArgs(args)
	resp, err := httpClient().Post(addr+"/", "application/json", bytes.NewReader(raw))
	if err != nil {
		fatalf("Error contacting gateway at %s: %v", addr, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		fatalf("Error reading response: %v", err)
	}
	printRawJSON(body)
	if resp.StatusCode >= 400 {
		os.Exit(1)
	}
}

// validateCmd checks an envelope file against the request schema without
// contacting a gateway.
func validateCmd() {
	args := os.Args[2:]
	raw, err := readEnvelopeArg(args)
	if err != nil {
		fatalf("Error reading envelope: %v", err)
	}
	if _, err := schema.ParseEnvelope(raw); err != nil {
		fmt.Printf("%s %v\n", styleErr.Render("INVALID"), err)
		os.Exit(1)
	}
	fmt.Printf("%s envelope is well-formed\n", styleOK.Render("OK"))
}

// statusCmd fetches and renders a running gateway's status report.
func statusCmd() {
	args := os.Args[2:]
	addr := addrFromArgs(args)

	resp, err := httpClient().Get(addr + "/status")
	if err != nil {
		fatalf("Error contacting gateway at %s: %v", addr, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		fatalf("Error reading response: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		printRawJSON(body)
		os.Exit(1)
	}
	if hasFlag(args, "--json") {
		printRawJSON(body)
		return
	}

	var report gateway.StatusReport
	if err := json.Unmarshal(body, &report); err != nil {
		fatalf("Error parsing status: %v", err)
	}

	fmt.Println(styleTitle.Render(fmt.Sprintf("%s v%s", report.Server, report.Version)))
	fmt.Printf("%s %s\n", styleLabel.Render("Uptime"), (time.Duration(report.UptimeSec) * time.Second).String())
	fmt.Printf("%s %d\n", styleLabel.Render("Commands"), report.Commands)
	fmt.Printf("%s %d\n", styleLabel.Render("Batches"), report.Batches)
	fmt.Printf("%s %d\n", styleLabel.Render("Errors"), report.Errors)
	fmt.Printf("%s %d\n", styleLabel.Render("Running"), report.RunningBatches)
	fmt.Printf("%s %d\n", styleLabel.Render("Catalog"), report.CatalogSize)

	if len(report.Channels) > 0 {
		names := make([]string, 0, len(report.Channels))
		for name := range report.Channels {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			mark := styleErr.Render("✗")
			if report.Channels[name] {
				mark = styleOK.Render("✓")
			}
			fmt.Printf("%s %s %s\n", styleLabel.Render("Channel"), mark, name)
		}
	}
	if len(report.SceneCounts) > 0 {
		kinds := make([]string, 0, len(report.SceneCounts))
		for kind := range report.SceneCounts {
			kinds = append(kinds, kind)
		}
		sort.Strings(kinds)
		for _, kind := range kinds {
			fmt.Printf("%s %d %s\n", styleLabel.Render("Scene"), report.SceneCounts[kind], kind)
		}
	}
}

// historyCmd lists archived batches from the local sqlite archive.
func historyCmd() {
	args := os.Args[2:]
	limit := 20
	for i := 0; i < len(args); i++ {
		if args[i] == "--limit" && i+1 < len(args) {
			n, err := strconv.Atoi(args[i+1])
			if err != nil || n <= 0 {
				fatalf("Invalid --limit: %s", args[i+1])
			}
			limit = n
			i++
		}
	}

	cfg, err := config.LoadConfig(configPathFromArgs(args))
	if err != nil {
		fatalf("Error loading config: %v", err)
	}
	if !cfg.Archive.Enabled {
		fatalf("Batch archive is disabled in config")
	}

	store, err := archive.Open(cfg.ArchivePath())
	if err != nil {
		fatalf("Error opening archive: %v", err)
	}
	defer store.Close()

	summaries, err := store.List(context.Background(), limit)
	if err != nil {
		fatalf("Error listing archive: %v", err)
	}
	if len(summaries) == 0 {
		fmt.Println("No archived batches.")
		return
	}

	if hasFlag(args, "--json") {
		printJSON(summaries)
		return
	}

	fmt.Println(styleTitle.Render("Archived batches"))
	for _, s := range summaries {
		mark := styleOK.Render("✓")
		if s.Failed > 0 || s.Status != "completed" {
			mark = styleErr.Render("✗")
		}
		fmt.Printf("  %s %s  %-10s  %d/%d ok  %s\n",
			mark, s.BatchID, s.Status, s.Successful, s.Total,
			s.SubmittedAt.Local().Format("2006-01-02 15:04:05"))
	}
}

func printRawJSON(body []byte) {
	var buf bytes.Buffer
	if err := json.Indent(&buf, body, "", "  "); err != nil {
		fmt.Println(string(body))
		return
	}
	fmt.Println(buf.String())
}
