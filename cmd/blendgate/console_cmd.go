package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/chzyer/readline"

	"github.com/Srjnnnn/blendgate/pkg/batch"
	"github.com/Srjnnnn/blendgate/pkg/command"
	"github.com/Srjnnnn/blendgate/pkg/config"
	"github.com/Srjnnnn/blendgate/pkg/gateway"
	"github.com/Srjnnnn/blendgate/pkg/logger"
	"github.com/Srjnnnn/blendgate/pkg/scene/memory"
)

// consoleCmd runs an interactive session against an in-process gateway:
// a scratch scene for trying commands without a server running.
func consoleCmd() {
	args := os.Args[2:]
	if hasFlag(args, "--debug") || hasFlag(args, "-d") {
		logger.SetLevel(logger.DEBUG)
	} else {
		logger.SetLevel(logger.WARN)
	}

	cfg, err := config.LoadConfig(configPathFromArgs(args))
	if err != nil {
		fatalf("Error loading config: %v", err)
	}
	if err := cfg.EnsureWorkspace(); err != nil {
		fatalf("Error creating workspace: %v", err)
	}

	gw, err := gateway.New(cfg, memory.NewBackend(), version)
	if err != nil {
		fatalf("Error building gateway: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	gw.Start(ctx)
	defer gw.Stop(ctx)

	fmt.Printf("%s console v%s (in-process scene, %d commands)\n", displayName, version, gw.Registry().Len())
	fmt.Println("Type a command name with JSON params, e.g.: add_cube {\"size\": 2}")
	fmt.Println("Colon commands: :scene :status :templates :batch <file> :ask <text> :history :help")

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "blendgate> ",
		HistoryFile:     filepath.Join(os.TempDir(), ".blendgate_history"),
		HistoryLimit:    200,
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
		AutoComplete:    consoleCompleter(gw),
	})
	if err != nil {
		fatalf("Error initializing readline: %v", err)
	}
	defer rl.Close()

	for {
		line, err := rl.Readline()
		if err != nil {
			if err == readline.ErrInterrupt || err == io.EOF {
				fmt.Println("\nGoodbye!")
				return
			}
			fmt.Printf("Error reading input: %v\n", err)
			continue
		}

		input := strings.TrimSpace(line)
		if input == "" {
			continue
		}
		if input == "exit" || input == "quit" {
			fmt.Println("Goodbye!")
			return
		}

		if strings.HasPrefix(input, ":") {
			consoleColon(ctx, gw, input)
			continue
		}

		req, err := parseConsoleLine(input)
		if err != nil {
			fmt.Printf("Error: %v\n", err)
			continue
		}
		printJSON(gw.SubmitCommand(ctx, req))
	}
}

// parseConsoleLine splits "name {json}" into a request. A bare name runs
// with empty params.
func parseConsoleLine(input string) (command.Request, error) {
	name := input
	rest := ""
	if i := strings.IndexAny(input, " \t"); i >= 0 {
		name = input[:i]
		rest = strings.TrimSpace(input[i:])
	}

	req := command.Request{Name: name, Params: map[string]interface{}{}}
	if rest != "" {
		if err := json.Unmarshal([]byte(rest), &req.Params); err != nil {
			return command.Request{}, fmt.Errorf("params: %w", err)
		}
	}
	return req, nil
}

func consoleColon(ctx context.Context, gw *gateway.Gateway, input string) {
	verb := input
	arg := ""
	if i := strings.IndexAny(input, " \t"); i >= 0 {
		verb = input[:i]
		arg = strings.TrimSpace(input[i:])
	}

	switch verb {
	case ":scene":
		snap, err := gw.SceneData(ctx)
		if err != nil {
			fmt.Printf("Error: %v\n", err)
			return
		}
		printJSON(snap)
	case ":status":
		printJSON(gw.Status(ctx))
	case ":templates":
		list, err := gw.ListTemplates()
		if err != nil {
			fmt.Printf("Error: %v\n", err)
			return
		}
		if len(list) == 0 {
			fmt.Println("No templates installed.")
			return
		}
		for _, t := range list {
			fmt.Printf("  %-24s %s\n", t.Name, t.Description)
		}
	case ":batch":
		if arg == "" {
			fmt.Println("Usage: :batch <file.json>")
			return
		}
		consoleBatch(ctx, gw, arg)
	case ":ask":
		if arg == "" {
			fmt.Println("Usage: :ask <what you want done>")
			return
		}
		printJSON(gw.Query(ctx, arg))
	case ":history":
		results := gw.RecentBatches(20)
		if len(results) == 0 {
			fmt.Println("No batches yet.")
			return
		}
		for _, r := range results {
			fmt.Printf("  %s  %-10s  %d/%d ok\n", r.BatchID, r.Status, r.Successful, r.Total)
		}
	case ":help":
		fmt.Println("  <command> {json}   Execute one catalog command")
		fmt.Println("  :scene             Dump the scene snapshot")
		fmt.Println("  :status            Gateway status report")
		fmt.Println("  :templates         List scene templates")
		fmt.Println("  :batch <file>      Submit a batch envelope file and wait")
		fmt.Println("  :ask <text>        Natural-language command")
		fmt.Println("  :history           Recent batches")
		fmt.Println("  exit               Leave the console")
	default:
		fmt.Printf("Unknown colon command: %s (try :help)\n", verb)
	}
}

func consoleBatch(ctx context.Context, gw *gateway.Gateway, path string) {
	raw, err := os.ReadFile(path)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}

	var envelope struct {
		Batch   []batch.Entry `json:"batch"`
		Options batch.Options `json:"options"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}

	id, err := gw.SubmitBatch(ctx, envelope.Batch, envelope.Options)
	if err != nil {
		fmt.Printf("Batch rejected: %v\n", err)
		return
	}
	fmt.Printf("Submitted batch %s (%d commands), waiting...\n", id, len(envelope.Batch))

	for {
		result, err := gw.PollBatch(ctx, id)
		if err != nil {
			fmt.Printf("Error: %v\n", err)
			return
		}
		if result.Status != batch.StatusPending && result.Status != batch.StatusRunning {
			printJSON(result.Wire())
			return
		}
		time.Sleep(50 * time.Millisecond)
	}
}

func consoleCompleter(gw *gateway.Gateway) readline.AutoCompleter {
	names := gw.Registry().Names()
	sort.Strings(names)

	items := make([]readline.PrefixCompleterInterface, 0, len(names)+8)
	for _, name := range names {
		items = append(items, readline.PcItem(name))
	}
	for _, colon := range []string{":scene", ":status", ":templates", ":batch", ":ask", ":history", ":help"} {
		items = append(items, readline.PcItem(colon))
	}
	items = append(items, readline.PcItem("exit"))
	return readline.NewPrefixCompleter(items...)
}

func printJSON(v interface{}) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	fmt.Println(string(out))
}
