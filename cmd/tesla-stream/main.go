package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"strings"

	"github.com/google/shlex"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/teslamotors/vehicle-streaming/internal/log"
	"github.com/teslamotors/vehicle-streaming/pkg/account"
	"github.com/teslamotors/vehicle-streaming/pkg/cli"
	"github.com/teslamotors/vehicle-streaming/pkg/streaming"
)

func writeErr(format string, a ...interface{}) {
	fmt.Fprintf(os.Stderr, format, a...)
	fmt.Fprintf(os.Stderr, "\n")
}

const usage = `
 * Streaming commands require a VIN and a token.
 * Account commands require a token.
 * Run without a COMMAND to start an interactive shell.`

func Usage() {
	fmt.Printf("Usage: %s [OPTION...] COMMAND [ARG...]\n", os.Args[0])
	fmt.Printf("\nRun %s help COMMAND for more information. Valid COMMANDs are listed below.", os.Args[0])
	fmt.Println("")
	fmt.Println(usage)
	fmt.Println("")

	fmt.Printf("Available OPTIONs:\n")
	flag.PrintDefaults()
	fmt.Println("")
	fmt.Printf("Available COMMANDs:\n")
	maxLength := 0
	var labels []string
	for command := range commands {
		labels = append(labels, command)
		if len(command) > maxLength {
			maxLength = len(command)
		}
	}
	sort.Strings(labels)
	for _, command := range labels {
		info := commands[command]
		fmt.Printf("  %s%s %s\n", command, strings.Repeat(" ", maxLength-len(command)), info.help)
	}
}

// runCommand executes args until it completes or the user interrupts it.
func runCommand(env *environment, args []string) int {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := execute(ctx, env, args); err != nil {
		writeErr("Failed to execute command: %s", err)
		return 1
	}
	return 0
}

func runInteractiveShell(env *environment) int {
	scanner := bufio.NewScanner(os.Stdin)
	for fmt.Printf("> "); scanner.Scan(); fmt.Printf("> ") {
		args, err := shlex.Split(scanner.Text())
		if len(args) == 0 {
			continue
		}
		if args[0] == "exit" {
			return 0
		}
		if err != nil {
			writeErr("Invalid command: %s", err)
			continue
		}
		if args[0] == "help" {
			Usage()
			continue
		}
		runCommand(env, args)
	}
	if err := scanner.Err(); err != nil {
		writeErr("Error reading command: %s", err)
		return 1
	}
	return 0
}

func serveMetrics(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	log.Info("Serving metrics on %s/metrics", addr)
	if err := http.ListenAndServe(addr, mux); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error("Metrics server failed: %s", err)
	}
}

func main() {
	status := 1
	defer func() {
		os.Exit(status)
	}()

	var (
		debug       bool
		format      string
		metricsAddr string
	)
	config, err := cli.NewConfig(cli.FlagAll)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load credential configuration: %s\n", err)
		os.Exit(1)
	}
	flag.Usage = Usage
	flag.BoolVar(&debug, "debug", false, "Enable verbose debugging messages")
	flag.StringVar(&format, "format", "text", "Telemetry output `format` (text|json)")
	flag.StringVar(&metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on `addr` (e.g., localhost:9090)")

	config.RegisterCommandLineFlags()
	flag.Parse()
	if !debug {
		if debugEnv, ok := os.LookupEnv("TESLA_VERBOSE"); ok {
			debug = debugEnv != "false" && debugEnv != "0"
		}
	}
	if debug {
		log.SetLevel(log.LevelDebug)
	} else {
		log.SetLevel(log.LevelInfo)
	}
	config.ReadFromEnvironment()

	if format != "text" && format != "json" {
		writeErr("Invalid -format: %s", format)
		return
	}

	args := flag.Args()
	if len(args) > 0 {
		if args[0] == "help" {
			if len(args) == 1 {
				Usage()
				status = 0
				return
			}
			info, ok := commands[args[1]]
			if !ok {
				writeErr("Unrecognized command: %s", args[1])
				return
			}
			info.Usage(args[1])
			status = 0
			return
		}
		if err := configureFlags(config, args[0]); err != nil {
			if errors.Is(err, ErrUnknownCommand) {
				writeErr("Unrecognized command: %s", args[0])
			} else {
				writeErr("Missing required flag: %s", err)
			}
			return
		}
	}

	env := &environment{
		config: config,
		format: format,
		out:    os.Stdout,
	}

	needsToken := len(args) == 0 || commands[args[0]].requiresToken
	if needsToken {
		if err := config.LoadCredentials(); err != nil {
			writeErr("Error loading credentials: %s", err)
			return
		}
		var acct *account.Account
		if acct, err = config.Account(); err != nil {
			writeErr("Error: %s", err)
			return
		}
		env.acct = acct
		env.client = streaming.NewClient(acct, acct, append(config.ClientOptions(), streaming.WithUserAgent(acct.UserAgent))...)
		defer env.client.CloseStream()
	}

	if metricsAddr != "" {
		go serveMetrics(metricsAddr)
	}

	if len(args) > 0 {
		status = runCommand(env, args)
	} else {
		status = runInteractiveShell(env)
	}
}
