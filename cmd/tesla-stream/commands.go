package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"google.golang.org/protobuf/encoding/protojson"

	"github.com/teslamotors/vehicle-streaming/internal/log"
	"github.com/teslamotors/vehicle-streaming/pkg/account"
	"github.com/teslamotors/vehicle-streaming/pkg/cli"
	"github.com/teslamotors/vehicle-streaming/pkg/protocol"
	"github.com/teslamotors/vehicle-streaming/pkg/streaming"
)

var (
	ErrCommandLineArgs = errors.New("invalid command line arguments")
	ErrUnknownCommand  = errors.New("unrecognized command")
	ErrUnknownFormat   = errors.New("unknown output format")
)

type Argument struct {
	name string
	help string
}

// environment holds what handlers need to run. Fields are populated according to the Command's
// requirements.
type environment struct {
	config *cli.Config
	acct   *account.Account
	client *streaming.Client
	format string
	out    io.Writer
}

type Handler func(ctx context.Context, env *environment, args map[string]string) error

type Command struct {
	help          string
	requiresVIN   bool // True if command streams from a vehicle
	requiresToken bool // True if command requires an OAuth token
	args          []Argument
	optional      []Argument
	handler       Handler
}

// configureFlags sets c.Flags based on the command being run.
func configureFlags(c *cli.Config, commandName string) error {
	info, ok := commands[commandName]
	if !ok {
		return ErrUnknownCommand
	}
	c.Flags = cli.FlagOAuth
	if info.requiresVIN {
		c.Flags |= cli.FlagVIN | cli.FlagStream
	}
	if info.requiresVIN && c.VIN == "" {
		return errors.New("-vin")
	}
	if info.requiresToken && c.KeyringTokenName == "" && c.TokenFilename == "" {
		return errors.New("-token-name or -token-file")
	}
	return nil
}

func execute(ctx context.Context, env *environment, args []string) error {
	if len(args) == 0 {
		return errors.New("missing COMMAND")
	}
	info, ok := commands[args[0]]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownCommand, args[0])
	}
	if info.requiresToken && env.acct == nil {
		return errors.New("command requires an OAuth token")
	}
	if len(args)-1 < len(info.args) || len(args)-1 > len(info.args)+len(info.optional) {
		writeErr("Invalid number of command line arguments: %d (%d required, %d optional).", len(args)-1, len(info.args), len(info.optional))
		return ErrCommandLineArgs
	}
	keywords := make(map[string]string)
	for i, argInfo := range info.args {
		keywords[argInfo.name] = args[i+1]
	}
	index := len(info.args) + 1
	for _, argInfo := range info.optional {
		if index >= len(args) {
			break
		}
		keywords[argInfo.name] = args[index]
		index++
	}
	err := info.handler(ctx, env, keywords)
	if errors.Is(err, ErrCommandLineArgs) {
		info.Usage(args[0])
	}
	return err
}

func (c *Command) Usage(name string) {
	fmt.Printf("Usage: %s", name)
	maxLength := 0
	for _, arg := range c.args {
		fmt.Printf(" %s", arg.name)
		if len(arg.name) > maxLength {
			maxLength = len(arg.name)
		}
	}
	if len(c.optional) > 0 {
		fmt.Printf(" [")
	}
	for _, arg := range c.optional {
		fmt.Printf(" %s", arg.name)
		if len(arg.name) > maxLength {
			maxLength = len(arg.name)
		}
	}
	if len(c.optional) > 0 {
		fmt.Printf(" ]")
	}
	fmt.Printf("\n%s\n", c.help)
	maxLength++
	for _, arg := range append(c.args, c.optional...) {
		fmt.Printf("    %s:%s%s\n", arg.name, strings.Repeat(" ", maxLength-len(arg.name)), arg.help)
	}
}

// formatEvent renders a telemetry sample as a single line.
func formatEvent(format string, sample protocol.StreamEvent) (string, error) {
	switch format {
	case "", "text":
		if ts, ok := sample.Timestamp(); ok {
			return ts.Format(time.RFC3339Nano) + " " + sample.String(), nil
		}
		return sample.String(), nil
	case "json":
		s, err := sample.Struct()
		if err != nil {
			return "", err
		}
		encoded, err := protojson.Marshal(s)
		if err != nil {
			return "", err
		}
		return string(encoded), nil
	}
	return "", fmt.Errorf("%w: %s", ErrUnknownFormat, format)
}

func parseLimit(args map[string]string) (int, error) {
	s, ok := args["SAMPLES"]
	if !ok {
		return 0, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%w: SAMPLES must be a non-negative integer", ErrCommandLineArgs)
	}
	return n, nil
}

func streamHandler(ctx context.Context, env *environment, args map[string]string) error {
	limit, err := parseLimit(args)
	if err != nil {
		return err
	}
	car, err := env.config.Vehicle(ctx, env.acct)
	if err != nil {
		return err
	}
	log.Info("Streaming from %s...", &car)

	stream := env.client.OpenStream(ctx, car, env.config.StreamOptions())
	defer stream.Close()

	var samples int
	var lastErr error
	for event, err := range stream.All(ctx) {
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}
		switch event.Kind {
		case streaming.EventOpen:
			log.Debug("Subscription sent")
		case streaming.EventData:
			line, err := formatEvent(env.format, event.Data)
			if err != nil {
				return err
			}
			fmt.Fprintln(env.out, line)
			samples++
			if limit > 0 && samples >= limit {
				return nil
			}
		case streaming.EventError:
			lastErr = event.Err
			writeErr("Stream error: %s", event.Err)
		case streaming.EventDisconnected:
			log.Info("Stream closed after %d samples", samples)
		}
	}
	if protocol.ShouldReconnect(lastErr) {
		writeErr("The condition may be temporary. Try again later, or use -reload if the vehicle record is stale.")
	}
	return nil
}

func vehiclesHandler(ctx context.Context, env *environment, _ map[string]string) error {
	vehicles, err := env.acct.ListVehicles(ctx)
	if err != nil {
		return err
	}
	for _, v := range vehicles {
		fmt.Fprintf(env.out, "%s\t%d\t%s\t%s\n", v.VIN, v.VehicleID, v.State, v.DisplayName)
		env.config.UpdateCachedVehicle(v)
	}
	return nil
}

func saveTokenHandler(_ context.Context, env *environment, args map[string]string) error {
	var token []byte
	var err error
	if filename, ok := args["FILE"]; ok {
		token, err = os.ReadFile(filename)
	} else {
		token, err = io.ReadAll(os.Stdin)
	}
	if err != nil {
		return err
	}
	trimmed := strings.TrimSpace(string(token))
	if _, err := account.New(trimmed, ""); err != nil {
		return err
	}
	return env.config.SaveToken(trimmed)
}

var commands = map[string]*Command{
	"stream": {
		help:          "Stream telemetry from the vehicle until interrupted or SAMPLES samples are received",
		requiresVIN:   true,
		requiresToken: true,
		optional: []Argument{
			{name: "SAMPLES", help: "Stop after this many samples"},
		},
		handler: streamHandler,
	},
	"vehicles": {
		help:          "List vehicles on the account and update the vehicle cache",
		requiresToken: true,
		handler:       vehiclesHandler,
	},
	"save-token": {
		help: "Save an OAuth token read from FILE (or stdin) to the location given by -token-name or -token-file",
		optional: []Argument{
			{name: "FILE", help: "File containing the token"},
		},
		handler: saveTokenHandler,
	},
}
