// tonelink encodes payloads into tone-modulated WAV frames, decodes
// demodulated frames and serves both over HTTP.
//
// Usage:
//
//	tonelink encode  -preset telemetry -values 1.3,0.8 -o frame.wav
//	tonelink encode  -preset literal -payload 0x56DD599D
//	tonelink encode  -server http://localhost:8080 -preset b -payload 42
//	tonelink decode  -preset telemetry -hex D5AA014D00CD0180
//	tonelink presets
//	tonelink batch   -preset literal -in payloads.txt -dir out/
//	tonelink serve   -config tonelink.yaml
//	tonelink listen  -url ws://localhost:8080/ws/events
//	tonelink send    -preset literal -payload 42 -target 10.0.0.5:5004
//	tonelink receive -preset literal -addr :5004 -o received.wav
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(2)
		}
		fmt.Fprintf(os.Stderr, "tonelink: %v\n", err)
		os.Exit(1)
	}
}

// command is one subcommand.
type command struct {
	name  string
	usage string
	run   func(ctx context.Context, env *env, args []string) error
}

// env carries the process streams so commands can be tested.
type env struct {
	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer
}

var commands = []command{
	{"encode", "encode one frame to a WAV file", runEncode},
	{"decode", "decode demodulated frame bytes", runDecode},
	{"presets", "list presets", runPresets},
	{"batch", "encode one frame per input line", runBatch},
	{"serve", "run the HTTP service", runServe},
	{"listen", "print events from a running service", runListen},
	{"send", "stream one frame over RTP", runSend},
	{"receive", "capture one frame from RTP into a WAV file", runReceive},
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	e := &env{stdin: stdin, stdout: stdout, stderr: stderr}
	if len(args) == 0 || args[0] == "-h" || args[0] == "help" {
		usage(stderr)
		return flag.ErrHelp
	}
	for _, c := range commands {
		if c.name == args[0] {
			return c.run(ctx, e, args[1:])
		}
	}
	usage(stderr)
	return fmt.Errorf("unknown command %q", args[0])
}

func usage(w io.Writer) {
	fmt.Fprintln(w, "usage: tonelink <command> [flags]")
	fmt.Fprintln(w)
	for _, c := range commands {
		fmt.Fprintf(w, "  %-8s %s\n", c.name, c.usage)
	}
}
