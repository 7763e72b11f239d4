// Copyright 2026 The Zaparoo Project Contributors.
// SPDX-License-Identifier: Apache-2.0
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


// Command cardpoll polls PN532 terminals with a fixed set of command APDUs
// and prints, and optionally publishes over MQTT, every response set that
// differs from the previous one.
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

	"github.com/ZaparooProject/go-smartcard"
	"github.com/ZaparooProject/go-smartcard/detection"
	"github.com/ZaparooProject/go-smartcard/internal/config"
	"github.com/ZaparooProject/go-smartcard/internal/publish"
	"github.com/ZaparooProject/go-smartcard/pn532"
	"github.com/ZaparooProject/go-smartcard/polling"
	"github.com/ZaparooProject/go-smartcard/transport/i2c"
	"github.com/ZaparooProject/go-smartcard/transport/uart"
)

// Package-level flag variables
var (
	flagConfig     string
	flagDevicePath string
	flagAPDU       string
	flagSessionLog string
	flagInterval   time.Duration
	flagDebug      bool
)

func init() {
	flag.StringVar(&flagConfig, "config", "", "YAML configuration file")
	flag.StringVar(&flagDevicePath, "device", "", "Device path of a single PN532 (auto-detect if empty, ignored with -config)")
	flag.StringVar(&flagAPDU, "apdu", "", "Comma separated command APDUs in hex (ignored with -config)")
	flag.StringVar(&flagSessionLog, "session-log", "", "Directory for a session log file")
	flag.DurationVar(&flagInterval, "interval", 0, "Poll interval (overrides the configuration)")
	flag.BoolVar(&flagDebug, "debug", false, "Enable debug output")
}

type options struct {
	configPath string
	devicePath string
	apdu       string
	sessionLog string
	interval   time.Duration
	debug      bool
}

func parseOptions() options {
	return options{
		configPath: flagConfig,
		devicePath: flagDevicePath,
		apdu:       flagAPDU,
		sessionLog: flagSessionLog,
		interval:   flagInterval,
		debug:      flagDebug,
	}
}

// linkOpener opens the PN532 link of a configured terminal.
type linkOpener func(tc config.TerminalConfig) (pn532.Link, error)

// terminalFinder discovers terminals when neither a file nor a device is given.
type terminalFinder func(ctx context.Context) ([]config.TerminalConfig, error)

func detectTerminals(ctx context.Context) ([]config.TerminalConfig, error) {
	opts := detection.DefaultOptions()
	devices, err := detection.New().Detect(ctx, &opts)
	if err != nil {
		return nil, fmt.Errorf("failed to detect PN532 devices: %w", err)
	}

	terminals := make([]config.TerminalConfig, 0, len(devices))
	for _, d := range devices {
		smartcard.Debugf("detected %s", d)
		terminals = append(terminals, config.TerminalConfig{Transport: d.Transport, Path: d.Path})
	}
	return terminals, nil
}

// guessTransport picks the transport for a bare device path.
func guessTransport(path string) string {
	if strings.Contains(strings.ToLower(path), "i2c") {
		return config.TransportI2C
	}
	return config.TransportUART
}

func openLink(tc config.TerminalConfig) (pn532.Link, error) {
	switch tc.Transport {
	case config.TransportUART:
		link, err := uart.New(tc.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to create UART transport: %w", err)
		}
		return link, nil
	case config.TransportI2C:
		link, err := i2c.New(tc.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to create I2C transport: %w", err)
		}
		return link, nil
	default:
		return nil, fmt.Errorf("unsupported transport type: %s", tc.Transport)
	}
}

// loadConfig reads the configuration file, or builds one from the flags
// when no file is given. Flags override the file where both apply.
func loadConfig(ctx context.Context, opts options, find terminalFinder) (*config.Config, error) {
	var cfg *config.Config
	if opts.configPath != "" {
		loaded, err := config.Load(opts.configPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	} else {
		cfg = &config.Config{}
		switch {
		case opts.devicePath != "":
			cfg.Terminals = []config.TerminalConfig{{
				Transport: guessTransport(opts.devicePath),
				Path:      opts.devicePath,
			}}
		case find != nil:
			terminals, err := find(ctx)
			if err != nil {
				return nil, err
			}
			cfg.Terminals = terminals
		}
		for _, s := range strings.Split(opts.apdu, ",") {
			if s = strings.TrimSpace(s); s != "" {
				cfg.Commands = append(cfg.Commands, s)
			}
		}
		if err := config.Validate(cfg); err != nil {
			return nil, err
		}
		config.Normalize(cfg)
	}

	if opts.interval > 0 {
		cfg.Poll.IntervalMs = int(opts.interval / time.Millisecond)
	}
	if opts.debug {
		cfg.Log.Debug = true
	}
	if opts.sessionLog != "" {
		cfg.Log.SessionDir = opts.sessionLog
	}
	return cfg, nil
}

// printResponses writes one line per terminal followed by its responses.
func printResponses(out io.Writer, responses map[string][]smartcard.Response) {
	_, _ = fmt.Fprintf(out, "[%s] responses changed\n", time.Now().Format("15:04:05.000"))
	for _, name := range publish.TerminalNames(responses) {
		list := responses[name]
		if len(list) == 0 {
			_, _ = fmt.Fprintf(out, "  %s: no card\n", name)
			continue
		}
		_, _ = fmt.Fprintf(out, "  %s:\n", name)
		for i, r := range list {
			_, _ = fmt.Fprintf(out, "    #%d ch%d % X\n", i, r.Channel(), r.Data())
		}
	}
}

func run(ctx context.Context, cfg *config.Config, open linkOpener, out io.Writer) error {
	if cfg.Log.Debug {
		smartcard.SetDebugEnabled(true)
	}
	if cfg.Log.SessionDir != "" {
		path, err := smartcard.InitSessionLog(cfg.Log.SessionDir)
		if err != nil {
			return fmt.Errorf("failed to open session log: %w", err)
		}
		_, _ = fmt.Fprintf(out, "Session log: %s\n", path)
		defer func() { _ = smartcard.CloseSessionLog() }()
	}

	cmds, err := cfg.PolledCommands()
	if err != nil {
		return err
	}
	preamble, err := cfg.PreambleCommands()
	if err != nil {
		return err
	}

	opened := make([]*pn532.Terminal, 0, len(cfg.Terminals))
	defer func() {
		for _, term := range opened {
			if closeErr := term.Close(); closeErr != nil {
				_, _ = fmt.Fprintf(os.Stderr, "Failed to close %s: %v\n", term.Name(), closeErr)
			}
		}
	}()
	terminals := make(smartcard.StaticTerminals, 0, len(cfg.Terminals))
	for _, tc := range cfg.Terminals {
		link, openErr := open(tc)
		if openErr != nil {
			return fmt.Errorf("terminal %s: %w", tc.Name, openErr)
		}
		term := pn532.NewTerminal(tc.Name, link)
		opened = append(opened, term)
		terminals = append(terminals, term)
	}

	publisher, err := publish.New(cfg.MQTT)
	if err != nil {
		return fmt.Errorf("failed to create MQTT publisher: %w", err)
	}
	if err := publisher.Connect(); err != nil {
		return fmt.Errorf("failed to connect to MQTT broker: %w", err)
	}
	defer publisher.Disconnect()

	reader := smartcard.NewReader(terminals,
		smartcard.WithPreamble(preamble...),
		smartcard.WithTerminalTimeout(cfg.TerminalTimeout()))

	pollCfg := cfg.PollingConfig()
	scheduler := polling.NewScheduler(reader, pollCfg)

	err = scheduler.Start(ctx, 0, cmds, func(responses map[string][]smartcard.Response) {
		printResponses(out, responses)
		publisher.Deliver(responses)
	})
	if err != nil {
		return fmt.Errorf("failed to start polling: %w", err)
	}

	_, _ = fmt.Fprintf(out, "Polling %d terminal(s), %s. Press Ctrl+C to stop...\n", len(terminals), pollCfg)

	<-ctx.Done()
	scheduler.Stop()
	scheduler.Wait()

	m := scheduler.GetMetrics()
	smartcard.Debugf("polling stopped: %+v", m)
	return ctx.Err()
}

func main() {
	flag.Parse()
	os.Exit(mainWithExitCode())
}

func mainWithExitCode() int {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := loadConfig(ctx, parseOptions(), detectTerminals)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 2
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		_, _ = fmt.Print("\nShutting down gracefully...\n")
		cancel()
	}()

	if err := run(ctx, cfg, openLink, os.Stdout); err != nil {
		if errors.Is(err, context.Canceled) {
			return 0
		}
		_, _ = fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}
