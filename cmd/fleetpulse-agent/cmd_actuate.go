package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/roomoperable/fleetpulse/internal/agent"
	"github.com/roomoperable/fleetpulse/internal/presence"
	"go.uber.org/zap"
)

// runActuate publishes a one-shot state change to a Zigbee device's set
// topic:
//
//	fleetpulse-agent actuate -device hallway_plug -state ON
func runActuate(args []string) {
	fs := flag.NewFlagSet("actuate", flag.ExitOnError)
	configPath := fs.String("config", "", "path to configuration file")
	device := fs.String("device", "", "zigbee friendly name")
	state := fs.String("state", "", "target state: ON or OFF")

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	if *device == "" {
		fmt.Fprintln(os.Stderr, "actuate: -device is required")
		os.Exit(1)
	}
	target := strings.ToUpper(*state)
	if target != "ON" && target != "OFF" {
		fmt.Fprintln(os.Stderr, "actuate: -state must be ON or OFF")
		os.Exit(1)
	}

	cfg, err := agent.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "actuate: load configuration: %v\n", err)
		os.Exit(1)
	}

	sub := presence.NewSubscriber(cfg.MQTT, presence.NewCache(), zap.NewNop())
	if err := sub.Connect(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "actuate: %v\n", err)
		os.Exit(1)
	}
	defer sub.Close()

	if err := sub.PublishAction(*device, map[string]any{"state": target}); err != nil {
		fmt.Fprintf(os.Stderr, "actuate: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Sent %s to %s\n", target, *device)
}
