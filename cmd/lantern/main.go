package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/geanlabs/lantern/config"
	"github.com/geanlabs/lantern/node"
	"github.com/geanlabs/lantern/types"
)

func main() {
	var (
		configPath    string
		networkName   string
		checkpointHex string
		rpcURL        string
		dataDir       string
		gossip        bool
		listenAddr    string
		bootnodes     string
		relayInterval time.Duration
		logLevel      string
	)

	flag.StringVar(&configPath, "config", "", "Path to a network config YAML (overrides -network)")
	flag.StringVar(&networkName, "network", "mainnet", "Network preset (mainnet, sepolia)")
	flag.StringVar(&checkpointHex, "checkpoint", "", "Trusted checkpoint block root (0x-prefixed)")
	flag.StringVar(&rpcURL, "rpc-url", "", "Beacon node REST endpoint (overrides the preset)")
	flag.StringVar(&dataDir, "data-dir", "", "Directory for the verified-state store (empty runs in memory)")
	flag.BoolVar(&gossip, "gossip", false, "Join the gossip overlay")
	flag.StringVar(&listenAddr, "listen", "/ip4/0.0.0.0/udp/9000/quic-v1", "Gossip listen multiaddr")
	flag.StringVar(&bootnodes, "bootnodes", "", "Comma-separated bootnode multiaddrs")
	flag.DurationVar(&relayInterval, "relay-interval", 0, "Minimum spacing between relay batch publishes")
	flag.StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	flag.Parse()

	// Setup logger
	var level slog.Level
	switch strings.ToLower(logLevel) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))

	// Resolve network
	var (
		network config.Network
		err     error
	)
	if configPath != "" {
		network, err = config.Load(configPath)
	} else {
		network, err = config.ByName(networkName)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load network config: %v\n", err)
		os.Exit(1)
	}

	var checkpoint types.Root
	if checkpointHex != "" {
		if err := checkpoint.UnmarshalText([]byte(checkpointHex)); err != nil {
			fmt.Fprintf(os.Stderr, "invalid checkpoint %q: %v\n", checkpointHex, err)
			os.Exit(1)
		}
	}

	var bootnodeList []string
	if bootnodes != "" {
		bootnodeList = strings.Split(bootnodes, ",")
	}

	cfg := node.Config{
		Network:       network,
		Checkpoint:    checkpoint,
		RPCURL:        rpcURL,
		DataDir:       dataDir,
		GossipEnabled: gossip,
		ListenAddrs:   []string{listenAddr},
		Bootnodes:     bootnodeList,
		RelayInterval: relayInterval,
		Logger:        logger,
	}

	ctx := context.Background()
	n, err := node.New(ctx, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create node: %v\n", err)
		os.Exit(1)
	}

	n.Start()

	logger.Info("lantern light client running",
		"network", network.Name,
		"slot", n.CurrentSlot(),
	)

	// Wait for interrupt
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.Info("shutting down...")
	n.Stop()
}
