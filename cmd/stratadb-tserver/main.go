package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"

	"stratadb/internal/config"
	mastergrpc "stratadb/internal/master/grpc"
	"stratadb/internal/tserver"
	"stratadb/internal/version"
	api "stratadb/pkg/api"
)

func main() {
	configPath := flag.String("config", "configs/tserver.example.yaml", "path to tablet server config")
	flag.Parse()

	cfg, err := config.LoadTabletServerConfig(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if cfg.DataDir == "" {
		log.Fatal("tablet server data directory is empty")
	}

	serverUUID, err := loadOrCreateUUID(cfg.DataDir)
	if err != nil {
		log.Fatalf("instance uuid: %v", err)
	}

	tablets, err := tserver.OpenTabletManager(filepath.Join(cfg.DataDir, "tablet-meta"))
	if err != nil {
		log.Fatalf("failed to open tablet metadata: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	client, err := mastergrpc.NewClient(ctx, cfg.MasterAddress)
	if err != nil {
		log.Fatalf("connect to master %s: %v", cfg.MasterAddress, err)
	}

	rpcAddr, err := tserver.AdvertiseAddress(cfg.RPCAddress)
	if err != nil {
		log.Fatalf("rpc address: %v", err)
	}
	httpAddr, err := tserver.AdvertiseAddress(cfg.HTTPAddress)
	if err != nil {
		log.Fatalf("http address: %v", err)
	}
	reg := &api.ServerRegistration{
		RPCAddresses:    []api.HostPort{rpcAddr},
		HTTPAddresses:   []api.HostPort{httpAddr},
		HTTPSEnabled:    cfg.HTTPSEnabled,
		SoftwareVersion: version.Short(),
		StartTimeUnix:   time.Now().Unix(),
	}
	hb := tserver.NewHeartbeater(tserver.HeartbeaterOptions{
		Client:       client,
		Tablets:      tablets,
		UUID:         serverUUID,
		Registration: reg,
		Interval:     cfg.HeartbeatInterval,
		Timeout:      cfg.HeartbeatTimeout,
	})
	go hb.Run(ctx)
	log.Printf("%s tablet server %s heartbeating to %s", version.Full(), serverUUID, cfg.MasterAddress)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	cancel()
	_ = client.Close()
	if err := tablets.Close(); err != nil {
		log.Printf("tablet metadata close error: %v", err)
	}
	log.Println("tablet server stopped")
}

// loadOrCreateUUID persists the instance identity so the master sees the same
// server across restarts.
func loadOrCreateUUID(dataDir string) (string, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(dataDir, "instance-uuid")
	data, err := os.ReadFile(path)
	if err == nil {
		return strings.TrimSpace(string(data)), nil
	}
	if !os.IsNotExist(err) {
		return "", err
	}
	id := uuid.NewString()
	if err := os.WriteFile(path, []byte(id+"\n"), 0o644); err != nil {
		return "", err
	}
	return id, nil
}
