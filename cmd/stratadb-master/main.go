package main

import (
	"context"
	"flag"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"google.golang.org/grpc"

	"stratadb/internal/config"
	"stratadb/internal/master"
	mastergrpc "stratadb/internal/master/grpc"
	"stratadb/internal/observability/metrics"
	"stratadb/internal/version"
	api "stratadb/pkg/api"
)

func main() {
	configPath := flag.String("config", "configs/master.example.yaml", "path to master config")
	flag.Parse()

	cfg, err := config.LoadMasterConfig(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	comps, err := master.OpenComponents(cfg)
	if err != nil {
		log.Fatalf("failed to open master state: %v", err)
	}

	masterReg := &api.ServerRegistration{
		RPCAddresses:    []api.HostPort{mustHostPort(cfg.RPCAddress)},
		HTTPAddresses:   []api.HostPort{mustHostPort(cfg.HTTPAddress)},
		SoftwareVersion: version.Short(),
	}
	service := master.NewHeartbeatService(comps.Catalog, comps.Directory, comps.CA, comps.TSK, masterReg)

	grpcServer := grpc.NewServer(grpc.ForceServerCodec(api.JSONCodec{}))
	mastergrpc.Register(grpcServer, service, comps.Catalog)

	lis, err := net.Listen("tcp", cfg.RPCAddress)
	if err != nil {
		log.Fatalf("listen: %v", err)
	}
	log.Printf("%s master listening on %s", version.Full(), cfg.RPCAddress)

	ctx, cancel := context.WithCancel(context.Background())
	go comps.RunStalenessSweeper(ctx, cfg.Heartbeat.Interval)

	webSrv := master.NewWebServer(cfg.HTTPAddress, comps.Directory)
	go func() {
		if err := webSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("web server error: %v", err)
		}
	}()

	if cfg.MetricsAddress != "" {
		collector := metrics.NewControlPlaneCollector(nil, "stratadb", comps.Catalog)
		go collector.Run(ctx, comps.Directory, cfg.Heartbeat.Interval)
		if err := metrics.StartServer(ctx, cfg.MetricsAddress); err != nil {
			log.Printf("metrics server error: %v", err)
		}
	}

	go func() {
		if err := grpcServer.Serve(lis); err != nil {
			log.Fatalf("serve: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	cancel()
	grpcServer.GracefulStop()
	_ = webSrv.Close()
	if err := comps.Close(); err != nil {
		log.Printf("close error: %v", err)
	}
	log.Println("master stopped")
}

func mustHostPort(addr string) api.HostPort {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		log.Fatalf("bad address %q: %v", addr, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		log.Fatalf("bad port in %q: %v", addr, err)
	}
	return api.HostPort{Host: host, Port: port}
}
