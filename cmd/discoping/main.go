// Copyright (C) 2026 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

// Command discoping runs a node discovery endpoint: it signs and sends pings
// to its peers and verifies and logs the pings it receives.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/calmh/incontainer"
	"github.com/julienschmidt/httprouter"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/thejerf/suture/v4"

	"github.com/syncthing/discoping/internal/slogutil"
	_ "github.com/syncthing/discoping/lib/automaxprocs"
	"github.com/syncthing/discoping/lib/build"
	"github.com/syncthing/discoping/lib/config"
	"github.com/syncthing/discoping/lib/discover"
	"github.com/syncthing/discoping/lib/nodekey"
	"github.com/syncthing/discoping/lib/protocol"
	"github.com/syncthing/discoping/lib/signer"
	"github.com/syncthing/discoping/lib/stun"
	"github.com/syncthing/discoping/lib/svcutil"
)

const stunTimeout = 30 * time.Second

type CLI struct {
	KeyFile       string        `name:"keyfile" env:"DISCOPING_KEYFILE" help:"Private key file (default ${defaultKeyFile})"`
	Generate      bool          `help:"Generate a new private key, replacing the key file"`
	Config        string        `type:"path" env:"DISCOPING_CONFIG" help:"YAML configuration file"`
	ListenIP      string        `name:"listen-ip" env:"DISCOPING_LISTEN_IP" help:"Local IPv4 address to bind"`
	Endpoint      string        `env:"DISCOPING_ENDPOINT" help:"Endpoint to advertise, as ip:udp[:tcp] (default ${defaultEndpoint})"`
	Peer          []string      `env:"DISCOPING_PEERS" help:"Peer to ping, as ip:udp[:tcp]; may be repeated (default ${defaultBootnode})"`
	PingInterval  time.Duration `name:"ping-interval" env:"DISCOPING_PING_INTERVAL" help:"Interval between ping rounds"`
	Once          bool          `help:"Send one round of pings and exit"`
	MetricsListen string        `name:"metrics-listen" env:"DISCOPING_METRICS_LISTEN" help:"Prometheus metrics listen address"`
	StunServer    string        `name:"stun-server" env:"DISCOPING_STUN_SERVER" help:"STUN server used to find the external address"`
	RateAvg       float64       `name:"rate-avg" env:"DISCOPING_RATE_AVG" help:"Allowed average packet rate per source, per second"`
	RateBurst     int           `name:"rate-burst" env:"DISCOPING_RATE_BURST" help:"Allowed packet burst per source"`
	NoRateLimit   bool          `name:"no-rate-limit" help:"Disable inbound rate limiting"`
	LogLevel      slog.Level    `name:"log-level" env:"DISCOPING_LOG_LEVEL" default:"INFO" help:"Default log level; STTRACE sets it per package"`
	LogFormat     string        `name:"log-format" env:"DISCOPING_LOG_FORMAT" enum:"text,syslog" default:"text" help:"Log line format (${enum})"`

	Version kong.VersionFlag `help:"Show version and exit"`
}

func main() {
	var cli CLI
	kong.Parse(&cli,
		kong.Description("Sends and receives signed node discovery pings."),
		kong.Vars{
			"version":         build.LongVersion,
			"defaultKeyFile":  config.DefaultKeyFile,
			"defaultEndpoint": config.DefaultEndpoint,
			"defaultBootnode": config.DefaultBootnode,
		},
	)
	slogutil.SetLineFormat(lineFormat(cli.LogFormat))
	slogutil.SetDefaultLevel(cli.LogLevel)
	slog.Info("Starting", slog.String("version", build.LongVersion))

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := cli.Run(ctx); err != nil {
		slog.Error("Exiting", slogutil.Error(err))
		status := svcutil.ExitError
		var fatalErr *svcutil.FatalErr
		if errors.As(err, &fatalErr) {
			status = fatalErr.Status
		}
		cancel()
		os.Exit(status.AsInt())
	}
}

func (cli *CLI) Run(ctx context.Context) error {
	cfg, err := cli.configuration()
	if err != nil {
		return err
	}

	key, err := cli.loadKey(cfg.KeyFile)
	if err != nil {
		return err
	}
	sig, err := signer.New(signer.Default(), key)
	if err != nil {
		return err
	}

	// Validate has been called, these cannot fail.
	listenIP, _ := cfg.ListenAddress()
	local, _ := cfg.LocalEndpoint()
	peers, _ := cfg.PeerEndpoints()

	bound, advertised := local, local
	if cfg.StunServer != "" {
		bound, advertised = externalEndpoint(ctx, listenIP, local, cfg.StunServer)
	} else if local.Addr().IsLoopback() && incontainer.Detect() {
		slog.Warn("Advertising a loopback endpoint from inside a container; peers will not be able to reach it", local.LogAttr())
	}

	svc, err := newDiscovery(cfg, listenIP, bound.UDP, advertised, sig)
	if err != nil {
		return err
	}
	slog.Info("Node identity", slog.String("id", sig.ID().String()), svc.Endpoint().LogAttr())

	pinger := discover.NewPinger(svc, peers, cfg.PingInterval())

	if cli.Once {
		defer svc.Close()
		if sent := pinger.PingAll(ctx); sent < len(peers) {
			return fmt.Errorf("pinged %d of %d peers", sent, len(peers))
		}
		return nil
	}

	mainSvc := suture.New("main", svcutil.SpecWithDebugLogger())
	mainSvc.Add(svcutil.AsService(func(ctx context.Context) error {
		return serveDiscovery(ctx, svc)
	}, svc.String()))
	mainSvc.Add(pinger)
	if cfg.MetricsListen != "" {
		mainSvc.Add(svcutil.AsService(func(ctx context.Context) error {
			return serveMetrics(ctx, cfg.MetricsListen)
		}, "metrics server"))
	}

	err = mainSvc.Serve(ctx)
	svc.Close()
	if err == nil || ctx.Err() != nil {
		return nil
	}
	return err
}

// configuration merges defaults, the configuration file and the command
// line, in increasing order of precedence.
func (cli *CLI) configuration() (config.Configuration, error) {
	cfg := config.New()
	if cli.Config != "" {
		var err error
		cfg, err = config.Load(cli.Config)
		if err != nil {
			return config.Configuration{}, err
		}
	}

	if cli.KeyFile != "" {
		cfg.KeyFile = cli.KeyFile
	}
	if cli.ListenIP != "" {
		cfg.ListenIP = cli.ListenIP
	}
	if cli.Endpoint != "" {
		cfg.Endpoint = cli.Endpoint
	}
	if len(cli.Peer) > 0 {
		cfg.Peers = cli.Peer
	}
	if cli.PingInterval != 0 {
		if cli.PingInterval < time.Second || cli.PingInterval%time.Second != 0 {
			return config.Configuration{}, fmt.Errorf("%w: ping interval %v is not a whole number of seconds", config.ErrInvalidConfig, cli.PingInterval)
		}
		cfg.PingIntervalS = int(cli.PingInterval / time.Second)
	}
	if cli.MetricsListen != "" {
		cfg.MetricsListen = cli.MetricsListen
	}
	if cli.StunServer != "" {
		cfg.StunServer = cli.StunServer
	}
	if cli.RateAvg != 0 {
		cfg.RateAvg = cli.RateAvg
	}
	if cli.RateBurst != 0 {
		cfg.RateBurst = cli.RateBurst
	}
	if cli.NoRateLimit {
		cfg.RateAvg = 0
	}

	if err := cfg.Validate(); err != nil {
		return config.Configuration{}, err
	}
	return cfg, nil
}

func lineFormat(name string) slogutil.LineFormat {
	if name == "syslog" {
		return slogutil.SyslogLineFormat
	}
	return slogutil.DefaultLineFormat
}

// newDiscovery binds the discovery socket on the given local port and
// advertises the given endpoint, which differs from the local address
// behind NAT.
func newDiscovery(cfg config.Configuration, listenIP net.IP, port uint16, advertised protocol.Endpoint, sig *signer.Signer) (*discover.Service, error) {
	return discover.New(discover.Config{
		ListenIP:      listenIP,
		Port:          port,
		RateAvg:       cfg.RateAvg,
		RateBurst:     cfg.RateBurst,
		RateCacheSize: cfg.RateCacheSize,
	}, discover.Identity{Endpoint: advertised, Signer: sig})
}

func (cli *CLI) loadKey(path string) ([]byte, error) {
	if cli.Generate {
		key, err := nodekey.Generate(path)
		if err != nil {
			return nil, err
		}
		slog.Info("Generated new private key", slog.String("path", path))
		return key, nil
	}
	return nodekey.Load(path)
}

// serveDiscovery runs the receive loop. A socket that keeps failing takes
// the whole process down; a closed service is not restarted.
func serveDiscovery(ctx context.Context, svc *discover.Service) error {
	err := svc.Serve(ctx)
	if errors.Is(err, discover.ErrIO) {
		return svcutil.AsFatalErr(err, svcutil.ExitError)
	}
	return svcutil.NoRestartErr(err)
}

func serveMetrics(ctx context.Context, addr string) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("metrics listener: %w", err)
	}
	slog.Info("Listening (metrics)", slogutil.Address(listener.Addr()))
	return serveHTTP(ctx, listener)
}

// serveHTTP serves /metrics and a /ping health check on the listener until
// the context is cancelled.
func serveHTTP(ctx context.Context, listener net.Listener) error {
	router := httprouter.New()
	router.Handler(http.MethodGet, "/metrics", promhttp.Handler())
	router.HandlerFunc(http.MethodGet, "/ping", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("OK"))
	})
	srv := &http.Server{
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errC := make(chan error, 1)
	go func() {
		errC <- srv.Serve(listener)
	}()

	select {
	case err := <-errC:
		return fmt.Errorf("metrics server: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return ctx.Err()
	}
}

// externalEndpoint asks the STUN server for our external address, using a
// socket on the same local address the discovery service binds afterwards.
// It returns the local endpoint to bind and the endpoint to advertise. On
// failure the configured endpoint is advertised.
func externalEndpoint(ctx context.Context, listenIP net.IP, local protocol.Endpoint, server string) (bound, advertised protocol.Endpoint) {
	conn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: listenIP, Port: int(local.UDP)})
	if err != nil {
		slog.Warn("Skipping STUN discovery", slogutil.Error(err))
		return local, local
	}
	defer conn.Close()
	if local.UDP == 0 {
		local = local.WithUDP(uint16(conn.LocalAddr().(*net.UDPAddr).Port))
	}

	ctx, cancel := context.WithTimeout(ctx, stunTimeout)
	defer cancel()
	ext, err := stun.ExternalEndpoint(ctx, conn, server, local)
	if err != nil {
		slog.Warn("STUN discovery failed, advertising the configured endpoint", slog.String("server", server), slogutil.Error(err))
		return local, local
	}
	slog.Info("Discovered external endpoint", ext.LogAttr(), slog.Int("localPort", int(local.UDP)))
	return local, ext
}
