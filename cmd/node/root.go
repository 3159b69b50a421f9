package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/ryandielhenn/sudokumesh/internal/telemetry"
	"github.com/ryandielhenn/sudokumesh/pkg/discovery"
	"github.com/ryandielhenn/sudokumesh/pkg/node"
	"github.com/ryandielhenn/sudokumesh/pkg/protocol"
)

const (
	defaultHTTPPort = 8000
	leaseTTL        = 10
	shutdownTimeout = 5 * time.Second
)

type options struct {
	httpPort     int
	p2pPort      int
	anchor       string
	handicapMS   int
	host         string
	interval     time.Duration
	solveTimeout time.Duration
	dialTimeout  time.Duration
	writeTimeout time.Duration
	workLocally  bool
	etcd         []string
	nodeID       string
	cacheSize    int
	cacheTTL     time.Duration
	logLevel     string
	logFormat    string
}

func newRootCmd() *cobra.Command {
	opts := options{}
	def := node.DefaultConfig()

	cmd := &cobra.Command{
		Use:   "sudokumesh",
		Short: "Run a sudoku compute mesh node",
		Long: `Runs one node of a peer-to-peer sudoku solving mesh. Nodes find each
other through an anchor peer (or an etcd directory), gossip their neighbor
lists, and split brute-force solves across every connected peer.

Examples:
  # Start the first node
  sudokumesh -p 8001 -s 7001

  # Join it from a second node, verifying with a 2ms handicap per check
  sudokumesh -p 8002 -s 7002 -a 127.0.0.1:7001 -H 2`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return run(ctx, opts)
		},
	}

	f := cmd.Flags()
	f.IntVarP(&opts.httpPort, "http-port", "p", defaultHTTPPort, "HTTP port for /solve, /stats and /network")
	f.IntVarP(&opts.p2pPort, "p2p-port", "s", def.P2PPort, "port peers connect to")
	f.StringVarP(&opts.anchor, "anchor", "a", "", "address of a node to join (host:port)")
	f.IntVarP(&opts.handicapMS, "handicap", "H", 0, "milliseconds slept per verification check")
	f.StringVar(&opts.host, "host", "", "address advertised to peers (detected when empty)")
	f.DurationVar(&opts.interval, "interval", def.MaintenanceInterval, "topology and stats refresh period")
	f.DurationVar(&opts.solveTimeout, "solve-timeout", def.SolveTimeout, "how long /solve waits for an answer")
	f.DurationVar(&opts.dialTimeout, "dial-timeout", def.DialTimeout, "peer dial timeout")
	f.DurationVar(&opts.writeTimeout, "write-timeout", def.WriteTimeout, "peer write timeout")
	f.BoolVar(&opts.workLocally, "work-locally", false, "verify on this node even when it has peers")
	f.StringSliceVar(&opts.etcd, "etcd", nil, "etcd endpoints for the node directory (comma-separated)")
	f.StringVar(&opts.nodeID, "node-id", "", "directory key for this node (defaults to its address)")
	f.IntVar(&opts.cacheSize, "cache-size", def.CacheSize, "solved puzzles kept in memory, 0 disables")
	f.DurationVar(&opts.cacheTTL, "cache-ttl", def.CacheTTL, "how long a cached solution is served")
	f.StringVar(&opts.logLevel, "log-level", "info", "debug, info, warn or error")
	f.StringVar(&opts.logFormat, "log-format", "console", "json or console")
	return cmd
}

func run(ctx context.Context, opts options) error {
	log, err := newLogger(opts.logLevel, opts.logFormat)
	if err != nil {
		return err
	}
	defer log.Sync()
	telemetry.SetBuildInfo(version, gitSHA)

	cfg := node.DefaultConfig()
	cfg.Host = opts.host
	cfg.P2PPort = opts.p2pPort
	cfg.MaintenanceInterval = opts.interval
	cfg.SolveTimeout = opts.solveTimeout
	cfg.DialTimeout = opts.dialTimeout
	cfg.WriteTimeout = opts.writeTimeout
	cfg.Handicap = time.Duration(opts.handicapMS) * time.Millisecond
	cfg.AlwaysWorkLocally = opts.workLocally
	cfg.CacheSize = opts.cacheSize
	cfg.CacheTTL = opts.cacheTTL
	cfg.Logger = log

	n, err := node.New(cfg)
	if err != nil {
		return fmt.Errorf("create node: %w", err)
	}
	n.Start()
	defer n.Close()

	anchor := opts.anchor
	if len(opts.etcd) > 0 {
		found, stopDirectory, err := joinDirectory(ctx, log, n, opts)
		if err != nil {
			return err
		}
		defer stopDirectory()
		if anchor == "" {
			anchor = found
		}
	}

	if anchor != "" {
		addr, err := protocol.ParseAddress(node.NormalizeHostPort(anchor, strconv.Itoa(node.DefaultP2PPort)))
		if err != nil {
			return fmt.Errorf("anchor %q: %w", anchor, err)
		}
		joinCtx, cancel := context.WithTimeout(ctx, cfg.DialTimeout)
		err = n.Join(joinCtx, addr)
		cancel()
		if err != nil {
			return fmt.Errorf("join anchor %s: %w", addr, err)
		}
		log.Info("joined mesh", zap.Stringer("anchor", addr))
	}

	srv := &http.Server{
		Addr:              net.JoinHostPort("", strconv.Itoa(opts.httpPort)),
		Handler:           n.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	errc := make(chan error, 1)
	go func() {
		log.Info("http listening", zap.String("addr", srv.Addr), zap.Stringer("p2p", n.Addr()))
		errc <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		log.Info("shutting down")
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("http shutdown", zap.Error(err))
	}
	return nil
}

// joinDirectory registers the node in etcd, watches for nodes joining later
// and returns an anchor picked from the current directory.
func joinDirectory(ctx context.Context, log *zap.Logger, n *node.Node, opts options) (string, func(), error) {
	cli, err := discovery.NewClient(opts.etcd, opts.dialTimeout)
	if err != nil {
		return "", nil, fmt.Errorf("etcd client: %w", err)
	}
	self := n.Addr().String()
	id := opts.nodeID
	if id == "" {
		id = self
	}

	listCtx, cancel := context.WithTimeout(ctx, opts.dialTimeout)
	existing, err := discovery.GetPeers(listCtx, cli)
	cancel()
	if err != nil {
		cli.Close()
		return "", nil, err
	}
	anchor, _ := discovery.PickAnchor(existing, self)

	lease, stopKeepAlive, err := discovery.RegisterNode(ctx, cli, id, self, leaseTTL)
	if err != nil {
		cli.Close()
		return "", nil, fmt.Errorf("register %s: %w", id, err)
	}
	log.Info("registered in directory", zap.String("id", id), zap.Int("known", len(existing)))

	watchCtx, stopWatch := context.WithCancel(ctx)
	go discovery.WatchPeers(watchCtx, cli, func(ev discovery.Event) {
		if ev.Deleted || ev.Addr == self {
			return
		}
		addr, err := protocol.ParseAddress(ev.Addr)
		if err != nil {
			log.Warn("bad directory entry", zap.String("id", ev.ID), zap.Error(err))
			return
		}
		n.Discover(addr)
	})

	stop := func() {
		stopWatch()
		stopKeepAlive()
		revokeCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		_, _ = cli.Revoke(revokeCtx, lease)
		cancel()
		cli.Close()
	}
	return anchor, stop, nil
}

func newLogger(level, format string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}
	var cfg zap.Config
	switch format {
	case "json":
		cfg = zap.NewProductionConfig()
	case "console":
		cfg = zap.NewDevelopmentConfig()
	default:
		return nil, fmt.Errorf("log format %q: want json or console", format)
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.OutputPaths = []string{"stderr"}
	return cfg.Build()
}
