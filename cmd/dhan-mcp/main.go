// Command dhan-mcp serves the Dhan trading API as MCP tools over stdio.
//
// Configuration comes from the environment (see internal/config). Protocol
// frames use stdout; logs go to stderr.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ggoodman/dhan-mcp/dhan"
	"github.com/ggoodman/dhan-mcp/dhantools"
	"github.com/ggoodman/dhan-mcp/internal/config"
	"github.com/ggoodman/dhan-mcp/internal/engine"
	"github.com/ggoodman/dhan-mcp/internal/logctx"
	"github.com/ggoodman/dhan-mcp/internal/metrics"
	"github.com/ggoodman/dhan-mcp/mcp"
	"github.com/ggoodman/dhan-mcp/stdio"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/pflag"
)

var version = "1.1.0"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	var logLevel, logFormat string
	var showVersion bool

	flagSet := pflag.NewFlagSet("dhan-mcp", pflag.ContinueOnError)
	flagSet.SetOutput(stderr)
	flagSet.StringVar(&logLevel, "log-level", "info", "log level: debug, info, warn, error")
	flagSet.StringVar(&logFormat, "log-format", "json", "log format: json or text")
	flagSet.BoolVar(&showVersion, "version", false, "print version and exit")
	flagSet.BoolP("help", "h", false, "show help")

	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	if help, _ := flagSet.GetBool("help"); help {
		printHelp(stderr, flagSet)
		return nil
	}
	if showVersion {
		fmt.Fprintf(stdout, "dhan-mcp %s\n", version)
		return nil
	}
	if rest := flagSet.Args(); len(rest) > 0 {
		return fmt.Errorf("unexpected argument: %s", rest[0])
	}

	log, err := newLogger(stderr, logLevel, logFormat)
	if err != nil {
		return err
	}
	slog.SetDefault(log)

	cfg, err := config.FromEnv()
	if err != nil {
		return err
	}

	var m *metrics.Metrics
	if cfg.MetricsAddr != "" {
		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		if m, err = metrics.New(reg); err != nil {
			return fmt.Errorf("register metrics: %w", err)
		}
		shutdown, err := serveMetrics(ctx, log, cfg.MetricsAddr, reg)
		if err != nil {
			return err
		}
		defer shutdown()
	}

	client, err := dhan.NewClient(cfg.AccessToken, cfg.ClientID,
		dhan.WithBaseURL(cfg.BaseURL),
		dhan.WithTimeout(cfg.Timeout()),
		dhan.WithRateLimit(cfg.RateLimit),
		dhan.WithLogger(log),
	)
	if err != nil {
		return err
	}

	reg, err := dhantools.NewRegistry(client, dhantools.Policy{
		TradingEnabled:   bool(cfg.TradingEnabled),
		MaxOrderQuantity: cfg.MaxOrderQuantity,
	})
	if err != nil {
		return fmt.Errorf("build tools: %w", err)
	}

	eng := engine.NewEngine(reg,
		engine.WithLogger(log),
		engine.WithServerInfo(mcp.ImplementationInfo{Name: "dhan-mcp", Version: version}),
		engine.WithMetrics(m),
	)
	h := stdio.NewHandler(eng,
		stdio.WithIO(stdin, stdout),
		stdio.WithLogger(log),
		stdio.WithMaxInFlight(cfg.MaxInFlight),
		stdio.WithMetrics(m),
	)

	log.InfoContext(ctx, "dhan_mcp.start",
		slog.String("version", version),
		slog.String("base_url", cfg.BaseURL),
		slog.Bool("trading_enabled", bool(cfg.TradingEnabled)),
		slog.Int("max_order_quantity", cfg.MaxOrderQuantity),
	)

	if err := h.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// newLogger builds the process logger. Records are decorated with the
// connection, rpc and tool groups carried on the context.
func newLogger(w io.Writer, level, format string) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("invalid --log-level %q: %w", level, err)
	}
	opts := &slog.HandlerOptions{Level: lvl}

	var base slog.Handler
	switch strings.ToLower(format) {
	case "json":
		base = slog.NewJSONHandler(w, opts)
	case "text":
		base = slog.NewTextHandler(w, opts)
	default:
		return nil, fmt.Errorf("invalid --log-format %q: want json or text", format)
	}
	return slog.New(logctx.NewHandler(base)), nil
}

// serveMetrics starts the Prometheus listener and returns a function that
// shuts it down.
func serveMetrics(ctx context.Context, log *slog.Logger, addr string, reg *prometheus.Registry) (func(), error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("metrics listen %s: %w", addr, err)
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.ErrorContext(ctx, "metrics.serve.fail", slog.String("err", err.Error()))
		}
	}()
	log.InfoContext(ctx, "metrics.serve.start", slog.String("addr", ln.Addr().String()))

	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}, nil
}

func printHelp(w io.Writer, flagSet *pflag.FlagSet) {
	fmt.Fprintf(w, `dhan-mcp serves the Dhan trading API as MCP tools over stdio.

Usage:
  dhan-mcp [flags]

Flags:
%s
Environment:
  DHAN_ACCESS_TOKEN       access token (required)
  DHAN_CLIENT_ID          client id (required)
  DHAN_BASE_URL           API root (default https://api.dhan.co/v2)
  DHAN_TIMEOUT_MS         per-request timeout (default 15000)
  DHAN_RATE_LIMIT         requests per second, 0 disables (default 0)
  ENABLE_TRADING_TOOLS    allow place_order and cancel_order (default false)
  MAX_ORDER_QUANTITY      place_order quantity cap (default 10000)
  MAX_INFLIGHT            concurrent dispatch cap (default 32)
  DHAN_MCP_METRICS_ADDR   Prometheus listen address, empty disables
`, flagSet.FlagUsages())
}
