// scrubproxy is a reverse proxy that redacts PII from upstream responses
// and routes traffic between upstream variants by header and cookie rules.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/edgescrub/edgescrub-go/internal/proxy"
	"github.com/edgescrub/edgescrub-go/route"
	"github.com/edgescrub/edgescrub-go/scrub"
)

var (
	listenAddr  string
	scrubConfig string
	routeConfig string
	upstreams   []string
	logLevel    string
)

var rootCmd = &cobra.Command{
	Use:   "scrubproxy",
	Short: "Reverse proxy that redacts PII from upstream responses",
	Long: `scrubproxy sits in front of one or more upstream services, picks an
upstream variant per request from declarative header and cookie rules, and
rewrites credit card numbers, SSNs, email addresses and phone numbers out of
textual response bodies before they reach the client.

Example:
  # Proxy a single upstream with the default policy
  scrubproxy --upstream v1=http://localhost:3000

  # Two variants with routing rules and a custom scrub policy
  scrubproxy --upstream v1=http://localhost:3000 \
             --upstream v2=http://localhost:3001 \
             --scrub-config scrub.json --route-config routes.json`,
	RunE: run,
}

func init() {
	rootCmd.Flags().StringVarP(&listenAddr, "listen", "l", ":8080",
		"Address to listen on")
	rootCmd.Flags().StringSliceVarP(&upstreams, "upstream", "u", nil,
		"Upstream as label=url (repeatable)")
	rootCmd.Flags().StringVar(&scrubConfig, "scrub-config", "",
		"Path to the scrub policy JSON file")
	rootCmd.Flags().StringVar(&routeConfig, "route-config", "",
		"Path to the routing rules JSON file")
	rootCmd.Flags().StringVar(&logLevel, "log-level", "",
		"Override the configured log level (trace, debug, info, warn, error)")

	rootCmd.Version = scrub.Version()
}

func run(cmd *cobra.Command, args []string) error {
	logger := log.New(os.Stderr, "[scrubproxy] ", log.LstdFlags)

	scrubCfg, err := loadScrubConfig(logger)
	if err != nil {
		return err
	}
	scrubCfg.Logger = logger
	if logLevel != "" {
		scrubCfg.LogLevel = logLevel
	}

	auditor := scrub.NewAuditor(func(evt scrub.AuditEvent) {
		logger.Printf("audit exchange=%s path=%s matches=%d categories=%v bytes=%d took=%s",
			evt.ExchangeID, evt.Path, evt.MatchCount, evt.Categories, evt.BodyBytes, evt.Duration)
	}, 0, 0)
	scrubCfg.Audit = auditor

	router, err := loadRouter(logger)
	if err != nil {
		return err
	}

	targets, err := parseUpstreams(upstreams)
	if err != nil {
		return err
	}

	handler, err := proxy.New(proxy.Config{
		Upstreams: targets,
		Filter:    scrub.NewFilter(scrubCfg),
		Router:    router,
	})
	if err != nil {
		return err
	}

	server := &http.Server{
		Addr:              listenAddr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Printf("listening on %s", listenAddr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	shutdownCh := make(chan os.Signal, 1)
	signal.Notify(shutdownCh, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-shutdownCh:
		logger.Printf("received %s, shutting down", sig)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Printf("server shutdown: %v", err)
	}
	if err := auditor.Shutdown(ctx); err != nil {
		logger.Printf("auditor shutdown: %v", err)
	}
	return nil
}

func loadScrubConfig(logger *log.Logger) (scrub.Config, error) {
	if scrubConfig == "" {
		return scrub.DefaultConfig(), nil
	}
	raw, err := os.ReadFile(scrubConfig)
	if err != nil {
		return scrub.Config{}, fmt.Errorf("read scrub config: %w", err)
	}
	cfg, err := scrub.ParseConfig(raw)
	if err != nil {
		// Malformed policy falls back to defaults rather than refusing
		// to start; the proxy must keep serving traffic.
		logger.Printf("%s: %v", scrubConfig, err)
	}
	return cfg, nil
}

func loadRouter(logger *log.Logger) (*route.Router, error) {
	if routeConfig == "" {
		return route.New(route.DefaultConfig()), nil
	}
	raw, err := os.ReadFile(routeConfig)
	if err != nil {
		return nil, fmt.Errorf("read route config: %w", err)
	}
	cfg, err := route.ParseConfig(raw)
	if err != nil {
		logger.Printf("%s: %v", routeConfig, err)
	}
	return route.New(cfg), nil
}

func parseUpstreams(pairs []string) (map[string]string, error) {
	targets := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		label, target, ok := strings.Cut(pair, "=")
		if !ok || label == "" || target == "" {
			return nil, fmt.Errorf("upstream %q is not label=url", pair)
		}
		targets[label] = target
	}
	if len(targets) == 0 {
		return nil, errors.New("at least one --upstream is required")
	}
	return targets, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
