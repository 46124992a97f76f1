package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"

	"netsniff/internal/analysis"
	"netsniff/internal/api"
	"netsniff/internal/capture"
	"netsniff/internal/classifier"
	"netsniff/internal/config"
	"netsniff/internal/devices"
	"netsniff/internal/discovery"
	"netsniff/internal/engine"
	"netsniff/internal/filter"
	"netsniff/internal/logging"
	"netsniff/internal/metrics"
	"netsniff/internal/models"
	"netsniff/internal/publish"
	"netsniff/internal/refdata"
	"netsniff/internal/reporting"
	"netsniff/internal/tui"
)

func main() {
	opts, set, err := parseFlags(os.Args[1:], os.Stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		os.Exit(2)
	}

	if err := run(opts, set); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		if errors.Is(err, capture.ErrPermission) {
			fmt.Fprintln(os.Stderr, "Linux/macOS: run with sudo or grant CAP_NET_RAW. Windows: run as Administrator.")
		}
		os.Exit(1)
	}
}

func run(opts *options, set map[string]bool) error {
	if opts.list {
		return listInterfaces(os.Stdout)
	}

	cfg, err := config.LoadConfig(opts.configPath)
	if err != nil {
		return err
	}
	opts.apply(cfg, set)
	if err := cfg.Validate(); err != nil {
		return err
	}

	logOut := io.Writer(os.Stderr)
	if cfg.Log.File != "" {
		f, err := os.OpenFile(cfg.Log.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("open log file: %w", err)
		}
		defer f.Close()
		logOut = f
	} else if opts.tui {
		logOut = io.Discard
	}
	baseLog, err := logging.New(logging.Options{Level: cfg.Log.Level, JSON: cfg.Log.JSON, Out: logOut, NoColor: cfg.Log.File != ""})
	if err != nil {
		return err
	}
	log := logging.Component(baseLog, "MAIN")

	spec, err := filter.Parse(cfg.Filter.Protocol, cfg.Filter.SrcIP, cfg.Filter.DstIP, cfg.Filter.Port)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, closeStore := openRefData(ctx, cfg.RefData, logging.Component(baseLog, "REFDATA"))
	defer closeStore()

	tracker := devices.NewTracker(devices.Config{
		Interval:          cfg.Classification.Interval.Duration,
		MinPackets:        cfg.Classification.MinPackets,
		MaxSamplesPerPort: cfg.Classification.MaxSamplesPerPort,
		Retention:         cfg.Classification.Retention.Duration,
	}, classifier.New(store), logging.Component(baseLog, "TRACKER"))

	anomalyCfg := analysis.DefaultConfig()
	anomalyCfg.BroadcastThreshold = cfg.Anomaly.BroadcastThreshold
	anomalyCfg.DoSThreshold = cfg.Anomaly.DoSThreshold
	anomalyCfg.UnsecureCooldown = cfg.Anomaly.UnsecureCooldown.Duration
	stats := analysis.NewTrafficStats(anomalyCfg)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	var pub publish.Publisher = publish.Nop{}
	if cfg.NATS.Enabled {
		np, err := publish.NewNATSPublisher(cfg.NATS.URL, cfg.NATS.Subject, logging.Component(baseLog, "NATS"))
		if err != nil {
			log.Warn().Err(err).Msg("classification events will not be published")
		} else {
			pub = np
		}
	}
	defer pub.Close()

	src, iface, err := openSource(cfg.Capture, logging.Component(baseLog, "CAPTURE"))
	if err != nil {
		return err
	}
	defer src.Close()

	if !opts.tui {
		printBanner(os.Stdout, iface, spec)
	}

	if cfg.Discovery.Enabled && cfg.Capture.File == "" {
		learnHosts(ctx, iface, cfg.Discovery.Timeout.Duration, tracker, logging.Component(baseLog, "DISCOVERY"))
	}

	if cfg.API.Enabled {
		srv := api.NewServer(cfg.API.Listen, tracker, stats, reg, logging.Component(baseLog, "API"))
		if err := srv.Start(); err != nil {
			return fmt.Errorf("start API: %w", err)
		}
		defer func() {
			if err := srv.Shutdown(context.Background()); err != nil {
				log.Warn().Err(err).Msg("API shutdown")
			}
		}()
	}

	var echo func(models.PacketData)
	if cfg.Capture.Echo {
		echo = func(p models.PacketData) { fmt.Fprintln(os.Stdout, p.String()) }
	}

	eng := engine.New(engine.Options{
		Filter:    spec,
		Stats:     stats,
		Tracker:   tracker,
		Metrics:   m,
		Publisher: pub,
		Log:       logging.Component(baseLog, "ENGINE"),
		Echo:      echo,
	})

	if opts.tui {
		err = runWithTUI(ctx, eng, src, stats, tracker, iface, spec.String())
	} else {
		err = eng.Run(ctx, src.Packets(ctx))
	}
	if err != nil {
		return err
	}

	if ps, err := src.Stats(); err == nil {
		log.Info().
			Int("received", ps.PacketsReceived).
			Int("dropped", ps.PacketsDropped).
			Int64("skipped", src.Skipped()).
			Msg("capture finished")
	}

	snap := stats.Snapshot()
	devs := tracker.Devices()
	if err := reporting.WriteSummary(os.Stdout, snap, devs, cfg.Report.Detailed); err != nil {
		return fmt.Errorf("write summary: %w", err)
	}
	if cfg.Report.HTMLDir != "" {
		name, err := reporting.GenerateSessionReport(snap, stats.GetAllAlerts(), devs, cfg.Report.HTMLDir)
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stdout, "\nSession report saved to %s\n", name)
	}
	return nil
}

// openRefData returns the configured reference store. When the database
// cannot be opened the built-in tables are used instead.
func openRefData(ctx context.Context, cfg config.RefDataConfig, log zerolog.Logger) (refdata.Store, func()) {
	if cfg.Path == "" {
		log.Info().Msg("using built-in reference data")
		return refdata.NewDefaultMemoryStore(), func() {}
	}

	db, err := refdata.Open(cfg.Path)
	if err != nil {
		log.Warn().Err(err).Str("path", cfg.Path).Msg("falling back to built-in reference data")
		return refdata.NewDefaultMemoryStore(), func() {}
	}
	if cfg.Seed {
		if err := db.Seed(ctx); err != nil {
			log.Warn().Err(err).Msg("seeding reference data failed")
		}
	}
	log.Info().Str("path", cfg.Path).Msg("reference database ready")
	return db, func() {
		if err := db.Close(); err != nil {
			log.Warn().Err(err).Msg("closing reference database")
		}
	}
}

func openSource(cfg config.CaptureConfig, log zerolog.Logger) (*capture.Source, string, error) {
	if cfg.File != "" {
		src, err := capture.OpenFile(cfg.File, cfg.BPF, log)
		return src, cfg.File, err
	}

	iface := cfg.Interface
	if iface == "" {
		var err error
		if iface, err = capture.DefaultInterface(); err != nil {
			return nil, "", fmt.Errorf("no interface given and none detected: %w", err)
		}
	}
	src, err := capture.OpenLive(iface, capture.Options{
		Snaplen:     cfg.Snaplen,
		Promiscuous: cfg.Promiscuous,
		BPF:         cfg.BPF,
	}, log)
	return src, iface, err
}

func learnHosts(ctx context.Context, iface string, timeout time.Duration, tracker *devices.Tracker, log zerolog.Logger) {
	scanCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	hosts, err := discovery.Scan(scanCtx, iface, discovery.ScanConfig{}, log)
	if err != nil {
		log.Warn().Err(err).Msg("subnet scan failed")
		return
	}
	for _, h := range hosts {
		tracker.LearnMAC(h.IP, h.MAC)
	}
	log.Info().Int("hosts", len(hosts)).Msg("subnet scan complete")
}

func runWithTUI(ctx context.Context, eng *engine.Engine, src *capture.Source, stats *analysis.TrafficStats, tracker *devices.Tracker, iface, filterDesc string) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		wg     sync.WaitGroup
		engErr error
	)
	wg.Add(1)
	go func() {
		defer wg.Done()
		engErr = eng.Run(ctx, src.Packets(ctx))
	}()

	p := tea.NewProgram(tui.NewAnalysisModel(stats, tracker, iface, filterDesc), tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := p.Run()
	cancel()
	wg.Wait()

	if err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return fmt.Errorf("run TUI: %w", err)
	}
	return engErr
}

func listInterfaces(w io.Writer) error {
	ifaces, err := capture.ListInterfaces()
	if err != nil {
		return err
	}
	fmt.Fprintln(w, "Available interfaces:")
	for _, iface := range ifaces {
		fmt.Fprintf(w, "  %-16s %s\n", iface.Name, iface.Description)
		for _, ip := range iface.Addresses {
			fmt.Fprintf(w, "  %-16s   %s\n", "", ip)
		}
	}
	return nil
}

func printBanner(w io.Writer, iface string, spec filter.Spec) {
	fmt.Fprintln(w, "netsniff - packet sniffer with device identification")
	fmt.Fprintf(w, "Monitoring on: %s\n", iface)
	if spec.HasFilters() {
		fmt.Fprintf(w, "Active Filters: %s\n", spec)
	}
	fmt.Fprintln(w, "\nPress Ctrl+C to stop and see statistics")
}
