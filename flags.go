package main

import (
	"flag"
	"fmt"
	"io"
	"time"

	"netsniff/internal/config"
)

type options struct {
	configPath string
	list       bool
	tui        bool

	iface    string
	file     string
	bpf      string
	protocol string
	srcIP    string
	dstIP    string
	port     string

	interval time.Duration
	refDB    string
	scan     bool
	detailed bool
	quiet    bool
	api      string
	natsURL  string
	htmlDir  string
	logLevel string
	logFile  string
}

func parseFlags(args []string, out io.Writer) (*options, map[string]bool, error) {
	fs := flag.NewFlagSet("netsniff", flag.ContinueOnError)
	fs.SetOutput(out)
	o := &options{}

	fs.StringVar(&o.configPath, "config", "", "YAML configuration file")
	fs.BoolVar(&o.list, "list", false, "List capture interfaces and exit")
	fs.BoolVar(&o.tui, "tui", false, "Show the live terminal dashboard instead of printing packets")

	fs.StringVar(&o.iface, "i", "", "Network interface to capture from (e.g., eth0, wlan0)")
	fs.StringVar(&o.file, "r", "", "Read packets from a pcap file instead of an interface")
	fs.StringVar(&o.bpf, "bpf", "", "BPF expression applied by the capture handle")

	for _, name := range []string{"protocol", "p"} {
		fs.StringVar(&o.protocol, name, "", "Only show packets of this protocol (TCP, UDP, ICMP)")
	}
	for _, name := range []string{"source", "s"} {
		fs.StringVar(&o.srcIP, name, "", "Only show packets from this IPv4 address")
	}
	for _, name := range []string{"dest", "d"} {
		fs.StringVar(&o.dstIP, name, "", "Only show packets to this IPv4 address")
	}
	fs.StringVar(&o.port, "port", "", "Only show packets with this source or destination port")

	fs.DurationVar(&o.interval, "interval", 0, "Time between device classification runs")
	fs.StringVar(&o.refDB, "refdb", "", "Reference database path, empty for built-in data only")
	fs.BoolVar(&o.scan, "scan", false, "ARP-sweep the local subnet at startup to learn MAC addresses")
	fs.BoolVar(&o.detailed, "detailed", false, "Print the per-port device analysis on exit")
	fs.BoolVar(&o.quiet, "quiet", false, "Do not print accepted packets")
	fs.StringVar(&o.api, "api", "", "Serve the HTTP API on this address")
	fs.StringVar(&o.natsURL, "nats", "", "Publish classifications to this NATS server")
	fs.StringVar(&o.htmlDir, "html", "", "Write an HTML session report to this directory on exit")
	fs.StringVar(&o.logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	fs.StringVar(&o.logFile, "log-file", "", "Write logs to this file")

	if err := fs.Parse(args); err != nil {
		return nil, nil, err
	}
	if fs.NArg() > 0 {
		err := fmt.Errorf("unexpected argument %q", fs.Arg(0))
		fmt.Fprintln(out, err)
		fs.Usage()
		return nil, nil, err
	}

	set := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) { set[f.Name] = true })
	return o, set, nil
}

// apply copies the flags the user set onto cfg.
func (o *options) apply(cfg *config.Config, set map[string]bool) {
	isSet := func(names ...string) bool {
		for _, n := range names {
			if set[n] {
				return true
			}
		}
		return false
	}

	if isSet("i") {
		cfg.Capture.Interface = o.iface
	}
	if isSet("r") {
		cfg.Capture.File = o.file
	}
	if isSet("bpf") {
		cfg.Capture.BPF = o.bpf
	}
	if isSet("protocol", "p") {
		cfg.Filter.Protocol = o.protocol
	}
	if isSet("source", "s") {
		cfg.Filter.SrcIP = o.srcIP
	}
	if isSet("dest", "d") {
		cfg.Filter.DstIP = o.dstIP
	}
	if isSet("port") {
		cfg.Filter.Port = o.port
	}
	if isSet("interval") {
		cfg.Classification.Interval = config.Duration{Duration: o.interval}
	}
	if isSet("refdb") {
		cfg.RefData.Path = o.refDB
	}
	if isSet("scan") {
		cfg.Discovery.Enabled = o.scan
	}
	if isSet("detailed") {
		cfg.Report.Detailed = o.detailed
	}
	if isSet("quiet") {
		cfg.Capture.Echo = !o.quiet
	}
	if isSet("api") {
		cfg.API.Enabled = o.api != ""
		if o.api != "" {
			cfg.API.Listen = o.api
		}
	}
	if isSet("nats") {
		cfg.NATS.Enabled = o.natsURL != ""
		if o.natsURL != "" {
			cfg.NATS.URL = o.natsURL
		}
	}
	if isSet("html") {
		cfg.Report.HTMLDir = o.htmlDir
	}
	if isSet("log-level") {
		cfg.Log.Level = o.logLevel
	}
	if isSet("log-file") {
		cfg.Log.File = o.logFile
	}
	if o.tui {
		cfg.Capture.Echo = false
	}
}
