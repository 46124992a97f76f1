// Package engine wires decoded packets into statistics and device tracking
// and drives periodic classification.
package engine

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"netsniff/internal/analysis"
	"netsniff/internal/capture"
	"netsniff/internal/decoder"
	"netsniff/internal/devices"
	"netsniff/internal/filter"
	"netsniff/internal/metrics"
	"netsniff/internal/models"
	"netsniff/internal/publish"
)

// Options holds the engine's collaborators.
type Options struct {
	Filter    filter.Spec
	Stats     *analysis.TrafficStats
	Tracker   *devices.Tracker
	Metrics   *metrics.Metrics
	Publisher publish.Publisher
	Log       zerolog.Logger

	// Echo, when set, receives every accepted packet.
	Echo func(models.PacketData)
	// Tick is how often classification is attempted. The tracker's own
	// interval still applies. Defaults to one second.
	Tick time.Duration
}

// Engine runs the capture pipeline.
type Engine struct {
	opts Options
	log  zerolog.Logger
}

// New creates an engine. Publisher defaults to publish.Nop.
func New(opts Options) *Engine {
	if opts.Publisher == nil {
		opts.Publisher = publish.Nop{}
	}
	if opts.Tick <= 0 {
		opts.Tick = time.Second
	}
	return &Engine{
		opts: opts,
		log:  opts.Log,
	}
}

// HandleFrame decodes, filters and records one frame. It reports whether
// the packet was accepted. HandleFrame is not safe for concurrent use.
func (e *Engine) HandleFrame(f capture.Frame) (models.PacketData, bool) {
	pkt, ok := decoder.Decode(f.Data, f.Length, f.Timestamp)
	if !ok {
		e.opts.Metrics.PacketsDropped.Inc()
		return models.PacketData{}, false
	}
	e.opts.Metrics.PacketsDecoded.Inc()
	pkt.DstMAC = f.DstMAC

	if !e.opts.Filter.Matches(pkt) {
		e.opts.Metrics.PacketsFiltered.Inc()
		return pkt, false
	}
	e.opts.Metrics.BytesAccepted.Add(float64(pkt.Length))

	e.opts.Stats.ProcessPacket(pkt)
	e.opts.Tracker.Record(pkt)

	// The source MAC only identifies the sender on the local segment.
	if f.SrcMAC != "" && devices.IsPrivate(pkt.SrcIP) {
		e.opts.Tracker.LearnMAC(pkt.SrcIP, f.SrcMAC)
	}

	if e.opts.Echo != nil {
		e.opts.Echo(pkt)
	}
	return pkt, true
}

// Run consumes frames until ctx is cancelled or frames is closed, running
// classification on a separate goroutine. When frames is exhausted a final
// classification pass is made so short captures still get results.
func (e *Engine) Run(ctx context.Context, frames <-chan capture.Frame) error {
	loopCtx, stop := context.WithCancel(ctx)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		e.classifyLoop(loopCtx)
	}()

	e.log.Info().Str("filter", e.opts.Filter.String()).Msg("engine started")

	exhausted := false
loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case f, ok := <-frames:
			if !ok {
				exhausted = true
				break loop
			}
			e.HandleFrame(f)
		}
	}

	stop()
	wg.Wait()

	if exhausted && ctx.Err() == nil {
		e.afterScan(ctx, e.opts.Tracker.ClassifyAll(ctx))
	}
	e.opts.Metrics.DevicesTracked.Set(float64(e.opts.Tracker.Len()))
	e.log.Info().Int64("packets", e.opts.Stats.TotalPackets()).Msg("engine stopped")
	return nil
}

func (e *Engine) classifyLoop(ctx context.Context) {
	ticker := time.NewTicker(e.opts.Tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			e.Tick(ctx, now)
		}
	}
}

// Tick runs one maintenance step: prune idle devices, then classify if the
// tracker's interval has elapsed.
func (e *Engine) Tick(ctx context.Context, now time.Time) {
	if n := e.opts.Tracker.Prune(now); n > 0 {
		e.opts.Metrics.DevicesPruned.Add(float64(n))
		e.log.Debug().Int("devices", n).Msg("pruned idle devices")
	}
	e.opts.Metrics.DevicesTracked.Set(float64(e.opts.Tracker.Len()))

	if report, ran := e.opts.Tracker.RunClassification(ctx); ran {
		e.afterScan(ctx, report)
	}
}

func (e *Engine) afterScan(ctx context.Context, report devices.ScanReport) {
	methods := make([]string, 0, len(report.Results))
	for _, r := range report.Results {
		methods = append(methods, r.Result.MethodString())
	}
	e.opts.Metrics.ObserveScan(report.Duration, methods, report.Failed)

	for _, ev := range publish.EventsFromScan(report) {
		if err := e.opts.Publisher.Publish(ctx, ev); err != nil {
			e.opts.Metrics.PublishErrors.Inc()
			e.log.Warn().Err(err).Str("ip", ev.IP).Msg("publish classification failed")
		}
	}

	if len(report.Results) > 0 || report.Failed > 0 {
		e.log.Info().
			Str("scan", report.ID).
			Int("classified", len(report.Results)).
			Int("failed", report.Failed).
			Msg("devices classified")
	}
}
