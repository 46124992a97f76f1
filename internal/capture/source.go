// Package capture reads raw frames from a live interface or a pcap file.
package capture

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcap"
	"github.com/rs/zerolog"
)

// ErrPermission is returned when the OS refuses to open a capture handle.
var ErrPermission = errors.New("packet capture requires administrator/root privileges (or CAP_NET_RAW)")

const readTimeout = 500 * time.Millisecond

// Options configures a live capture.
type Options struct {
	Snaplen     int
	Promiscuous bool
	BPF         string
}

// Source produces frames from a pcap handle.
type Source struct {
	handle   *pcap.Handle
	linkType layers.LinkType
	name     string
	log      zerolog.Logger

	skipped atomic.Int64
	stop    context.CancelFunc
	done    chan struct{}
}

// OpenLive opens iface for capture.
func OpenLive(iface string, opts Options, log zerolog.Logger) (*Source, error) {
	snaplen := opts.Snaplen
	if snaplen <= 0 {
		snaplen = 65535
	}

	handle, err := pcap.OpenLive(iface, int32(snaplen), opts.Promiscuous, readTimeout)
	if err != nil {
		if isPermissionError(err) {
			return nil, fmt.Errorf("open %s: %w: %w", iface, ErrPermission, err)
		}
		return nil, fmt.Errorf("open %s: %w", iface, err)
	}
	return newSource(handle, iface, opts.BPF, log)
}

// OpenFile replays a pcap file.
func OpenFile(path, bpf string, log zerolog.Logger) (*Source, error) {
	handle, err := pcap.OpenOffline(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	return newSource(handle, path, bpf, log)
}

func newSource(handle *pcap.Handle, name, bpf string, log zerolog.Logger) (*Source, error) {
	if bpf != "" {
		if err := handle.SetBPFFilter(bpf); err != nil {
			handle.Close()
			return nil, fmt.Errorf("set BPF filter %q: %w", bpf, err)
		}
	}
	s := &Source{
		handle:   handle,
		linkType: handle.LinkType(),
		name:     name,
		log:      log,
	}
	s.log.Info().Str("source", name).Str("link", s.linkType.String()).Msg("capture opened")
	return s, nil
}

// Packets streams IPv4 frames until ctx is done, the file ends or the
// handle fails. The channel is closed on return. Packets must be called at
// most once.
func (s *Source) Packets(ctx context.Context) <-chan Frame {
	ctx, s.stop = context.WithCancel(ctx)
	s.done = make(chan struct{})
	out := make(chan Frame, 1024)
	go func() {
		defer close(s.done)
		defer close(out)
		for {
			if ctx.Err() != nil {
				return
			}
			data, ci, err := s.handle.ReadPacketData()
			switch {
			case errors.Is(err, pcap.NextErrorTimeoutExpired):
				continue
			case errors.Is(err, io.EOF):
				s.log.Info().Str("source", s.name).Msg("end of capture file")
				return
			case err != nil:
				s.log.Error().Err(err).Str("source", s.name).Msg("capture read failed")
				return
			}

			frame, ok := StripLink(data, s.linkType)
			if !ok {
				s.skipped.Add(1)
				continue
			}
			frame.Timestamp = ci.Timestamp

			select {
			case out <- frame:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

// Skipped returns how many non-IPv4 frames were discarded.
func (s *Source) Skipped() int64 {
	return s.skipped.Load()
}

// Stats returns kernel capture counters. Offline sources return an error.
func (s *Source) Stats() (*pcap.Stats, error) {
	return s.handle.Stats()
}

// Close stops the reader started by Packets, if any, and releases the
// handle.
func (s *Source) Close() {
	if s.stop != nil {
		s.stop()
		<-s.done
	}
	s.handle.Close()
}

func isPermissionError(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "permission") ||
		strings.Contains(msg, "not permitted") ||
		strings.Contains(msg, "access denied")
}

// Interface is a capture-capable network interface.
type Interface struct {
	Name        string
	Description string
	Addresses   []net.IP
}

// ListInterfaces returns the interfaces pcap can open.
func ListInterfaces() ([]Interface, error) {
	devs, err := pcap.FindAllDevs()
	if err != nil {
		return nil, fmt.Errorf("list interfaces: %w", err)
	}
	out := make([]Interface, 0, len(devs))
	for _, d := range devs {
		iface := Interface{Name: d.Name, Description: d.Description}
		for _, a := range d.Addresses {
			iface.Addresses = append(iface.Addresses, a.IP)
		}
		out = append(out, iface)
	}
	return out, nil
}

// DefaultInterface returns the first interface with a non-loopback IPv4
// address.
func DefaultInterface() (string, error) {
	ifaces, err := ListInterfaces()
	if err != nil {
		return "", err
	}
	if name, ok := pickDefault(ifaces); ok {
		return name, nil
	}
	return "", errors.New("no interface with an IPv4 address found")
}

func pickDefault(ifaces []Interface) (string, bool) {
	for _, iface := range ifaces {
		for _, ip := range iface.Addresses {
			if ip4 := ip.To4(); ip4 != nil && !ip4.IsLoopback() {
				return iface.Name, true
			}
		}
	}
	return "", false
}
