// Package discovery finds hosts on the local subnet with an ARP sweep so
// their MAC addresses are known before traffic arrives.
package discovery

import (
	"context"
	"errors"
	"fmt"
	"net"
	"maps"
	"net/netip"
	"slices"
	"sync"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcap"
	"github.com/rs/zerolog"
)

// ScanConfig controls the scanning behavior.
type ScanConfig struct {
	// RateLimit is the delay between ARP requests. Defaults to 50µs.
	RateLimit time.Duration
	// IdleWait is how long to wait for late replies. Defaults to 500ms.
	IdleWait time.Duration
	// MaxHosts caps the number of probes in large subnets. Defaults to
	// 4096, negative disables the cap.
	MaxHosts int
	Promisc  bool
}

func (c ScanConfig) withDefaults() ScanConfig {
	if c.RateLimit <= 0 {
		c.RateLimit = 50 * time.Microsecond
	}
	if c.IdleWait <= 0 {
		c.IdleWait = 500 * time.Millisecond
	}
	if c.MaxHosts == 0 {
		c.MaxHosts = 4096
	}
	return c
}

// Scan ARP-sweeps the IPv4 subnet of interfaceName and returns the hosts
// that replied, sorted by address. If ctx ends mid-sweep the remaining
// targets are skipped and the replies already gathered are returned.
func Scan(ctx context.Context, interfaceName string, cfg ScanConfig, log zerolog.Logger) ([]Host, error) {
	cfg = cfg.withDefaults()

	iface, err := net.InterfaceByName(interfaceName)
	if err != nil {
		return nil, fmt.Errorf("could not get interface: %w", err)
	}
	local, err := interfacePrefix(iface)
	if err != nil {
		return nil, err
	}

	handle, err := pcap.OpenLive(interfaceName, 65536, cfg.Promisc, 100*time.Millisecond)
	if err != nil {
		return nil, fmt.Errorf("could not open handle: %w", err)
	}
	defer handle.Close()

	if err := handle.SetBPFFilter("arp"); err != nil {
		return nil, fmt.Errorf("could not set BPF filter: %w", err)
	}

	var (
		mu         sync.Mutex
		discovered = make(map[netip.Addr]Host)
		wg         sync.WaitGroup
	)
	readCtx, stopReading := context.WithCancel(ctx)
	defer stopReading()

	wg.Add(1)
	go func() {
		defer wg.Done()
		src := gopacket.NewPacketSource(handle, layers.LayerTypeEthernet)
		in := src.Packets()
		for {
			select {
			case <-readCtx.Done():
				return
			case packet, ok := <-in:
				if !ok {
					return
				}
				arpLayer := packet.Layer(layers.LayerTypeARP)
				if arpLayer == nil {
					continue
				}
				addr, host, ok := parseReply(arpLayer.(*layers.ARP), local)
				if !ok {
					continue
				}
				mu.Lock()
				if _, seen := discovered[addr]; !seen {
					discovered[addr] = host
				}
				mu.Unlock()
			}
		}
	}()

	targets := probeTargets(local, cfg.MaxHosts)
	log.Debug().Str("iface", interfaceName).Str("subnet", local.Masked().String()).Int("targets", len(targets)).Msg("arp sweep started")

	sent := sweep(ctx, targets, cfg.RateLimit, func(target netip.Addr) error {
		return sendARPRequest(handle, iface, local.Addr(), target)
	}, log)

	wait := time.NewTimer(cfg.IdleWait)
	defer wait.Stop()
	select {
	case <-ctx.Done():
	case <-wait.C:
	}
	stopReading()
	wg.Wait()

	result := sortedHosts(discovered)
	log.Info().Str("iface", interfaceName).Int("sent", sent).Int("hosts", len(result)).Msg("arp sweep finished")
	return result, nil
}

// sweep sends one request per target, spaced by rate, and returns how many
// were attempted. It stops early when ctx is done.
func sweep(ctx context.Context, targets []netip.Addr, rate time.Duration, send func(netip.Addr) error, log zerolog.Logger) int {
	ticker := time.NewTicker(rate)
	defer ticker.Stop()

	for i, target := range targets {
		select {
		case <-ctx.Done():
			log.Debug().Int("skipped", len(targets)-i).Msg("arp sweep cut short")
			return i
		case <-ticker.C:
		}
		if err := send(target); err != nil {
			log.Debug().Err(err).Str("target", target.String()).Msg("arp request failed")
		}
	}
	return len(targets)
}

func sortedHosts(found map[netip.Addr]Host) []Host {
	addrs := slices.SortedFunc(maps.Keys(found), netip.Addr.Compare)
	result := make([]Host, 0, len(addrs))
	for _, a := range addrs {
		result = append(result, found[a])
	}
	return result
}

// interfacePrefix returns the first IPv4 address of iface with its prefix
// length.
func interfacePrefix(iface *net.Interface) (netip.Prefix, error) {
	addrs, err := iface.Addrs()
	if err != nil {
		return netip.Prefix{}, fmt.Errorf("could not get interface addresses: %w", err)
	}
	for _, addr := range addrs {
		ipnet, ok := addr.(*net.IPNet)
		if !ok {
			continue
		}
		ip4 := ipnet.IP.To4()
		if ip4 == nil {
			continue
		}
		ones, _ := ipnet.Mask.Size()
		if len(ipnet.Mask) == net.IPv6len {
			ones -= 96
		}
		return netip.PrefixFrom(netip.AddrFrom4([4]byte(ip4)), ones), nil
	}
	return netip.Prefix{}, errors.New("no IPv4 address found on interface")
}

// probeTargets lists the host addresses of local's subnet other than local
// itself. limit > 0 caps the result.
func probeTargets(local netip.Prefix, limit int) []netip.Addr {
	network := local.Masked()
	if network.Bits() >= 31 {
		return nil
	}

	var targets []netip.Addr
	addr := network.Addr().Next()
	for network.Contains(addr) {
		next := addr.Next()
		if !network.Contains(next) {
			break // broadcast
		}
		if addr != local.Addr() {
			targets = append(targets, addr)
			if limit > 0 && len(targets) >= limit {
				break
			}
		}
		addr = next
	}
	return targets
}

// parseReply accepts ARP replies from inside local, other than local itself.
func parseReply(arp *layers.ARP, local netip.Prefix) (netip.Addr, Host, bool) {
	if arp.Operation != layers.ARPReply || len(arp.SourceProtAddress) != 4 || len(arp.SourceHwAddress) != 6 {
		return netip.Addr{}, Host{}, false
	}
	addr := netip.AddrFrom4([4]byte(arp.SourceProtAddress))
	if !local.Contains(addr) || addr == local.Addr() {
		return netip.Addr{}, Host{}, false
	}
	return addr, Host{IP: addr.String(), MAC: net.HardwareAddr(arp.SourceHwAddress).String()}, true
}

// sendARPRequest sends a single ARP request
func sendARPRequest(handle *pcap.Handle, iface *net.Interface, src, dst netip.Addr) error {
	srcIP, dstIP := src.As4(), dst.As4()
	eth := layers.Ethernet{
		SrcMAC:       iface.HardwareAddr,
		DstMAC:       net.HardwareAddr{0xff, 0xff, 0xff, 0xff, 0xff, 0xff},
		EthernetType: layers.EthernetTypeARP,
	}
	arp := layers.ARP{
		AddrType:          layers.LinkTypeEthernet,
		Protocol:          layers.EthernetTypeIPv4,
		HwAddressSize:     6,
		ProtAddressSize:   4,
		Operation:         layers.ARPRequest,
		SourceHwAddress:   []byte(iface.HardwareAddr),
		SourceProtAddress: srcIP[:],
		DstHwAddress:      []byte{0, 0, 0, 0, 0, 0},
		DstProtAddress:    dstIP[:],
	}

	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{
		FixLengths:       true,
		ComputeChecksums: true,
	}
	if err := gopacket.SerializeLayers(buf, opts, &eth, &arp); err != nil {
		return err
	}
	return handle.WritePacketData(buf.Bytes())
}
