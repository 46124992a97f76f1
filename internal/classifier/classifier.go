// Package classifier combines known-device memory, MAC vendor prefixes,
// well-known ports and weighted traffic signatures into a single ranked
// device-type decision.
package classifier

import (
	"context"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"netsniff/internal/refdata"
)

// Method tags the evidence channel that produced a candidate.
type Method string

const (
	MethodKnown   Method = "KNOWN"
	MethodMAC     Method = "MAC"
	MethodPort    Method = "PORT"
	MethodPattern Method = "PATTERN"
)

// Channel scores.
const (
	knownScore = 1.0
	macScore   = 0.5
	portScore  = 0.6
)

// Tolerances for traffic-pattern rules, in percent of the expected value.
const (
	packetSizeTolerancePct = 10
	frequencyTolerancePct  = 20
)

// UnknownDevice is the label returned when no channel produced evidence.
const UnknownDevice = "Unknown"

// Input is the evidence gathered for one device.
type Input struct {
	IP            string
	MAC           string
	Ports         []int
	AvgSizeByPort map[int]int // port -> average packet size in bytes
	FreqByPort    map[int]int // port -> average inter-arrival interval in ms
}

// Result is a classification decision.
type Result struct {
	DeviceType string   `json:"device_type"`
	Confidence float64  `json:"confidence"`
	Methods    []Method `json:"methods"`
	Evidence   []string `json:"evidence"`
}

// MethodString joins the methods with ", ".
func (r Result) MethodString() string {
	s := make([]string, len(r.Methods))
	for i, m := range r.Methods {
		s[i] = string(m)
	}
	return strings.Join(s, ", ")
}

type candidate struct {
	label  string
	score  float64
	method Method
}

// Classifier reads reference data from a refdata.Store.
type Classifier struct {
	ref refdata.Store
}

func New(ref refdata.Store) *Classifier {
	return &Classifier{ref: ref}
}

// Classify runs all four evidence channels for in and aggregates the result.
//
// Candidates are grouped by label and each group scores the maximum of its
// candidates. The highest group wins; on a tie the label that was produced
// first wins, and channels always run in the order KNOWN, MAC, PORT, PATTERN.
// Any reference lookup error aborts the classification.
func (c *Classifier) Classify(ctx context.Context, in Input) (Result, error) {
	var candidates []candidate

	known, err := c.ref.KnownDevice(ctx, in.IP, in.MAC)
	if err != nil {
		return Result{}, fmt.Errorf("known device lookup for %s: %w", in.IP, err)
	}
	if known != nil {
		candidates = append(candidates, candidate{known.DeviceType, knownScore, MethodKnown})
	}

	if prefix := refdata.MACPrefix(in.MAC); prefix != "" {
		vendor, err := c.ref.MACVendor(ctx, prefix)
		if err != nil {
			return Result{}, fmt.Errorf("mac vendor lookup for %s: %w", in.MAC, err)
		}
		if vendor != nil {
			candidates = append(candidates, candidate{vendor.Vendor, macScore, MethodMAC})
		}
	}

	ports := slices.Clone(in.Ports)
	slices.Sort(ports)
	for _, port := range slices.Compact(ports) {
		svc, err := c.ref.PortService(ctx, port)
		if err != nil {
			return Result{}, fmt.Errorf("port lookup for %d: %w", port, err)
		}
		if svc != nil {
			candidates = append(candidates, candidate{svc.Service, portScore, MethodPort})
		}
	}

	sigs, err := c.ref.Signatures(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("signature lookup: %w", err)
	}
	for _, sig := range sigs {
		confidence, ok := SignatureConfidence(sig, in)
		if ok && confidence >= sig.Threshold {
			candidates = append(candidates, candidate{sig.DeviceType, confidence, MethodPattern})
		}
	}

	return aggregate(candidates), nil
}

// SignatureConfidence returns matched weight over total weight for sig.
// ok is false when the signature has no weight.
func SignatureConfidence(sig refdata.Signature, in Input) (confidence float64, ok bool) {
	var total, matched float64
	for _, rule := range sig.Rules {
		total += rule.Weight
		if RuleMatches(rule, in) {
			matched += rule.Weight
		}
	}
	if total <= 0 {
		return 0, false
	}
	return matched / total, true
}

// RuleMatches evaluates one traffic-pattern rule against the evidence.
// Malformed values and unknown rule types never match.
func RuleMatches(rule refdata.Rule, in Input) bool {
	switch rule.Type {
	case refdata.RulePort:
		port, err := strconv.Atoi(strings.TrimSpace(rule.Value))
		if err != nil {
			return false
		}
		return slices.Contains(in.Ports, port)
	case refdata.RulePacketSize:
		return withinTolerance(in.AvgSizeByPort, rule.Value, packetSizeTolerancePct)
	case refdata.RuleFrequency:
		return withinTolerance(in.FreqByPort, rule.Value, frequencyTolerancePct)
	default:
		return false
	}
}

// withinTolerance parses "<port>:<expected>" and reports whether observed[port]
// is within pct percent of expected, boundaries inclusive.
func withinTolerance(observed map[int]int, value string, pct int) bool {
	portStr, expStr, found := strings.Cut(value, ":")
	if !found {
		return false
	}
	port, err := strconv.Atoi(strings.TrimSpace(portStr))
	if err != nil {
		return false
	}
	expected, err := strconv.Atoi(strings.TrimSpace(expStr))
	if err != nil {
		return false
	}
	actual, ok := observed[port]
	if !ok {
		return false
	}
	diff := actual - expected
	if diff < 0 {
		diff = -diff
	}
	return diff*100 <= expected*pct
}

type group struct {
	label   string
	score   float64
	methods []Method
	matched []string
}

func aggregate(candidates []candidate) Result {
	var groups []*group
	byLabel := make(map[string]*group)

	for _, c := range candidates {
		g, ok := byLabel[c.label]
		if !ok {
			g = &group{label: c.label, score: c.score}
			byLabel[c.label] = g
			groups = append(groups, g)
		}
		if c.score > g.score {
			g.score = c.score
		}
		if !slices.Contains(g.methods, c.method) {
			g.methods = append(g.methods, c.method)
		}
		g.matched = append(g.matched, fmt.Sprintf("%s: %s", c.method, c.label))
	}

	var best *group
	for _, g := range groups {
		if best == nil || g.score > best.score {
			best = g
		}
	}
	if best == nil {
		return Result{DeviceType: UnknownDevice, Methods: []Method{}, Evidence: []string{}}
	}

	return Result{
		DeviceType: best.label,
		Confidence: best.score,
		Methods:    best.methods,
		Evidence:   best.matched,
	}
}
