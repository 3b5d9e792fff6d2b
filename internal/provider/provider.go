// Package provider ranks execution backends for a model against what the
// host actually offers. Ranking is deterministic: identical inputs always
// produce the identical ordered result, since the chosen provider affects
// subsequent load behavior.
package provider

import (
	"os"
	"os/exec"

	"foundryctl/pkg/types"
)

// nativePriority is the fixed preference order for native hosts.
var nativePriority = []types.ProviderKind{
	types.ProviderNPU,
	types.ProviderCUDA,
	types.ProviderCPU,
}

// webPriority is the disjoint track used in web contexts; native backends
// are never considered there and WebGPU is never considered natively.
var webPriority = []types.ProviderKind{
	types.ProviderWebGPU,
}

// Host describes the execution backends available on one machine.
type Host struct {
	// Capabilities is the set of backends the host can run.
	Capabilities []types.ProviderKind
	// WebContext selects the WebGPU priority track.
	WebContext bool
}

func (h Host) has(k types.ProviderKind) bool {
	for _, c := range h.Capabilities {
		if c == k {
			return true
		}
	}
	return false
}

// Detect inspects the current machine and returns its capabilities.
// CPU is always available. CUDA is assumed present when nvidia-smi is on
// PATH. NPU detection is vendor specific; FOUNDRYCTL_NPU=1 asserts one.
func Detect() Host {
	caps := []types.ProviderKind{types.ProviderCPU}
	if _, err := exec.LookPath("nvidia-smi"); err == nil {
		caps = append(caps, types.ProviderCUDA)
	}
	if os.Getenv("FOUNDRYCTL_NPU") == "1" {
		caps = append(caps, types.ProviderNPU)
	}
	return Host{Capabilities: caps}
}

// Selector ranks an entry's supported providers against a fixed host.
type Selector struct {
	host Host
}

// NewSelector returns a Selector for the given host.
func NewSelector(host Host) *Selector { return &Selector{host: host} }

// Rank intersects the host capabilities with supported and orders the result
// by the fixed priority for the host's track. modelID is used for error
// context only. Returns ErrNoCompatibleProvider when the intersection is empty.
func (s *Selector) Rank(modelID string, supported []types.ProviderKind) ([]types.ProviderKind, error) {
	track := nativePriority
	if s.host.WebContext {
		track = webPriority
	}
	in := func(k types.ProviderKind) bool {
		for _, p := range supported {
			if p == k {
				return true
			}
		}
		return false
	}
	var out []types.ProviderKind
	for _, k := range track {
		if s.host.has(k) && in(k) {
			out = append(out, k)
		}
	}
	if len(out) == 0 {
		return nil, types.ErrNoCompatibleProvider(modelID)
	}
	return out, nil
}

// Best returns the top-ranked provider for the entry.
func (s *Selector) Best(modelID string, supported []types.ProviderKind) (types.ProviderKind, error) {
	ranked, err := s.Rank(modelID, supported)
	if err != nil {
		return "", err
	}
	return ranked[0], nil
}
