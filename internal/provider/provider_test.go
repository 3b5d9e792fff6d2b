package provider

import (
	"reflect"
	"testing"

	"foundryctl/pkg/types"
)

func TestRankFixedPriority(t *testing.T) {
	host := Host{Capabilities: []types.ProviderKind{types.ProviderCPU, types.ProviderCUDA, types.ProviderNPU}}
	s := NewSelector(host)
	ranked, err := s.Rank("m1", []types.ProviderKind{types.ProviderCPU, types.ProviderNPU, types.ProviderCUDA})
	if err != nil {
		t.Fatalf("rank: %v", err)
	}
	want := []types.ProviderKind{types.ProviderNPU, types.ProviderCUDA, types.ProviderCPU}
	if !reflect.DeepEqual(ranked, want) {
		t.Fatalf("expected %v got %v", want, ranked)
	}
}

func TestRankDeterministic(t *testing.T) {
	host := Host{Capabilities: []types.ProviderKind{types.ProviderCUDA, types.ProviderCPU}}
	s := NewSelector(host)
	supported := []types.ProviderKind{types.ProviderCPU, types.ProviderCUDA}
	first, err := s.Rank("m1", supported)
	if err != nil {
		t.Fatalf("rank: %v", err)
	}
	for i := 0; i < 50; i++ {
		again, err := s.Rank("m1", supported)
		if err != nil {
			t.Fatalf("rank %d: %v", i, err)
		}
		if !reflect.DeepEqual(first, again) {
			t.Fatalf("ranking not deterministic: %v vs %v", first, again)
		}
	}
}

func TestRankIntersectsHostAndEntry(t *testing.T) {
	host := Host{Capabilities: []types.ProviderKind{types.ProviderCPU}}
	s := NewSelector(host)
	ranked, err := s.Rank("m1", []types.ProviderKind{types.ProviderCUDA, types.ProviderCPU})
	if err != nil {
		t.Fatalf("rank: %v", err)
	}
	if len(ranked) != 1 || ranked[0] != types.ProviderCPU {
		t.Fatalf("expected [cpu], got %v", ranked)
	}
}

func TestRankNoCompatibleProvider(t *testing.T) {
	host := Host{Capabilities: []types.ProviderKind{types.ProviderCPU}}
	s := NewSelector(host)
	_, err := s.Rank("m1", []types.ProviderKind{types.ProviderCUDA})
	if err == nil || !types.IsNoCompatibleProvider(err) {
		t.Fatalf("expected NoCompatibleProvider, got %v", err)
	}
}

func TestWebGPUDisjointTrack(t *testing.T) {
	// WebGPU never ranks on a native host, even when both sides support it.
	native := NewSelector(Host{Capabilities: []types.ProviderKind{types.ProviderCPU, types.ProviderWebGPU}})
	ranked, err := native.Rank("m1", []types.ProviderKind{types.ProviderWebGPU, types.ProviderCPU})
	if err != nil {
		t.Fatalf("rank: %v", err)
	}
	for _, k := range ranked {
		if k == types.ProviderWebGPU {
			t.Fatalf("webgpu ranked on native track: %v", ranked)
		}
	}

	// In a web context only WebGPU is considered.
	web := NewSelector(Host{Capabilities: []types.ProviderKind{types.ProviderCPU, types.ProviderWebGPU}, WebContext: true})
	ranked, err = web.Rank("m1", []types.ProviderKind{types.ProviderWebGPU, types.ProviderCPU})
	if err != nil {
		t.Fatalf("rank web: %v", err)
	}
	if len(ranked) != 1 || ranked[0] != types.ProviderWebGPU {
		t.Fatalf("expected [webgpu] on web track, got %v", ranked)
	}
	if _, err := web.Rank("m1", []types.ProviderKind{types.ProviderCPU}); err == nil || !types.IsNoCompatibleProvider(err) {
		t.Fatalf("expected NoCompatibleProvider on web track without webgpu, got %v", err)
	}
}

func TestBestReturnsTopRank(t *testing.T) {
	host := Host{Capabilities: []types.ProviderKind{types.ProviderCPU, types.ProviderCUDA}}
	s := NewSelector(host)
	best, err := s.Best("m1", []types.ProviderKind{types.ProviderCPU, types.ProviderCUDA})
	if err != nil {
		t.Fatalf("best: %v", err)
	}
	if best != types.ProviderCUDA {
		t.Fatalf("expected cuda, got %v", best)
	}
}

func TestDetectAlwaysIncludesCPU(t *testing.T) {
	host := Detect()
	if !host.has(types.ProviderCPU) {
		t.Fatalf("cpu missing from detected capabilities: %v", host.Capabilities)
	}
}
