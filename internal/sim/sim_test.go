package sim

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"foundryctl/pkg/types"
)

func testEntry() types.CatalogEntry {
	return types.CatalogEntry{
		ModelID:   "sim-model-cpu",
		Alias:     "sim",
		Providers: []types.ProviderKind{types.ProviderCPU},
		SizeBytes: 4,
	}
}

func newServer(t *testing.T, opts ...Option) (*Daemon, *httptest.Server) {
	t.Helper()
	d := New(opts...)
	srv := httptest.NewServer(d.Router())
	t.Cleanup(srv.Close)
	return d, srv
}

func postJSON(t *testing.T, url, apiKey string, body any) *http.Response {
	t.Helper()
	b, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(b))
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+apiKey)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	return resp
}

func TestHealth(t *testing.T) {
	_, srv := newServer(t)
	resp, err := http.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var h types.HealthResponse
	if err := json.NewDecoder(resp.Body).Decode(&h); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if h.Status != "ok" {
		t.Fatalf("health status = %q", h.Status)
	}
}

func TestCatalogListsPublishedModels(t *testing.T) {
	_, srv := newServer(t, WithModel(testEntry(), nil))
	resp, err := http.Get(srv.URL + "/v1/catalog")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	var cat types.CatalogResponse
	if err := json.NewDecoder(resp.Body).Decode(&cat); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(cat.Models) != 1 || cat.Models[0].ModelID != "sim-model-cpu" {
		t.Fatalf("catalog = %+v", cat.Models)
	}
}

func TestFileServing(t *testing.T) {
	blob := []byte("tiny artifact")
	_, srv := newServer(t, WithModel(testEntry(), blob))

	resp, err := http.Get(srv.URL + "/v1/files/sim-model-cpu")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	got, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || !bytes.Equal(got, blob) {
		t.Fatalf("status = %d, body = %q", resp.StatusCode, got)
	}

	resp, err = http.Get(srv.URL + "/v1/files/absent")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("missing artifact: status = %d, want 404", resp.StatusCode)
	}
}

func TestLoadRequiresAPIKey(t *testing.T) {
	d, srv := newServer(t, WithAPIKey("secret"))
	req := types.LoadRequest{ModelID: "m1", LocalPath: "/tmp/m1.bin", Provider: types.ProviderCPU}

	resp := postJSON(t, srv.URL+"/v1/load", "", req)
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("no key: status = %d, want 401", resp.StatusCode)
	}
	if len(d.Loaded()) != 0 {
		t.Fatal("unauthorized load mutated state")
	}

	resp = postJSON(t, srv.URL+"/v1/load", "secret", req)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("with key: status = %d, want 200", resp.StatusCode)
	}
	if p, ok := d.LoadedProvider("m1"); !ok || p != types.ProviderCPU {
		t.Fatalf("loaded provider = %q, ok = %v", p, ok)
	}
}

func TestLoadValidatesBody(t *testing.T) {
	_, srv := newServer(t)
	resp := postJSON(t, srv.URL+"/v1/load", "", types.LoadRequest{ModelID: "m1"})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
	var e types.ErrorResponse
	if err := json.NewDecoder(resp.Body).Decode(&e); err != nil {
		t.Fatalf("decode error payload: %v", err)
	}
	if e.Code != http.StatusBadRequest || e.Error == "" {
		t.Fatalf("error payload = %+v", e)
	}
}

func TestUnloadNotLoaded(t *testing.T) {
	_, srv := newServer(t)
	resp := postJSON(t, srv.URL+"/v1/unload", "", types.UnloadRequest{ModelID: "ghost"})
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
}

func TestLoadedRoundTrip(t *testing.T) {
	d, srv := newServer(t)
	resp := postJSON(t, srv.URL+"/v1/load", "", types.LoadRequest{ModelID: "m1", LocalPath: "/tmp/m1.bin"})
	resp.Body.Close()
	resp, err := http.Get(srv.URL + "/v1/loaded")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	var loaded types.LoadedResponse
	if err := json.NewDecoder(resp.Body).Decode(&loaded); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(loaded.Models) != 1 || loaded.Models[0] != "m1" {
		t.Fatalf("loaded = %+v", loaded.Models)
	}
	if len(d.Loaded()) != 1 {
		t.Fatal("daemon state out of sync")
	}

	resp = postJSON(t, srv.URL+"/v1/unload", "", types.UnloadRequest{ModelID: "m1"})
	resp.Body.Close()
	if len(d.Loaded()) != 0 {
		t.Fatal("model still loaded after unload")
	}
}
