// foundrysim serves the simulated inference daemon over HTTP. It exists so
// the supervisor and CLI can be exercised end to end without a production
// daemon; the supervisor launches it with --addr and --api-key.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"foundryctl/internal/sim"
	"foundryctl/pkg/types"
)

// modelFlags collects repeated --model id=path pairs.
type modelFlags []string

func (m *modelFlags) String() string { return strings.Join(*m, ",") }
func (m *modelFlags) Set(v string) error {
	*m = append(*m, v)
	return nil
}

func main() {
	defaultAddr := "127.0.0.1:5273"
	if v := os.Getenv("FOUNDRYSIM_ADDR"); v != "" {
		defaultAddr = v
	}
	addr := flag.String("addr", defaultAddr, "HTTP listen address, e.g. 127.0.0.1:5273")
	apiKey := flag.String("api-key", "", "Bearer token required on load/unload (empty disables auth)")
	var models modelFlags
	flag.Var(&models, "model", "Publish a model as id=path (repeatable); the file is served as the artifact")
	flag.Parse()

	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()

	opts := []sim.Option{}
	if *apiKey != "" {
		opts = append(opts, sim.WithAPIKey(*apiKey))
	}
	for _, m := range models {
		id, path, ok := strings.Cut(m, "=")
		if !ok {
			log.Fatal().Str("flag", m).Msg("--model expects id=path")
		}
		blob, err := os.ReadFile(path)
		if err != nil {
			log.Fatal().Err(err).Str("path", path).Msg("read model artifact")
		}
		opts = append(opts, sim.WithModel(types.CatalogEntry{
			ModelID:   id,
			Providers: []types.ProviderKind{types.ProviderCPU},
			SizeBytes: int64(len(blob)),
			URI:       fmt.Sprintf("http://%s/v1/files/%s", *addr, id),
		}, blob))
	}

	srv := &http.Server{Addr: *addr, Handler: sim.New(opts...).Router()}

	go func() {
		log.Info().Str("addr", *addr).Int("models", len(models)).Msg("foundrysim listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Warn().Err(err).Msg("graceful shutdown error")
	}
}
