// foundryctl is the command line front end of the SDK: it manages the local
// inference daemon, the model catalog, and the download cache.
package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"foundryctl/internal/config"
	"foundryctl/pkg/foundry"
	"foundryctl/pkg/types"
)

type app struct {
	cfgPath  string
	logLevel string

	cfg config.Config
	log zerolog.Logger
	m   *foundry.Manager
}

// setup runs once per invocation, after flag parsing.
func (a *app) setup() error {
	var cfg config.Config
	if a.cfgPath != "" {
		loaded, err := config.Load(a.cfgPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = loaded
	}
	cfg = config.FromEnv(cfg)
	if a.logLevel != "" {
		cfg.LogLevel = a.logLevel
	}
	merged, err := config.Merge(cfg, config.Default())
	if err != nil {
		return err
	}
	a.cfg = merged

	lvl, err := zerolog.ParseLevel(a.cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("log level %q: %w", a.cfg.LogLevel, err)
	}
	a.log = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
		Level(lvl).With().Timestamp().Logger()

	a.m, err = foundry.New(foundry.WithConfig(a.cfg), foundry.WithLogger(a.log))
	return err
}

func buildRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:           "foundryctl",
		Short:         "Manage the local inference daemon, model catalog, and download cache",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&a.cfgPath, "config", "", "Config file (.yaml|.json|.toml)")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "Log level: debug|info|warn|error")
	root.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		return a.setup()
	}

	// service group
	serviceCmd := &cobra.Command{Use: "service", Short: "Control the inference daemon"}
	serviceStart := &cobra.Command{Use: "start", Short: "Start the daemon (or adopt a running one)", RunE: func(cmd *cobra.Command, args []string) error {
		if err := a.m.StartService(cmd.Context()); err != nil {
			return err
		}
		return printService(a.m)
	}}
	serviceStop := &cobra.Command{Use: "stop", Short: "Stop a daemon this tool launched", RunE: func(cmd *cobra.Command, args []string) error {
		return a.m.StopService(cmd.Context())
	}}
	serviceStatus := &cobra.Command{Use: "status", Short: "Show daemon state and endpoint", RunE: func(cmd *cobra.Command, args []string) error {
		state := a.m.ServiceState()
		fmt.Printf("state:\t%s\n", state)
		if state == types.ServiceRunning {
			return printService(a.m)
		}
		return nil
	}}
	serviceCmd.AddCommand(serviceStart, serviceStop, serviceStatus)
	root.AddCommand(serviceCmd)

	var refresh bool
	modelsCmd := &cobra.Command{Use: "models", Short: "List catalog models", RunE: func(cmd *cobra.Command, args []string) error {
		if refresh {
			a.m.RefreshCatalog()
		}
		entries, err := a.m.ListCatalogModels(cmd.Context())
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "MODEL ID\tALIAS\tPROVIDERS\tSIZE")
		for _, e := range entries {
			fmt.Fprintf(w, "%s\t%s\t%v\t%d\n", e.ModelID, e.Alias, e.Providers, e.SizeBytes)
		}
		return w.Flush()
	}}
	modelsCmd.Flags().BoolVar(&refresh, "refresh", false, "Re-fetch the catalog instead of using the cached copy")
	root.AddCommand(modelsCmd)

	cachedCmd := &cobra.Command{Use: "cached", Short: "List downloaded models", RunE: func(cmd *cobra.Command, args []string) error {
		recs, err := a.m.ListCachedModels()
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "MODEL ID\tALIAS\tPROVIDER\tSIZE\tPATH")
		for _, r := range recs {
			fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n", r.ModelID, r.Alias, r.ProviderUsed, r.SizeBytes, r.LocalPath)
		}
		return w.Flush()
	}}
	root.AddCommand(cachedCmd)

	pullCmd := &cobra.Command{Use: "pull <model>", Short: "Download a model into the cache", Args: cobra.ExactArgs(1), RunE: func(cmd *cobra.Command, args []string) error {
		ch, err := a.m.DownloadModelWithProgress(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		var last types.DownloadProgressEvent
		for ev := range ch {
			last = ev
			if ev.Status == types.DownloadProgress {
				fmt.Fprintf(os.Stderr, "\r%s: %5.1f%% (%d/%d bytes)", ev.ModelID, ev.Percentage, ev.BytesReceived, ev.BytesTotal)
			}
		}
		fmt.Fprintln(os.Stderr)
		if last.Status == types.DownloadError {
			return fmt.Errorf("download %s: %s", args[0], last.ErrorMessage)
		}
		fmt.Printf("downloaded %s\n", last.ModelID)
		return nil
	}}
	root.AddCommand(pullCmd)

	loadCmd := &cobra.Command{Use: "load <model>", Short: "Load a model into the running daemon (downloads if absent)", Args: cobra.ExactArgs(1), RunE: func(cmd *cobra.Command, args []string) error {
		rec, err := a.m.LoadModel(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		fmt.Printf("loaded %s (%s)\n", rec.ModelID, rec.ProviderUsed)
		return nil
	}}
	root.AddCommand(loadCmd)

	unloadCmd := &cobra.Command{Use: "unload <model-id>", Short: "Unload a model from the running daemon", Args: cobra.ExactArgs(1), RunE: func(cmd *cobra.Command, args []string) error {
		return a.m.UnloadModel(cmd.Context(), args[0])
	}}
	root.AddCommand(unloadCmd)

	runCmd := &cobra.Command{Use: "run <model>", Short: "Start the daemon if needed, load the model, and print the endpoint", Args: cobra.ExactArgs(1), RunE: func(cmd *cobra.Command, args []string) error {
		rec, err := a.m.StartModel(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		fmt.Printf("model:\t%s (%s)\n", rec.ModelID, rec.ProviderUsed)
		return printService(a.m)
	}}
	root.AddCommand(runCmd)

	rmCmd := &cobra.Command{Use: "rm <model-id>", Short: "Remove a downloaded model and its artifact", Args: cobra.ExactArgs(1), RunE: func(cmd *cobra.Command, args []string) error {
		return a.m.RemoveCachedModel(args[0])
	}}
	root.AddCommand(rmCmd)

	return root
}

func printService(m *foundry.Manager) error {
	ep, err := m.Endpoint()
	if err != nil {
		return err
	}
	key, err := m.APIKey()
	if err != nil {
		return err
	}
	fmt.Printf("endpoint:\t%s\n", ep)
	if key != "" {
		fmt.Printf("api key:\t%s\n", key)
	}
	return nil
}

func main() {
	if err := buildRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
