package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/danielgtaylor/huma/v2/humacli"
	"github.com/goccy/go-json"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/joeblew999/plat-slackmap/internal/config"
	"github.com/joeblew999/plat-slackmap/internal/logging"
	"github.com/joeblew999/plat-slackmap/internal/server"
)

// Options defines all CLI flags and env vars for the slackmap server.
// Flags: --host, --port, --data-dir, --web-dir, --config
// Env vars: SERVICE_HOST, SERVICE_PORT, SERVICE_DATA_DIR, SERVICE_WEB_DIR, SERVICE_CONFIG
type Options struct {
	Host    string `doc:"Host to bind to" default:"0.0.0.0"`
	Port    int    `doc:"Port to listen on" short:"p" default:"8086"`
	DataDir string `doc:"Directory for GeoJSON documents, styles and DuckDB" default:".data"`
	WebDir  string `doc:"Path to web/ directory" default:"web"`
	Config  string `doc:"Map settings file (YAML)" short:"c"`
}

func loadConfig(opts *Options) (*config.Config, error) {
	cfg, err := config.Load(opts.Config)
	if err != nil {
		return nil, err
	}
	logging.Init(logging.Config{Level: cfg.Logging.Level, Format: cfg.Logging.Format})
	return cfg, nil
}

func newServer(ctx context.Context, opts *Options, cfg *config.Config, disableDB bool) (*server.Server, error) {
	return server.New(ctx, server.Config{
		Host:      opts.Host,
		Port:      fmt.Sprintf("%d", opts.Port),
		DataDir:   opts.DataDir,
		WebDir:    opts.WebDir,
		Map:       cfg,
		DisableDB: disableDB,
	})
}

func main() {
	cli := humacli.New(func(hooks humacli.Hooks, opts *Options) {
		var (
			httpServer *http.Server
			srv        *server.Server
			cancel     context.CancelFunc
		)

		hooks.OnStart(func() {
			log := logging.With("main")
			cfg, err := loadConfig(opts)
			if err != nil {
				log.Fatal().Err(err).Msg("invalid configuration")
			}

			var ctx context.Context
			ctx, cancel = context.WithCancel(context.Background())
			srv, err = newServer(ctx, opts, cfg, false)
			if err != nil {
				log.Fatal().Err(err).Msg("server setup failed")
			}
			go srv.Run(ctx)

			addr := fmt.Sprintf("%s:%d", opts.Host, opts.Port)
			displayHost := opts.Host
			if displayHost == "0.0.0.0" {
				displayHost = "localhost"
			}
			baseURL := fmt.Sprintf("http://%s:%d", displayHost, opts.Port)

			fmt.Println()
			fmt.Printf("plat-slackmap server starting...\n")
			fmt.Printf("  Server:  %s\n", baseURL)
			fmt.Printf("  Data:    %s\n", opts.DataDir)
			fmt.Println()
			fmt.Printf("  Docs:    %s/docs\n", baseURL)
			fmt.Printf("  OpenAPI: %s/openapi.json\n", baseURL)
			fmt.Printf("  Metrics: %s/metrics\n", baseURL)
			fmt.Println()

			httpServer = &http.Server{Addr: addr, Handler: srv}
			if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Fatal().Err(err).Msg("server error")
			}
		})

		hooks.OnStop(func() {
			if httpServer == nil {
				return
			}
			ctx, stop := context.WithTimeout(context.Background(), 10*time.Second)
			defer stop()
			httpServer.Shutdown(ctx)
			cancel()
			if err := srv.Close(); err != nil {
				logging.Warn().Err(err).Msg("shutdown")
			}
		})
	})

	cli.Root().Use = "slackmap"
	cli.Root().Short = "Slackline map sessions and map data server"
	cli.Root().Version = "0.1.0"

	// spec subcommand: export OpenAPI spec
	specCmd := &cobra.Command{
		Use:   "spec",
		Short: "Export OpenAPI spec (JSON by default, --yaml for YAML)",
		Run: humacli.WithOptions(func(cmd *cobra.Command, args []string, opts *Options) {
			srv, err := newServer(context.Background(), opts, config.Default(), true)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error building server: %v\n", err)
				os.Exit(1)
			}
			spec := srv.OpenAPI()

			useYAML, _ := cmd.Flags().GetBool("yaml")

			var output []byte
			if useYAML {
				output, err = yaml.Marshal(spec)
			} else {
				output, err = json.MarshalIndent(spec, "", "  ")
			}
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error marshaling spec: %v\n", err)
				os.Exit(1)
			}
			fmt.Println(string(output))
		}),
	}
	specCmd.Flags().BoolP("yaml", "y", false, "Output as YAML instead of JSON")
	cli.Root().AddCommand(specCmd)

	// check subcommand: validate the map settings
	checkCmd := &cobra.Command{
		Use:   "check",
		Short: "Validate the map settings and print the effective values",
		Run: humacli.WithOptions(func(cmd *cobra.Command, args []string, opts *Options) {
			cfg, err := config.Load(opts.Config)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
				os.Exit(1)
			}
			if cfg.Backend.Token != "" {
				cfg.Backend.Token = "<redacted>"
			}
			out, err := yaml.Marshal(cfg)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error marshaling configuration: %v\n", err)
				os.Exit(1)
			}
			fmt.Print(string(out))
		}),
	}
	cli.Root().AddCommand(checkCmd)

	cli.Run()
}
