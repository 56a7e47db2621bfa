package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/GriffinCanCode/contextify/internal/infrastructure/config"
	"github.com/GriffinCanCode/contextify/internal/infrastructure/server"
)

var (
	servePort    string
	serveDev     bool
	serveSeedDir string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP and WebSocket API",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(envFile)
		if err != nil {
			return err
		}
		if servePort != "" {
			cfg.Server.Port = servePort
		}
		if serveDev {
			cfg.Logging.Development = true
			cfg.Logging.Level = "debug"
		}
		if serveSeedDir != "" {
			cfg.Registry.SeedDir = serveSeedDir
		}
		if err := cfg.Validate(); err != nil {
			return err
		}

		srv, err := server.NewServer(cfg, nil)
		if err != nil {
			return err
		}
		defer srv.Close()

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		color.Green("Listening on %s\n", cfg.Server.Addr())
		if err := srv.Run(ctx); err != nil {
			return err
		}
		color.Yellow("Service stopped\n")
		return nil
	},
}

func init() {
	serveCmd.Flags().StringVarP(&servePort, "port", "p", "", "Listen port (overrides CONTEXTIFY_SERVER_PORT)")
	serveCmd.Flags().BoolVar(&serveDev, "dev", false, "Development mode")
	serveCmd.Flags().StringVar(&serveSeedDir, "seed-dir", "", "Preload contexts from seed files in this directory")
}
