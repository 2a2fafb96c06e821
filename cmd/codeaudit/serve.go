package main

import (
	"os/signal"
	"syscall"
	"time"

	"codeaudit/internal/server"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP analysis API",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		a, err := buildApp(ctx, buildOptions{})
		if err != nil {
			return err
		}
		defer a.Close()

		if servePort > 0 {
			a.cfg.Server.Port = servePort
		}
		srv := server.New(a.cfg.Server, a.engine,
			server.WithFeatures(a.features),
			server.WithLogger(a.logger.Named("http")),
			server.WithWriteTimeout(writeTimeout(a.cfg.Narrative.Timeout())),
		)

		a.logger.Info("codeaudit starting",
			zap.String("version", Version),
			zap.Int("port", a.cfg.Server.Port),
			zap.Bool("narrative", a.engine.NarrativeEnabled()),
			zap.Bool("knowledge", a.features.Knowledge),
			zap.String("corroboration", a.features.CorroborationMode),
			zap.String("scoring", a.features.ScoringProfile))
		return srv.Start(ctx)
	},
}

// writeTimeout must outlast the narrative deadline, which bounds a call and its repair together.
func writeTimeout(narrative time.Duration) time.Duration {
	return narrative + 30*time.Second
}

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 0, "Port to listen on (overrides SERVER_PORT)")
	rootCmd.AddCommand(serveCmd)
}
