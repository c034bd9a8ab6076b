package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/MimeLyc/movie-dubber/internal/config"
	"github.com/MimeLyc/movie-dubber/pkg/log"
)

func newServeCommand() *cobra.Command {
	var (
		backendURL string
		dataDir    string
		addr       string
		uiDir      string
		logFile    string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the dubbing engine and the page bridge",
		RunE: func(cmd *cobra.Command, args []string) error {
			var opts []config.Option
			if backendURL != "" {
				opts = append(opts, config.WithBackendURL(backendURL))
			}
			if dataDir != "" {
				opts = append(opts, config.WithDataDir(dataDir))
			}
			if addr != "" {
				opts = append(opts, config.WithHTTPAddr(addr))
			}

			cfg, err := config.NewFromEnv(opts...)
			if err != nil {
				return err
			}

			level := log.ParseLevel(cfg.Log.Level)
			if logFile != "" {
				fileLogger, err := log.NewFileLogger(logFile, level)
				if err != nil {
					return err
				}
				defer fileLogger.Close()
				log.SetLogger(fileLogger.Logger)
			} else {
				log.InitLogger(level)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, cfg, uiDir)
			if err != nil {
				return err
			}
			return a.run(ctx)
		},
	}

	cmd.Flags().StringVar(&backendURL, "backend", "", "Backend base URL (overrides BACKEND_URL)")
	cmd.Flags().StringVar(&dataDir, "data-dir", "", "Data directory (overrides DATA_DIR)")
	cmd.Flags().StringVar(&addr, "addr", "", "HTTP listen address (overrides HTTP_ADDR)")
	cmd.Flags().StringVar(&uiDir, "ui", "", "Directory with the popup UI to serve")
	cmd.Flags().StringVar(&logFile, "log-file", "", "Also write logs to this file")
	return cmd
}
