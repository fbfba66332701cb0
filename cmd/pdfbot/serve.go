package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/mohammad-safakhou/pdfbot/config"
	srv "github.com/mohammad-safakhou/pdfbot/internal/server"
	"github.com/mohammad-safakhou/pdfbot/internal/watcher"
	"github.com/spf13/cobra"
)

func serveCMD() *cobra.Command {
	var cfgPath string
	var watchDir string
	var serve = &cobra.Command{
		Use:   "serve",
		Short: "Run HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.LoadConfig(cfgPath)
			if watchDir != "" {
				cfg.Documents.WatchDir = watchDir
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := buildApp(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			if dir := cfg.Documents.WatchDir; dir != "" {
				w := watcher.New(dir, cfg.Documents.Debounce, a.store)
				go func() {
					if err := w.Run(ctx); err != nil {
						log.Printf("document watcher stopped: %v", err)
					}
				}()
			}

			if cfg.Chatwoot.WebhookURL != "" {
				log.Printf("chatwoot webhook url: %s", cfg.Chatwoot.WebhookURL)
			}
			server := srv.New(srv.Deps{
				Config:    cfg,
				Documents: a.store,
				Answerer:  a.answers,
				Log:       a.log,
				Webhooks:  a.bridge,
				Metrics:   a.metrics,
			})
			return server.Start(ctx)
		},
	}
	serve.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "config file (default is ./config/config.json)")
	serve.Flags().StringVar(&watchDir, "watch", "", "directory of PDFs to load and watch")

	return serve
}
