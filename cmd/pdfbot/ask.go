package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/mohammad-safakhou/pdfbot/config"
	"github.com/mohammad-safakhou/pdfbot/internal/answering"
	"github.com/mohammad-safakhou/pdfbot/internal/document"
	"github.com/mohammad-safakhou/pdfbot/models"
	"github.com/spf13/cobra"
)

func askCMD() *cobra.Command {
	var cfgPath string
	var pdfs []string
	var ask = &cobra.Command{
		Use:   "ask --pdf file.pdf [--pdf more.pdf] question...",
		Short: "Load PDFs locally and answer one question",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(pdfs) == 0 {
				return fmt.Errorf("at least one --pdf is required")
			}
			cfg, err := config.Load(cfgPath)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			cfg.Dedup.Backend = config.DedupMemory

			a, err := buildApp(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			files := make([]document.File, 0, len(pdfs))
			for _, p := range pdfs {
				data, err := os.ReadFile(p)
				if err != nil {
					return err
				}
				files = append(files, document.File{Name: filepath.Base(p), Data: data})
			}
			if _, err := a.store.Ingest(ctx, files...); err != nil {
				return err
			}

			res, err := a.answers.Answer(ctx, strings.Join(args, " "), answering.Meta{Channel: models.ChannelUI})
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, res.Text)
			if len(res.Citations) > 0 {
				fmt.Fprintln(out)
				fmt.Fprintln(out, "Sources:")
				for _, c := range res.Citations {
					fmt.Fprintf(out, "  [%s #%d] %s\n", c.SourceID, c.Position, oneLine(c.Snippet, 80))
				}
			}
			return nil
		},
	}
	ask.Flags().StringVarP(&cfgPath, "config", "c", "", "config file (default is ./config/config.json)")
	ask.Flags().StringArrayVar(&pdfs, "pdf", nil, "PDF file to load (repeatable)")
	return ask
}

func oneLine(s string, max int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max]) + "…"
}
