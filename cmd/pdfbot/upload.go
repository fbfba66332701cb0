package main

import (
	"bytes"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mohammad-safakhou/pdfbot/config"
	"github.com/spf13/cobra"
)

func uploadCMD() *cobra.Command {
	var cfgPath string
	var serverURL string
	var upload = &cobra.Command{
		Use:   "upload file.pdf...",
		Short: "Send PDFs to a running server",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if serverURL == "" {
				cfg, err := config.Load(cfgPath)
				if err != nil {
					return err
				}
				serverURL = cfg.Server.PublicURL
			}

			body, contentType, err := multipartFiles(args)
			if err != nil {
				return err
			}
			req, err := http.NewRequestWithContext(cmd.Context(), http.MethodPost, strings.TrimRight(serverURL, "/")+"/documents", body)
			if err != nil {
				return err
			}
			req.Header.Set("Content-Type", contentType)

			resp, err := (&http.Client{Timeout: 5 * time.Minute}).Do(req)
			if err != nil {
				return fmt.Errorf("upload: %w", err)
			}
			defer resp.Body.Close()
			b, _ := io.ReadAll(resp.Body)
			if resp.StatusCode != http.StatusOK {
				return fmt.Errorf("upload failed: %s: %s", resp.Status, strings.TrimSpace(string(b)))
			}
			fmt.Fprintln(cmd.OutOrStdout(), strings.TrimSpace(string(b)))
			return nil
		},
	}
	upload.Flags().StringVarP(&cfgPath, "config", "c", "", "config file (default is ./config/config.json)")
	upload.Flags().StringVar(&serverURL, "server", "", "server base URL (default FASTAPI_SERVER_URL)")
	return upload
}

func multipartFiles(paths []string) (*bytes.Buffer, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for _, p := range paths {
		f, err := os.Open(p)
		if err != nil {
			return nil, "", err
		}
		part, err := w.CreateFormFile("files", filepath.Base(p))
		if err == nil {
			_, err = io.Copy(part, f)
		}
		f.Close()
		if err != nil {
			return nil, "", fmt.Errorf("attach %s: %w", p, err)
		}
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return &buf, w.FormDataContentType(), nil
}
