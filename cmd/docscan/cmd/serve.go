package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/MeKo-Tech/docscan/internal/config"
	"github.com/MeKo-Tech/docscan/internal/pipeline"
	"github.com/MeKo-Tech/docscan/internal/server"
)

func (a *app) newServeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP server for the document API",
		Long: `Start an HTTP server that exposes the document pipeline.

The server provides the following endpoints:
  POST /ocr/image  - Process an uploaded image (multipart field "image")
  POST /ocr/pdf    - Process the page images of an uploaded scanned PDF
  POST /ocr/batch  - Process several uploaded images (multipart field "images")
  GET  /ws/ocr     - WebSocket: send base64 images, receive progress and results
  GET  /health     - Health check endpoint
  GET  /info       - Pipeline configuration
  GET  /metrics    - Prometheus metrics

Examples:
  docscan serve
  docscan serve --port 8080 --pipelines 4
  docscan serve --host 0.0.0.0 --rate-limit-enabled --requests-per-minute 30`,
		Args: cobra.NoArgs,
		RunE: a.runServe,
	}

	d := config.DefaultConfig().Server
	f := cmd.Flags()
	f.StringP("host", "H", d.Host, "server host")
	f.IntP("port", "p", d.Port, "server port")
	f.String("cors-origin", d.CORSOrigin, "CORS allowed origins")
	f.Int("max-upload-size", d.MaxUploadMB, "maximum upload size in MB")
	f.Int("timeout", d.TimeoutSec, "request timeout in seconds")
	f.Int("shutdown-timeout", d.ShutdownTimeout, "shutdown timeout in seconds")
	f.Int("pipelines", d.Pipelines, "number of pipelines serving requests side by side")
	f.Bool("rate-limit-enabled", d.RateLimit.Enabled, "enable rate limiting")
	f.Int("requests-per-minute", 60, "maximum requests per minute per client")
	f.Int("requests-per-hour", 1000, "maximum requests per hour per client")
	f.Int("max-requests-per-day", 5000, "maximum requests per day per client")
	f.Int64("max-data-per-day", 100, "maximum data processed per day per client (MB)")

	bindKey(f, "host", "server.host")
	bindKey(f, "port", "server.port")
	bindKey(f, "cors-origin", "server.cors_origin")
	bindKey(f, "max-upload-size", "server.max_upload_mb")
	bindKey(f, "timeout", "server.timeout_sec")
	bindKey(f, "shutdown-timeout", "server.shutdown_timeout")
	bindKey(f, "pipelines", "server.pipelines")
	bindKey(f, "rate-limit-enabled", "server.rate_limit.enabled")
	bindKey(f, "requests-per-minute", "server.rate_limit.requests_per_minute")
	bindKey(f, "requests-per-hour", "server.rate_limit.requests_per_hour")
	bindKey(f, "max-requests-per-day", "server.rate_limit.max_requests_per_day")
	bindKey(f, "max-data-per-day", "server.rate_limit.max_data_per_day_mb")
	return cmd
}

func (a *app) runServe(cmd *cobra.Command, _ []string) error {
	srv, err := a.newServer()
	if err != nil {
		return err
	}
	defer func() {
		if cerr := srv.Close(); cerr != nil {
			a.logger.Error("server cleanup error", "error", cerr)
		}
	}()

	if err := srv.ListenAndServe(cmd.Context()); err != nil {
		return fmt.Errorf("server error: %w", err)
	}
	a.logger.Info("graceful shutdown completed")
	return nil
}

// newServer builds the server with one pipeline per pool slot. The engines
// are created once and shared by every pipeline.
func (a *app) newServer() (*server.Server, error) {
	pc, err := a.pipelineConfig()
	if err != nil {
		return nil, err
	}
	factory := func() (server.Runner, error) {
		return pipeline.NewBuilderFromConfig(pc).Build()
	}
	srv, err := server.NewServer(a.cfg.ToServerConfig(a.logger), factory)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize server: %w", err)
	}
	return srv, nil
}
