package cli

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pimguilherme/st2/internal/server"
)

func newServeCmd() *cobra.Command {
	var (
		port int
		host string
		dev  bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the st2auth API server",
		Long:  "Start the HTTP server that issues and validates tokens, API keys, and SSO handshakes.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(host, port, dev)
		},
	}

	cmd.Flags().IntVarP(&port, "port", "p", 9100, "HTTP listen port")
	cmd.Flags().StringVar(&host, "host", "0.0.0.0", "HTTP listen host")
	cmd.Flags().BoolVar(&dev, "dev", false, "Enable development mode (verbose logging)")

	viper.BindPFlag("server.port", cmd.Flags().Lookup("port"))
	viper.BindPFlag("server.host", cmd.Flags().Lookup("host"))

	return cmd
}

func runServe(host string, port int, dev bool) error {
	logger := newLogger(dev)

	auth, st, err := openAuth()
	if err != nil {
		return err
	}
	defer st.Close()
	logger.Info("system store initialized")

	if viper.GetString("auth.jwt_secret") == "" {
		logger.Warn("auth.jwt_secret is not set - web SSO callback assertions use an empty key")
	}

	srvCfg := server.DefaultConfig()
	srvCfg.Host = host
	srvCfg.Port = port
	srvCfg.ShutdownTimeout = durationSetting("server.shutdown_timeout", 30*time.Second)
	srvCfg.Version = versionString()
	if origins := viper.GetStringSlice("server.cors.origins"); len(origins) > 0 {
		srvCfg.CORSOrigins = origins
	}
	if hdr := viper.GetString("auth.token_header"); hdr != "" {
		srvCfg.TokenHeader = hdr
	}
	if hdr := viper.GetString("auth.api_key_header"); hdr != "" {
		srvCfg.APIKeyHeader = hdr
	}

	srv := server.New(srvCfg, st, auth, logger)

	if err := writePID(os.Getpid()); err != nil {
		logger.Warn("could not write pid file", "error", err)
	}
	defer removePID()

	fmt.Printf("→ st2auth %s\n", versionString())
	fmt.Printf("→ Listening on http://%s:%d\n", host, port)
	fmt.Printf("→ OpenAPI:  http://%s:%d/openapi.json\n", host, port)
	fmt.Printf("→ Health:   http://%s:%d/healthz\n", host, port)
	fmt.Println()

	return srv.ListenAndServe()
}

// newLogger builds the process logger from configuration. dev forces debug
// level; logging.format selects text or JSON output.
func newLogger(dev bool) *slog.Logger {
	level := slog.LevelInfo
	if dev || viper.GetString("logging.level") == "debug" {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if viper.GetString("logging.format") == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	return slog.New(handler)
}
