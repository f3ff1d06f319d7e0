// Command godoo-mcp bridges an Odoo ERP instance to MCP clients, serving
// odoo:// resources and record/workflow tools over stdio or HTTP.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ilcreatore32/godoo-mcp/internal/config"
	"github.com/ilcreatore32/godoo-mcp/internal/server"
)

var flags struct {
	url          string
	db           string
	token        string
	logLevel     string
	defaultLimit int
	maxLimit     int
	envFile      string
	transport    string
	host         string
	port         int
}

var rootCmd = &cobra.Command{
	Use:     "godoo-mcp",
	Short:   "MCP server exposing an Odoo ERP to AI assistants",
	Long:    "godoo-mcp connects to an Odoo instance over XML-RPC and exposes its models\nas MCP resources and tools, including sales, purchase and manufacturing workflows.",
	Version: server.Version,
	Args:    cobra.NoArgs,
	RunE:    run,
	// Errors are logged once in main; cobra should not repeat them.
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.Flags().StringVar(&flags.url, "url", "", "Odoo server URL, e.g. https://mycompany.odoo.com (env ODOO_URL)")
	rootCmd.Flags().StringVar(&flags.db, "db", "", "Odoo database name (env ODOO_DB)")
	rootCmd.Flags().StringVar(&flags.token, "token", "", "Odoo API key (env ODOO_API_KEY)")
	rootCmd.Flags().StringVar(&flags.logLevel, "log-level", "", "Log level: debug, info, warn or error (env ODOO_MCP_LOG_LEVEL)")
	rootCmd.Flags().IntVar(&flags.defaultLimit, "default-limit", 0, "Default search page size (env ODOO_MCP_DEFAULT_LIMIT)")
	rootCmd.Flags().IntVar(&flags.maxLimit, "max-limit", 0, "Maximum search page size (env ODOO_MCP_MAX_LIMIT)")
	rootCmd.Flags().StringVar(&flags.envFile, "env-file", "", "Load environment variables from this file before reading ODOO_* settings")
	rootCmd.Flags().StringVar(&flags.transport, "transport", "", "Transport: stdio or streamable-http (env ODOO_MCP_TRANSPORT)")
	rootCmd.Flags().StringVar(&flags.host, "host", "", "Bind host for the HTTP transport (env ODOO_MCP_HOST)")
	rootCmd.Flags().IntVar(&flags.port, "port", 0, "Bind port for the HTTP transport (env ODOO_MCP_PORT)")
}

func run(cmd *cobra.Command, _ []string) error {
	if flags.envFile != "" {
		if err := godotenv.Load(flags.envFile); err != nil {
			return fmt.Errorf("load env file %s: %w", flags.envFile, err)
		}
	}

	cfg, err := config.FromEnv(config.Config{
		URL:          flags.url,
		Database:     flags.db,
		APIKey:       flags.token,
		LogLevel:     flags.logLevel,
		DefaultLimit: flags.defaultLimit,
		MaxLimit:     flags.maxLimit,
		Transport:    config.Transport(flags.transport),
		Host:         flags.host,
		Port:         flags.port,
	})
	if err != nil {
		return err
	}

	logger := cfg.NewLogger()
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := server.New(cfg, logger)
	if err := srv.Run(ctx); err != nil {
		logger.Error("server exited", zap.String("op", "main.run"), zap.Error(err))
		return err
	}
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
