package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"

	"github.com/starford/pathnote/internal"
	pkgconfig "github.com/starford/pathnote/pkg/config"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func loadConfig(cmd *cli.Command) (*internal.Config, error) {
	cfg := internal.NewDefaultConfig()
	err := pkgconfig.Load(cmd.String("config"), cfg,
		pkgconfig.WithEnvPrefix(internal.EnvPrefix),
		pkgconfig.WithOptionalFile())
	if err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}

func serve(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	opts := []internal.Option{
		internal.WithConfig(cfg),
		internal.WithVersion(version),
	}

	if err := internal.Run(ctx, opts...); err != nil {
		return fmt.Errorf("app run error: %w", err)
	}

	return nil
}

func mcp(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := internal.RunMCP(ctx, internal.WithConfig(cfg), internal.WithVersion(version)); err != nil {
		return fmt.Errorf("mcp run error: %w", err)
	}
	return nil
}

func main() {
	cmd := &cli.Command{
		Name:    "pathnote",
		Usage:   "Path-addressed rich-text notepad with optional password locks",
		Version: version,
		Action:  serve,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "config",
				Aliases:     []string{"c"},
				Usage:       "Path to config file",
				DefaultText: "config/config.yaml",
				Value:       "config/config.yaml",
				Sources:     cli.EnvVars("APP_CONFIG_FILE"),
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Run the HTTP server (default)",
				Action: serve,
			},
			{
				Name:   "mcp",
				Usage:  "Serve MCP tools over stdin/stdout",
				Action: mcp,
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("application error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
