package main

import (
	"context"

	"github.com/alecthomas/kong"

	"github.com/huskyapply/gateway/cmd/gateway/internal/commands"
)

var (
	version = "dev"
	cli     struct {
		Debug   bool               `help:"Enable debug mode."`
		Version kong.VersionFlag   `help:"Print version and exit."`
		Config  kong.ConfigFlag    `help:"Load flags from a YAML config file."`
		Server  commands.ServerCmd `cmd:"" help:"Start the gateway API server"`
	}
)

func main() {
	ctx := context.Background()
	cmd := kong.Parse(&cli,
		kong.Vars{
			"version": version,
		},
		kong.Configuration(commands.YAMLResolver, "/etc/huskyapply/gateway.yaml", "~/.config/huskyapply/gateway.yaml"),
		kong.BindTo(ctx, (*context.Context)(nil)))
	err := cmd.Run(&commands.Globals{Debug: cli.Debug, Version: version})
	cmd.FatalIfErrorf(err)
}
