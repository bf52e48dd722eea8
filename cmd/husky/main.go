package main

import (
	"context"

	"github.com/alecthomas/kong"

	"github.com/huskyapply/gateway/cmd/husky/internal/commands"
)

var (
	version = "dev"
	cli     struct {
		Submit   commands.SubmitCmd   `cmd:"" help:"Submit a cover-letter generation job"`
		Watch    commands.WatchCmd    `cmd:"" help:"Stream a job's status events until it finishes"`
		Artifact commands.ArtifactCmd `cmd:"" help:"Fetch the generated cover letter for a job"`
		Token    commands.TokenCmd    `cmd:"" help:"Mint a bearer token for gateway access"`
		Debug    bool                 `help:"Enable debug mode."`
		Version  kong.VersionFlag     `help:"Print version and exit."`
	}
)

func main() {
	ctx := context.Background()
	cmd := kong.Parse(&cli,
		kong.Vars{
			"version": version,
		},
		kong.BindTo(ctx, (*context.Context)(nil)))
	err := cmd.Run(&commands.Globals{Debug: cli.Debug, Version: version})
	cmd.FatalIfErrorf(err)
}
