package main

import (
	"context"

	"github.com/alecthomas/kong"
)

var (
	version = "dev"
	cli     struct {
		Verify  VerifyCmd  `cmd:"" help:"Recompute every entry hash of an audit file"`
		Archive ArchiveCmd `cmd:"" help:"Compress an audit file into a zstd archive"`
		Debug   bool       `help:"Enable debug logging."`
		Version kong.VersionFlag
	}
)

func main() {
	ctx := context.Background()
	cmd := kong.Parse(&cli,
		kong.Description("Offline tooling for the security audit trail."),
		kong.Vars{
			"version": version,
		},
		kong.BindTo(ctx, (*context.Context)(nil)))
	err := cmd.Run(&Globals{Debug: cli.Debug, Version: version})
	cmd.FatalIfErrorf(err)
}
