package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"go.uber.org/zap"

	"github.com/Firasse123/FineVerse-AIXCYBER/internal/core/domain"
	"github.com/Firasse123/FineVerse-AIXCYBER/internal/repository/file"
)

// Globals are flags shared by every command.
type Globals struct {
	Debug   bool
	Version string
}

func (g *Globals) logger() *zap.Logger {
	if !g.Debug {
		return zap.NewNop()
	}
	log, err := zap.NewDevelopment()
	if err != nil {
		return zap.NewNop()
	}
	return log
}

type VerifyCmd struct {
	Path  string `arg:"" help:"Audit file (.log JSON lines or .zst archive)" type:"existingfile"`
	Actor string `help:"Only verify entries of this actor"`
	JSON  bool   `help:"Print the report as JSON"`

	out io.Writer
}

func (v *VerifyCmd) Run(ctx context.Context, globals *Globals) error {
	log := globals.logger()
	defer func() { _ = log.Sync() }()

	entries, undecodable, err := file.ScanFile(v.Path)
	if err != nil {
		return fmt.Errorf("read %s: %w", v.Path, err)
	}
	if v.Actor != "" {
		filtered := entries[:0]
		for _, e := range entries {
			if e.Actor == v.Actor {
				filtered = append(filtered, e)
			}
		}
		entries = filtered
	}
	log.Debug("verifying audit entries", zap.String("path", v.Path), zap.Int("entries", len(entries)))

	// an undecodable line has no trustworthy actor, so it is reported under any filter
	report := domain.VerifyEntries(entries)
	report.Flag(undecodable...)
	if err := v.print(report); err != nil {
		return err
	}
	return report.Err()
}

func (v *VerifyCmd) print(report domain.IntegrityReport) error {
	out := v.out
	if out == nil {
		out = os.Stdout
	}

	if v.JSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}

	fmt.Fprintf(out, "entries: %d\n", report.TotalLogs)
	if report.IntegrityOK {
		fmt.Fprintln(out, "integrity: ok")
		return nil
	}
	fmt.Fprintf(out, "integrity: FAILED (%d issues)\n", report.IssuesFound)
	for _, issue := range report.Issues {
		fmt.Fprintf(out, "  %s  %s\n", issue.ID, issue.Reason)
	}
	return nil
}

type ArchiveCmd struct {
	Path   string `arg:"" help:"Audit file to compress" type:"existingfile"`
	Output string `short:"o" help:"Archive path (defaults to <path>.zst)"`
	Verify bool   `help:"Refuse to archive a trail that fails verification" default:"true" negatable:""`

	out io.Writer
}

func (a *ArchiveCmd) Run(ctx context.Context, globals *Globals) error {
	log := globals.logger()
	defer func() { _ = log.Sync() }()

	if strings.HasSuffix(a.Path, file.ArchiveSuffix) {
		return fmt.Errorf("%s is already an archive", a.Path)
	}

	if a.Verify {
		entries, undecodable, err := file.ScanFile(a.Path)
		if err != nil {
			return fmt.Errorf("read %s: %w", a.Path, err)
		}
		report := domain.VerifyEntries(entries)
		report.Flag(undecodable...)
		if err := report.Err(); err != nil {
			return err
		}
	}

	dst := a.Output
	if dst == "" {
		dst = a.Path + file.ArchiveSuffix
	}

	n, err := file.ArchiveFile(a.Path, dst)
	if err != nil {
		return err
	}
	log.Debug("archived audit trail", zap.String("src", a.Path), zap.String("dst", dst))

	out := a.out
	if out == nil {
		out = os.Stdout
	}
	fmt.Fprintf(out, "archived %d entries to %s\n", n, dst)
	return nil
}
