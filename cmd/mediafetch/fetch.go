package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/urfave/cli/v3"

	"mediafetch/internal/config"
	"mediafetch/internal/core/domain"
	"mediafetch/internal/httpapi"
	"mediafetch/internal/service"
)

func fetchCmd() *cli.Command {
	return &cli.Command{
		Name:      "fetch",
		Usage:     "Run one download job from the terminal",
		ArgsUsage: "<video-url>",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "type",
				Aliases: []string{"t"},
				Usage:   "Output kind: mp3 or video",
				Value:   "mp3",
			},
			&cli.StringFlag{
				Name:    "out",
				Aliases: []string{"o"},
				Usage:   "Directory to write the file into",
				Value:   ".",
			},
			&cli.BoolFlag{
				Name:  "info",
				Usage: "Print title and duration only",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if cmd.Args().Len() != 1 {
				return cli.Exit("usage: mediafetch fetch [--type mp3|video] [--out DIR] <video-url>", 2)
			}
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			logger, closeLog, err := setupLogging(cfg.Logging)
			if err != nil {
				return err
			}
			defer closeLog()

			ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return fetch(ctx, cfg, logger, cmd.Args().First(), cmd.String("type"), cmd.String("out"), cmd.Bool("info"))
		},
	}
}

func fetch(ctx context.Context, cfg *config.Config, logger zerolog.Logger, rawURL, kind, outDir string, infoOnly bool) error {
	req, err := domain.NewJobRequest(rawURL, kind, "")
	if err != nil {
		return cli.Exit(domain.Classify(err).Message, 2)
	}
	c, err := buildComponents(cfg, logger)
	if err != nil {
		return err
	}

	if infoOnly {
		info, err := c.orchestrator.Probe(ctx, req)
		if err != nil {
			return jobExit(err)
		}
		fmt.Printf("Title:    %s\nDuration: %s\n", info.Title, time.Duration(info.DurationSeconds*float64(time.Second)))
		return nil
	}

	start := time.Now()
	d, err := c.orchestrator.Run(ctx, req)
	if err != nil {
		return jobExit(err)
	}
	defer d.Close()

	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	dst := filepath.Join(outDir, httpapi.Filename(d.Title, d.Ext))
	n, err := writeArtifact(d, dst)
	if err != nil {
		return err
	}

	fmt.Println("\n=== Job Summary ===")
	fmt.Printf("Job ID:       %s\n", d.JobID)
	fmt.Printf("Title:        %s\n", d.Title)
	fmt.Printf("Type:         %s\n", d.ContentType)
	fmt.Printf("File:         %s\n", dst)
	fmt.Printf("Size:         %d bytes\n", n)
	fmt.Printf("Took:         %s\n", time.Since(start).Round(time.Millisecond))
	return nil
}

func writeArtifact(d *service.Delivery, dst string) (int64, error) {
	var src io.Reader
	if d.Stream != nil {
		src = d.Stream.Body
	} else {
		f, err := os.Open(d.FilePath)
		if err != nil {
			return 0, fmt.Errorf("open artifact: %w", err)
		}
		defer f.Close()
		src = f
	}

	out, err := os.CreateTemp(filepath.Dir(dst), ".mediafetch-*")
	if err != nil {
		return 0, fmt.Errorf("create output: %w", err)
	}
	n, err := io.Copy(out, src)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(out.Name())
		return 0, fmt.Errorf("write output: %w", err)
	}
	if err := os.Rename(out.Name(), dst); err != nil {
		os.Remove(out.Name())
		return 0, fmt.Errorf("move output into place: %w", err)
	}
	return n, nil
}

// jobExit maps a job failure onto a process exit code and the stable message.
func jobExit(err error) error {
	je := domain.Classify(err)
	code := 1
	switch je.Kind {
	case domain.KindInvalidRequest:
		code = 2
	case domain.KindUpstreamDenied:
		code = 3
	case domain.KindUpstreamUnavailable:
		code = 4
	}
	if je.Err == nil {
		return cli.Exit(je.Message, code)
	}
	return cli.Exit(fmt.Sprintf("%s (%v)", je.Message, je.Err), code)
}
