package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	cli "github.com/urfave/cli/v3"
	"go.uber.org/multierr"

	"github.com/dgallion1/docstream/internal/interstitial"
	"github.com/dgallion1/docstream/internal/pipeline"
	"github.com/dgallion1/docstream/internal/render"
	"github.com/dgallion1/docstream/internal/session"
	"github.com/dgallion1/docstream/internal/upstream"
)

// runRead opens an entry, loads every page in turn and writes the result.
func runRead(ctx context.Context, cmd *cli.Command) error {
	a := appFrom(ctx)
	entryID := cmd.Args().Get(0)
	if entryID == "" {
		return errors.New("no entry id has been specified")
	}

	client := upstream.NewClient(a.cfg.UpstreamURL, a.cfg.UpstreamAPIKey, a.cfg.StreamTimeout, a.log)
	defer client.Close()

	var injector *interstitial.Injector
	if cmd.Bool("facts") {
		supply := interstitial.NewMemorySupply()
		if path := cmd.String("facts-file"); path != "" {
			n, err := interstitial.LoadFile(ctx, supply, path)
			if err != nil {
				return err
			}
			a.log.Debug("facts loaded", "count", n)
		}
		injector = interstitial.New(supply, nil, a.log)
	}

	cfg := a.cfg
	cfg.WorkerCount = 1
	orch := pipeline.NewOrchestrator(cfg, client, injector, a.log)
	orch.Start(ctx)
	defer orch.Stop()

	e, job, err := orch.Open(ctx, entryID)
	if err != nil {
		return err
	}
	if err := finished(ctx, job); err != nil {
		return err
	}

	snap := e.Session.Snapshot()
	for _, p := range snap.Pages {
		if p.Loaded {
			continue
		}
		job, err := orch.Enqueue(pipeline.JobActivate, entryID, p.Index, "")
		if err != nil {
			return err
		}
		if err := finished(ctx, job); err != nil {
			a.log.Warn("page did not load", "page", p.Index, "error", err)
		}
	}
	if job, err := orch.Enqueue(pipeline.JobActivate, entryID, 0, ""); err == nil {
		_ = finished(ctx, job)
	}
	e.Assembler.Wait()

	return write(cmd, e.Session.Snapshot())
}

// finished waits for job and turns a failed status into an error.
func finished(ctx context.Context, job *pipeline.Job) error {
	if err := job.Wait(ctx); err != nil {
		return err
	}
	snap := job.Snapshot()
	if snap.Status != pipeline.StatusCompleted {
		return fmt.Errorf("%s %s: %v", snap.Kind, snap.Status, snap.Progress.Errors)
	}
	return nil
}

func write(cmd *cli.Command, snap session.Snapshot) (err error) {
	format := cmd.String("to")
	var ext string
	switch format {
	case "html":
		ext = ".html"
	case "docx":
		ext = ".docx"
	case "json":
		ext = ".json"
	default:
		return fmt.Errorf("unknown output type %q", format)
	}

	var out io.Writer = os.Stdout
	if dst := cmd.Args().Get(1); dst != "" {
		if fi, statErr := os.Stat(dst); statErr == nil && fi.IsDir() {
			dst = filepath.Join(dst, render.Filename(snap, ext))
		}
		var f *os.File
		if f, err = os.Create(dst); err != nil {
			return fmt.Errorf("unable to create output: %w", err)
		}
		defer func() { err = multierr.Append(err, f.Close()) }()
		out = f
	}

	switch format {
	case "html":
		return render.WriteHTML(out, render.Document(snap))
	case "docx":
		return render.DOCX(out, snap)
	default:
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(snap)
	}
}

// runNew requests an entry and prints where it lives.
func runNew(ctx context.Context, cmd *cli.Command) error {
	a := appFrom(ctx)
	topic := cmd.Args().Get(0)

	client := upstream.NewClient(a.cfg.UpstreamURL, a.cfg.UpstreamAPIKey, a.cfg.StreamTimeout, a.log)
	defer client.Close()

	loc, err := client.NewEntry(ctx, topic, upstream.ParseProficiency(strconv.Itoa(cmd.Int("proficiency"))))
	if err != nil {
		a.log.Debug("new entry failed", "error", err)
		return errors.New(upstream.UserMessage(err))
	}
	fmt.Fprintln(os.Stdout, loc)
	return nil
}

// runFacts pushes a facts file onto the Redis list shared by servers.
func runFacts(ctx context.Context, cmd *cli.Command) (err error) {
	a := appFrom(ctx)
	path := cmd.Args().Get(0)
	if path == "" {
		return errors.New("no facts file has been specified")
	}

	redisURL := cmd.String("redis")
	if redisURL == "" {
		redisURL = a.cfg.RedisURL
	}
	if redisURL == "" {
		return errors.New("no redis url has been specified")
	}
	key := cmd.String("key")
	if key == "" {
		key = a.cfg.RedisFactsKey
	}

	supply, err := interstitial.NewRedisSupply(redisURL, key)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, supply.Close()) }()

	n, err := interstitial.LoadFile(ctx, supply, path)
	if err != nil {
		return err
	}
	total, err := supply.Len(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stdout, "loaded %d facts into %s (%d available)\n", n, key, total)
	return nil
}
