package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/noah-isme/institute-timetable/internal/dto"
	"github.com/noah-isme/institute-timetable/internal/scheduler"
	"github.com/noah-isme/institute-timetable/internal/service"
	"github.com/noah-isme/institute-timetable/pkg/export"
)

type generateOptions struct {
	department string
	batches    []string
	term       string
	input      string
	output     string
	format     string
	dryRun     bool
}

var genOpts generateOptions

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate timetables for a department, a set of batches or everything",
	Long: `Generate plans timetables for the selected scope.

With --input the registry is read from a JSON snapshot and nothing is persisted.
Without it the registry is loaded from Postgres and the result replaces the stored
timetables unless --dry-run is set.`,
	RunE: runGenerate,
}

func init() {
	f := generateCmd.Flags()
	f.StringVar(&genOpts.department, "department", "", "department id to schedule")
	f.StringSliceVar(&genOpts.batches, "batch", nil, "batch id to schedule (repeatable)")
	f.StringVar(&genOpts.term, "term", "", "odd or even; defaults to the current term")
	f.StringVar(&genOpts.input, "input", "", "JSON registry snapshot to plan offline")
	f.StringVarP(&genOpts.output, "output", "o", "-", "output file, - for stdout")
	f.StringVar(&genOpts.format, "format", "json", "output format: json or csv")
	f.BoolVar(&genOpts.dryRun, "dry-run", false, "plan without persisting")
	rootCmd.AddCommand(generateCmd)
}

func runGenerate(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	format := strings.ToLower(genOpts.format)
	if format != "json" && format != "csv" {
		return fmt.Errorf("unsupported format %q", genOpts.format)
	}

	cfg, logr, err := bootstrap()
	if err != nil {
		return err
	}
	defer logr.Sync() //nolint:errcheck

	req := dto.GenerateTimetableRequest{
		DepartmentID: genOpts.department,
		BatchIDs:     genOpts.batches,
		Term:         genOpts.term,
		DryRun:       genOpts.dryRun,
	}
	req.All = req.DepartmentID == "" && len(req.BatchIDs) == 0

	var svc *service.TimetableService
	if genOpts.input != "" {
		snap, err := readSnapshot(genOpts.input)
		if err != nil {
			return err
		}
		req.DryRun = true
		svc = service.NewTimetableService(service.NewSnapshotRegistry(snap), nil, nil, nil, nil, nil, nil, nil, logr,
			service.TimetableServiceConfig{
				LabsFirst:       cfg.Scheduler.LabsFirst,
				RespectExisting: cfg.Scheduler.RespectExisting,
				RunTimeout:      cfg.Scheduler.RunTimeout,
			})
	} else {
		deps, err := newStack(ctx, cfg, logr)
		if err != nil {
			return err
		}
		defer deps.Close()
		svc = deps.timetables
	}

	resp, err := svc.Generate(ctx, req)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if genOpts.output != "-" && genOpts.output != "" {
		file, err := os.Create(genOpts.output)
		if err != nil {
			return fmt.Errorf("create output: %w", err)
		}
		defer file.Close()
		out = file
	}
	if err := writeGenerateResult(out, resp, format); err != nil {
		return err
	}

	if resp.Stats.Conflicts > 0 {
		logr.Sugar().Warnw("generation finished with conflicts", "placed", resp.Stats.Placed, "conflicts", resp.Stats.Conflicts)
	}
	return nil
}

func readSnapshot(path string) (scheduler.Snapshot, error) {
	file, err := os.Open(path)
	if err != nil {
		return scheduler.Snapshot{}, fmt.Errorf("open registry snapshot: %w", err)
	}
	defer file.Close()
	return scheduler.LoadSnapshotJSON(file)
}

// writeGenerateResult writes the full response as JSON, or one CSV with every placement of the run.
func writeGenerateResult(w io.Writer, resp *dto.GenerateTimetableResponse, format string) error {
	if format == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(resp)
	}
	return export.NewCSVExporter().Write(w, service.PlacementsDataset("run "+resp.RunID, resp.Placements))
}
