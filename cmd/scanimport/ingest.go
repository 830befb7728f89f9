package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/exploopio/scanimport/pkg/compress"
	"github.com/exploopio/scanimport/pkg/core"
	"github.com/exploopio/scanimport/pkg/options"
	"github.com/exploopio/scanimport/pkg/pipeline"
	"github.com/exploopio/scanimport/pkg/ris"
)

func newIngestCmd(g *globalFlags) *cobra.Command {
	var (
		format  string
		asJSON  bool
		workers int
	)

	cmd := &cobra.Command{
		Use:   "ingest [flags] FILE...",
		Short: "Import report files into the inventory",
		Long: `Import report files into the configured inventory. Files may be gzip or
zstd compressed. "-" reads one report from stdin. The format is detected
from the content unless --format is given.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var extra []options.Option
			if workers > 0 {
				extra = append(extra, options.WithWorkers(workers))
			}
			cfg, logger, err := g.load(cmd, extra...)
			if err != nil {
				return err
			}

			var tag ris.Format
			if format != "" && format != "auto" {
				f, ok := ris.ParseFormat(format)
				if !ok {
					return fmt.Errorf("unsupported format %q (see '%s formats')", format, appName)
				}
				tag = f
			}

			// A file that cannot be read fails alone; the rest still run.
			outcomes := make([]pipeline.Outcome, len(args))
			raws := make([]ris.RawReport, 0, len(args))
			slots := make([]int, 0, len(args))
			for i, path := range args {
				raw, err := readReport(cmd.InOrStdin(), path, cfg.Pipeline.MaxReportSize)
				if err != nil {
					logger.Error("%v", err)
					outcomes[i] = pipeline.Outcome{Name: reportName(path), Err: err}
					continue
				}
				raw.Format = tag
				raws = append(raws, raw)
				slots = append(slots, i)
			}

			if len(raws) > 0 {
				inv, err := openInventory(cmd.Context(), cfg.Inventory, logger, nil)
				if err != nil {
					return err
				}
				defer inv.Close()

				driver := pipeline.NewDriver(inv, pipeline.WithLogger(logger))
				processed, err := ingestAll(cmd.Context(), driver, raws, cfg.Pipeline, logger)
				if err != nil {
					return err
				}
				for j, o := range processed {
					outcomes[slots[j]] = o
				}
			}

			if asJSON {
				err = printJSON(cmd.OutOrStdout(), outcomes)
			} else {
				err = printTable(cmd.OutOrStdout(), outcomes)
			}
			if err != nil {
				return err
			}

			failed := 0
			for _, o := range outcomes {
				if o.Err != nil {
					failed++
				}
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d reports failed", failed, len(outcomes))
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", "", "report format of every file (default: detect)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print results as JSON")
	cmd.Flags().IntVarP(&workers, "workers", "w", 0, "number of reports processed concurrently")
	return cmd
}

// readReport reads and decompresses one report file.
func readReport(stdin io.Reader, path string, maxSize int64) (ris.RawReport, error) {
	r := stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return ris.RawReport{}, err
		}
		defer f.Close()
		r = f
	}

	data, err := io.ReadAll(io.LimitReader(r, maxSize+1))
	if err != nil {
		return ris.RawReport{}, fmt.Errorf("read %s: %w", path, err)
	}
	if int64(len(data)) > maxSize {
		return ris.RawReport{}, fmt.Errorf("%s: report exceeds %d bytes", path, maxSize)
	}

	decoded, alg, err := compress.Decode(data, maxSize)
	if err != nil {
		return ris.RawReport{}, fmt.Errorf("%s: %s: %w", path, alg, err)
	}
	return ris.RawReport{Name: reportName(path), Data: decoded}, nil
}

func reportName(path string) string {
	if path == "-" {
		return "stdin"
	}
	return filepath.Base(path)
}

// ingestAll runs raws through a worker pool and returns one outcome per
// report, in input order.
func ingestAll(ctx context.Context, processor pipeline.Processor, raws []ris.RawReport, cfg options.PipelineConfig, logger core.Logger) ([]pipeline.Outcome, error) {
	outcomes := make([]pipeline.Outcome, len(raws))
	index := make(map[string]int, len(raws))
	var mu sync.Mutex

	record := func(item *pipeline.QueueItem, result *pipeline.Result, err error) {
		mu.Lock()
		defer mu.Unlock()
		i := index[item.ID]
		outcomes[i].Result, outcomes[i].Err = result, err
	}

	pool := pipeline.NewPool(&pipeline.PoolConfig{
		QueueSize: max(cfg.QueueSize, len(raws)),
		Workers:   cfg.Workers,
		RateLimit: cfg.RateLimit,
		Burst:     cfg.Burst,
		Timeout:   cfg.Timeout,
		OnCompleted: func(item *pipeline.QueueItem, result *pipeline.Result) {
			record(item, result, nil)
		},
		OnFailed: func(item *pipeline.QueueItem, err error) {
			record(item, nil, err)
		},
		Logger: logger,
	}, processor)

	if err := pool.Start(ctx); err != nil {
		return nil, err
	}

	for i, raw := range raws {
		outcomes[i].Name = raw.Name
		// Held across Submit so a fast worker cannot record before the id is indexed.
		mu.Lock()
		id, err := pool.Submit(raw)
		if err != nil {
			outcomes[i].Err = err
		} else {
			index[id] = i
		}
		mu.Unlock()
	}

	if err := pool.Flush(ctx); err != nil {
		return nil, err
	}
	if err := pool.Stop(ctx); err != nil {
		return nil, err
	}
	return outcomes, nil
}

type outcomeJSON struct {
	Name   string           `json:"name"`
	Error  string           `json:"error,omitempty"`
	Result *pipeline.Result `json:"result,omitempty"`
}

func printJSON(w io.Writer, outcomes []pipeline.Outcome) error {
	out := make([]outcomeJSON, 0, len(outcomes))
	for _, o := range outcomes {
		line := outcomeJSON{Name: o.Name, Result: o.Result}
		if o.Err != nil {
			line.Error = o.Err.Error()
		}
		out = append(out, line)
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

func printTable(w io.Writer, outcomes []pipeline.Outcome) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "REPORT\tFORMAT\tSTATUS\tHOSTS\tFINDINGS\tHIGHEST\tSKIPPED\tINVENTORY ERRORS")
	for _, o := range outcomes {
		if o.Err != nil {
			fmt.Fprintf(tw, "%s\t-\terror\t-\t-\t-\t-\t%v\n", o.Name, o.Err)
			continue
		}
		r := o.Result
		highest := "-"
		if r.Severities.Total > 0 {
			highest = r.Severities.HighestSeverity().String()
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%s\t%d\t%d\n",
			o.Name, r.Format, r.Status, r.Hosts, r.Entities.Findings, highest, r.Skipped, len(r.Entities.Errors))
	}
	return tw.Flush()
}
