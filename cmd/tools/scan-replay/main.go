// Command scan-replay runs the gap follower offline over a recorded sweep
// file and reports the decision taken for each sweep.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/banshee-data/gapfollow/internal/config"
	"github.com/banshee-data/gapfollow/internal/controller"
	"github.com/banshee-data/gapfollow/internal/db"
	"github.com/banshee-data/gapfollow/internal/followgap"
	"github.com/banshee-data/gapfollow/internal/monitor"
	"github.com/banshee-data/gapfollow/internal/monitoring"
	"github.com/banshee-data/gapfollow/internal/scan/network"
	"github.com/banshee-data/gapfollow/internal/scan/parse"
	"github.com/banshee-data/gapfollow/internal/security"
	"github.com/banshee-data/gapfollow/internal/tracing"
	"github.com/banshee-data/gapfollow/internal/version"
)

type options struct {
	configPath string
	format     string
	udpPort    int
	jsonOut    bool
	plotDir    string
	plotEvery  int
	dbPath     string
	exportPath string
	deadline   time.Duration
	quiet      bool
}

func main() {
	if err := newRootCmd(os.Stdout).Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd(out io.Writer) *cobra.Command {
	var o options
	cmd := &cobra.Command{
		Use:   "scan-replay [flags] FILE",
		Short: "Run the gap follower over a recorded sweep file",
		Long: `scan-replay reads sweeps from a pcap/pcapng capture of GFS1 datagrams or
from a JSON-lines fixture, runs one control cycle per sweep and prints the
resulting command. Cycles run back to back with no pacing.`,
		Args:          cobra.ExactArgs(1),
		Version:       version.String(),
		SilenceUsage:  true,
		SilenceErrors: false,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), out, args[0], o)
		},
	}
	cmd.SetOut(out)

	f := cmd.Flags()
	f.StringVar(&o.configPath, "config", "", "Tuning config file (JSON); defaults to "+config.DefaultConfigPath+" when present")
	f.StringVar(&o.format, "format", "auto", "Input format: auto, pcap or jsonl")
	f.IntVar(&o.udpPort, "udp-port", 0, "Only read pcap datagrams to this UDP port (0 = all)")
	f.BoolVar(&o.jsonOut, "json", false, "Print one JSON object per cycle instead of a table")
	f.StringVar(&o.plotDir, "plot", "", "Directory to write PNG plots of decisions into")
	f.IntVar(&o.plotEvery, "plot-every", 1, "Plot every Nth emitted decision")
	f.StringVar(&o.dbPath, "db", "", "Record cycles into this SQLite database")
	f.StringVar(&o.exportPath, "export-jsonl", "", "Also write the decoded sweeps as JSON lines")
	f.DurationVar(&o.deadline, "deadline", 0, "Per-cycle deadline (0 disables)")
	f.BoolVarP(&o.quiet, "quiet", "q", false, "Only print the summary")
	return cmd
}

func detectFormat(path, format string) (string, error) {
	switch format {
	case "pcap", "jsonl":
		return format, nil
	case "auto", "":
	default:
		return "", fmt.Errorf("unknown format %q", format)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pcap", ".pcapng":
		return "pcap", nil
	case ".jsonl", ".ndjson", ".json":
		return "jsonl", nil
	}
	return "", fmt.Errorf("cannot tell the format of %s; pass --format", path)
}

func loadConfig(path string) (*config.TuningConfig, error) {
	if path != "" {
		return config.LoadTuningConfig(path)
	}
	if _, err := os.Stat(config.DefaultConfigPath); err == nil {
		return config.LoadTuningConfig(config.DefaultConfigPath)
	}
	return config.EmptyTuningConfig(), nil
}

// frameBuffer collects every frame the reader produces.
type frameBuffer struct {
	frames []followgap.ScanFrame
}

func (b *frameBuffer) Submit(f followgap.ScanFrame) bool {
	b.frames = append(b.frames, f)
	return true
}

func readFrames(ctx context.Context, path, format string, udpPort int) ([]followgap.ScanFrame, *network.PacketStats, error) {
	buf := &frameBuffer{}
	stats := &network.PacketStats{}
	opts := network.ReplayOptions{UDPPort: udpPort, Stats: stats}
	var err error
	if format == "pcap" {
		err = network.ReadPCAPFile(ctx, path, buf, opts)
	} else {
		err = network.ReadJSONLFile(ctx, path, buf, opts)
	}
	return buf.frames, stats, err
}

func exportFrames(path string, frames []followgap.ScanFrame) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	w := parse.NewJSONLWriter(f)
	for _, fr := range frames {
		if err := w.Write(fr); err != nil {
			f.Close()
			return err
		}
	}
	return f.Close()
}

type cycleLine struct {
	Seq         uint32            `json:"seq"`
	Status      controller.Status `json:"status"`
	Steering    float64           `json:"steering_angle,omitempty"`
	Speed       float64           `json:"speed,omitempty"`
	TargetIndex int               `json:"target_index,omitempty"`
	TargetRange float64           `json:"target_range,omitempty"`
	Gaps        int               `json:"gaps,omitempty"`
	Fallback    string            `json:"fallback,omitempty"`
	Error       string            `json:"error,omitempty"`
	DurationUS  int64             `json:"duration_us"`
}

// printer formats cycles as a table or JSON lines.
type printer struct {
	json bool
	tw   *tabwriter.Writer
	enc  *json.Encoder
}

func newPrinter(out io.Writer, asJSON bool) *printer {
	p := &printer{json: asJSON}
	if asJSON {
		p.enc = json.NewEncoder(out)
		return p
	}
	p.tw = tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(p.tw, "SEQ\tSTATUS\tSTEER(rad)\tSPEED(m/s)\tTARGET\tRANGE(m)\tGAPS\tFALLBACK\tDETAIL")
	return p
}

func (p *printer) print(l cycleLine) error {
	if p.json {
		return p.enc.Encode(l)
	}
	if l.Error != "" {
		_, err := fmt.Fprintf(p.tw, "%d\t%s\t\t\t\t\t\t\t%s\n", l.Seq, l.Status, l.Error)
		return err
	}
	_, err := fmt.Fprintf(p.tw, "%d\t%s\t%+.4f\t%.3f\t%d\t%.2f\t%d\t%s\t\n",
		l.Seq, l.Status, l.Steering, l.Speed, l.TargetIndex, l.TargetRange, l.Gaps, l.Fallback)
	return err
}

func (p *printer) flush() error {
	if p.tw != nil {
		return p.tw.Flush()
	}
	return nil
}

func run(ctx context.Context, out io.Writer, path string, o options) error {
	if o.quiet {
		monitoring.SetLogger(nil)
	}

	format, err := detectFormat(path, o.format)
	if err != nil {
		return err
	}
	cfg, err := loadConfig(o.configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	driverCfg, err := cfg.DriverConfig()
	if err != nil {
		return fmt.Errorf("invalid tuning: %w", err)
	}
	driverCfg.CycleDeadline = o.deadline
	driverCfg.StatsInterval = 0

	tp, err := tracing.NewFromEnv(ctx)
	if err != nil {
		return err
	}
	defer tp.Shutdown(context.Background())
	driverCfg.Tracer = tp.Tracer()

	frames, packets, err := readFrames(ctx, path, format, o.udpPort)
	if err != nil {
		return err
	}
	if o.exportPath != "" {
		if err := exportFrames(o.exportPath, frames); err != nil {
			return fmt.Errorf("export: %w", err)
		}
	}

	if o.plotDir != "" {
		if err := os.MkdirAll(o.plotDir, 0o755); err != nil {
			return err
		}
	}
	if o.plotEvery < 1 {
		o.plotEvery = 1
	}

	var last controller.Cycle
	observers := []controller.Observer{controller.ObserverFunc(func(c controller.Cycle) { last = c })}
	var (
		store    *db.DB
		recorder *db.Recorder
		recDone  context.CancelFunc
	)
	if o.dbPath != "" {
		if store, err = db.NewDB(o.dbPath); err != nil {
			return err
		}
		defer store.Close()
		recorder = db.NewRecorder(store, db.RecorderConfig{Buffer: len(frames) + 1})
		observers = append(observers, recorder)
	}

	drv, err := controller.NewDriver(driverCfg, nil, observers...)
	if err != nil {
		return err
	}

	if store != nil {
		if _, err := store.StartRun(ctx, db.Run{ID: drv.RunID(), Source: "replay " + path, Version: version.Version, Params: drv.Params()}); err != nil {
			return err
		}
		var recCtx context.Context
		recCtx, recDone = context.WithCancel(ctx)
		defer recDone()
		go recorder.Run(recCtx)
	}

	pr := newPrinter(out, o.jsonOut)
	stem := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	emitted := 0
	for _, frame := range frames {
		start := time.Now()
		d, err := drv.Process(ctx, frame)
		if errors.Is(err, context.Canceled) {
			break
		}
		line := cycleLine{Seq: frame.Seq, Status: controller.StatusEmitted, DurationUS: time.Since(start).Microseconds()}
		if err != nil {
			line.Status = last.Status
			line.Error = err.Error()
		} else {
			line.Steering = d.Command.SteeringAngle
			line.Speed = d.Command.Speed
			line.TargetIndex = d.TargetIndex
			line.TargetRange = d.TargetRange
			line.Gaps = len(d.Gaps)
			line.Fallback = d.Fallback.String()
			if o.plotDir != "" && emitted%o.plotEvery == 0 {
				png, err := security.SafeJoin(o.plotDir, fmt.Sprintf("%s-seq%06d.png", stem, frame.Seq))
				if err != nil {
					return err
				}
				if err := monitor.SaveDecisionPNG(png, d, drv.Params().SafeThreshold); err != nil {
					return err
				}
			}
			emitted++
		}
		if !o.quiet {
			if err := pr.print(line); err != nil {
				return err
			}
		}
	}
	if err := pr.flush(); err != nil {
		return err
	}

	if recorder != nil {
		recDone()
		<-recorder.Done()
		if err := store.FinishRun(context.Background(), drv.RunID(), time.Now()); err != nil {
			return err
		}
	}

	s := drv.Stats()
	fmt.Fprintf(out, "%d sweeps (%d datagrams, %d undecodable): %d emitted, %d malformed, %d deadline, fallbacks %d out-of-window %d no-gaps, max cycle %v\n",
		len(frames), packets.Packets.Load(), packets.DecodeErrors.Load(),
		s.Emitted, s.Malformed, s.DeadlineExceeded, s.FallbackOutWindow, s.FallbackNoGaps, s.MaxCycle)
	return nil
}
