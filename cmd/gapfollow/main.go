package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/banshee-data/gapfollow/internal/config"
	"github.com/banshee-data/gapfollow/internal/controller"
	"github.com/banshee-data/gapfollow/internal/db"
	"github.com/banshee-data/gapfollow/internal/fsutil"
	"github.com/banshee-data/gapfollow/internal/monitor"
	"github.com/banshee-data/gapfollow/internal/scan/network"
	"github.com/banshee-data/gapfollow/internal/serialmux"
	"github.com/banshee-data/gapfollow/internal/tracing"
	"github.com/banshee-data/gapfollow/internal/tui"
	"github.com/banshee-data/gapfollow/internal/units"
	"github.com/banshee-data/gapfollow/internal/version"
)

var (
	configPath     = flag.String("config", config.DefaultConfigPath, "Tuning config file (JSON)")
	envFile        = flag.String("env", ".env", "Environment overlay file; missing is not an error")
	listen         = flag.String("listen", ":8091", "HTTP listen address for the status API; empty disables it")
	udpAddr        = flag.String("udp", ":9870", "UDP address to receive sweeps on")
	udpRcvBuf      = flag.Int("udp-rcvbuf", 4<<20, "UDP socket receive buffer in bytes")
	replayPath     = flag.String("replay", "", "Replay sweeps from a .pcap, .pcapng or .jsonl file instead of listening")
	replaySpeed    = flag.Float64("replay-speed", 1.0, "Replay speed multiplier")
	replayInterval = flag.Duration("replay-interval", 25*time.Millisecond, "Spacing for replayed sweeps without stamps")
	replayPort     = flag.Int("replay-port", 0, "Only replay pcap datagrams to this UDP port (0 = all)")
	exitAfter      = flag.Bool("exit-after-replay", true, "Stop once the replay file is exhausted")
	port           = flag.String("port", "", "Serial port of the drive controller; empty logs commands without a device")
	baud           = flag.Int("baud", serialmux.DefaultBaudRate, "Serial baud rate")
	dbPath         = flag.String("db", "gapfollow.db", "SQLite cycle log; empty disables recording")
	snapshotDir    = flag.String("snapshot-dir", "snapshots", "Directory for POST /api/decision/snapshot; empty disables it")
	useTUI         = flag.Bool("tui", false, "Show the terminal view instead of log output")
	speedUnits     = flag.String("units", units.MPS, "Speed units for the terminal view: "+strings.Join(units.ValidUnits, ", "))
	showVersion    = flag.Bool("version", false, "Print version and exit")
)

// replayKind maps a replay path to its reader by extension.
func replayKind(path string) (string, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pcap", ".pcapng":
		return "pcap", nil
	case ".jsonl", ".ndjson":
		return "jsonl", nil
	}
	return "", fmt.Errorf("unsupported replay file %q: expected .pcap, .pcapng or .jsonl", path)
}

// inputDesc names the sweep source for logs and /api/status.
func inputDesc(replay, udp string) string {
	if replay != "" {
		return "replay " + replay
	}
	return "udp " + udp
}

func openActuator(path string, baud int) (serialmux.Mux, error) {
	if path == "" {
		log.Printf("no serial port configured; drive commands go nowhere")
		return serialmux.NewDisabledSerialMux(), nil
	}
	return serialmux.NewRealSerialMux(path, serialmux.PortOptions{BaudRate: baud})
}

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String())
		return
	}

	if err := godotenv.Load(*envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Fatalf("failed to load %s: %v", *envFile, err)
	}

	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	log.Printf("%s", version.String())

	cfg, err := config.LoadTuningConfig(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	driverCfg, err := cfg.DriverConfig()
	if err != nil {
		return fmt.Errorf("invalid tuning: %w", err)
	}

	unit, err := units.Parse(*speedUnits)
	if err != nil {
		return err
	}

	var kind string
	if *replayPath != "" {
		if kind, err = replayKind(*replayPath); err != nil {
			return err
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	tp, err := tracing.NewFromEnv(ctx)
	if err != nil {
		return fmt.Errorf("failed to set up tracing: %w", err)
	}
	defer func() {
		shutdownCtx, c := context.WithTimeout(context.Background(), 2*time.Second)
		defer c()
		if err := tp.Shutdown(shutdownCtx); err != nil {
			log.Printf("tracing shutdown: %v", err)
		}
	}()
	driverCfg.Tracer = tp.Tracer()

	mux, err := openActuator(*port, *baud)
	if err != nil {
		return fmt.Errorf("failed to open drive controller: %w", err)
	}
	drive := serialmux.NewDriveSink(mux)
	defer func() {
		if err := drive.Close(); err != nil {
			log.Printf("failed to close drive controller: %v", err)
		}
	}()

	var wg sync.WaitGroup

	// The monitor routine must be running before the neutral command goes
	// out so its reply is read.
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := mux.Monitor(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("failed to monitor serial port: %v", err)
		}
	}()
	wg.Add(1)
	go func() {
		defer wg.Done()
		if n := serialmux.WatchReplies(ctx, mux); n > 0 {
			log.Printf("drive controller reported %d errors", n)
		}
	}()
	if err := drive.Initialize(); err != nil {
		return err
	}

	latest := &monitor.Latest{}
	observers := []controller.Observer{latest}

	var (
		store    *db.DB
		recorder *db.Recorder
	)
	if *dbPath != "" {
		if store, err = db.NewDB(*dbPath); err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}
		defer store.Close()
		recorder = db.NewRecorder(store, db.RecorderConfig{})
		observers = append(observers, recorder)
	}

	var fwd *tui.Forwarder
	if *useTUI {
		fwd = tui.NewForwarder(0)
		observers = append(observers, fwd)
	}

	drv, err := controller.NewDriver(driverCfg, drive, observers...)
	if err != nil {
		return err
	}
	desc := inputDesc(*replayPath, *udpAddr)
	log.Printf("run %s: %s, queue depth %d (%s), cycle deadline %v",
		drv.RunID(), desc, driverCfg.QueueDepth, driverCfg.Overflow, driverCfg.CycleDeadline)

	if store != nil {
		if _, err := store.StartRun(ctx, db.Run{
			ID:      drv.RunID(),
			Source:  desc,
			Version: version.Version,
			Params:  drv.Params(),
		}); err != nil {
			return err
		}
		defer func() {
			if err := store.FinishRun(context.Background(), drv.RunID(), time.Now()); err != nil {
				log.Printf("failed to finish run: %v", err)
			}
		}()
		wg.Add(1)
		go func() {
			defer wg.Done()
			recorder.Run(ctx)
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := drv.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("controller stopped: %v", err)
		}
	}()

	packets := &network.PacketStats{}
	wg.Add(1)
	go func() {
		defer wg.Done()
		err := feed(ctx, kind, drv, packets)
		if err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("sweep input stopped: %v", err)
			cancel()
			return
		}
		if kind != "" && *exitAfter {
			// Let the last queued sweep finish before stopping.
			if err := drv.Drain(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Printf("drain: %v", err)
			}
			cancel()
		}
	}()

	if *listen != "" {
		attachers := []monitor.RouteAttacher{func(m *http.ServeMux) error {
			mux.AttachAdminRoutes(m)
			return nil
		}}
		if store != nil {
			attachers = append(attachers, store.AttachAdminRoutes)
		}
		var snaps *monitor.Snapshotter
		if *snapshotDir != "" {
			snaps = monitor.NewSnapshotter(*snapshotDir, fsutil.OSFileSystem{}, drv.Params().SafeThreshold)
		}
		ws, err := monitor.NewWebServer(monitor.WebServerConfig{
			Address:     *listen,
			Source:      drv,
			Latest:      latest,
			PacketStats: packets,
			InputDesc:   desc,
			Snapshots:   snaps,
			Attachers:   attachers,
		})
		if err != nil {
			return err
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := ws.Start(ctx); err != nil {
				log.Printf("HTTP server: %v", err)
				cancel()
			}
		}()
	}

	if fwd != nil {
		// Log output would tear the alternate screen.
		log.SetOutput(io.Discard)
		if err := tui.Run(ctx, fwd, tui.NewModel(drv, desc, cancel).WithSpeedUnit(unit)); err != nil {
			log.SetOutput(os.Stderr)
			log.Printf("terminal view: %v", err)
		}
		log.SetOutput(os.Stderr)
		cancel()
	}

	<-ctx.Done()
	wg.Wait()
	drv.LogStats()
	packets.LogStats(desc)
	if recorder != nil {
		written, dropped := recorder.Counts()
		log.Printf("recorded %d cycles (%d dropped)", written, dropped)
	}
	sent, failed := drive.Counts()
	log.Printf("sent %d drive commands (%d failed)", sent, failed)
	return nil
}

// feed pushes sweeps into the driver from the configured source until the
// source ends or ctx is done.
func feed(ctx context.Context, kind string, sink network.FrameSink, packets *network.PacketStats) error {
	opts := network.ReplayOptions{
		UDPPort:  *replayPort,
		Realtime: true,
		Speed:    *replaySpeed,
		Stats:    packets,
		Interval: *replayInterval,
	}
	switch kind {
	case "pcap":
		return network.ReadPCAPFile(ctx, *replayPath, sink, opts)
	case "jsonl":
		return network.ReadJSONLFile(ctx, *replayPath, sink, opts)
	}
	l := network.NewUDPListener(network.UDPListenerConfig{
		Address: *udpAddr,
		RcvBuf:  *udpRcvBuf,
		Sink:    sink,
		Stats:   packets,
	})
	return l.Start(ctx)
}
