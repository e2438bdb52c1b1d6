// Package monitor serves the controller's status API and the debug charts.
package monitor

import (
	"bytes"
	"context"
	"embed"
	"errors"
	"html/template"
	"net/http"
	"time"

	"github.com/banshee-data/gapfollow/internal/controller"
	"github.com/banshee-data/gapfollow/internal/followgap"
	"github.com/banshee-data/gapfollow/internal/httputil"
	"github.com/banshee-data/gapfollow/internal/monitoring"
	"github.com/banshee-data/gapfollow/internal/scan/network"
	"github.com/banshee-data/gapfollow/internal/units"
	"github.com/banshee-data/gapfollow/internal/version"
)

//go:embed status.html
var statusFS embed.FS

var statusPage = template.Must(template.ParseFS(statusFS, "status.html"))

var logger = monitoring.Component("monitor")

// StatsSource is the part of controller.Driver the server reads.
type StatsSource interface {
	Stats() controller.StatsSnapshot
	RunID() string
	Params() followgap.Params
}

// RouteAttacher mounts extra admin routes (serial console, database
// browser) on the server's mux.
type RouteAttacher func(mux *http.ServeMux) error

// WebServerConfig configures a WebServer.
type WebServerConfig struct {
	Address     string
	Source      StatsSource
	Latest      *Latest
	PacketStats *network.PacketStats // nil when fed from a replay
	InputDesc   string               // "udp :9870", "replay run.jsonl"
	Snapshots   *Snapshotter         // nil disables POST /api/decision/snapshot
	Attachers   []RouteAttacher
}

// WebServer handles the HTTP status interface.
type WebServer struct {
	cfg     WebServerConfig
	started time.Time
	server  *http.Server
}

// NewWebServer builds the server and its routes. Attacher failures are
// returned; the server is not started.
func NewWebServer(cfg WebServerConfig) (*WebServer, error) {
	if cfg.Source == nil || cfg.Latest == nil {
		return nil, errors.New("monitor: Source and Latest are required")
	}
	ws := &WebServer{cfg: cfg, started: time.Now()}
	mux, err := ws.setupRoutes()
	if err != nil {
		return nil, err
	}
	ws.server = &http.Server{
		Addr:              cfg.Address,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return ws, nil
}

// Handler exposes the route table, mostly for tests.
func (ws *WebServer) Handler() http.Handler { return ws.server.Handler }

// Start serves until ctx is cancelled, then shuts down with a one second
// grace period.
func (ws *WebServer) Start(ctx context.Context) error {
	errc := make(chan error, 1)
	go func() {
		logger.Logf("starting HTTP server on %s", ws.cfg.Address)
		if err := ws.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	select {
	case err, ok := <-errc:
		if ok {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	logger.Logf("shutting down HTTP server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := ws.server.Shutdown(shutdownCtx); err != nil {
		logger.Logf("HTTP server shutdown error: %v", err)
		if err := ws.server.Close(); err != nil {
			logger.Logf("HTTP server force close error: %v", err)
		}
	}
	return nil
}

func (ws *WebServer) setupRoutes() (*http.ServeMux, error) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", ws.handleStatusPage)
	mux.HandleFunc("/health", ws.handleHealth)
	mux.HandleFunc("/api/status", ws.handleStatus)
	mux.HandleFunc("/api/stats", ws.handleStats)
	mux.HandleFunc("/api/params", ws.handleParams)
	mux.HandleFunc("/api/decision/latest", ws.handleLatestDecision)
	if ws.cfg.Snapshots != nil {
		mux.HandleFunc("/api/decision/snapshot", ws.handleSnapshot)
	}
	mux.HandleFunc("/debug/scan-chart", ws.handleScanChart)
	mux.HandleFunc("/debug/scan.png", ws.handleScanPNG)

	for _, attach := range ws.cfg.Attachers {
		if err := attach(mux); err != nil {
			return nil, err
		}
	}
	return mux, nil
}

func (ws *WebServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSONOK(w, map[string]string{
		"status":    "ok",
		"service":   "gapfollow",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

type packetCounts struct {
	Packets      uint64 `json:"packets"`
	Bytes        uint64 `json:"bytes"`
	DecodeErrors uint64 `json:"decode_errors"`
	Rejected     uint64 `json:"rejected"`
}

type statusResponse struct {
	Version    string                   `json:"version"`
	GitSHA     string                   `json:"git_sha"`
	RunID      string                   `json:"run_id"`
	Input      string                   `json:"input,omitempty"`
	Uptime     string                   `json:"uptime"`
	LastSeq    uint32                   `json:"last_seq"`
	LastStatus controller.Status        `json:"last_status,omitempty"`
	Stats      controller.StatsSnapshot `json:"stats"`
	Packets    *packetCounts            `json:"packets,omitempty"`
}

func (ws *WebServer) status() statusResponse {
	resp := statusResponse{
		Version: version.Version,
		GitSHA:  version.GitSHA,
		RunID:   ws.cfg.Source.RunID(),
		Input:   ws.cfg.InputDesc,
		Uptime:  time.Since(ws.started).Round(time.Second).String(),
		Stats:   ws.cfg.Source.Stats(),
	}
	if c, ok := ws.cfg.Latest.Cycle(); ok {
		resp.LastSeq = c.Seq
		resp.LastStatus = c.Status
	}
	if ps := ws.cfg.PacketStats; ps != nil {
		resp.Packets = &packetCounts{
			Packets:      ps.Packets.Load(),
			Bytes:        ps.Bytes.Load(),
			DecodeErrors: ps.DecodeErrors.Load(),
			Rejected:     ps.Rejected.Load(),
		}
	}
	return resp
}

func (ws *WebServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	if !httputil.RequireMethod(w, r, http.MethodGet) {
		return
	}
	httputil.WriteJSONOK(w, ws.status())
}

func (ws *WebServer) handleStats(w http.ResponseWriter, r *http.Request) {
	if !httputil.RequireMethod(w, r, http.MethodGet) {
		return
	}
	httputil.WriteJSONOK(w, ws.cfg.Source.Stats())
}

// paramsView renders Params with angles in degrees, matching the tuning
// file's keys.
type paramsView struct {
	BubbleRadius        int     `json:"bubble_radius"`
	BubbleRadiusDeg     float64 `json:"bubble_radius_deg"`
	CloseThreshold      float64 `json:"close_threshold"`
	WindowSize          int     `json:"window_size"`
	RoundDigits         int     `json:"round_digits"`
	SafeThreshold       float64 `json:"safe_threshold"`
	ForwardLowIndex     int     `json:"forward_low_index"`
	ForwardHighIndex    int     `json:"forward_high_index"`
	CruiseSpeed         float64 `json:"cruise_speed"`
	CautionSpeed        float64 `json:"caution_speed"`
	SharpTurnAngleDeg   float64 `json:"sharp_turn_angle_deg"`
	MaxSteeringAngleDeg float64 `json:"max_steering_angle_deg"`
	MaxRange            float64 `json:"max_range"`
	MaxInvalidFraction  float64 `json:"max_invalid_fraction"`
	ExpectedSamples     int     `json:"expected_samples"`
}

func viewParams(p followgap.Params) paramsView {
	return paramsView{
		BubbleRadius:        p.BubbleRadius,
		BubbleRadiusDeg:     units.Degrees(p.BubbleRadiusRad),
		CloseThreshold:      p.CloseThreshold,
		WindowSize:          p.WindowSize,
		RoundDigits:         p.RoundDigits,
		SafeThreshold:       p.SafeThreshold,
		ForwardLowIndex:     p.ForwardLowIndex,
		ForwardHighIndex:    p.ForwardHighIndex,
		CruiseSpeed:         p.CruiseSpeed,
		CautionSpeed:        p.CautionSpeed,
		SharpTurnAngleDeg:   units.Degrees(p.SharpTurnAngle),
		MaxSteeringAngleDeg: units.Degrees(p.MaxSteeringAngle),
		MaxRange:            p.MaxRange,
		MaxInvalidFraction:  p.MaxInvalidFraction,
		ExpectedSamples:     p.ExpectedSamples,
	}
}

func (ws *WebServer) handleParams(w http.ResponseWriter, r *http.Request) {
	if !httputil.RequireMethod(w, r, http.MethodGet) {
		return
	}
	httputil.WriteJSONOK(w, viewParams(ws.cfg.Source.Params()))
}

// handleLatestDecision returns the last emitted decision. Range arrays are
// omitted unless ?arrays=1.
func (ws *WebServer) handleLatestDecision(w http.ResponseWriter, r *http.Request) {
	if !httputil.RequireMethod(w, r, http.MethodGet) {
		return
	}
	d, ok := ws.cfg.Latest.Decision()
	if !ok {
		httputil.NotFound(w, "no decision yet")
		return
	}
	if r.URL.Query().Get("arrays") != "1" {
		d.Raw, d.Smoothed, d.Processed = nil, nil, nil
	}
	httputil.WriteJSONOK(w, d)
}

// handleSnapshot saves the latest decision. ?label= names the files.
func (ws *WebServer) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	if !httputil.RequireMethod(w, r, http.MethodPost) {
		return
	}
	d, ok := ws.cfg.Latest.Decision()
	if !ok {
		httputil.NotFound(w, "no decision yet")
		return
	}
	files, err := ws.cfg.Snapshots.Save(ws.cfg.Source.RunID(), r.URL.Query().Get("label"), d)
	if err != nil {
		httputil.InternalServerError(w, err.Error())
		return
	}
	httputil.WriteJSONOK(w, map[string]interface{}{"seq": d.Seq, "files": files})
}

func (ws *WebServer) handleScanChart(w http.ResponseWriter, r *http.Request) {
	d, ok := ws.cfg.Latest.Decision()
	if !ok {
		httputil.NotFound(w, "no decision yet")
		return
	}
	var buf bytes.Buffer
	if err := RenderScanChart(&buf, d); err != nil {
		httputil.InternalServerError(w, err.Error())
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}

func (ws *WebServer) handleScanPNG(w http.ResponseWriter, r *http.Request) {
	d, ok := ws.cfg.Latest.Decision()
	if !ok {
		httputil.NotFound(w, "no decision yet")
		return
	}
	var buf bytes.Buffer
	if err := WriteDecisionPNG(&buf, d, ws.cfg.Source.Params().SafeThreshold); err != nil {
		httputil.InternalServerError(w, err.Error())
		return
	}
	w.Header().Set("Content-Type", "image/png")
	_, _ = w.Write(buf.Bytes())
}

func (ws *WebServer) handleStatusPage(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	data := struct {
		Status   statusResponse
		Decision *followgap.Decision
	}{Status: ws.status()}
	if d, ok := ws.cfg.Latest.Decision(); ok {
		data.Decision = &d
	}

	var buf bytes.Buffer
	if err := statusPage.Execute(&buf, data); err != nil {
		http.Error(w, "Error executing template: "+err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}
