package serialmux

import (
	"bufio"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"
)

func TestSendCommand_AppendsNewline(t *testing.T) {
	port := NewTestableSerialPort()
	m := NewSerialMux(port)

	if err := m.SendCommand("D 0.0000 1.000"); err != nil {
		t.Fatalf("SendCommand: %v", err)
	}
	if err := m.SendCommand("PING\n"); err != nil {
		t.Fatalf("SendCommand: %v", err)
	}
	if got := port.Written(); got != "D 0.0000 1.000\nPING\n" {
		t.Errorf("written = %q", got)
	}
}

func TestSendCommand_Errors(t *testing.T) {
	port := NewTestableSerialPort()
	m := NewSerialMux(port)

	port.WriteError = errors.New("io")
	if err := m.SendCommand("x"); err == nil || err.Error() != "io" {
		t.Errorf("err = %v, want io", err)
	}

	port.ShortWrite = true
	if err := m.SendCommand("x"); !errors.Is(err, ErrWriteFailed) {
		t.Errorf("err = %v, want ErrWriteFailed", err)
	}
}

func TestMonitor_BroadcastsLines(t *testing.T) {
	port := NewTestableSerialPort()
	port.AddReadData([]byte("OK\nT bat=11.8\n"))
	m := NewSerialMux(port)

	id1, ch1 := m.Subscribe()
	_, ch2 := m.Subscribe()
	defer m.Unsubscribe(id1)

	// Buffer drains then Read returns EOF, which ends Monitor cleanly.
	if err := m.Monitor(context.Background()); err != nil {
		t.Fatalf("Monitor: %v", err)
	}
	for _, ch := range []chan string{ch1, ch2} {
		if got := <-ch; got != "OK" {
			t.Errorf("first line = %q", got)
		}
		if got := <-ch; got != "T bat=11.8" {
			t.Errorf("second line = %q", got)
		}
	}
}

func TestMonitor_StopsOnCancel(t *testing.T) {
	port := NewTestableSerialPort()
	port.BlockReads = true
	m := NewSerialMux(port)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Monitor(ctx) }()
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("err = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Monitor did not stop")
	}
	_ = m.Close()
}

func TestMonitor_ReturnsReadError(t *testing.T) {
	port := NewTestableSerialPort()
	port.ReadError = errors.New("unplugged")
	m := NewSerialMux(port)
	if err := m.Monitor(context.Background()); err == nil || err.Error() != "unplugged" {
		t.Errorf("err = %v, want unplugged", err)
	}
}

func TestClose_ClosesSubscribersAndPort(t *testing.T) {
	port := NewTestableSerialPort()
	m := NewSerialMux(port)
	id, ch := m.Subscribe()

	if err := m.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, ok := <-ch; ok {
		t.Error("subscriber channel still open")
	}
	if !port.Closed {
		t.Error("port not closed")
	}
	m.Unsubscribe(id) // no panic on double close
}

func TestAdminRoutes(t *testing.T) {
	port := NewTestableSerialPort()
	m := NewSerialMux(port)
	mux := http.NewServeMux()
	m.AttachAdminRoutes(mux)

	// tsweb restricts /debug/ to loopback callers.
	req := httptest.NewRequest(http.MethodGet, "/debug/send-command", nil)
	req.RemoteAddr = "127.0.0.1:1234"
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "D 0.0000 0.000") {
		t.Errorf("send-command page: %d %q", rec.Code, rec.Body.String())
	}

	form := url.Values{"command": {"D 0.1000 1.000"}}
	req = httptest.NewRequest(http.MethodPost, "/debug/send-command-api", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.RemoteAddr = "127.0.0.1:1234"
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("send-command-api: %d %q", rec.Code, rec.Body.String())
	}
	if port.Written() != "D 0.1000 1.000\n" {
		t.Errorf("written = %q", port.Written())
	}

	req = httptest.NewRequest(http.MethodPost, "/debug/send-command-api", strings.NewReader(""))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.RemoteAddr = "127.0.0.1:1234"
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("empty command status = %d", rec.Code)
	}
}

func TestAdminRoutes_TailStreamsReplies(t *testing.T) {
	port := NewTestableSerialPort()
	m := NewSerialMux(port)
	mux := http.NewServeMux()
	m.AttachAdminRoutes(mux)
	srv := httptest.NewServer(mux)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/debug/tail")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	r := bufio.NewReader(resp.Body)
	if line, _ := r.ReadString('\n'); line != ": ping\n" {
		t.Fatalf("first line = %q", line)
	}

	// The handler has subscribed by the time the ping arrives.
	m.broadcast("ERR overcurrent")
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			t.Fatal(err)
		}
		if strings.HasPrefix(line, "data: ") {
			if line != "data: ERR overcurrent\n" {
				t.Errorf("event = %q", line)
			}
			break
		}
	}
}

func TestAdminRoutes_SendCommandValidatesDriveLines(t *testing.T) {
	tests := []struct {
		command string
		want    int
	}{
		{"D 0.1000 1.000", http.StatusOK},
		{"D nan 99", http.StatusBadRequest},
		{"D 0 +Inf", http.StatusBadRequest},
		{"D -inf 0", http.StatusBadRequest},
		{"D 1", http.StatusBadRequest},
		{"D x 1", http.StatusBadRequest},
		{"PING", http.StatusOK},
	}
	for _, tc := range tests {
		t.Run(tc.command, func(t *testing.T) {
			port := NewTestableSerialPort()
			m := NewSerialMux(port)
			mux := http.NewServeMux()
			m.AttachAdminRoutes(mux)

			form := url.Values{"command": {tc.command}}
			req := httptest.NewRequest(http.MethodPost, "/debug/send-command-api", strings.NewReader(form.Encode()))
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
			req.RemoteAddr = "127.0.0.1:1234"
			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, req)

			if rec.Code != tc.want {
				t.Fatalf("status = %d, want %d (%q)", rec.Code, tc.want, rec.Body.String())
			}
			want := ""
			if tc.want == http.StatusOK {
				want = tc.command + "\n"
			}
			if got := port.Written(); got != want {
				t.Errorf("written = %q, want %q", got, want)
			}
		})
	}
}
