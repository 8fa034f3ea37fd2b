//go:build e2e

// Package e2e contains end-to-end tests that launch the real server binary
// and exercise realistic scenarios: compute/fetch/select round trips over
// HTTP, background persistence to the JSONL result log, and the final flush
// on graceful shutdown.
package e2e

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"syscall"
	"testing"
	"time"

	"ccg/internal/analyzer/persistence"
)

type runningServer struct {
	cmd       *exec.Cmd
	baseURL   string
	logPath   string
	logLinesC chan string
}

// buildAndStartServer builds the cmd/correlogram-server binary into a temp
// dir and starts it on a random free port with the provided flags. It returns
// only after both the readiness log appears and an HTTP probe succeeds. The
// returned runningServer carries the baseURL, the JSONL result log path, and
// a live log channel; test cleanup terminates the child process.
func buildAndStartServer(t *testing.T, extraArgs ...string) *runningServer {
	t.Helper()

	// Determine an available TCP port.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to find free port: %v", err)
	}
	addr := ln.Addr().String()
	_ = ln.Close()
	_, port, _ := net.SplitHostPort(addr)

	// Build the server binary to a temp location.
	tmpDir := t.TempDir()
	exe := filepath.Join(tmpDir, exeName("correlogram-server"))
	// Build using module import path so it works regardless of current working directory
	build := exec.Command("go", "build", "-o", exe, "ccg/cmd/correlogram-server")
	build.Stdout = os.Stdout
	build.Stderr = os.Stderr
	if err := build.Run(); err != nil {
		t.Fatalf("failed to build server: %v", err)
	}

	logPath := filepath.Join(tmpDir, "results.jsonl")
	args := []string{
		"--http_addr=127.0.0.1:" + port,
		"--persistence=file",
		"--file_path=" + logPath,
		"--flush_interval=50ms",
		"--dev_logging=true",
	}
	args = append(args, extraArgs...)

	cmd := exec.Command(exe, args...)
	cmd.Env = os.Environ()

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		t.Fatalf("StdoutPipe: %v", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		t.Fatalf("StderrPipe: %v", err)
	}

	logC := make(chan string, 1024)
	go scanLines(stdout, logC)
	go scanLines(stderr, logC)

	if err := cmd.Start(); err != nil {
		t.Fatalf("failed to start server: %v", err)
	}

	// Wait for readiness line and then verify HTTP readiness.
	_ = waitForReady(t, logC, "listening")
	base := fmt.Sprintf("http://127.0.0.1:%s", port)
	client := &http.Client{Timeout: 500 * time.Millisecond}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	ok := false
	for ctx.Err() == nil {
		resp, err := client.Get(base + "/healthz")
		if err == nil {
			resp.Body.Close()
			ok = true
			break
		}
		time.Sleep(50 * time.Millisecond)
	}
	if !ok {
		_ = cmd.Process.Kill()
		t.Fatalf("server did not become ready (HTTP check failed)")
	}

	rs := &runningServer{cmd: cmd, baseURL: base, logPath: logPath, logLinesC: logC}
	t.Cleanup(func() {
		_ = cmd.Process.Kill()
		_, _ = cmd.Process.Wait()
	})
	return rs
}

// scanLines copies lines from the child process's stdout/stderr into a channel
// so tests can observe server logs in near real-time.
func scanLines(r io.ReadCloser, out chan<- string) {
	s := bufio.NewScanner(r)
	for s.Scan() {
		out <- s.Text()
	}
}

// waitForReady blocks until a log line containing the given needle appears or
// a short timeout elapses.
func waitForReady(t *testing.T, logC <-chan string, needle string) bool {
	t.Helper()
	deadline := time.After(3 * time.Second)
	for {
		select {
		case line := <-logC:
			if strings.Contains(line, needle) {
				return true
			}
		case <-deadline:
			return false
		}
	}
}

// exeName returns the executable name for the current OS (adds .exe on Windows).
func exeName(base string) string {
	if runtime.GOOS == "windows" {
		return base + ".exe"
	}
	return base
}

type spike struct {
	Sample int64 `json:"sample"`
	Unit   int32 `json:"unit"`
}

func computeBody(t *testing.T, name string, units, n int) []byte {
	t.Helper()
	seg := make([]spike, n)
	for i := range seg {
		seg[i] = spike{Sample: int64(i*13+(i%7)*3) % 300000, Unit: int32(i % units)}
	}
	sort.Slice(seg, func(i, j int) bool { return seg[i].Sample < seg[j].Sample })
	body := map[string]interface{}{
		"name":               name,
		"sampling_frequency": 30000.0,
		"num_units":          units,
		"segments":           []interface{}{seg},
		"window_ms":          50.0,
		"bin_ms":             1.0,
		"method":             "auto",
	}
	b, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return b
}

func postJSON(t *testing.T, client *http.Client, url string, body []byte) *http.Response {
	t.Helper()
	resp, err := client.Post(url, "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	return resp
}

// --- Tests ---

// TestE2E_ComputeFetchSelect runs a full round trip against the real binary:
// compute a correlogram, fetch the stored tensor, and fetch a subset view.
func TestE2E_ComputeFetchSelect(t *testing.T) {
	rs := buildAndStartServer(t)
	client := &http.Client{Timeout: 5 * time.Second}

	resp := postJSON(t, client, rs.baseURL+"/compute", computeBody(t, "e2e-sess", 4, 800))
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		t.Fatalf("compute status %d: %s", resp.StatusCode, b)
	}
	var ack struct {
		Version  int64  `json:"version"`
		Strategy string `json:"strategy"`
		NumBins  int    `json:"num_bins"`
		Total    int64  `json:"total_pairs"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&ack); err != nil {
		t.Fatalf("decode ack: %v", err)
	}
	if ack.Version != 1 || ack.Total <= 0 {
		t.Fatalf("unexpected ack: %+v", ack)
	}

	getResp, err := client.Get(rs.baseURL + "/correlograms?name=e2e-sess")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer getResp.Body.Close()
	var record persistence.ResultRecord
	if err := json.NewDecoder(getResp.Body).Decode(&record); err != nil {
		t.Fatalf("decode record: %v", err)
	}
	if len(record.Counts) != 4*4*record.NumBins {
		t.Fatalf("tensor shape mismatch: %d counts for %d bins", len(record.Counts), record.NumBins)
	}

	selResp, err := client.Get(rs.baseURL + "/correlograms/select?name=e2e-sess&units=3,1")
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	defer selResp.Body.Close()
	var view persistence.ResultRecord
	if err := json.NewDecoder(selResp.Body).Decode(&view); err != nil {
		t.Fatalf("decode view: %v", err)
	}
	if view.NumUnits != 2 || view.UnitIDs[0] != "3" {
		t.Fatalf("unexpected view: %+v", view.UnitIDs)
	}
}

// TestE2E_BackgroundFlushToFile verifies the worker persists computed results
// to the JSONL log while the server is running.
func TestE2E_BackgroundFlushToFile(t *testing.T) {
	rs := buildAndStartServer(t)
	client := &http.Client{Timeout: 5 * time.Second}

	resp := postJSON(t, client, rs.baseURL+"/compute", computeBody(t, "flush-sess", 3, 500))
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("compute status %d", resp.StatusCode)
	}

	// Give the 50ms flush loop a few cycles, then read the log.
	deadline := time.After(3 * time.Second)
	for {
		latest, err := persistence.ReadAllRecords(rs.logPath)
		if err == nil {
			if rec, ok := latest["flush-sess"]; ok && rec.Version == 1 {
				return
			}
		}
		select {
		case <-deadline:
			t.Fatalf("result never appeared in %s", rs.logPath)
		case <-time.After(100 * time.Millisecond):
		}
	}
}

// TestE2E_ShutdownFlushesRemainder computes, immediately signals the server,
// and verifies the final flush wrote the latest version before exit.
func TestE2E_ShutdownFlushesRemainder(t *testing.T) {
	rs := buildAndStartServer(t, "--flush_interval=1h") // force reliance on the final flush
	client := &http.Client{Timeout: 5 * time.Second}

	for v := 1; v <= 3; v++ {
		resp := postJSON(t, client, rs.baseURL+"/compute", computeBody(t, "final-sess", 3, 300+v*10))
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("compute %d status %d", v, resp.StatusCode)
		}
	}

	if err := rs.cmd.Process.Signal(syscall.SIGTERM); err != nil {
		t.Fatalf("signal: %v", err)
	}
	_, _ = rs.cmd.Process.Wait()

	latest, err := persistence.ReadAllRecords(rs.logPath)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	rec, ok := latest["final-sess"]
	if !ok {
		t.Fatalf("final flush missing from %s", rs.logPath)
	}
	if rec.Version != 3 {
		t.Fatalf("expected latest version 3, got %d", rec.Version)
	}
}
