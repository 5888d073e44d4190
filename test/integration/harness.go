// Package integration exercises the full capture-to-download pipeline:
// event ingest, classification, tracking, assembly, and the files that
// land on disk.
package integration

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/mediasieve/mediasieve/internal/assembler"
	"github.com/mediasieve/mediasieve/internal/classifier"
	"github.com/mediasieve/mediasieve/internal/job"
	"github.com/mediasieve/mediasieve/internal/server"
	"github.com/mediasieve/mediasieve/internal/sink"
	"github.com/mediasieve/mediasieve/internal/tracker"
	"github.com/mediasieve/mediasieve/pkg/api"
)

// TestHarness wires an in-process daemon behind an httptest listener,
// plus a fake CDN the downloads pull from.
type TestHarness struct {
	t            *testing.T
	apiServer    *httptest.Server
	cdnServer    *httptest.Server
	jobs         *job.Manager
	downloadRoot string
}

// NewTestHarness builds the full pipeline with default rules and a
// temporary download directory.
func NewTestHarness(t *testing.T) *TestHarness {
	t.Helper()

	root := t.TempDir()
	logger := hclog.NewNullLogger()

	s, err := sink.New(root, logger)
	if err != nil {
		t.Fatalf("failed to create sink: %v", err)
	}

	jobs := job.NewManager(logger)
	asm := assembler.New(s, jobs, 0, logger)
	trk := tracker.New(0, logger)
	cls := classifier.New(classifier.DefaultRules())

	srv := server.New(cls, trk, asm, jobs, "127.0.0.1:0", logger)
	apiServer := httptest.NewServer(srv.Handler())

	return &TestHarness{
		t:            t,
		apiServer:    apiServer,
		jobs:         jobs,
		downloadRoot: root,
	}
}

// StartCDN runs a fake origin server the assembled downloads fetch from.
func (h *TestHarness) StartCDN(handler http.Handler) string {
	h.t.Helper()
	h.cdnServer = httptest.NewServer(handler)
	return h.cdnServer.URL
}

// DownloadRoot returns the directory downloads land in.
func (h *TestHarness) DownloadRoot() string {
	return h.downloadRoot
}

// IngestEvent posts one observed network event and returns the status
// code.
func (h *TestHarness) IngestEvent(event api.Event) int {
	h.t.Helper()

	body, err := json.Marshal(event)
	if err != nil {
		h.t.Fatalf("failed to marshal event: %v", err)
	}
	resp, err := http.Post(h.apiServer.URL+"/api/events", "application/json", bytes.NewReader(body))
	if err != nil {
		h.t.Fatalf("failed to post event: %v", err)
	}
	resp.Body.Close()
	return resp.StatusCode
}

// FetchAssets lists the tracked assets for a tab.
func (h *TestHarness) FetchAssets(tabID int) []api.Asset {
	h.t.Helper()

	resp, err := http.Get(fmt.Sprintf("%s/api/assets?tab=%d", h.apiServer.URL, tabID))
	if err != nil {
		h.t.Fatalf("failed to fetch assets: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		h.t.Fatalf("unexpected status code fetching assets: %d", resp.StatusCode)
	}

	var assets []api.Asset
	if err := json.NewDecoder(resp.Body).Decode(&assets); err != nil {
		h.t.Fatalf("failed to decode assets: %v", err)
	}
	return assets
}

// StartDownload triggers assembly of one tracked asset and returns the
// job IDs.
func (h *TestHarness) StartDownload(req api.DownloadRequest) []string {
	h.t.Helper()

	body, err := json.Marshal(req)
	if err != nil {
		h.t.Fatalf("failed to marshal download request: %v", err)
	}
	resp, err := http.Post(h.apiServer.URL+"/api/download", "application/json", bytes.NewReader(body))
	if err != nil {
		h.t.Fatalf("failed to post download request: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusAccepted {
		h.t.Fatalf("unexpected status code starting download: %d", resp.StatusCode)
	}

	var dl api.DownloadResponse
	if err := json.NewDecoder(resp.Body).Decode(&dl); err != nil {
		h.t.Fatalf("failed to decode download response: %v", err)
	}
	return dl.JobIDs
}

// WaitForJob polls the job manager until the job reaches a terminal
// state.
func (h *TestHarness) WaitForJob(id string) job.Job {
	h.t.Helper()

	var result job.Job
	h.WaitForCondition(func() bool {
		j, ok := h.jobs.Get(id)
		if !ok {
			return false
		}
		if !j.State.Terminal() {
			return false
		}
		result = j
		return true
	}, 15*time.Second, fmt.Sprintf("job %s to finish", id))
	return result
}

// FetchHealth fetches the health endpoint.
func (h *TestHarness) FetchHealth() map[string]interface{} {
	h.t.Helper()

	resp, err := http.Get(h.apiServer.URL + "/health")
	if err != nil {
		h.t.Fatalf("failed to fetch health: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		h.t.Fatalf("unexpected status code fetching health: %d", resp.StatusCode)
	}

	var health map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		h.t.Fatalf("failed to decode health: %v", err)
	}
	return health
}

// Cleanup stops the listeners.
func (h *TestHarness) Cleanup() {
	h.t.Helper()

	if h.apiServer != nil {
		h.apiServer.Close()
	}
	if h.cdnServer != nil {
		h.cdnServer.Close()
	}
}

// WaitForCondition polls until a condition is met or timeout occurs.
func (h *TestHarness) WaitForCondition(condition func() bool, timeout time.Duration, description string) {
	h.t.Helper()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if condition() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	h.t.Fatalf("timeout waiting for condition: %s", description)
}

// EncryptSegment CBC-encrypts a PKCS#7-padded segment the way an HLS
// packager would.
func EncryptSegment(t *testing.T, key []byte, iv [16]byte, plaintext []byte) []byte {
	t.Helper()

	block, err := aes.NewCipher(key)
	if err != nil {
		t.Fatalf("failed to create cipher: %v", err)
	}

	pad := block.BlockSize() - len(plaintext)%block.BlockSize()
	padded := make([]byte, len(plaintext)+pad)
	copy(padded, plaintext)
	for i := len(plaintext); i < len(padded); i++ {
		padded[i] = byte(pad)
	}

	out := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv[:]).CryptBlocks(out, padded)
	return out
}
