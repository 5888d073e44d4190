package assembler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/mediasieve/mediasieve/internal/job"
	"github.com/mediasieve/mediasieve/internal/media"
	"github.com/mediasieve/mediasieve/internal/sink"
)

func newTestAssembler(t *testing.T) (*Assembler, *job.Manager, string) {
	t.Helper()

	root := t.TempDir()
	s, err := sink.New(root, hclog.NewNullLogger())
	if err != nil {
		t.Fatalf("Failed to create sink: %v", err)
	}
	jobs := job.NewManager(hclog.NewNullLogger())
	return New(s, jobs, 0, hclog.NewNullLogger()), jobs, root
}

// waitForJob polls until the job reaches a terminal state.
func waitForJob(t *testing.T, jobs *job.Manager, id string) job.Job {
	t.Helper()

	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		j, ok := jobs.Get(id)
		if !ok {
			t.Fatalf("Job %s disappeared", id)
		}
		if j.State.Terminal() {
			return j
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("Job %s never finished", id)
	return job.Job{}
}

func singleAsset(url, title string) *media.MediaAsset {
	return &media.MediaAsset{
		CanonicalURL: url,
		Key:          "1:" + url,
		TabID:        1,
		Kind:         media.DeliverySingle,
		Title:        title,
	}
}

func TestAssemble_SingleURL(t *testing.T) {
	payload := []byte("full video body")
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "video/mp4")
		if r.Method == http.MethodGet {
			w.Write(payload)
		}
	}))
	defer server.Close()

	a, jobs, _ := newTestAssembler(t)
	asset := singleAsset(server.URL+"/videos/clip.mp4", "My Page")

	id := a.Assemble(context.Background(), asset, Overrides{})
	j := waitForJob(t, jobs, id)

	if j.State != job.StateComplete {
		t.Fatalf("Expected complete, got %s (%s)", j.State, j.Error)
	}
	if len(j.ResultPaths) != 1 {
		t.Fatalf("Expected 1 result path, got %d", len(j.ResultPaths))
	}
	if filepath.Base(j.ResultPaths[0]) != "clip.mp4" {
		t.Errorf("Expected clip.mp4, got %s", filepath.Base(j.ResultPaths[0]))
	}
	if !j.Progress.TotalKnown || j.Progress.Percent != 100 {
		t.Errorf("Expected 100%% progress, got %+v", j.Progress)
	}

	data, err := os.ReadFile(j.ResultPaths[0])
	if err != nil {
		t.Fatalf("Failed to read output: %v", err)
	}
	if string(data) != string(payload) {
		t.Errorf("Expected %q, got %q", payload, data)
	}
}

func TestAssemble_SingleURL_HeadFailureInterrupts(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "forbidden", http.StatusForbidden)
	}))
	defer server.Close()

	a, jobs, _ := newTestAssembler(t)
	id := a.Assemble(context.Background(), singleAsset(server.URL+"/clip.mp4", ""), Overrides{})
	j := waitForJob(t, jobs, id)

	if j.State != job.StateInterrupted {
		t.Fatalf("Expected interrupted, got %s", j.State)
	}
	if j.Error == "" {
		t.Error("Expected a failure message")
	}
}

func TestAssemble_SingleURL_FilenameOverride(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "video/webm")
		if r.Method == http.MethodGet {
			w.Write([]byte("x"))
		}
	}))
	defer server.Close()

	a, jobs, _ := newTestAssembler(t)
	asset := singleAsset(server.URL+"/raw", "Page")

	id := a.Assemble(context.Background(), asset, Overrides{Filename: "renamed", Folder: "custom"})
	j := waitForJob(t, jobs, id)

	if j.State != job.StateComplete {
		t.Fatalf("Expected complete, got %s (%s)", j.State, j.Error)
	}
	if filepath.Base(j.ResultPaths[0]) != "renamed.webm" {
		t.Errorf("Expected renamed.webm, got %s", filepath.Base(j.ResultPaths[0]))
	}
	if filepath.Base(filepath.Dir(j.ResultPaths[0])) != "custom" {
		t.Errorf("Expected custom folder, got %s", j.ResultPaths[0])
	}
}

func TestExtensionFromContentType(t *testing.T) {
	tests := []struct {
		contentType string
		want        string
	}{
		{"video/mp4", "mp4"},
		{"video/webm; codecs=vp9", "webm"},
		{"application/octet-stream", ""},
		{"", ""},
	}
	for _, tt := range tests {
		if got := extensionFromContentType(tt.contentType); got != tt.want {
			t.Errorf("extensionFromContentType(%q): expected %q, got %q", tt.contentType, tt.want, got)
		}
	}
}
