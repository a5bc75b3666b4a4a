// Package m2store is the persistence gateway: it moves serialized
// workspaces between the engine and a backing document store as whole
// documents, with no patch format.
//
// Absent data is not an error; Load falls back to the default workspace so
// a first session starts clean. Malformed data likewise falls back, with a
// warning through the context logger, because the live session's state is
// authoritative and a broken document must never take it down. Transport
// failures are returned to the caller, who reports them and keeps editing;
// there is no retry.
package m2store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"cdr.dev/slog"
	"oss.terrastruct.com/util-go/xdefer"

	"oss.mindsketch.dev/m2/lib/log"
	"oss.mindsketch.dev/m2/m2target"
)

type Store interface {
	Load(ctx context.Context) (*m2target.Workspace, error)
	Save(ctx context.Context, ws *m2target.Workspace) error
}

var (
	_ Store = (*HTTP)(nil)
	_ Store = (*File)(nil)
	_ Store = (*Mem)(nil)
)

// HTTP talks to a backend implementing the workspace document contract:
// GET and POST on /api/workspace under BaseURL.
type HTTP struct {
	BaseURL string

	// Client defaults to http.DefaultClient.
	Client *http.Client
}

func NewHTTP(baseURL string) *HTTP {
	return &HTTP{BaseURL: strings.TrimSuffix(baseURL, "/")}
}

func (h *HTTP) url() string {
	return h.BaseURL + "/api/workspace"
}

func (h *HTTP) client() *http.Client {
	if h.Client != nil {
		return h.Client
	}
	return http.DefaultClient
}

func (h *HTTP) Load(ctx context.Context) (_ *m2target.Workspace, err error) {
	defer xdefer.Errorf(&err, "failed to load workspace from %s", h.url())

	ctx, cancel := log.WithTimeout(ctx, time.Minute)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.url(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := h.client().Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	// the backend reports "nothing stored yet" with a 404
	if resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusNoContent {
		return m2target.Default(), nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	return decode(ctx, b), nil
}

type saveResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

func (h *HTTP) Save(ctx context.Context, ws *m2target.Workspace) (err error) {
	defer xdefer.Errorf(&err, "failed to save workspace to %s", h.url())

	ctx, cancel := log.WithTimeout(ctx, time.Minute)
	defer cancel()

	b, err := json.Marshal(ws)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.url(), bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := h.client().Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	rb, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	var sr saveResponse
	if jsonErr := json.Unmarshal(rb, &sr); jsonErr == nil && !sr.Success && sr.Error != "" {
		return fmt.Errorf("backend refused save: %s", sr.Error)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	if !sr.Success {
		return fmt.Errorf("backend refused save")
	}
	return nil
}

// File stores the workspace as one JSON document on disk. Saves go through
// a temp file and rename so a crash never leaves a half-written document.
type File struct {
	Path string
}

func NewFile(path string) *File {
	return &File{Path: path}
}

func (f *File) Load(ctx context.Context) (_ *m2target.Workspace, err error) {
	defer xdefer.Errorf(&err, "failed to load workspace from %s", f.Path)

	b, err := os.ReadFile(f.Path)
	if os.IsNotExist(err) {
		return m2target.Default(), nil
	}
	if err != nil {
		return nil, err
	}
	return decode(ctx, b), nil
}

func (f *File) Save(ctx context.Context, ws *m2target.Workspace) (err error) {
	defer xdefer.Errorf(&err, "failed to save workspace to %s", f.Path)

	b, err := json.MarshalIndent(ws, "", "  ")
	if err != nil {
		return err
	}
	b = append(b, '\n')

	tmp, err := os.CreateTemp(filepath.Dir(f.Path), "."+filepath.Base(f.Path)+".*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err = tmp.Write(b); err != nil {
		tmp.Close()
		return err
	}
	if err = tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), f.Path)
}

// Mem holds the document in memory, for tests and for hosts that manage
// persistence themselves.
type Mem struct {
	mu sync.Mutex
	ws *m2target.Workspace
}

func (m *Mem) Load(ctx context.Context) (*m2target.Workspace, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ws == nil {
		return m2target.Default(), nil
	}
	return m.ws.Copy(), nil
}

func (m *Mem) Save(ctx context.Context, ws *m2target.Workspace) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ws = ws.Copy()
	return nil
}

// decode parses a stored document, falling back to the default workspace
// when it is empty or malformed. The fallback is deliberate: a corrupt
// document warns and yields a clean session instead of an error.
func decode(ctx context.Context, b []byte) *m2target.Workspace {
	if len(bytes.TrimSpace(b)) == 0 {
		return m2target.Default()
	}
	var ws m2target.Workspace
	if err := json.Unmarshal(b, &ws); err != nil {
		log.Warn(ctx, "malformed workspace document, starting fresh", slog.F("err", err))
		return m2target.Default()
	}
	if len(ws.Maps) == 0 {
		return m2target.Default()
	}
	return &ws
}
