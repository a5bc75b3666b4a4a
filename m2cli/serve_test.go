package m2cli

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
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"oss.terrastruct.com/util-go/assert"
	"oss.terrastruct.com/util-go/cmdlog"
	"oss.terrastruct.com/util-go/xmain"
	"oss.terrastruct.com/util-go/xos"

	"oss.mindsketch.dev/m2/lib/log"
	"oss.mindsketch.dev/m2/m2target"
)

func TestServe(t *testing.T) {
	t.Parallel()

	ctx := log.WithTB(context.Background(), t, nil)
	ctx, cancel := context.WithTimeout(ctx, time.Minute)
	defer cancel()

	dir, cleanup := assert.TempDir(t)
	defer cleanup()
	path := filepath.Join(dir, "workspace.json")

	ms := &xmain.State{
		Name: "m2",

		Stdin:  os.Stdin,
		Stdout: os.Stdout,
		Stderr: os.Stderr,

		Env: xos.NewEnv(nil),
	}
	ms.Log = cmdlog.NewTB(ms.Env, t)

	s, err := newServer(ctx, ms, serverOpts{
		host: "localhost",
		port: "0",
		path: path,
	})
	assert.Success(t, err)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = s.run()
	}()
	defer func() {
		cancel()
		<-done
	}()

	baseURL := fmt.Sprintf("http://%v", s.l.Addr())

	// The backing file is created eagerly with the default document.
	_, err = os.Stat(path)
	assert.Success(t, err)

	var ws m2target.Workspace
	httpGetJSON(t, ctx, baseURL+"/api/workspace", &ws)
	assert.Equal(t, "1", ws.CurrentMapID)
	if ws.Maps["1"] == nil {
		t.Fatal("expected default map")
	}
	assert.Equal(t, "Map 1", ws.Maps["1"].Name)

	// Service info at the root, 404 anywhere else.
	status, b := httpGet(t, ctx, baseURL+"/")
	assert.Equal(t, http.StatusOK, status)
	if !strings.Contains(string(b), `"service":"m2"`) {
		t.Fatalf("unexpected root response: %s", b)
	}
	status, _ = httpGet(t, ctx, baseURL+"/nope")
	assert.Equal(t, http.StatusNotFound, status)

	c, _, err := websocket.Dial(ctx, baseURL+"/watch", nil)
	assert.Success(t, err)
	defer c.Close(websocket.StatusNormalClosure, "")

	// A save through the API reaches watch clients.
	posted := m2target.Default()
	posted.Maps["1"].Name = "Roadmap"
	body, err := json.Marshal(posted)
	assert.Success(t, err)
	status, b = httpPost(t, ctx, baseURL+"/api/workspace", body)
	assert.Equal(t, http.StatusOK, status)
	var saved struct {
		Success bool   `json:"success"`
		Error   string `json:"error"`
	}
	err = json.Unmarshal(b, &saved)
	assert.Success(t, err)
	if !saved.Success {
		t.Fatalf("save refused: %s", saved.Error)
	}
	waitForBroadcast(t, ctx, c, "Roadmap")

	// So does an edit from another process.
	external := m2target.Default()
	external.Maps["1"].Name = "Edited Elsewhere"
	body, err = json.MarshalIndent(external, "", "  ")
	assert.Success(t, err)
	err = os.WriteFile(path, body, 0644)
	assert.Success(t, err)
	waitForBroadcast(t, ctx, c, "Edited Elsewhere")

	var reloaded m2target.Workspace
	httpGetJSON(t, ctx, baseURL+"/api/workspace", &reloaded)
	assert.Equal(t, "Edited Elsewhere", reloaded.Maps["1"].Name)

	// Unreadable documents are refused with the save envelope.
	status, b = httpPost(t, ctx, baseURL+"/api/workspace", []byte("{"))
	assert.Equal(t, http.StatusBadRequest, status)
	err = json.Unmarshal(b, &saved)
	assert.Success(t, err)
	if saved.Success {
		t.Fatal("expected refused save")
	}
	assert.Equal(t, "invalid json body", saved.Error)

	// Only GET and POST are routed.
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, baseURL+"/api/workspace", nil)
	assert.Success(t, err)
	resp, err := http.DefaultClient.Do(req)
	assert.Success(t, err)
	b, err = io.ReadAll(resp.Body)
	assert.Success(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
	err = json.Unmarshal(b, &saved)
	assert.Success(t, err)
	assert.Equal(t, "only GET and POST are supported", saved.Error)
}

func httpGet(t *testing.T, ctx context.Context, url string) (int, []byte) {
	t.Helper()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	assert.Success(t, err)
	resp, err := http.DefaultClient.Do(req)
	assert.Success(t, err)
	b, err := io.ReadAll(resp.Body)
	assert.Success(t, err)
	resp.Body.Close()
	return resp.StatusCode, b
}

func httpGetJSON(t *testing.T, ctx context.Context, url string, v interface{}) {
	t.Helper()
	status, b := httpGet(t, ctx, url)
	assert.Equal(t, http.StatusOK, status)
	err := json.Unmarshal(b, v)
	assert.Success(t, err)
}

func httpPost(t *testing.T, ctx context.Context, url string, body []byte) (int, []byte) {
	t.Helper()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	assert.Success(t, err)
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	assert.Success(t, err)
	b, err := io.ReadAll(resp.Body)
	assert.Success(t, err)
	resp.Body.Close()
	return resp.StatusCode, b
}

func waitForBroadcast(t *testing.T, ctx context.Context, c *websocket.Conn, name string) {
	t.Helper()
	for {
		var res watchResult
		err := wsjson.Read(ctx, c, &res)
		assert.Success(t, err)
		if res.Workspace == nil {
			continue
		}
		if m := res.Workspace.Maps["1"]; m != nil && m.Name == name {
			return
		}
	}
}
