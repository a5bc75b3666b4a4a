package m2cli

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/fsnotify/fsnotify"

	"oss.terrastruct.com/util-go/xdefer"
	"oss.terrastruct.com/util-go/xmain"

	"oss.mindsketch.dev/m2/lib/version"
	"oss.mindsketch.dev/m2/lib/xhttp"
	"oss.mindsketch.dev/m2/m2store"
	"oss.mindsketch.dev/m2/m2target"
)

func serveCmd(ctx context.Context, ms *xmain.State, opts serverOpts) (err error) {
	defer xdefer.Errorf(&err, "failed to serve")

	if len(ms.Opts.Flags.Args()) > 1 {
		return xmain.UsageErrorf("serve accepts no arguments")
	}
	opts.path = ms.AbsPath(opts.path)

	ms.Log.SetTS(true)
	s, err := newServer(ctx, ms, opts)
	if err != nil {
		return err
	}
	return s.run()
}

type serverOpts struct {
	host string
	port string
	path string
}

type server struct {
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	ms *xmain.State
	serverOpts

	store  *m2store.File
	loadCh chan struct{}

	fw *fsnotify.Watcher
	l  net.Listener

	wsclientsMu sync.Mutex
	closing     bool
	wsclientsWG sync.WaitGroup
	wsclients   map[*wsclient]struct{}

	errMu sync.Mutex
	err   error

	resMu sync.Mutex
	res   *watchResult
}

// watchResult is what every /watch client receives after each change to the
// workspace document, whether it came in through the API or through the file.
type watchResult struct {
	Workspace *m2target.Workspace `json:"workspace"`
	Err       string              `json:"err"`
}

func newServer(ctx context.Context, ms *xmain.State, opts serverOpts) (*server, error) {
	ctx, cancel := context.WithCancel(ctx)

	s := &server{
		ctx:    ctx,
		cancel: cancel,

		ms:         ms,
		serverOpts: opts,

		store:     m2store.NewFile(opts.path),
		loadCh:    make(chan struct{}, 1),
		wsclients: make(map[*wsclient]struct{}),
	}
	err := s.init()
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (s *server) init() error {
	err := s.ensureDocument()
	if err != nil {
		return err
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	s.fw = fw
	return s.listen()
}

// ensureDocument writes the default workspace when the backing file does not
// exist yet so that the watch loop has something to attach to.
func (s *server) ensureDocument() error {
	_, err := os.Stat(s.path)
	if os.IsNotExist(err) {
		s.ms.Log.Info.Printf("creating %v", s.ms.HumanPath(s.path))
		return s.store.Save(s.ctx, m2target.Default())
	}
	return err
}

func (s *server) run() error {
	defer s.close()

	s.goFunc(s.watchLoop)
	s.goFunc(s.loadLoop)

	err := s.goServe()
	if err != nil {
		return err
	}

	s.wg.Wait()
	s.close()
	return s.err
}

func (s *server) close() {
	s.wsclientsMu.Lock()
	if s.closing {
		s.wsclientsMu.Unlock()
		return
	}
	s.closing = true
	s.wsclientsMu.Unlock()

	s.cancel()
	if s.fw != nil {
		err := s.fw.Close()
		s.setErr(err)
	}
	if s.l != nil {
		err := s.l.Close()
		s.setErr(err)
	}

	s.wsclientsWG.Wait()
}

func (s *server) setErr(err error) {
	s.errMu.Lock()
	if s.err == nil {
		s.err = err
	}
	s.errMu.Unlock()
}

func (s *server) goFunc(fn func(context.Context) error) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.cancel()

		err := fn(s.ctx)
		s.setErr(err)
	}()
}

// watchLoop keeps the document file under watch and requests a reload after
// every change. File notification APIs are unreliable, so the watch is
// re-added on every event (editors and the store itself replace the file by
// renaming over it, which drops the watch on some platforms) and a slow poll
// catches anything missed entirely.
// See https://github.com/fsnotify/fsnotify/issues/372 for background.
func (s *server) watchLoop(ctx context.Context) error {
	lastModified := make(map[string]time.Time)

	mt, err := s.ensureAddWatch(ctx, s.path)
	if err != nil {
		return err
	}
	lastModified[s.path] = mt
	s.ms.Log.Info.Printf("loading %v...", s.ms.HumanPath(s.path))
	s.requestLoad()

	eatBurstTimer := time.NewTimer(0)
	<-eatBurstTimer.C
	pollTicker := time.NewTicker(time.Second * 10)
	defer pollTicker.Stop()

	for {
		select {
		case <-pollTicker.C:
			mt, err := s.ensureAddWatch(ctx, s.path)
			if err != nil {
				return err
			}
			if mt2, ok := lastModified[s.path]; !ok || !mt.Equal(mt2) {
				lastModified[s.path] = mt
				s.requestLoad()
			}
		case ev, ok := <-s.fw.Events:
			if !ok {
				return errors.New("fsnotify watcher closed")
			}
			s.ms.Log.Debug.Printf("received file system event %v", ev)
			mt, err := s.ensureAddWatch(ctx, ev.Name)
			if err != nil {
				return err
			}
			if ev.Op == fsnotify.Chmod && mt.Equal(lastModified[ev.Name]) {
				// Benign Chmod.
				// See https://github.com/fsnotify/fsnotify/issues/15
				continue
			}
			lastModified[ev.Name] = mt
			// Wait for the writer to go quiet before reloading so that a
			// burst of events for one logical change becomes one reload and
			// we never read a half-written document.
			eatBurstTimer.Reset(time.Millisecond * 16)
		case <-eatBurstTimer.C:
			s.ms.Log.Info.Printf("detected change in %v: reloading...", s.ms.HumanPath(s.path))
			s.requestLoad()
		case err, ok := <-s.fw.Errors:
			if !ok {
				return errors.New("fsnotify watcher closed")
			}
			s.ms.Log.Error.Printf("fsnotify error: %v", err)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (s *server) requestLoad() {
	select {
	case s.loadCh <- struct{}{}:
	default:
	}
}

func (s *server) ensureAddWatch(ctx context.Context, path string) (time.Time, error) {
	interval := time.Millisecond * 16
	tc := time.NewTimer(0)
	<-tc.C
	for {
		mt, err := s.addWatch(ctx, path)
		if err == nil {
			return mt, nil
		}
		if interval >= time.Second {
			s.ms.Log.Error.Printf("failed to watch %q: %v (retrying in %v)", s.ms.HumanPath(path), err, interval)
		}

		tc.Reset(interval)
		select {
		case <-tc.C:
			if interval < time.Second {
				interval = time.Second
			}
			if interval < time.Second*16 {
				interval *= 2
			}
		case <-ctx.Done():
			return time.Time{}, ctx.Err()
		}
	}
}

func (s *server) addWatch(ctx context.Context, path string) (time.Time, error) {
	err := s.fw.Add(path)
	if err != nil {
		return time.Time{}, err
	}
	var d os.FileInfo
	d, err = os.Stat(path)
	if err != nil {
		return time.Time{}, err
	}
	return d.ModTime(), nil
}

func (s *server) loadLoop(ctx context.Context) error {
	firstLoad := true
	for {
		select {
		case <-s.loadCh:
		case <-ctx.Done():
			return ctx.Err()
		}

		reloadedPrefix := ""
		if !firstLoad {
			reloadedPrefix = "re"
		}

		ws, err := s.store.Load(ctx)
		errs := ""
		if err != nil {
			err = fmt.Errorf("failed to %sload: %w", reloadedPrefix, err)
			errs = err.Error()
			s.ms.Log.Error.Print(errs)
		}

		s.broadcast(&watchResult{
			Workspace: ws,
			Err:       errs,
		})

		firstLoad = false
	}
}

func (s *server) listen() error {
	l, err := net.Listen("tcp", net.JoinHostPort(s.host, s.port))
	if err != nil {
		return err
	}
	s.l = l
	s.ms.Log.Success.Printf("listening on http://%v", s.l.Addr())
	return nil
}

func (s *server) goServe() error {
	m := http.NewServeMux()
	m.HandleFunc("/", s.handleRoot)
	m.Handle("/api/workspace", xhttp.HandlerFuncAdapter{Log: s.ms.Log, Func: s.handleWorkspace})
	m.Handle("/watch", xhttp.HandlerFuncAdapter{Log: s.ms.Log, Func: s.handleWatch})

	hs := xhttp.NewServer(s.ms.Log.Warn, xhttp.Log(s.ms.Log, m))
	s.goFunc(func(ctx context.Context) error {
		return xhttp.Serve(ctx, time.Second*30, hs, s.l)
	})

	return nil
}

func (s *server) getRes() *watchResult {
	s.resMu.Lock()
	defer s.resMu.Unlock()
	return s.res
}

func (s *server) handleRoot(hw http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(hw, r)
		return
	}
	hw.Header().Set("Content-Type", "application/json")
	fmt.Fprintf(hw, "{\"service\":\"m2\",\"version\":%q}\n", version.Version)
}

type saveResult struct {
	Success bool `json:"success"`
}

func (s *server) handleWorkspace(hw http.ResponseWriter, r *http.Request) error {
	switch r.Method {
	case http.MethodGet:
		ws, err := s.store.Load(r.Context())
		if err != nil {
			return xhttp.ErrorWrap(http.StatusInternalServerError, "failed to load workspace", err)
		}
		xhttp.JSON(s.ms.Log, hw, http.StatusOK, ws)
		return nil
	case http.MethodPost:
		var ws m2target.Workspace
		err := xhttp.ReadJSON(r, &ws)
		if err != nil {
			return err
		}
		err = s.store.Save(r.Context(), &ws)
		if err != nil {
			return xhttp.ErrorWrap(http.StatusInternalServerError, "failed to save workspace", err)
		}
		// The file watcher would pick the write up on its own but going
		// through loadCh as well keeps API saves broadcasting even when the
		// path is temporarily unwatchable.
		s.requestLoad()
		xhttp.JSON(s.ms.Log, hw, http.StatusOK, saveResult{Success: true})
		return nil
	default:
		return xhttp.Errorf(http.StatusMethodNotAllowed, "only GET and POST are supported", "%v not allowed on /api/workspace", r.Method)
	}
}

func (s *server) handleWatch(hw http.ResponseWriter, r *http.Request) error {
	s.wsclientsMu.Lock()
	if s.closing {
		s.wsclientsMu.Unlock()
		return xhttp.Errorf(http.StatusServiceUnavailable, "server shutting down...", "server shutting down...")
	}
	// We must register ourselves before we even upgrade the connection to ensure that
	// s.close() will wait for us. If we instead registered afterwards, then there is a
	// brief period between the hijack and the registration where close may return without
	// waiting for us to finish.
	s.wsclientsWG.Add(1)
	s.wsclientsMu.Unlock()

	c, err := websocket.Accept(hw, r, &websocket.AcceptOptions{
		CompressionMode: websocket.CompressionDisabled,
	})
	if err != nil {
		s.wsclientsWG.Done()
		return err
	}

	go func() {
		defer s.wsclientsWG.Done()
		defer c.Close(websocket.StatusInternalError, "the sky is falling")

		ctx, cancel := context.WithTimeout(s.ctx, time.Hour)
		defer cancel()

		cl := &wsclient{
			s:         s,
			resultsCh: make(chan struct{}, 1),
			c:         c,
		}

		s.wsclientsMu.Lock()
		s.wsclients[cl] = struct{}{}
		s.wsclientsMu.Unlock()
		defer func() {
			s.wsclientsMu.Lock()
			delete(s.wsclients, cl)
			s.wsclientsMu.Unlock()
		}()

		ctx = cl.c.CloseRead(ctx)
		go wsHeartbeat(ctx, cl.c)
		_ = cl.writeLoop(ctx)
	}()
	return nil
}

type wsclient struct {
	s         *server
	resultsCh chan struct{}
	c         *websocket.Conn
}

func (cl *wsclient) writeLoop(ctx context.Context) error {
	for {
		res := cl.s.getRes()
		if res != nil {
			err := cl.write(ctx, res)
			if err != nil {
				return err
			}
		}

		select {
		case <-cl.resultsCh:
		case <-ctx.Done():
			cl.c.Close(websocket.StatusGoingAway, "server shutting down...")
			return ctx.Err()
		}
	}
}

func (cl *wsclient) write(ctx context.Context, res *watchResult) error {
	ctx, cancel := context.WithTimeout(ctx, time.Second*30)
	defer cancel()

	return wsjson.Write(ctx, cl.c, res)
}

func (s *server) broadcast(res *watchResult) {
	s.resMu.Lock()
	s.res = res
	s.resMu.Unlock()

	s.wsclientsMu.Lock()
	defer s.wsclientsMu.Unlock()
	clientsSuffix := ""
	if len(s.wsclients) != 1 {
		clientsSuffix = "s"
	}
	s.ms.Log.Info.Printf("broadcasting update to %d client%s", len(s.wsclients), clientsSuffix)
	for cl := range s.wsclients {
		select {
		case cl.resultsCh <- struct{}{}:
		default:
		}
	}
}

func wsHeartbeat(ctx context.Context, c *websocket.Conn) {
	defer c.Close(websocket.StatusInternalError, "the sky is falling")

	t := time.NewTimer(0)
	<-t.C
	for {
		err := c.Ping(ctx)
		if err != nil {
			return
		}

		t.Reset(time.Second * 30)
		select {
		case <-t.C:
		case <-ctx.Done():
			return
		}
	}
}
