// Package webui serves the host page, the UI socket that drives the view
// models and the endpoints the embedded emulator fetches from.
package webui

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"mime"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"psxvault/emulator"
	"psxvault/interfaces"
)

// ErrNoBrowser wraps emulator.ErrNotReady so emulator.Boot waits for a page.
var ErrNoBrowser = fmt.Errorf("webui: no browser connected: %w", emulator.ErrNotReady)

type Server struct {
	log        *zap.SugaredLogger
	listenAddr string

	commandHandler interfaces.ViewCommandHandler
	downloads      interfaces.DownloadProvider
	roms           interfaces.ROMProvider
	bridge         http.Handler

	mux *http.ServeMux
	srv *http.Server

	socketsRw sync.RWMutex
	sockets   []*Socket

	// broadcast channel to all sockets:
	q    chan ViewModelUpdate
	done chan struct{}
}

type ViewModelUpdate struct {
	View      string      `json:"v"`
	ViewModel interface{} `json:"m"`
}

// NewServer creates a web server with websockets support to enable
// bidirectional communication with the UI. static holds the page assets.
func NewServer(listenAddr string, static fs.FS, log *zap.SugaredLogger) *Server {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	s := &Server{
		log:        log,
		listenAddr: listenAddr,
		mux:        http.NewServeMux(),
		sockets:    make([]*Socket, 0, 2),
		q:          make(chan ViewModelUpdate, 10),
		done:       make(chan struct{}),
	}

	// UI sockets:
	s.mux.HandleFunc("/ws/", s.handleSocket)
	// emulator relay sockets:
	s.mux.HandleFunc("/bridge/", s.handleBridge)
	// game images for the emulator:
	s.mux.HandleFunc("/rom/", s.handleROM)
	// files offered to the user:
	s.mux.HandleFunc("/download/", s.handleDownload)

	if static != nil {
		s.mux.Handle("/", MaxAge(http.FileServer(http.FS(static))))
	}

	s.srv = &http.Server{
		Addr:              listenAddr,
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// handle the broadcast channel:
	go s.handleBroadcast()

	return s
}

func (s *Server) ProvideViewCommandHandler(commandHandler interfaces.ViewCommandHandler) {
	s.commandHandler = commandHandler
}

func (s *Server) ProvideDownloads(downloads interfaces.DownloadProvider) {
	s.downloads = downloads
}

func (s *Server) ProvideROMs(roms interfaces.ROMProvider) {
	s.roms = roms
}

// ProvideBridge mounts the emulator relay endpoint at /bridge/.
func (s *Server) ProvideBridge(h http.Handler) {
	s.bridge = h
}

func (s *Server) Handler() http.Handler { return s.mux }

func (s *Server) Serve() error {
	s.log.Infof("webui: listening on %s", s.listenAddr)
	err := s.srv.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.socketsRw.RLock()
	sockets := append([]*Socket(nil), s.sockets...)
	s.socketsRw.RUnlock()
	for _, k := range sockets {
		k.Close()
	}

	select {
	case <-s.done:
	default:
		close(s.done)
	}
	return s.srv.Shutdown(ctx)
}

func (s *Server) handleSocket(rw http.ResponseWriter, req *http.Request) {
	socket, err := NewSocket(s, rw, req)
	if err != nil {
		s.log.Warnf("webui: upgrade: %v", err)
		return
	}
	s.appendSocket(socket)
	s.log.Infof("webui: %s connected", req.RemoteAddr)

	// start by sending all view models to this new socket:
	if s.commandHandler != nil {
		s.commandHandler.NotifyViewTo(socket)
	}
}

func (s *Server) handleBridge(rw http.ResponseWriter, req *http.Request) {
	if s.bridge == nil {
		http.Error(rw, "bridge not available", http.StatusServiceUnavailable)
		return
	}
	s.bridge.ServeHTTP(rw, req)
}

func (s *Server) handleROM(rw http.ResponseWriter, req *http.Request) {
	id := strings.TrimPrefix(req.URL.Path, "/rom/")
	if s.roms == nil || id == "" {
		http.NotFound(rw, req)
		return
	}

	name, contents, ok := s.roms.ROMContents(id)
	if !ok {
		http.NotFound(rw, req)
		return
	}

	rw.Header().Set("Content-Type", "application/octet-stream")
	rw.Header().Set("Access-Control-Allow-Origin", "*")
	http.ServeContent(rw, req, name, time.Time{}, bytes.NewReader(contents))
}

func (s *Server) handleDownload(rw http.ResponseWriter, req *http.Request) {
	id := strings.TrimPrefix(req.URL.Path, "/download/")
	if s.downloads == nil || id == "" {
		http.NotFound(rw, req)
		return
	}

	dl, ok := s.downloads.Download(id)
	if !ok {
		http.NotFound(rw, req)
		return
	}

	rw.Header().Set("Content-Type", "application/octet-stream")
	rw.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": dl.Name}))
	rw.Header().Set("Cache-Control", "no-store")
	http.ServeContent(rw, req, dl.Name, time.Time{}, bytes.NewReader(dl.Data))
}

func (s *Server) appendSocket(socket *Socket) {
	s.socketsRw.Lock()
	defer s.socketsRw.Unlock()
	s.sockets = append(s.sockets, socket)
}

func (s *Server) removeSocket(k *Socket) {
	s.socketsRw.Lock()
	defer s.socketsRw.Unlock()

	for i, sk := range s.sockets {
		if sk == k {
			s.sockets = append(s.sockets[:i], s.sockets[i+1:]...)
			break
		}
	}
}

// SocketCount returns the number of connected UI sockets.
func (s *Server) SocketCount() int {
	s.socketsRw.RLock()
	defer s.socketsRw.RUnlock()
	return len(s.sockets)
}

// NotifyView implements interfaces.ViewNotifier.
func (s *Server) NotifyView(view string, viewModel interface{}) {
	// send to the broadcast channel so that all connected websockets get the update:
	select {
	case s.q <- ViewModelUpdate{View: view, ViewModel: viewModel}:
	case <-s.done:
	}
}

// StartEmulator asks the connected pages to load the emulator with opts. It
// serves as the EJS_start entry point.
func (s *Server) StartEmulator(opts emulator.Options) error {
	if s.SocketCount() == 0 {
		return ErrNoBrowser
	}
	if opts.GameURL == "" {
		return fmt.Errorf("webui: start: no game url")
	}
	s.NotifyView("boot", opts)
	return nil
}

func (s *Server) handleBroadcast() {
	// read updates from the broadcast channel:
	for {
		var u ViewModelUpdate
		select {
		case u = <-s.q:
		case <-s.done:
			return
		}

		s.socketsRw.RLock()
		sockets := append([]*Socket(nil), s.sockets...)
		s.socketsRw.RUnlock()

		// broadcast to all connected sockets:
		for _, k := range sockets {
			k.NotifyView(u.View, u.ViewModel)
		}
	}
}
