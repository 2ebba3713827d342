// Package wstarget exposes the bridge over WebSockets. The host page relays
// between the emulator iframe and this endpoint, so each connection is one
// embedded target.
package wstarget

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
	"go.uber.org/zap"

	"psxvault/bridge"
)

const queueSize = 16

var (
	ErrClosed    = errors.New("wstarget: socket closed")
	ErrQueueFull = errors.New("wstarget: write queue full")
)

// Endpoint is an http.Handler upgrading requests to WebSocket targets.
type Endpoint struct {
	b   *bridge.Bridge
	log *zap.SugaredLogger

	next int64

	socketsLock sync.Mutex
	sockets     map[*Socket]struct{}

	// OnChange is called after a socket connects or disconnects.
	OnChange func(count int)
}

func NewEndpoint(b *bridge.Bridge, log *zap.SugaredLogger) *Endpoint {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Endpoint{
		b:       b,
		log:     log,
		sockets: make(map[*Socket]struct{}),
	}
}

func (e *Endpoint) ServeHTTP(rw http.ResponseWriter, req *http.Request) {
	conn, _, _, err := ws.UpgradeHTTP(req, rw)
	if err != nil {
		e.log.Warnf("wstarget: upgrade: %v", err)
		return
	}

	id := atomic.AddInt64(&e.next, 1)
	s := &Socket{
		e:      e,
		name:   fmt.Sprintf("frame[%d]@%s", id, req.RemoteAddr),
		conn:   conn,
		q:      make(chan bridge.Envelope, queueSize),
		closed: make(chan struct{}),
	}

	e.socketsLock.Lock()
	e.sockets[s] = struct{}{}
	e.socketsLock.Unlock()

	e.b.Attach(s)
	e.log.Infof("wstarget: %s connected", s.name)
	e.changed()

	go s.readHandler()
	go s.writeHandler()
}

func (e *Endpoint) changed() {
	if e.OnChange != nil {
		e.OnChange(e.Count())
	}
}

// Count returns the number of open sockets.
func (e *Endpoint) Count() int {
	e.socketsLock.Lock()
	defer e.socketsLock.Unlock()
	return len(e.sockets)
}

// Close drops every open socket.
func (e *Endpoint) Close() {
	e.socketsLock.Lock()
	sockets := make([]*Socket, 0, len(e.sockets))
	for s := range e.sockets {
		sockets = append(sockets, s)
	}
	e.socketsLock.Unlock()

	for _, s := range sockets {
		s.Close()
	}
}

func (e *Endpoint) remove(s *Socket) {
	e.b.Detach(s)
	e.socketsLock.Lock()
	delete(e.sockets, s)
	e.socketsLock.Unlock()
	e.log.Infof("wstarget: %s disconnected", s.name)
	e.changed()
}

// Socket is a single relay connection. It implements bridge.Target.
type Socket struct {
	e    *Endpoint
	name string
	conn net.Conn

	// write channel:
	q chan bridge.Envelope

	closed    chan struct{}
	closeOnce sync.Once
}

func (s *Socket) Name() string { return s.name }

// Post queues e for writing without blocking.
func (s *Socket) Post(e bridge.Envelope) error {
	select {
	case <-s.closed:
		return ErrClosed
	default:
	}

	select {
	case s.q <- e:
		return nil
	default:
		return ErrQueueFull
	}
}

func (s *Socket) Close() {
	s.closeOnce.Do(func() {
		close(s.closed)
		_ = s.conn.Close()
		s.e.remove(s)
	})
}

func (s *Socket) readHandler() {
	// the reader is in control of the lifetime of the socket:
	defer s.Close()

	var (
		controlHandler = wsutil.ControlFrameHandler(s.conn, ws.StateServerSide)
		r              = &wsutil.Reader{
			Source:         s.conn,
			State:          ws.StateServerSide,
			CheckUTF8:      true,
			OnIntermediate: controlHandler,
		}
	)

	for {
		hdr, err := r.NextFrame()
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
				s.e.log.Warnf("wstarget: %s: error reading next websocket frame: %v", s.name, err)
			}
			return
		}
		if hdr.OpCode.IsControl() {
			if err := controlHandler(hdr, r); err != nil {
				return
			}
			continue
		}
		if hdr.OpCode&(ws.OpText|ws.OpBinary) == 0 {
			if err := r.Discard(); err != nil {
				return
			}
			continue
		}

		data, err := io.ReadAll(r)
		if err != nil {
			s.e.log.Warnf("wstarget: %s: read message: %v", s.name, err)
			return
		}

		s.e.b.DeliverRaw(data)
	}
}

func (s *Socket) writeHandler() {
	var (
		w       = wsutil.NewWriter(s.conn, ws.StateServerSide, ws.OpText)
		encoder = json.NewEncoder(w)
	)

	for {
		select {
		case <-s.closed:
			return
		case e := <-s.q:
			if err := encoder.Encode(&e); err != nil {
				s.e.log.Warnf("wstarget: %s: encode %s: %v", s.name, e.Type, err)
				s.Close()
				return
			}
			if err := w.Flush(); err != nil {
				s.e.log.Warnf("wstarget: %s: flush %s: %v", s.name, e.Type, err)
				s.Close()
				return
			}
		}
	}
}
