package webui

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
)

type Socket struct {
	s    *Server
	req  *http.Request
	conn net.Conn

	// write channel:
	q chan ViewModelUpdate

	closed    chan struct{}
	closeOnce sync.Once
}

type CommandRequest struct {
	View    string          `json:"v"`
	Command string          `json:"c"`
	Args    json.RawMessage `json:"a"`
}

func NewSocket(s *Server, rw http.ResponseWriter, req *http.Request) (*Socket, error) {
	conn, _, _, err := ws.UpgradeHTTP(req, rw)
	if err != nil {
		return nil, err
	}

	k := &Socket{
		s:      s,
		req:    req,
		conn:   conn,
		q:      make(chan ViewModelUpdate, 32),
		closed: make(chan struct{}),
	}

	go k.readHandler()
	go k.writeHandler()

	return k, nil
}

// NotifyView queues an update for this socket only.
func (k *Socket) NotifyView(view string, viewModel interface{}) {
	select {
	case k.q <- ViewModelUpdate{View: view, ViewModel: viewModel}:
	case <-k.closed:
	}
}

func (k *Socket) Close() {
	k.closeOnce.Do(func() {
		close(k.closed)
		_ = k.conn.Close()
		k.s.removeSocket(k)
	})
}

func (k *Socket) readHandler() {
	// the reader is in control of the lifetime of the socket:
	defer k.Close()

	log := k.s.log
	r := wsutil.NewReader(k.conn, ws.StateServerSide)
	r.OnIntermediate = wsutil.ControlFrameHandler(k.conn, ws.StateServerSide)

	for {
		hdr, err := r.NextFrame()
		if err != nil {
			log.Debugf("webui: %s: next frame: %v", k.req.RemoteAddr, err)
			return
		}
		if hdr.OpCode == ws.OpClose {
			return
		}

		switch hdr.OpCode {
		case ws.OpText:
			// read a JSON command request:
			var creq CommandRequest
			frame, err := io.ReadAll(r)
			if err != nil {
				log.Warnf("webui: error reading json command request: %v", err)
				goto discard
			}
			if err = json.Unmarshal(frame, &creq); err != nil {
				log.Warnf("webui: error decoding json command request: %v", err)
				continue
			}

			if err = k.execute(creq.View, creq.Command, func(args interface{}) (interface{}, error) {
				if args == nil {
					return nil, nil
				}
				// deserialize json:
				if len(creq.Args) == 0 {
					return args, nil
				}
				return args, json.Unmarshal(creq.Args, args)
			}); err != nil {
				log.Warnf("webui: json command %s.%s: %v", creq.View, creq.Command, err)
				k.NotifyView("error", err.Error())
			}
		case ws.OpBinary:
			// data format:
			// [1] view name string length
			// [n] view name string
			// [1] command name string length
			// [n] command name string
			// [...] remaining data sent directly as []byte arg to command executor
			viewName, err := readTinyString(r)
			if err != nil {
				log.Warnf("webui: error reading binary command view name: %v", err)
				goto discard
			}
			commandName, err := readTinyString(r)
			if err != nil {
				log.Warnf("webui: error reading binary command name: %v", err)
				goto discard
			}

			data, err := io.ReadAll(r)
			if err != nil {
				log.Warnf("webui: error reading binary command payload: %v", err)
				goto discard
			}

			if err = k.execute(viewName, commandName, func(interface{}) (interface{}, error) {
				return data, nil
			}); err != nil {
				log.Warnf("webui: binary command %s.%s: %v", viewName, commandName, err)
				k.NotifyView("error", err.Error())
			}
		default:
			goto discard
		}

		continue

	discard:
		if err := r.Discard(); err != nil {
			log.Debugf("webui: discard: %v", err)
			return
		}
	}
}

// execute looks up the command and runs it with the arguments bind produces
// from the command's args instance.
func (k *Socket) execute(view, command string, bind func(args interface{}) (interface{}, error)) error {
	handler := k.s.commandHandler
	if handler == nil {
		return fmt.Errorf("no view command handler provided")
	}

	ce, err := handler.CommandFor(view, command)
	if err != nil {
		return err
	}

	args, err := bind(ce.CreateArgs())
	if err != nil {
		return fmt.Errorf("deserializing command args: %w", err)
	}

	return ce.Execute(args)
}

func readTinyString(buf io.Reader) (value string, err error) {
	var valueLength uint8
	if err = binary.Read(buf, binary.LittleEndian, &valueLength); err != nil {
		return
	}

	valueBytes := make([]byte, valueLength)
	if _, err = io.ReadFull(buf, valueBytes); err != nil {
		return
	}

	value = string(valueBytes)
	return
}

func (k *Socket) writeHandler() {
	var (
		w       = wsutil.NewWriter(k.conn, ws.StateServerSide, ws.OpText)
		encoder = json.NewEncoder(w)
		log     = k.s.log
	)

	// wait for ViewModelUpdates on the channel:
	for {
		var u ViewModelUpdate
		select {
		case u = <-k.q:
		case <-k.closed:
			return
		}

		if err := encoder.Encode(&u); err != nil {
			log.Warnf("webui: encode %s: %v", u.View, err)
			continue
		}
		if err := w.Flush(); err != nil {
			log.Debugf("webui: %s: flush: %v", k.req.RemoteAddr, err)
			k.Close()
			return
		}
	}
}
