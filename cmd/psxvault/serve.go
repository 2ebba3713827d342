package main

import (
	"context"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
	"google.golang.org/grpc"

	"psxvault/bridge"
	"psxvault/bridge/mock"
	"psxvault/bridge/wstarget"
	"psxvault/config"
	"psxvault/emulator"
	"psxvault/engine"
	"psxvault/memcard/mcduino"
	"psxvault/rpc"
	"psxvault/util"
	"psxvault/util/env"
	"psxvault/webui"
	"psxvault/webui/dist"
)

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Serve the web UI, the emulator bridge and the RPC service",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "listen-host", Usage: "address the web server listens on"},
			&cli.IntFlag{Name: "listen-port", Usage: "port the web server listens on"},
			&cli.StringFlag{Name: "browser-host", Usage: "host name handed to the browser"},
			&cli.StringFlag{Name: "rpc-addr", Usage: "gRPC listen address, empty to disable"},
			&cli.StringFlag{Name: "session", Usage: "session file path"},
			&cli.StringFlag{Name: "port", Usage: "MemCARDuino serial port"},
			&cli.IntFlag{Name: "baud", Usage: "MemCARDuino baud rate"},
			&cli.BoolFlag{Name: "mock", Usage: "run an in-memory emulator instead of the browser"},
			&cli.BoolFlag{Name: "no-browser", Usage: "do not open the web UI on startup"},
		},
		Action: serveAction,
	}
}

func serveAction(c *cli.Context) error {
	cfg, err := loadConfig(c, env.OS)
	if err != nil {
		return cli.Exit(err.Error(), 2)
	}

	logger := newLogger(cfg)
	defer logger.Close()
	defer func() {
		if r := recover(); r != nil {
			util.LogPanic(r)
			panic(r)
		}
	}()
	log := logger.Sugar()
	log.Infof("main: psxvault %s (commit: %s), logging to '%s'", version, commit, logger.Path())

	app := newServer(cfg, log)
	defer app.close()

	// start the web server:
	go func() {
		if err := app.web.Serve(); err != nil {
			log.Fatalf("main: web server: %v", err)
		}
	}()
	app.serveRPC()

	// initialize viewModel now that all dependencies are set up:
	app.viewModel.Init()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// start up a systray app (or just open web UI) until asked to quit:
	runTray(ctx, cfg.BrowserURL(), !c.Bool("no-browser"), log)

	log.Infof("main: shutting down")
	return nil
}

// server holds the wired components of a running vault.
type server struct {
	cfg config.Config
	log *zap.SugaredLogger

	bridge    *bridge.Bridge
	globals   *emulator.Globals
	viewModel *engine.ViewModel
	web       *webui.Server
	endpoint  *wstarget.Endpoint
	reader    *mcduino.Reader
	mock      *mock.Emulator

	rpc *grpc.Server
}

func newServer(cfg config.Config, log *zap.SugaredLogger) *server {
	s := &server{
		cfg:     cfg,
		log:     log,
		bridge:  bridge.New(log.Named("bridge")),
		globals: emulator.NewGlobals(),
	}

	// construct our viewModel and web server:
	s.viewModel = engine.NewViewModel(cfg.Engine(), s.bridge, s.globals, log.Named("engine"))
	s.web = webui.NewServer(cfg.ListenAddr(), dist.Content, log.Named("webui"))

	// inform viewModel of web server and vice versa:
	s.viewModel.ProvideViewNotifier(s.web)
	s.web.ProvideViewCommandHandler(s.viewModel)
	s.web.ProvideDownloads(s.viewModel.Downloads())
	s.web.ProvideROMs(s.viewModel)

	// emulator frames relay their messages over this endpoint:
	s.endpoint = wstarget.NewEndpoint(s.bridge, log.Named("wstarget"))
	s.endpoint.OnChange = s.viewModel.TargetsChanged
	s.web.ProvideBridge(s.endpoint)

	if cfg.Mock {
		s.mock = mock.New("mock", s.bridge)
		s.mock.Define(s.globals, true)
		s.bridge.Attach(s.mock)
		log.Infof("main: using the in-memory emulator")
	} else if err := s.globals.Define(emulator.StartEntryPoint, s.web.StartEmulator); err != nil {
		log.Errorf("main: define %s: %v", emulator.StartEntryPoint, err)
	}

	if cfg.SerialPort != "" {
		reader, err := mcduino.Open(cfg.SerialPort, cfg.SerialBaud, log.Named("mcduino"))
		if err != nil {
			log.Warnf("main: memory card reader on %s: %v", cfg.SerialPort, err)
		} else {
			s.reader = reader
			s.viewModel.ProvideCardReader(reader)
		}
	}

	return s
}

// serveRPC starts the gRPC service when an address is configured.
func (s *server) serveRPC() {
	if s.cfg.RPCAddr == "" {
		return
	}

	lis, err := net.Listen("tcp", s.cfg.RPCAddr)
	if err != nil {
		s.log.Warnf("main: rpc disabled: %v", err)
		return
	}

	srv := rpc.NewServer(s.viewModel, s.log.Named("rpc"))
	s.rpc = srv
	s.log.Infof("main: rpc listening on %s", lis.Addr())

	go func() {
		if err := srv.Serve(lis); err != nil {
			s.log.Warnf("main: rpc: %v", err)
		}
	}()
}

func (s *server) close() {
	if s.rpc != nil {
		s.rpc.GracefulStop()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.web.Shutdown(ctx); err != nil {
		s.log.Warnf("main: web shutdown: %v", err)
	}
	s.endpoint.Close()

	s.viewModel.Close()
	if s.reader != nil {
		_ = s.reader.Close()
	}
}
