package server

import (
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/fsnotify/fsnotify"
	"github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"

	"github.com/tybliddell/3505-spreadsheet/store"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // same trust model as the raw TCP port
	},
}

// Run loads persisted sheets and serves until a termination signal arrives,
// then shuts down gracefully and exits.
func (s *Server) Run() error {
	if err := s.LoadSheets(); err != nil {
		return err
	}

	ln, err := net.Listen("tcp", s.cfg.Listen)
	if err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}
	log.Printf("[status] now listening for clients on %s", s.cfg.Listen)

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigc
		s.Shutdown()
		os.Exit(0)
	}()

	var g errgroup.Group
	g.Go(func() error { return s.AcceptLoop(ln) })

	if s.cfg.HTTPListen != "" {
		g.Go(func() error {
			mux := http.NewServeMux()
			mux.HandleFunc("/ws", s.HandleWebSocket)
			log.Printf("[status] websocket bridge on %s/ws", s.cfg.HTTPListen)
			return http.ListenAndServe(s.cfg.HTTPListen, mux)
		})
	}

	if s.cfg.Watch {
		g.Go(func() error { return s.watchDir(s.cfg.Dir) })
	}

	return g.Wait()
}

// AcceptLoop accepts TCP clients forever, one goroutine per connection.
func (s *Server) AcceptLoop(ln net.Listener) error {
	for {
		conn, err := ln.Accept()
		if err != nil {
			return fmt.Errorf("accept: %w", err)
		}
		go s.handleConn(newTCPConn(conn))
	}
}

// HandleWebSocket upgrades an HTTP request and runs the same session state
// machine over text frames.
func (s *Server) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[error] websocket upgrade: %v", err)
		return
	}
	go s.handleConn(newWSConn(conn))
}

// watchDir installs .sht files that appear in dir while the server runs.
// Sheets already registered are left alone; the watcher only picks up files
// dropped in from outside.
func (s *Server) watchDir(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("start watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}
	log.Printf("[status] watching %s for new sheets", dir)

	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			if !strings.HasSuffix(event.Name, ".sht") {
				continue
			}
			_, cells, err := store.ReadSheetFile(event.Name)
			if err != nil {
				log.Printf("[error] unable to read file %s, that .sht may be corrupted or saved incorrectly: %v",
					filepath.Base(event.Name), err)
				continue
			}
			name := store.SheetName(filepath.Base(event.Name))
			if s.InstallSheet(name, cells) {
				log.Printf("[update] installed sheet %s from %s", name, event.Name)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Printf("[error] watcher: %v", err)
		}
	}
}
