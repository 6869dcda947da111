// Package server implements the collaborative spreadsheet server: the sheet
// registry, the per-client session state machine, and the broadcast
// discipline that keeps every client of a sheet seeing the same order of
// changes.
package server

import (
	"encoding/json"
	"log"
	"sort"
	"strconv"
	"sync"

	"golang.org/x/time/rate"

	"github.com/tybliddell/3505-spreadsheet/config"
	"github.com/tybliddell/3505-spreadsheet/feed"
	"github.com/tybliddell/3505-spreadsheet/sheet"
	"github.com/tybliddell/3505-spreadsheet/store"
)

// Server owns all process-wide state: the sheet registry, the session pools,
// and the id counter. Sessions hold a reference back to it; there is no
// package-level state.
//
// Lock ordering: a sheet's lock is always taken before the registry lock.
// Dispatch handlers mutate under the sheet lock, take the registry lock for
// the broadcast fan-out, release it, then release the sheet lock. The
// registry lock is never held while acquiring a sheet lock.
type Server struct {
	cfg   *config.Config
	store store.Store
	feed  *feed.Publisher

	// mu guards sheets and all three session pools. It is held briefly for
	// pool mutation and across broadcast fan-out so the recipient list
	// cannot change mid-broadcast.
	mu      sync.Mutex
	sheets  map[string]*sheet.Sheet
	pending map[int]*Session
	ready   map[int]*Session
	bySheet map[string][]*Session

	idMu   sync.Mutex
	nextID int
}

func New(cfg *config.Config, st store.Store, pub *feed.Publisher) *Server {
	return &Server{
		cfg:     cfg,
		store:   st,
		feed:    pub,
		sheets:  make(map[string]*sheet.Sheet),
		pending: make(map[int]*Session),
		ready:   make(map[int]*Session),
		bySheet: make(map[string][]*Session),
		nextID:  1,
	}
}

// LoadSheets installs every persisted sheet from the store. Called once at
// boot, before any client is accepted.
func (s *Server) LoadSheets() error {
	loaded, err := s.store.LoadAll()
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for name, cells := range loaded {
		s.sheets[name] = sheet.NewFromCells(name, cells)
		log.Printf("[startup] server loaded sheet %s (%d cells)", name, len(cells))
	}
	return nil
}

// InstallSheet adds a sheet under name unless one already exists. Used by
// the directory watcher; a live sheet is never clobbered.
func (s *Server) InstallSheet(name string, cells map[string]string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sheets[name]; ok {
		return false
	}
	s.sheets[name] = sheet.NewFromCells(name, cells)
	return true
}

func (s *Server) allocID() int {
	s.idMu.Lock()
	defer s.idMu.Unlock()
	id := s.nextID
	s.nextID++
	return id
}

// sheetNames returns the registered names, one per line, with a final blank
// line marking the end of the list. This is the handshake reply to the
// username message.
func (s *Server) sheetNames() string {
	s.mu.Lock()
	names := make([]string, 0, len(s.sheets))
	for name := range s.sheets {
		names = append(names, name)
	}
	s.mu.Unlock()

	sort.Strings(names)
	var out string
	for _, name := range names {
		out += name + "\n"
	}
	return out + "\n"
}

// lookupOrCreate returns the sheet registered under name, creating and
// installing an empty one on first reference.
func (s *Server) lookupOrCreate(name string) (*sheet.Sheet, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sh, ok := s.sheets[name]; ok {
		return sh, false
	}
	sh := sheet.New(name)
	s.sheets[name] = sh
	return sh, true
}

// lookupSheet returns the registered sheet, or nil. Ready sessions always
// name a registered sheet.
func (s *Server) lookupSheet(name string) *sheet.Sheet {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sheets[name]
}

// broadcastSheet fans a message out to every Ready session on the named
// sheet. Callers hold that sheet's lock, which is what makes the order of
// broadcasts the order of state changes; the registry lock is taken inside
// so the recipient list is stable. Write failures are logged and skipped so
// one broken peer cannot starve the rest.
func (s *Server) broadcastSheet(name string, msg interface{}) {
	data, err := json.Marshal(msg)
	if err != nil {
		log.Printf("[error] marshal broadcast: %v", err)
		return
	}
	line := string(data) + "\n"

	s.mu.Lock()
	for _, sess := range s.bySheet[name] {
		if err := sess.conn.WriteRaw(line); err != nil {
			log.Printf("[error] attempted to write to a broken pipe")
		}
	}
	s.mu.Unlock()

	if s.feed != nil {
		s.feed.Publish(name, data)
	}
}

// reply sends a message to a single session, typically a requestError to the
// requester.
func (s *Server) reply(sess *Session, msg interface{}) {
	data, err := json.Marshal(msg)
	if err != nil {
		log.Printf("[error] marshal reply: %v", err)
		return
	}
	s.mu.Lock()
	if err := sess.conn.WriteRaw(string(data) + "\n"); err != nil {
		log.Printf("[error] attempted to write to a broken pipe")
	}
	s.mu.Unlock()
}

// removeSession performs the full disconnect cleanup for a Ready session:
// its selection is dropped from its sheet, it leaves both pools, and every
// remaining Ready session — on any sheet — is told. The sheet lock is held
// across all of it, matching the ordering discipline of dispatch.
func (s *Server) removeSession(sess *Session) {
	sh := s.lookupSheet(sess.sheetName)
	if sh == nil {
		s.mu.Lock()
		delete(s.ready, sess.id)
		s.mu.Unlock()
		return
	}

	sh.WithLock(func(st *sheet.State) {
		st.DeselectCell(sess.currentCell, sess.id)

		data, err := json.Marshal(disconnected{MessageType: "disconnected", User: strconv.Itoa(sess.id)})
		if err != nil {
			return
		}
		line := string(data) + "\n"

		s.mu.Lock()
		delete(s.ready, sess.id)
		peers := s.bySheet[sess.sheetName]
		for i, peer := range peers {
			if peer.id == sess.id {
				s.bySheet[sess.sheetName] = append(peers[:i], peers[i+1:]...)
				break
			}
		}
		for _, peer := range s.ready {
			if err := peer.conn.WriteRaw(line); err != nil {
				log.Printf("[error] attempted to write to a broken pipe")
			}
		}
		s.mu.Unlock()
	})
}

// Shutdown notifies every Ready session, persists every sheet through the
// store, and closes the feed. Called from the signal path.
func (s *Server) Shutdown() {
	log.Printf("[shutdown] server shutting down, saving current spreadsheets")

	data, err := json.Marshal(serverError{
		MessageType: "serverError",
		Message:     "Server has been signaled to shut down. Saving spreadsheets and ending all connections.",
	})
	if err == nil {
		line := string(data) + "\n"
		s.mu.Lock()
		for _, sess := range s.ready {
			if err := sess.conn.WriteRaw(line); err != nil {
				log.Printf("[error] attempted to write to a broken pipe")
			}
		}
		s.mu.Unlock()
	}

	s.mu.Lock()
	sheets := make(map[string]*sheet.Sheet, len(s.sheets))
	for name, sh := range s.sheets {
		sheets[name] = sh
	}
	s.mu.Unlock()

	for name, sh := range sheets {
		log.Printf("[shutdown] saving sheet %s", name)
		if err := s.store.Save(name, sh.Current()); err != nil {
			log.Printf("[error] unable to save sheet %s: %v", name, err)
		}
	}

	if s.feed != nil {
		s.feed.Close()
	}
}

// limiter builds the per-session request limiter, or nil when unlimited.
func (s *Server) limiter() *rate.Limiter {
	if s.cfg == nil || s.cfg.RequestRate <= 0 {
		return nil
	}
	burst := int(s.cfg.RequestRate)
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(s.cfg.RequestRate), burst)
}
