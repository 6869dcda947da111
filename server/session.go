package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strconv"

	"golang.org/x/time/rate"

	"github.com/tybliddell/3505-spreadsheet/sheet"
)

// SessionState is the lifecycle position of one client connection.
type SessionState int

const (
	// PendingUsername: accepted, waiting for the first handshake line.
	PendingUsername SessionState = iota
	// PendingSheet: username stored, waiting for the sheet choice.
	PendingSheet
	// Ready: handshake complete, processing requests.
	Ready
	// Closed: removed from all pools.
	Closed
)

// Session is one client connection. It binds to exactly one sheet after the
// handshake and refers to it by name; the registry owns the sheet itself.
type Session struct {
	id          int
	username    string
	sheetName   string
	currentCell string // "" means no selection

	conn    lineConn
	srv     *Server
	state   SessionState
	limiter *rate.Limiter
}

// handleConn runs a session to completion. One goroutine per connection.
func (s *Server) handleConn(conn lineConn) {
	sess := &Session{
		id:      s.allocID(),
		conn:    conn,
		srv:     s,
		state:   PendingUsername,
		limiter: s.limiter(),
	}

	s.mu.Lock()
	s.pending[sess.id] = sess
	s.mu.Unlock()
	log.Printf("[update] client has been accepted, id: %d (%s)", sess.id, conn.RemoteAddr())

	defer conn.Close()

	if err := sess.handshake(); err != nil {
		log.Printf("[update] client %d has disconnected", sess.id)
		s.mu.Lock()
		delete(s.pending, sess.id)
		s.mu.Unlock()
		sess.state = Closed
		return
	}

	sess.readLoop()
}

// handshake drives PendingUsername -> PendingSheet -> Ready. The sheet's
// lock is held from before the initial state transfer until the session is
// registered in the ready pools, so the snapshot a client receives is
// consistent: no interleaved edit is observable between the first
// cellUpdated and the terminating id line.
func (sess *Session) handshake() error {
	username, err := sess.conn.ReadLine()
	if err != nil {
		return err
	}
	sess.username = username
	sess.state = PendingSheet
	log.Printf("[handshake] username received: %s", sess.username)

	if err := sess.conn.WriteRaw(sess.srv.sheetNames()); err != nil {
		return fmt.Errorf("send sheet names: %w", err)
	}

	sheetName, err := sess.conn.ReadLine()
	if err != nil {
		return err
	}
	sess.sheetName = sheetName
	log.Printf("[handshake] spreadsheet name received: %s", sess.sheetName)

	sh, created := sess.srv.lookupOrCreate(sess.sheetName)
	if created {
		log.Printf("[handshake] created new sheet %s", sess.sheetName)
	}

	sh.WithLock(func(st *sheet.State) {
		for _, entry := range st.AllCells() {
			sess.sendLocked(newCellUpdated(entry.Cell, entry.Contents))
		}
		for cell, selections := range st.AllSelects() {
			for _, sel := range selections {
				sess.sendLocked(cellSelected{
					MessageType:  "cellSelected",
					CellName:     cell,
					Selector:     strconv.Itoa(sel.ID),
					SelectorName: sel.Name,
				})
			}
		}

		// The bare id line terminates the handshake.
		if err := sess.conn.WriteRaw(strconv.Itoa(sess.id) + "\n"); err != nil {
			log.Printf("[error] attempted to write to a broken pipe")
		}

		srv := sess.srv
		srv.mu.Lock()
		delete(srv.pending, sess.id)
		srv.ready[sess.id] = sess
		srv.bySheet[sess.sheetName] = append(srv.bySheet[sess.sheetName], sess)
		srv.mu.Unlock()
	})

	sess.state = Ready
	return nil
}

// sendLocked writes one snapshot message during the handshake. The session
// is not yet registered, so no broadcast can race these writes.
func (sess *Session) sendLocked(msg interface{}) {
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	if err := sess.conn.WriteRaw(string(data) + "\n"); err != nil {
		log.Printf("[error] attempted to write to a broken pipe")
	}
}

// readLoop processes requests until the peer goes away, then performs the
// full disconnect cleanup.
func (sess *Session) readLoop() {
	for {
		line, err := sess.conn.ReadLine()
		if err != nil {
			log.Printf("[update] client %d has disconnected", sess.id)
			sess.srv.removeSession(sess)
			sess.state = Closed
			return
		}
		if sess.limiter != nil {
			sess.limiter.Wait(context.Background())
		}
		sess.dispatch(line)
	}
}

// dispatch parses one request line and routes it. Parse failures and unknown
// request types are logged and ignored; the session stays open.
func (sess *Session) dispatch(line string) {
	var req request
	if err := json.Unmarshal([]byte(line), &req); err != nil {
		log.Printf("[error] client %d has sent a bad message: %s", sess.id, line)
		return
	}

	switch req.RequestType {
	case "editCell":
		sess.editCell(req)
	case "selectCell":
		sess.selectCell(req)
	case "undo":
		sess.undo()
	case "revertCell":
		sess.revertCell(req)
	default:
		log.Printf("[error] client %d has sent an unknown requestType: %q", sess.id, req.RequestType)
	}
}

func (sess *Session) editCell(req request) {
	log.Printf("[update] client %d (%s) has requested to edit cell %s to %q",
		sess.id, sess.username, req.CellName, req.Contents)

	sh := sess.srv.lookupSheet(sess.sheetName)
	sh.WithLock(func(st *sheet.State) {
		if st.SetCell(req.CellName, req.Contents, sess.id) {
			sess.srv.broadcastSheet(sess.sheetName, newCellUpdated(req.CellName, req.Contents))
		} else {
			sess.srv.reply(sess, newRequestError(req.CellName, "Unable to edit cell as desired"))
		}
	})
}

func (sess *Session) selectCell(req request) {
	log.Printf("[update] client %d (%s) has requested to select cell %s",
		sess.id, sess.username, req.CellName)

	sh := sess.srv.lookupSheet(sess.sheetName)
	sh.WithLock(func(st *sheet.State) {
		if st.SelectCell(req.CellName, sess.username, sess.id, sess.currentCell) {
			sess.currentCell = req.CellName
			sess.srv.broadcastSheet(sess.sheetName, cellSelected{
				MessageType:  "cellSelected",
				CellName:     req.CellName,
				Selector:     strconv.Itoa(sess.id),
				SelectorName: sess.username,
			})
		} else {
			sess.srv.reply(sess, newRequestError(req.CellName, "Unable to select cell as desired"))
		}
	})
}

func (sess *Session) undo() {
	log.Printf("[update] client %d (%s) has requested to undo", sess.id, sess.username)

	sh := sess.srv.lookupSheet(sess.sheetName)
	sh.WithLock(func(st *sheet.State) {
		if entry, ok := st.Undo(); ok {
			sess.srv.broadcastSheet(sess.sheetName, newCellUpdated(entry.Cell, entry.Contents))
		} else {
			sess.srv.reply(sess, newRequestError("N/A - Undo request", "Unable to undo spreadsheet as desired"))
		}
	})
}

func (sess *Session) revertCell(req request) {
	log.Printf("[update] client %d (%s) has requested to revert cell %s",
		sess.id, sess.username, req.CellName)

	sh := sess.srv.lookupSheet(sess.sheetName)
	sh.WithLock(func(st *sheet.State) {
		if contents, ok := st.RevertCell(req.CellName); ok {
			sess.srv.broadcastSheet(sess.sheetName, newCellUpdated(req.CellName, contents))
		} else {
			sess.srv.reply(sess, newRequestError(req.CellName, "Unable to revert spreadsheet as desired"))
		}
	})
}
