package kvserver

import (
	"bufio"
	"net"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/lsmkv/lsmkv/internal/obs"
	"github.com/lsmkv/lsmkv/pkg/lsm"
)

// Server accepts line-protocol TCP connections and dispatches each
// line to the engine using an accept-loop-plus-per-connection-goroutine
// shape.
type Server struct {
	addr    string
	engine  *lsm.Engine
	log     *obs.Logger
	metrics *obs.Metrics

	listener net.Listener
}

// New returns a Server bound to addr, not yet listening.
func New(addr string, engine *lsm.Engine, metrics *obs.Metrics) *Server {
	return &Server{addr: addr, engine: engine, log: obs.New("kvserver"), metrics: metrics}
}

// ListenAndServe opens addr and serves connections until the
// listener is closed.
func (s *Server) ListenAndServe() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	s.listener = ln
	s.log.Printf("listening on %s", s.addr)

	for {
		conn, err := ln.Accept()
		if err != nil {
			return err
		}
		go s.handleConn(conn)
	}
}

// Close stops accepting new connections.
func (s *Server) Close() error {
	if s.listener == nil {
		return nil
	}
	return s.listener.Close()
}

func (s *Server) handleConn(conn net.Conn) {
	sessionID := uuid.New().String()
	s.log.Printf("session %s connected from %s", sessionID, conn.RemoteAddr())
	defer func() {
		conn.Close()
		s.log.Printf("session %s closed", sessionID)
	}()

	scanner := bufio.NewScanner(conn)
	writer := bufio.NewWriter(conn)

	for scanner.Scan() {
		req, err := ParseRequest(scanner.Text())
		if err != nil {
			writer.WriteString(ErrorResponse(err.Error()).Serialize())
			writer.Flush()
			continue
		}

		resp, quit := s.dispatch(req)
		writer.WriteString(resp.Serialize())
		writer.Flush()
		if quit {
			return
		}
	}
}

func (s *Server) dispatch(req Request) (resp Response, quit bool) {
	switch req.Type {
	case CmdPut:
		err := s.engine.Put([]byte(req.Key), []byte(req.Value))
		s.recordWrite("put", err)
		if err != nil {
			return ErrorResponse(err.Error()), false
		}
		return OK("OK"), false

	case CmdGet:
		start := time.Now()
		value, ok, err := s.engine.Get([]byte(req.Key))
		s.recordRead(ok, err, start)
		if err != nil {
			return ErrorResponse(err.Error()), false
		}
		if !ok {
			return NotFound(), false
		}
		return OKWithValue(string(value)), false

	case CmdDelete:
		_, err := s.engine.Delete([]byte(req.Key))
		s.recordWrite("delete", err)
		if err != nil {
			return ErrorResponse(err.Error()), false
		}
		return OK("OK"), false

	case CmdPing:
		return OK("PONG"), false

	case CmdQuit:
		return OK("BYE"), true

	case CmdStatus:
		v := s.engine.CurrentVersion()
		return OK(statusSummary(v)), false
	}
	return ErrorResponse("unhandled command"), false
}

func (s *Server) recordWrite(kind string, err error) {
	if s.metrics == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	s.metrics.WritesTotal.WithLabelValues(kind, outcome).Inc()
}

func (s *Server) recordRead(found bool, err error, start time.Time) {
	if s.metrics == nil {
		return
	}
	s.metrics.ReadLatency.Observe(time.Since(start).Seconds())
	outcome := "miss"
	switch {
	case err != nil:
		outcome = "error"
	case found:
		outcome = "hit"
	}
	s.metrics.ReadsTotal.WithLabelValues(outcome).Inc()
}

func statusSummary(v *lsm.TableVersion) string {
	total := 0
	for _, level := range v.Levels {
		total += len(level)
	}
	return "version=" + strconv.Itoa(int(v.VersionNumber)) + " sstables=" + strconv.Itoa(total)
}
