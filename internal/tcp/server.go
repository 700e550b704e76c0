package tcp

import (
	"fmt"
	"net"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/vldzyzy/boneserver/internal/reactor"
)

// Server owns the acceptor loop and the I/O loop pool, assigning each
// new connection to one I/O loop and maintaining the connection table
// (spec.md section 4.7). The connection table lives on the acceptor
// loop; removal is posted there, matching spec.md's ownership note.
type Server struct {
	name        string
	acceptLoop  *reactor.EventLoop
	acceptor    *Acceptor
	loops       *reactor.LoopPool
	nextConnID  atomic.Uint64
	runUUID     string

	mu    sync.Mutex // guards conns; mutated only via tasks run on acceptLoop
	conns map[string]*Connection

	onConnection    ConnCallback
	onMessage       MessageCallback
	onWriteComplete WriteCompleteCallback
}

// NewServer constructs a Server named name, listening on addr, backed
// by an I/O pool of numIOLoops loops (0 means "use the acceptor loop for
// everything", per spec.md section 4.4).
func NewServer(name, addr string, numIOLoops int, reusePort bool) (*Server, error) {
	acceptLoop, err := reactor.New()
	if err != nil {
		return nil, fmt.Errorf("tcp: acceptor loop: %w", err)
	}

	loops, err := reactor.NewLoopPool(numIOLoops)
	if err != nil {
		_ = acceptLoop.Close()
		return nil, err
	}

	acceptor, err := NewAcceptor(acceptLoop, addr, reusePort)
	if err != nil {
		_ = acceptLoop.Close()
		return nil, err
	}

	s := &Server{
		name:       name,
		acceptLoop: acceptLoop,
		acceptor:   acceptor,
		loops:      loops,
		runUUID:    uuid.NewString(),
		conns:      make(map[string]*Connection),
	}
	acceptor.Handler(s.newConnection)
	return s, nil
}

// SetCallbacks installs the user-facing callbacks applied to every
// connection the server creates.
func (s *Server) SetCallbacks(onConn ConnCallback, onMsg MessageCallback, onWC WriteCompleteCallback) {
	s.onConnection = onConn
	s.onMessage = onMsg
	s.onWriteComplete = onWC
}

// Start launches the I/O loop pool and begins accepting on the acceptor
// loop; it blocks until the acceptor loop's Quit is called, matching the
// spec's "application thread calls server.start(), which runs the
// acceptor loop; blocks until shutdown" (spec.md section 5).
func (s *Server) Start() {
	s.loops.Start()
	s.acceptor.Listen()
	s.acceptLoop.Loop()
}

// Stop requests the acceptor loop and every I/O loop to quit.
func (s *Server) Stop() {
	s.acceptLoop.Quit()
	s.loops.Stop()
	_ = s.acceptor.Close()
	_ = s.acceptLoop.Close()
}

func (s *Server) newConnection(fd int, peer net.Addr) {
	loop := s.loops.GetNext()
	if loop == nil {
		loop = s.acceptLoop
	}

	id := s.nextConnID.Add(1)
	name := fmt.Sprintf("%s#%d-%s", s.name, id, s.runUUID[:8])

	conn := New(loop, name, fd, nil, peer)
	conn.SetCallbacks(s.onConnection, s.onMessage, s.onWriteComplete, s.removeConnection)

	s.mu.Lock()
	s.conns[name] = conn
	s.mu.Unlock()

	loop.RunInLoop(conn.ConnectEstablished)
}

// removeConnection is the internal close callback: it runs on the
// acceptor loop (where the table lives) to erase the entry, then posts
// ConnectDestroyed to the connection's own I/O loop (spec.md section
// 4.7).
func (s *Server) removeConnection(c *Connection) {
	s.acceptLoop.RunInLoop(func() {
		s.mu.Lock()
		delete(s.conns, c.Name())
		s.mu.Unlock()

		c.Loop().RunInLoop(c.ConnectDestroyed)
	})
}

// ConnCount returns the number of connections currently in the table.
func (s *Server) ConnCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}
