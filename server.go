package ninep

import (
	"io"
	"net"
	"runtime"
	"time"

	"aqwari.net/net/ninep/ninepproto"
	"aqwari.net/retry"
)

// A Server speaks the server half of the 9P2000 protocol. The zero
// value of a Server completes the version and attach handshake and
// then rejects every file transaction; a useful Server has at least
// its Handler field set.
type Server struct {
	// Handler services the file transactions on every connection
	// after the attach handshake completes, and the I/O of the
	// authentication exchange that precedes it. If nil, all such
	// requests draw an error response.
	Handler Handler

	// MaxSize is the maximum 9P message size the server will offer
	// during version negotiation. If zero, DefaultMaxSize is used.
	// A client may negotiate the size downwards, never upwards.
	MaxSize uint32

	// Auth, if non-nil, is consulted for Tauth requests. It returns
	// the qid of the authentication file to be associated with
	// afid; the contents of the afid exchange are opaque to the
	// server. When Auth is nil, Tauth requests draw an error
	// response, which clients treat as "authentication not
	// required".
	Auth func(afid uint32, uname, aname string) (ninepproto.Qid, error)

	// Attach, if non-nil, supplies the qid for the root of the file
	// tree named by aname. When Attach is nil, a directory qid with
	// version 0 and a path unique per aname is manufactured.
	Attach func(uname, aname string) (ninepproto.Qid, error)

	// ErrorLog receives diagnostics about failed connections and
	// protocol violations. If nil, diagnostics are discarded.
	ErrorLog Logger

	// TraceLog, if non-nil, receives a line for every 9P message
	// received and every response produced by the Handler.
	TraceLog Logger
}

func (srv *Server) logf(format string, v ...interface{}) {
	if srv.ErrorLog != nil {
		srv.ErrorLog.Printf(format, v...)
	}
}

func (srv *Server) tracef(format string, v ...interface{}) {
	if srv.TraceLog != nil {
		srv.TraceLog.Printf(format, v...)
	}
}

func (srv *Server) msize() int64 {
	if srv.MaxSize >= ninepproto.MinMsize {
		return int64(srv.MaxSize)
	}
	return ninepproto.DefaultMaxSize
}

// Serve accepts connections on l and serves 9P sessions over them.
// Temporary Accept errors are retried with exponential backoff;
// other errors end the loop and are returned.
func (srv *Server) Serve(l net.Listener) error {
	type tempErr interface {
		Temporary() bool
	}
	backoff := retry.Exponential(time.Millisecond).Max(time.Second)
	try := 0

	for {
		rwc, err := l.Accept()
		if err != nil {
			if err, ok := err.(tempErr); ok && err.Temporary() {
				try++
				srv.logf("9p: Accept error: %v; retrying in %v", err, backoff(try))
				time.Sleep(backoff(try))
				continue
			}
			return err
		}
		try = 0
		go srv.serve(rwc)
	}
}

func (srv *Server) serve(rwc io.ReadWriteCloser) {
	defer func() {
		if err := recover(); err != nil {
			const size = 64 << 10
			buf := make([]byte, size)
			buf = buf[:runtime.Stack(buf, false)]
			srv.logf("9p: panic serving connection: %v\n%s", err, buf)
		}
	}()
	if err := srv.ServeConn(rwc); err != nil && err != io.EOF {
		srv.logf("9p: %v", err)
	}
}

// ServeConn serves a single 9P session over rwc, performing the
// version and attach handshake and then dispatching transactions to
// the server's Handler until the client disconnects or a fatal
// protocol error occurs. ServeConn always closes rwc before
// returning.
func (srv *Server) ServeConn(rwc io.ReadWriteCloser) error {
	c := newConn(srv, rwc)
	defer c.close()

	if err := c.handshake(); err != nil {
		return err
	}
	return c.serve()
}
