package ninep

import (
	"bytes"
	"context"
	"io"
	"sync"
	"sync/atomic"

	"aqwari.net/net/ninep/internal/qidpool"
	"aqwari.net/net/ninep/internal/threadsafe"
	"aqwari.net/net/ninep/ninepproto"
)

// A conn is the server half of a single 9P connection. It owns the
// read side of the stream; the write side is shared with handler
// goroutines through the encoder, which serialises frames.
type conn struct {
	*ninepproto.Decoder
	enc *ninepproto.Encoder
	rwc io.ReadWriteCloser
	srv *Server

	// immutable after the attach handshake
	info *ConnInfo

	// root qids manufactured for attach requests, when the server
	// has no Attach callback
	qids *qidpool.Pool

	// transactions that have not completed yet: tag → CancelFunc
	pending *threadsafe.Map

	// set by close paths; read at the top of the dispatch loop
	shutdown uint32

	// signalled when the dispatch loop has exited
	done      chan struct{}
	closeOnce sync.Once
}

func newConn(srv *Server, rwc io.ReadWriteCloser) *conn {
	return &conn{
		Decoder: newDecoder(rwc, srv.msize()),
		enc:     ninepproto.NewEncoder(rwc),
		rwc:     rwc,
		srv:     srv,
		qids:    qidpool.New(),
		pending: threadsafe.NewMap(),
		done:    make(chan struct{}),
	}
}

func (c *conn) close() error {
	atomic.StoreUint32(&c.shutdown, 1)
	var err error
	c.closeOnce.Do(func() {
		err = c.rwc.Close()
		putDecoder(c.Decoder)
		close(c.done)
	})
	return err
}

// readErr maps the end of the message stream to an error for the
// caller of ServeConn. A clean EOF between messages is reported as
// io.EOF; everything else is fatal.
func (c *conn) readErr() error {
	if err := c.Err(); err != nil {
		return err
	}
	return io.EOF
}

// handshake drives the connection from its initial state to
// RUNNING: exactly one Tversion, then an optional Tauth exchange,
// then a Tattach. Any other message is a protocol violation and
// shuts the connection down after an error response.
func (c *conn) handshake() error {
	if !c.Next() {
		return c.readErr()
	}
	tv, ok := c.Msg().(ninepproto.Tversion)
	if !ok {
		// Only Tversion may carry NOTAG. Any other first message
		// is answered with an Rerror at its own tag; a bad message
		// that carries NOTAG gets no reply.
		if m := c.Msg(); m.Tag() != ninepproto.NoTag {
			c.enc.Rerror(m.Tag(), "need Tversion")
		}
		return ErrProtocol
	}
	c.srv.tracef("→ %s", tv)

	msize := c.srv.msize()
	if peer := int64(tv.Msize()); peer < msize {
		if peer < ninepproto.MinMsize {
			c.enc.Rversion(uint32(msize), "unknown")
			return ErrMsize
		}
		msize = peer
	}
	if !bytes.HasPrefix(tv.Version(), []byte("9P2000")) {
		c.enc.Rversion(uint32(msize), "unknown")
		return ErrVersion
	}
	c.MaxSize = msize
	c.enc.MaxSize = msize
	c.enc.Rversion(uint32(msize), "9P2000")
	if err := c.enc.Err(); err != nil {
		return err
	}

	authed := false
	for {
		if !c.Next() {
			return c.readErr()
		}
		switch m := c.Msg().(type) {
		case ninepproto.Tauth:
			c.srv.tracef("→ %s", m)
			authed = c.auth(m)
		case ninepproto.Twalk, ninepproto.Topen, ninepproto.Tread,
			ninepproto.Twrite, ninepproto.Tclunk, ninepproto.Tstat,
			ninepproto.Twstat:
			// the authentication protocol is carried out with
			// ordinary I/O on the afid before the attach
			if !authed {
				c.enc.Rerror(m.Tag(), "need Tattach")
				return ErrProtocol
			}
			c.srv.tracef("→ %s", m)
			c.dispatch(m)
		case ninepproto.Tflush:
			c.srv.tracef("→ %s", m)
			c.flush(m)
		case ninepproto.Tattach:
			c.srv.tracef("→ %s", m)
			qid, err := c.attach(string(m.Uname()), string(m.Aname()))
			if err != nil {
				c.enc.Rerror(m.Tag(), "%s", err)
				return ErrProtocol
			}
			c.info = &ConnInfo{
				RootFid: m.Fid(),
				Version: "9P2000",
				Uname:   string(m.Uname()),
				Aname:   string(m.Aname()),
				Msize:   uint32(msize),
			}
			c.enc.Rattach(m.Tag(), qid)
			return c.enc.Err()
		case ninepproto.BadMessage:
			if m.Tag() != ninepproto.NoTag {
				c.enc.Rerror(m.Tag(), "bad message: %s", m.Err)
			}
			return ErrProtocol
		default:
			c.enc.Rerror(m.Tag(), "need Tattach")
			return ErrProtocol
		}
		if err := c.enc.Err(); err != nil {
			return err
		}
	}
}

func (c *conn) auth(m ninepproto.Tauth) bool {
	if c.srv.Auth == nil {
		c.enc.Rerror(m.Tag(), "authentication not required")
		return false
	}
	qid, err := c.srv.Auth(m.Afid(), string(m.Uname()), string(m.Aname()))
	if err != nil {
		c.enc.Rerror(m.Tag(), "%s", err)
		return false
	}
	c.enc.Rauth(m.Tag(), qid)
	return true
}

func (c *conn) attach(uname, aname string) (ninepproto.Qid, error) {
	if c.srv.Attach != nil {
		return c.srv.Attach(uname, aname)
	}
	return c.qids.LoadOrStore(aname, ninepproto.QTDIR), nil
}

// serve is the dispatch loop for an attached connection. Requests
// are handled concurrently; the loop continues reading while
// handlers run, and handlers write their responses through the
// shared encoder.
func (c *conn) serve() error {
	for atomic.LoadUint32(&c.shutdown) == 0 && c.Next() {
		switch m := c.Msg().(type) {
		case ninepproto.BadMessage:
			// The body could not be parsed, but the frame carried a
			// usable tag; report and carry on.
			c.srv.tracef("→ %s", m)
			if m.Tag() == ninepproto.NoTag {
				c.srv.logf("9p: unrecoverable bad message: %s", m.Err)
				return ErrProtocol
			}
			c.enc.Rerror(m.Tag(), "bad message: %s", m.Err)
		case ninepproto.Tflush:
			c.srv.tracef("→ %s", m)
			c.flush(m)
		case ninepproto.Tauth:
			c.srv.tracef("→ %s", m)
			c.auth(m)
		case ninepproto.Tattach:
			// An additional attach introduces another session on
			// the same connection. Connection-wide parameters do
			// not change.
			c.srv.tracef("→ %s", m)
			qid, err := c.attach(string(m.Uname()), string(m.Aname()))
			if err != nil {
				c.enc.Rerror(m.Tag(), "%s", err)
				break
			}
			c.enc.Rattach(m.Tag(), qid)
		case ninepproto.Twalk, ninepproto.Topen, ninepproto.Tcreate,
			ninepproto.Tread, ninepproto.Twrite, ninepproto.Tclunk,
			ninepproto.Tremove, ninepproto.Tstat, ninepproto.Twstat:
			c.srv.tracef("→ %s", m)
			c.dispatch(m)
		default:
			// R-messages from a client, or a repeated Tversion
			if m.Tag() != ninepproto.NoTag {
				c.enc.Rerror(m.Tag(), "unexpected message")
			}
			return ErrProtocol
		}
		if err := c.enc.Err(); err != nil {
			return err
		}
	}
	return c.readErr()
}

// dispatch runs the handler for a single transaction in its own
// goroutine. The message is copied first; the decoder's buffer is
// reused as soon as the loop fetches the next message.
func (c *conn) dispatch(m ninepproto.Msg) {
	tag := m.Tag()
	ctx, cancel := context.WithCancel(context.Background())
	if !c.pending.Add(tag, cancel) {
		cancel()
		c.enc.Rerror(tag, "tag %d already in use", tag)
		return
	}
	m = ninepproto.Copy(m)

	go func() {
		defer cancel()
		resp, err := c.handle(ctx, m)

		// The reply is only written if the transaction is still
		// wanted; a flush may have retired the tag already. The
		// write happens under the pending-table lock so that it
		// cannot land on the wire after the Rflush that retires it.
		c.pending.Do(func(pending map[interface{}]interface{}) {
			if _, ok := pending[tag]; !ok {
				return
			}
			delete(pending, tag)
			if atomic.LoadUint32(&c.shutdown) != 0 {
				return
			}
			switch {
			case err != nil:
				c.enc.Rerror(tag, "%s", err)
			case resp == nil:
				c.enc.Rerror(tag, "no response")
			case resp.Tag() != tag:
				c.srv.logf("9p: handler response tag %d does not match request tag %d",
					resp.Tag(), tag)
				c.enc.Rerror(tag, "internal server error")
			default:
				c.srv.tracef("← %s", resp)
				c.enc.WriteMsg(resp)
			}
		})
	}()
}

func (c *conn) handle(ctx context.Context, m ninepproto.Msg) (resp ninepproto.Msg, err error) {
	defer func() {
		if r := recover(); r != nil {
			c.srv.logf("9p: panic handling %s: %v", m, r)
			resp, err = nil, errHandlerPanic
		}
	}()
	if c.srv.Handler == nil {
		return nil, errNotImplemented
	}
	return c.srv.Handler.Serve9P(ctx, c.info, m)
}

// flush retires the transaction named by oldtag. The pending entry
// is removed and the Rflush written under the same lock the
// completion path writes responses under, guaranteeing that no
// response for oldtag follows the Rflush on the wire.
func (c *conn) flush(m ninepproto.Tflush) {
	c.pending.Do(func(pending map[interface{}]interface{}) {
		if v, ok := pending[m.Oldtag()]; ok {
			delete(pending, m.Oldtag())
			v.(context.CancelFunc)()
		}
		c.enc.Rflush(m.Tag())
	})
}
