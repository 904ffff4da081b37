package ninep

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"time"

	"aqwari.net/net/ninep/internal/pool"
	"aqwari.net/net/ninep/internal/threadsafe"
	"aqwari.net/net/ninep/ninepproto"
	"aqwari.net/retry"
)

// DefaultClient is the Client used by the top-level Dial function.
var DefaultClient = &Client{}

// A Client is a 9P client, used to make remote requests to a 9P
// server. The zero value of a Client is a usable 9P client that uses
// default settings chosen by the ninep package.
type Client struct {
	// The maximum size of a single 9P message the client will
	// propose during version negotiation. When working with very
	// large files, a larger MaxSize can reduce protocol overhead.
	// Because a remote server may choose to set a smaller maximum
	// size, increasing MaxSize may have no effect with certain
	// servers. If zero, DefaultMaxSize is used.
	MaxSize uint32

	// Timeout specifies the amount of time to wait for a response
	// from the server on each call. If zero, calls wait until their
	// context is done, or forever.
	Timeout time.Duration

	// Auth, if non-nil, is run before the attach handshake to
	// authenticate the user. The ninep package establishes the
	// authentication file; the function carries out whatever
	// protocol the server requires by reading and writing afid, and
	// the contents of that exchange are opaque to the package.
	Auth func(ctx context.Context, c *Conn, afid uint32, uname, aname string) error

	// ErrorLog receives diagnostics about dropped messages and
	// failed connections. If nil, diagnostics are discarded.
	ErrorLog Logger

	// TraceLog, if non-nil, receives a line for every 9P message
	// received from the server.
	TraceLog Logger
}

func (c *Client) logf(format string, v ...interface{}) {
	if c.ErrorLog != nil {
		c.ErrorLog.Printf(format, v...)
	}
}

func (c *Client) tracef(format string, v ...interface{}) {
	if c.TraceLog != nil {
		c.TraceLog.Printf(format, v...)
	}
}

func (c *Client) msize() int64 {
	if c.MaxSize >= ninepproto.MinMsize {
		return int64(c.MaxSize)
	}
	return ninepproto.DefaultMaxSize
}

// Dial connects to a 9P server at addr using DefaultClient, and
// attaches to the file tree aname as user uname.
func Dial(network, addr, uname, aname string) (*Conn, error) {
	return DefaultClient.Dial(network, addr, uname, aname)
}

// Dial connects to a 9P server at addr and performs the version and
// attach handshake. Temporary network errors during dialing are
// retried with exponential backoff.
func (c *Client) Dial(network, addr, uname, aname string) (*Conn, error) {
	type tempErr interface {
		Temporary() bool
	}
	backoff := retry.Exponential(10 * time.Millisecond).Max(2 * time.Second)

	for try := 0; ; try++ {
		rwc, err := net.Dial(network, addr)
		if err == nil {
			return c.NewConn(rwc, uname, aname)
		}
		if e, ok := err.(tempErr); !ok || !e.Temporary() || try >= 4 {
			return nil, err
		}
		time.Sleep(backoff(try))
	}
}

// A Conn is the client half of a 9P connection in its RUNNING state:
// the version and attach handshake has completed, and tagged
// transactions may be issued concurrently from multiple goroutines.
type Conn struct {
	cl  *Client
	dec *ninepproto.Decoder
	enc *ninepproto.Encoder
	rwc io.ReadWriteCloser

	info ConnInfo

	tags pool.TagPool
	fids pool.FidPool

	// in-flight transactions: tag → chan result
	pending *threadsafe.Map

	// closed when the read loop exits; cerr holds the reason
	closed chan struct{}
	cerr   error
}

type result struct {
	msg ninepproto.Msg
	err error
}

// NewConn establishes a 9P session over rwc, negotiating the
// protocol version and attaching to the file tree aname as user
// uname. On success the returned Conn is ready for concurrent use;
// rwc must not be used by the caller afterwards.
func (c *Client) NewConn(rwc io.ReadWriteCloser, uname, aname string) (*Conn, error) {
	msize := c.msize()
	conn := &Conn{
		cl:      c,
		dec:     newDecoder(rwc, msize),
		enc:     ninepproto.NewEncoder(rwc),
		rwc:     rwc,
		pending: threadsafe.NewMap(),
		closed:  make(chan struct{}),
	}

	// The version exchange happens before the read loop starts;
	// there can be nothing else on the wire yet.
	conn.enc.Tversion(uint32(msize), "9P2000")
	if err := conn.enc.Err(); err != nil {
		rwc.Close()
		return nil, err
	}
	if !conn.dec.Next() {
		rwc.Close()
		if err := conn.dec.Err(); err != nil {
			return nil, err
		}
		return nil, io.ErrUnexpectedEOF
	}
	rv, ok := conn.dec.Msg().(ninepproto.Rversion)
	if !ok {
		rwc.Close()
		return nil, ErrProtocol
	}
	c.tracef("← %s", rv)
	if !bytes.Equal(rv.Version(), []byte("9P2000")) {
		rwc.Close()
		return nil, ErrVersion
	}
	if peer := int64(rv.Msize()); peer > msize || peer < ninepproto.MinMsize {
		rwc.Close()
		return nil, ErrMsize
	} else {
		msize = peer
	}
	conn.dec.MaxSize = msize
	conn.enc.MaxSize = msize
	conn.info.Version = "9P2000"
	conn.info.Msize = uint32(msize)

	go conn.run()

	if err := conn.attach(uname, aname); err != nil {
		conn.teardown(err)
		return nil, err
	}
	return conn, nil
}

// attach allocates the root fid and performs the optional auth
// exchange followed by Tattach.
func (conn *Conn) attach(uname, aname string) error {
	ctx := context.Background()
	rootfid, ok := conn.fids.Get()
	if !ok {
		return ErrFidsBusy
	}

	afid := ninepproto.NoFid
	if conn.cl.Auth != nil {
		afid, ok = conn.fids.Get()
		if !ok {
			return ErrFidsBusy
		}
		resp, err := conn.call(ctx, func(tag uint16) error {
			conn.enc.Tauth(tag, afid, uname, aname)
			return conn.enc.Err()
		})
		if err != nil {
			return err
		}
		if _, ok := resp.(ninepproto.Rauth); !ok {
			return fmt.Errorf("unexpected %T response to Tauth", resp)
		}
		if err := conn.cl.Auth(ctx, conn, afid, uname, aname); err != nil {
			return err
		}
	}

	resp, err := conn.call(ctx, func(tag uint16) error {
		conn.enc.Tattach(tag, rootfid, afid, uname, aname)
		return conn.enc.Err()
	})
	if err != nil {
		return err
	}
	if _, ok := resp.(ninepproto.Rattach); !ok {
		return fmt.Errorf("unexpected %T response to Tattach", resp)
	}
	conn.info.RootFid = rootfid
	conn.info.Uname = uname
	conn.info.Aname = aname
	return nil
}

// Info returns the parameters negotiated when the connection was
// established.
func (conn *Conn) Info() ConnInfo {
	return conn.info
}

// Root returns the fid of the root of the attached file tree.
func (conn *Conn) Root() uint32 {
	return conn.info.RootFid
}

// run is the read loop: it decodes one message at a time and routes
// each to the transaction awaiting its tag. It exits when the stream
// ends, failing every outstanding transaction.
func (conn *Conn) run() {
	for conn.dec.Next() {
		m := conn.dec.Msg()
		conn.cl.tracef("← %s", m)
		if bad, ok := m.(ninepproto.BadMessage); ok {
			// a malformed response spoils one transaction at most;
			// the stream itself is still aligned
			conn.cl.logf("9p: dropping bad message: %v", bad.Err)
			continue
		}
		v, ok := conn.pending.Del(m.Tag())
		if !ok {
			conn.cl.logf("9p: dropping %T response for unknown tag %d", m, m.Tag())
			continue
		}
		v.(chan result) <- result{msg: ninepproto.Copy(m)}
	}
	err := conn.dec.Err()
	if err == nil {
		err = ErrConnClosed
	}
	conn.teardown(err)
	putDecoder(conn.dec)
}

// teardown closes the connection and resolves every outstanding
// call with err.
func (conn *Conn) teardown(err error) {
	select {
	case <-conn.closed:
	default:
		conn.cerr = err
		close(conn.closed)
		conn.rwc.Close()
	}
	conn.pending.Do(func(m map[interface{}]interface{}) {
		for tag, v := range m {
			v.(chan result) <- result{err: err}
			delete(m, tag)
		}
	})
}

// Close clunks the root fid and closes the underlying transport. Any
// outstanding calls resolve with ErrConnClosed.
func (conn *Conn) Close() error {
	select {
	case <-conn.closed:
		return conn.cerr
	default:
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	conn.Clunk(ctx, conn.info.RootFid)
	cancel()
	conn.teardown(ErrConnClosed)
	return nil
}

// call issues a single transaction: it allocates a tag, registers
// the transaction, emits the request with send, and waits for the
// response. An Rerror response resolves the call as an error. If ctx
// ends first, the transaction is flushed per the protocol before the
// tag is reused.
func (conn *Conn) call(ctx context.Context, send func(tag uint16) error) (ninepproto.Msg, error) {
	if t := conn.cl.Timeout; t > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t)
		defer cancel()
	}

	tag, ok := conn.tags.Get()
	if !ok {
		return nil, ErrTagsBusy
	}
	ch := make(chan result, 1)
	conn.pending.Put(tag, ch)

	if err := send(tag); err != nil {
		conn.pending.Del(tag)
		conn.tags.Free(tag)
		return nil, err
	}

	select {
	case r := <-ch:
		conn.tags.Free(tag)
		if r.err != nil {
			return nil, r.err
		}
		if rerr, ok := r.msg.(ninepproto.Rerror); ok {
			return nil, rerr
		}
		return r.msg, nil
	case <-ctx.Done():
		conn.cancel(tag, ch)
		return nil, ctx.Err()
	case <-conn.closed:
		conn.pending.Del(tag)
		conn.tags.Free(tag)
		return nil, conn.cerr
	}
}

// cancel aborts the transaction registered under tag with a Tflush
// exchange. The server guarantees no response for tag after it
// replies to the flush; only then is the tag released for reuse.
func (conn *Conn) cancel(tag uint16, ch chan result) {
	ftag, ok := conn.tags.Get()
	if ok {
		fch := make(chan result, 1)
		conn.pending.Put(ftag, fch)
		conn.enc.Tflush(ftag, tag)
		if err := conn.enc.Err(); err != nil {
			conn.pending.Del(ftag)
		} else {
			select {
			case <-fch:
			case <-conn.closed:
			}
		}
		conn.tags.Free(ftag)
	}
	conn.pending.Del(tag)
	conn.tags.Free(tag)
	// a response may have raced ahead of the flush; drop it
	select {
	case <-ch:
	default:
	}
}

// Walk performs a walk from fid through the named path elements,
// returning a new fid for the reached file along with the qids of
// every element crossed. With no names, Walk clones fid.
func (conn *Conn) Walk(ctx context.Context, fid uint32, names ...string) (uint32, []ninepproto.Qid, error) {
	newfid, ok := conn.fids.Get()
	if !ok {
		return ninepproto.NoFid, nil, ErrFidsBusy
	}
	resp, err := conn.call(ctx, func(tag uint16) error {
		return conn.enc.Twalk(tag, fid, newfid, names...)
	})
	if err != nil {
		conn.fids.Free(newfid)
		return ninepproto.NoFid, nil, err
	}
	rw, ok := resp.(ninepproto.Rwalk)
	if !ok {
		conn.fids.Free(newfid)
		return ninepproto.NoFid, nil, fmt.Errorf("unexpected %T response to Twalk", resp)
	}
	if rw.Nwqid() != len(names) {
		// partial walk; newfid was not established
		conn.fids.Free(newfid)
		return ninepproto.NoFid, nil, fmt.Errorf("walk stopped after %d of %d elements",
			rw.Nwqid(), len(names))
	}
	qids := make([]ninepproto.Qid, rw.Nwqid())
	for i := range qids {
		qids[i] = rw.Wqid(i)
	}
	return newfid, qids, nil
}

// Open prepares fid for I/O, returning the file's qid and the
// maximum number of bytes guaranteed to be transferred in a single
// read or write message. An iounit of zero means the transfer limit
// is msize minus the message overhead.
func (conn *Conn) Open(ctx context.Context, fid uint32, mode uint8) (ninepproto.Qid, uint32, error) {
	resp, err := conn.call(ctx, func(tag uint16) error {
		conn.enc.Topen(tag, fid, mode)
		return conn.enc.Err()
	})
	if err != nil {
		return nil, 0, err
	}
	ro, ok := resp.(ninepproto.Ropen)
	if !ok {
		return nil, 0, fmt.Errorf("unexpected %T response to Topen", resp)
	}
	return ro.Qid(), ro.IOunit(), nil
}

// Create creates a file named name in the directory fid, and opens
// it with the given mode. On success, fid points at the new file.
func (conn *Conn) Create(ctx context.Context, fid uint32, name string, perm uint32, mode uint8) (ninepproto.Qid, uint32, error) {
	resp, err := conn.call(ctx, func(tag uint16) error {
		conn.enc.Tcreate(tag, fid, name, perm, mode)
		return conn.enc.Err()
	})
	if err != nil {
		return nil, 0, err
	}
	rc, ok := resp.(ninepproto.Rcreate)
	if !ok {
		return nil, 0, fmt.Errorf("unexpected %T response to Tcreate", resp)
	}
	return rc.Qid(), rc.IOunit(), nil
}

// Read reads up to count bytes from fid at offset. The count is
// clamped so the response fits within the negotiated msize; callers
// reading large files should loop. A read at end of file returns a
// zero-length slice and no error.
func (conn *Conn) Read(ctx context.Context, fid uint32, offset uint64, count uint32) ([]byte, error) {
	if max := conn.info.Msize - rreadOverhead; count > max {
		count = max
	}
	resp, err := conn.call(ctx, func(tag uint16) error {
		return conn.enc.Tread(tag, fid, int64(offset), int64(count))
	})
	if err != nil {
		return nil, err
	}
	rr, ok := resp.(ninepproto.Rread)
	if !ok {
		return nil, fmt.Errorf("unexpected %T response to Tread", resp)
	}
	return rr.Data(), nil
}

// Write writes data to fid at offset. Payloads larger than the
// negotiated msize allows are split across multiple Twrite
// transactions. Write returns the number of bytes the server
// accepted.
func (conn *Conn) Write(ctx context.Context, fid uint32, offset uint64, data []byte) (int, error) {
	max := int(conn.info.Msize - twriteOverhead)
	var n int
	for first := true; first || len(data) > 0; first = false {
		chunk := data
		if len(chunk) > max {
			chunk = chunk[:max]
		}
		resp, err := conn.call(ctx, func(tag uint16) error {
			_, werr := conn.enc.Twrite(tag, fid, int64(offset)+int64(n), chunk)
			return werr
		})
		if err != nil {
			return n, err
		}
		rw, ok := resp.(ninepproto.Rwrite)
		if !ok {
			return n, fmt.Errorf("unexpected %T response to Twrite", resp)
		}
		n += int(rw.Count())
		if int(rw.Count()) < len(chunk) {
			// short write; the server stopped early
			return n, io.ErrShortWrite
		}
		data = data[len(chunk):]
	}
	return n, nil
}

// Clunk releases fid on the server. The fid is forgotten by the
// client even if the server reports an error.
func (conn *Conn) Clunk(ctx context.Context, fid uint32) error {
	defer conn.fids.Free(fid)
	resp, err := conn.call(ctx, func(tag uint16) error {
		conn.enc.Tclunk(tag, fid)
		return conn.enc.Err()
	})
	if err != nil {
		return err
	}
	if _, ok := resp.(ninepproto.Rclunk); !ok {
		return fmt.Errorf("unexpected %T response to Tclunk", resp)
	}
	return nil
}

// Remove removes the file fid points at, and clunks fid. As with
// Clunk, the fid is forgotten even if the removal fails.
func (conn *Conn) Remove(ctx context.Context, fid uint32) error {
	defer conn.fids.Free(fid)
	resp, err := conn.call(ctx, func(tag uint16) error {
		conn.enc.Tremove(tag, fid)
		return conn.enc.Err()
	})
	if err != nil {
		return err
	}
	if _, ok := resp.(ninepproto.Rremove); !ok {
		return fmt.Errorf("unexpected %T response to Tremove", resp)
	}
	return nil
}

// Stat retrieves the directory entry describing the file fid points
// at.
func (conn *Conn) Stat(ctx context.Context, fid uint32) (ninepproto.Stat, error) {
	resp, err := conn.call(ctx, func(tag uint16) error {
		conn.enc.Tstat(tag, fid)
		return conn.enc.Err()
	})
	if err != nil {
		return nil, err
	}
	rs, ok := resp.(ninepproto.Rstat)
	if !ok {
		return nil, fmt.Errorf("unexpected %T response to Tstat", resp)
	}
	return rs.Stat(), nil
}

// Wstat updates the directory entry for the file fid points at.
// Fields of stat set to their maximum ("don't touch") values are
// left unchanged by the server.
func (conn *Conn) Wstat(ctx context.Context, fid uint32, stat ninepproto.Stat) error {
	resp, err := conn.call(ctx, func(tag uint16) error {
		conn.enc.Twstat(tag, fid, stat)
		return conn.enc.Err()
	})
	if err != nil {
		return err
	}
	if _, ok := resp.(ninepproto.Rwstat); !ok {
		return fmt.Errorf("unexpected %T response to Twstat", resp)
	}
	return nil
}

// Message overhead of the fixed fields in Rread and Twrite frames.
const (
	rreadOverhead  = 11
	twriteOverhead = 23
)
