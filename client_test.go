package ninep

import (
	"context"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"aqwari.net/net/ninep/internal/netutil"
	"aqwari.net/net/ninep/ninepproto"
)

// startPair serves srv on an in-process listener and returns an
// attached client connection to it.
func startPair(t *testing.T, srv *Server, cl *Client) *Conn {
	t.Helper()
	if srv.ErrorLog == nil {
		srv.ErrorLog = testLogger{t}
	}
	if cl.ErrorLog == nil {
		cl.ErrorLog = testLogger{t}
	}

	ln := new(netutil.PipeListener)
	go srv.Serve(ln)

	rwc, err := ln.Dial()
	if err != nil {
		t.Fatal(err)
	}
	conn, err := cl.NewConn(rwc, "glenda", "")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		conn.Close()
		ln.Close()
	})
	return conn
}

func TestClientHandshake(t *testing.T) {
	conn := startPair(t, &Server{Handler: testFS{}}, &Client{})

	info := conn.Info()
	if info.Version != "9P2000" {
		t.Errorf("version = %q", info.Version)
	}
	if info.Msize != ninepproto.DefaultMaxSize {
		t.Errorf("msize = %d, want %d", info.Msize, ninepproto.DefaultMaxSize)
	}
	if info.Uname != "glenda" {
		t.Errorf("uname = %q", info.Uname)
	}
	if info.RootFid != conn.Root() {
		t.Errorf("root fid = %d, Root() = %d", info.RootFid, conn.Root())
	}
}

// The negotiated msize is the smaller of the two proposals.
func TestClientMsize(t *testing.T) {
	conn := startPair(t, &Server{Handler: testFS{}, MaxSize: 4096}, &Client{MaxSize: 8192})
	if got := conn.Info().Msize; got != 4096 {
		t.Errorf("msize = %d, want 4096", got)
	}
}

func TestClientSession(t *testing.T) {
	conn := startPair(t, &Server{Handler: testFS{}}, &Client{})
	ctx := context.Background()

	fid, qids, err := conn.Walk(ctx, conn.Root(), "motd")
	if err != nil {
		t.Fatal(err)
	}
	if len(qids) != 1 {
		t.Fatalf("walked %d elements, wanted 1", len(qids))
	}

	if _, _, err := conn.Open(ctx, fid, ninepproto.OREAD); err != nil {
		t.Fatal(err)
	}

	data, err := conn.Read(ctx, fid, 0, 512)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != motd {
		t.Errorf("read %q, want %q", data, motd)
	}

	n, err := conn.Write(ctx, fid, 0, []byte("new content"))
	if err != nil {
		t.Fatal(err)
	}
	if n != len("new content") {
		t.Errorf("wrote %d bytes, want %d", n, len("new content"))
	}

	stat, err := conn.Stat(ctx, fid)
	if err != nil {
		t.Fatal(err)
	}
	if string(stat.Name()) != "motd" {
		t.Errorf("stat name = %q", stat.Name())
	}

	if err := conn.Wstat(ctx, fid, stat); err != nil {
		t.Fatal(err)
	}
	if err := conn.Clunk(ctx, fid); err != nil {
		t.Fatal(err)
	}

	fid2, _, err := conn.Walk(ctx, conn.Root(), "motd")
	if err != nil {
		t.Fatal(err)
	}
	if err := conn.Remove(ctx, fid2); err != nil {
		t.Fatal(err)
	}
}

// A write larger than the negotiated msize is split into several
// Twrite transactions.
func TestClientWriteChunking(t *testing.T) {
	var (
		mu     sync.Mutex
		writes int
	)
	handler := HandlerFunc(func(ctx context.Context, info *ConnInfo, m ninepproto.Msg) (ninepproto.Msg, error) {
		buf := make([]byte, ninepproto.MinBufSize)
		if w, ok := m.(ninepproto.Twrite); ok {
			mu.Lock()
			writes++
			mu.Unlock()
			r, _, err := ninepproto.NewRwrite(buf, m.Tag(), w.Count())
			return r, err
		}
		return testFS{}.Serve9P(ctx, info, m)
	})
	conn := startPair(t, &Server{Handler: handler}, &Client{})

	data := make([]byte, int(conn.Info().Msize)*2)
	n, err := conn.Write(context.Background(), conn.Root(), 0, data)
	if err != nil {
		t.Fatal(err)
	}
	if n != len(data) {
		t.Errorf("wrote %d bytes, want %d", n, len(data))
	}
	mu.Lock()
	defer mu.Unlock()
	if writes < 2 {
		t.Errorf("payload sent in %d writes, wanted several", writes)
	}
}

// Fifty concurrent calls must produce fifty distinct resolutions.
func TestClientConcurrent(t *testing.T) {
	conn := startPair(t, &Server{Handler: testFS{}}, &Client{})
	ctx := context.Background()

	const N = 50
	var wg sync.WaitGroup
	errs := make([]error, N)
	for i := 0; i < N; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			stat, err := conn.Stat(ctx, conn.Root())
			if err == nil && string(stat.Name()) != "motd" {
				err = errors.New("bad stat payload")
			}
			errs[i] = err
		}(i)
	}
	wg.Wait()
	for i, err := range errs {
		if err != nil {
			t.Errorf("call %d: %v", i, err)
		}
	}
}

// Cancelling a pending call triggers the Tflush exchange; the call
// resolves as cancelled once the Rflush arrives, and its tag becomes
// reusable.
func TestClientCancel(t *testing.T) {
	reading := make(chan struct{}, 1)
	handler := HandlerFunc(func(ctx context.Context, info *ConnInfo, m ninepproto.Msg) (ninepproto.Msg, error) {
		if _, ok := m.(ninepproto.Tread); ok {
			reading <- struct{}{}
			<-ctx.Done()
			return nil, ctx.Err()
		}
		return testFS{}.Serve9P(ctx, info, m)
	})
	conn := startPair(t, &Server{Handler: handler}, &Client{})

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() {
		_, err := conn.Read(ctx, conn.Root(), 0, 128)
		errc <- err
	}()

	<-reading
	cancel()

	select {
	case err := <-errc:
		if err != context.Canceled {
			t.Errorf("cancelled read resolved with %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("cancelled call did not resolve")
	}

	// the connection and the freed tag remain usable
	if _, err := conn.Stat(context.Background(), conn.Root()); err != nil {
		t.Errorf("connection unusable after cancel: %v", err)
	}
}

// An Rerror response resolves the call as an error carrying the
// server's ename.
func TestClientError(t *testing.T) {
	handler := HandlerFunc(func(ctx context.Context, info *ConnInfo, m ninepproto.Msg) (ninepproto.Msg, error) {
		return nil, errors.New("no such file")
	})
	conn := startPair(t, &Server{Handler: handler}, &Client{})

	_, err := conn.Stat(context.Background(), conn.Root())
	if err == nil {
		t.Fatal("expected an error")
	}
	if err.Error() != "no such file" {
		t.Errorf("error = %q, want server's ename", err)
	}
	if _, ok := err.(ninepproto.Rerror); !ok {
		t.Errorf("error has type %T, want ninepproto.Rerror", err)
	}
}

// A server that does not speak 9P2000 fails the handshake.
func TestClientVersionRejected(t *testing.T) {
	client, server := net.Pipe()
	go func() {
		d := ninepproto.NewDecoder(server)
		enc := ninepproto.NewEncoder(server)
		if d.Next() {
			enc.Rversion(ninepproto.DefaultMaxSize, "unknown")
		}
		server.Close()
	}()

	cl := &Client{ErrorLog: testLogger{t}}
	if _, err := cl.NewConn(client, "glenda", ""); err != ErrVersion {
		t.Errorf("got error %v, wanted ErrVersion", err)
	}
}

// Closing the connection resolves outstanding calls.
func TestClientClose(t *testing.T) {
	reading := make(chan struct{}, 1)
	handler := HandlerFunc(func(ctx context.Context, info *ConnInfo, m ninepproto.Msg) (ninepproto.Msg, error) {
		if _, ok := m.(ninepproto.Tread); ok {
			reading <- struct{}{}
			<-ctx.Done()
			return nil, ctx.Err()
		}
		return testFS{}.Serve9P(ctx, info, m)
	})
	conn := startPair(t, &Server{Handler: handler}, &Client{})

	errc := make(chan error, 1)
	go func() {
		_, err := conn.Read(context.Background(), conn.Root(), 0, 128)
		errc <- err
	}()
	<-reading
	conn.Close()

	select {
	case err := <-errc:
		if err == nil {
			t.Error("outstanding call resolved without error on close")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("outstanding call did not resolve on close")
	}
}

// The opaque afid exchange: the Auth hook reads a challenge from the
// authentication file before the attach proceeds.
func TestClientAuth(t *testing.T) {
	srv := &Server{
		Handler: HandlerFunc(func(ctx context.Context, info *ConnInfo, m ninepproto.Msg) (ninepproto.Msg, error) {
			buf := make([]byte, ninepproto.MinBufSize)
			if r, ok := m.(ninepproto.Tread); ok {
				rr, _, err := ninepproto.NewRread(buf, r.Tag(), []byte("challenge"))
				return rr, err
			}
			return testFS{}.Serve9P(ctx, info, m)
		}),
		Auth: func(afid uint32, uname, aname string) (ninepproto.Qid, error) {
			return fileQid(ninepproto.QTAUTH, 999), nil
		},
	}
	var got string
	cl := &Client{
		Auth: func(ctx context.Context, c *Conn, afid uint32, uname, aname string) error {
			data, err := c.Read(ctx, afid, 0, 64)
			got = string(data)
			return err
		},
	}
	startPair(t, srv, cl)
	if got != "challenge" {
		t.Errorf("auth read %q, want %q", got, "challenge")
	}
}
