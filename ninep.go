// Package ninep implements the server and client halves of a 9P2000
// connection.
//
// The ninep package handles the protocol-level concerns of a 9P
// endpoint: version and attach negotiation, multiplexing of tagged
// transactions over a single byte stream, cancellation via Tflush,
// and orderly shutdown. Parsing and producing individual messages is
// delegated to the ninepproto package; what the messages mean for a
// file tree is delegated to a Handler, so that the package can serve
// any filesystem-like backend.
package ninep

import (
	"context"

	"aqwari.net/net/ninep/ninepproto"
)

// Types implementing the Logger interface can receive diagnostic
// information during the operation of a server or client. The Logger
// interface is implemented by *log.Logger.
type Logger interface {
	Printf(format string, v ...interface{})
}

// ConnInfo records the parameters negotiated when a connection was
// established. It is immutable once the attach handshake completes.
type ConnInfo struct {
	// RootFid is the fid of the root of the file tree, chosen by
	// the client in its Tattach request.
	RootFid uint32

	// Version is the negotiated protocol version, currently always
	// "9P2000".
	Version string

	// Uname is the user name presented in the Tattach request.
	Uname string

	// Aname is the name of the file tree the client attached to.
	// It may be empty.
	Aname string

	// Msize is the negotiated maximum message size. Neither side
	// may send, nor need accept, a longer message.
	Msize uint32
}

// A Handler services individual 9P transactions on a server
// connection. Serve9P receives a T-message and produces the matching
// R-message, built with the same tag, or an error; when an error is
// returned, its message is relayed to the client in an Rerror
// response.
//
// Serve9P may be called concurrently for different tags on the same
// connection. The context is cancelled if the client flushes the
// transaction; a handler is free to ignore the cancellation, in
// which case its response is discarded.
//
// During the authentication exchange that precedes an attach, info
// is nil. Once a Tauth has succeeded, walk, open, read, write,
// clunk, stat and wstat requests reach a handler that early; their
// fids are not checked against the afid.
type Handler interface {
	Serve9P(ctx context.Context, info *ConnInfo, msg ninepproto.Msg) (ninepproto.Msg, error)
}

// HandlerFunc is an adapter to allow the use of ordinary functions
// as 9P handlers.
type HandlerFunc func(ctx context.Context, info *ConnInfo, msg ninepproto.Msg) (ninepproto.Msg, error)

func (f HandlerFunc) Serve9P(ctx context.Context, info *ConnInfo, msg ninepproto.Msg) (ninepproto.Msg, error) {
	return f(ctx, info, msg)
}
