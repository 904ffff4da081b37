package ninep

import "errors"

var (
	// ErrVersion is returned when the remote side does not speak a
	// version of the 9P2000 protocol.
	ErrVersion = errors.New("9P2000 not supported by remote")

	// ErrMsize is returned during version negotiation when the
	// remote side proposes or echoes an unusable maximum message
	// size.
	ErrMsize = errors.New("unusable msize in version negotiation")

	// ErrTagsBusy is returned by client calls when every tag is
	// attached to an outstanding transaction.
	ErrTagsBusy = errors.New("all tags in use")

	// ErrFidsBusy is returned when every fid is in use.
	ErrFidsBusy = errors.New("all fids in use")

	// ErrConnClosed is returned for calls made on a closed
	// connection.
	ErrConnClosed = errors.New("connection closed")

	// ErrProtocol is returned when the remote side violates the
	// protocol state machine, such as sending file I/O requests
	// before an attach.
	ErrProtocol = errors.New("protocol violation")

	errNotImplemented = errors.New("operation not supported")
	errHandlerPanic   = errors.New("internal server error")
)
