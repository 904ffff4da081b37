package ninepproto

import (
	"bufio"
	"errors"
	"io"
)

var (
	errFillOverflow = errors.New("cannot fill buffer past maxInt")
)

const maxInt = int(^uint(0) >> 1)

// Design goals of the parser:
//   - minimize allocations
//   - resilient to malicious input (invalid/overlarge sizes)
//   - bounded memory: one fixed-size buffer per connection

// NewDecoder returns a Decoder with an internal buffer of size
// DefaultBufSize.
func NewDecoder(r io.Reader) *Decoder {
	return NewDecoderSize(r, DefaultBufSize)
}

// NewDecoderSize returns a Decoder with an internal buffer of size
// max(MinBufSize, bufsize) bytes. The buffer bounds the size of a
// single message; a Decoder for a negotiated connection should use a
// buffer at least as large as the connection's msize.
func NewDecoderSize(r io.Reader, bufsize int) *Decoder {
	if bufsize < MinBufSize {
		bufsize = MinBufSize
	}
	return &Decoder{
		r:       r,
		br:      bufio.NewReaderSize(r, bufsize),
		bufsize: bufsize,
		MaxSize: -1,
	}
}

// A Decoder provides an interface for reading a stream of 9P
// messages from an io.Reader. Successive calls to the Next method of
// a Decoder will fetch and validate 9P messages from the input
// stream, until EOF is encountered, or another error is encountered.
//
// A Decoder is not safe for concurrent use. Usage of any Decoder
// method should be delegated to a single thread of execution or
// protected by a mutex.
type Decoder struct {
	// MaxSize is the maximum size message that a Decoder will accept.
	// If MaxSize is -1, a Decoder will accept any message that fits
	// within its buffer. Should be set to the msize negotiated for
	// the connection; a message declaring a larger size is a fatal
	// protocol error.
	MaxSize int64

	// input source
	r io.Reader

	// internal buffer, used as a sliding window over the stream
	br      *bufio.Reader
	bufsize int

	// Number of bytes consumed by the last fetched message, still
	// occupying the front of br's buffer.
	nbytes int

	// Last fetched message. Slices on br's internal buffer, so only
	// valid until the next call to Next.
	msg Msg

	// Last error encountered when reading from r or during parsing.
	err error
}

// Reset resets a Decoder to read from a new io.Reader.
func (d *Decoder) Reset(r io.Reader) {
	d.MaxSize = -1
	d.r = r
	d.br.Reset(r)
	d.nbytes = 0
	d.msg = nil
	d.err = nil
}

// BufSize returns the size of the Decoder's internal buffer, which
// bounds the largest message the Decoder can accept.
func (d *Decoder) BufSize() int {
	return d.bufsize
}

// Err returns the first error encountered during parsing. If the
// underlying io.Reader was closed in the middle of a message, Err
// will return io.ErrUnexpectedEOF. Otherwise, io.EOF is not
// considered to be an error, and is not relayed by Err.
//
// Invalid messages are not considered errors, and are represented as
// values of type BadMessage. Only problems with the underlying
// io.Reader, oversized messages, and frames too damaged to carry a
// tag are considered errors.
func (d *Decoder) Err() error {
	if d.err == io.EOF {
		return nil
	}
	return d.err
}

// Msg returns the last 9P message decoded in the stream. It returns
// a non-nil message if and only if the last call to the Decoder's
// Next method returned true. The return value of Msg is only valid
// until the next call to the decoder's Next method.
func (d *Decoder) Msg() Msg {
	return d.msg
}

// Next fetches the next 9P message from the Decoder's underlying
// io.Reader. If an error is encountered reading from the underlying
// stream, Next will return false, and the Decoder's Err method will
// return the first error encountered.
//
// If Next returns true, the Msg method of the Decoder will return
// the decoded 9P message. A message that is framed correctly but
// fails validation is returned as a BadMessage; the stream stays
// usable.
func (d *Decoder) Next() bool {
	if d.msg != nil {
		d.msg = nil
		if err := d.discard(d.nbytes); err != nil {
			d.err = err
		}
		d.nbytes = 0
	}
	if d.err != nil {
		return false
	}
	d.msg, d.err = d.fetchMessage()
	return d.msg != nil
}

func (d *Decoder) fetchMessage() (Msg, error) {
	hdr, err := d.peek(4)
	if err == io.EOF && d.br.Buffered() == 0 {
		return nil, io.EOF
	} else if err != nil {
		return nil, noEOF(err)
	}

	size := int64(guint32(hdr))
	if size < minMsgSize {
		return nil, errTooSmall
	}
	max := d.MaxSize
	if max < 0 || max > int64(d.bufsize) {
		max = int64(d.bufsize)
	}
	if size > max {
		return nil, ErrMaxSize
	}

	dot, err := d.peek(int(size))
	if err != nil {
		return nil, noEOF(err)
	}
	d.nbytes = int(size)

	m, err := parseMsg(msg(dot))
	if err != nil {
		return BadMessage{Err: err, tag: msg(dot).Tag(), length: size}, nil
	}
	return m, nil
}

// peek returns the first n bytes of the stream without consuming
// them, reading from the underlying Reader as needed.
func (d *Decoder) peek(n int) ([]byte, error) {
	if maxInt-n < 0 {
		return nil, errFillOverflow
	}
	return d.br.Peek(n)
}

func (d *Decoder) discard(n int) error {
	_, err := d.br.Discard(n)
	return err
}

// an EOF in the middle of a message is unexpected
func noEOF(err error) error {
	if err == io.EOF {
		return io.ErrUnexpectedEOF
	}
	return err
}
