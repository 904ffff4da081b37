package ninepproto

import (
	"fmt"
	"io"
	"math"
	"sync"

	"aqwari.net/net/ninep/internal/util"
	"aqwari.net/net/ninep/internal/wire"
)

// An Encoder writes 9P messages to an underlying io.Writer.
//
// Encoders are safe to use from multiple goroutines; each message
// emerges on the wire whole, never interleaved with a message
// written by another goroutine.
type Encoder struct {
	// MaxSize is the maximum size of a single 9P message, usually
	// the msize negotiated for the connection. Rread payloads larger
	// than MaxSize are split across multiple messages.
	MaxSize int64

	tx  *wire.TxWriter
	mu  sync.Mutex // guards buf and err
	buf []byte
	err error
}

// NewEncoder creates a new Encoder that writes 9P messages to w.
// If w is a *wire.TxWriter, writes are serialised on it; this allows
// an Encoder to share a write lock with other writers on the same
// connection.
func NewEncoder(w io.Writer) *Encoder {
	tx, ok := w.(*wire.TxWriter)
	if !ok {
		tx = &wire.TxWriter{W: w}
	}
	return &Encoder{
		tx:  tx,
		buf: make([]byte, MinBufSize),
	}
}

// Err returns the first error encountered by an Encoder when writing
// data to its underlying io.Writer.
func (enc *Encoder) Err() error {
	enc.mu.Lock()
	defer enc.mu.Unlock()
	return enc.err
}

func (enc *Encoder) record(err error) error {
	if err != nil && enc.err == nil {
		enc.err = err
	}
	return err
}

// send builds a message with fn in the encoder's scratch buffer and
// writes it out as a single frame.
func (enc *Encoder) send(fn func(buf []byte) (Msg, error)) error {
	enc.mu.Lock()
	defer enc.mu.Unlock()

	m, err := fn(enc.buf)
	if err != nil {
		// a message that cannot be built was never written; the
		// connection is still usable
		return err
	}
	_, err = enc.tx.Write(m.raw())
	return enc.record(err)
}

// WriteMsg writes a previously built or decoded message to the
// underlying io.Writer, serialised against any other message being
// written through the encoder.
func (enc *Encoder) WriteMsg(m Msg) error {
	_, err := enc.tx.Write(m.raw())
	enc.mu.Lock()
	defer enc.mu.Unlock()
	return enc.record(err)
}

// Tversion writes a Tversion message to the underlying io.Writer.
// The tag of the written message is NoTag. If the version string is
// longer than MaxVersionLen, it is truncated.
func (enc *Encoder) Tversion(msize uint32, version string) {
	if len(version) > MaxVersionLen {
		version = version[:MaxVersionLen]
	}
	enc.send(func(buf []byte) (Msg, error) {
		m, _, err := NewTversion(buf, msize, version)
		return m, err
	})
}

// Rversion writes an Rversion message to the underlying io.Writer.
// If the version string is longer than MaxVersionLen, it is
// truncated.
func (enc *Encoder) Rversion(msize uint32, version string) {
	if len(version) > MaxVersionLen {
		version = version[:MaxVersionLen]
	}
	enc.send(func(buf []byte) (Msg, error) {
		m, _, err := NewRversion(buf, msize, version)
		return m, err
	})
}

// Tauth writes a Tauth message to the underlying io.Writer. The
// uname and aname parameters will be truncated if they are longer
// than MaxUidLen and MaxAttachLen, respectively.
func (enc *Encoder) Tauth(tag uint16, afid uint32, uname, aname string) {
	uname, aname = truncAttach(uname, aname)
	enc.send(func(buf []byte) (Msg, error) {
		m, _, err := NewTauth(buf, tag, afid, uname, aname)
		return m, err
	})
}

// Rauth writes an Rauth message to the underlying io.Writer.
func (enc *Encoder) Rauth(tag uint16, qid Qid) {
	enc.send(func(buf []byte) (Msg, error) {
		m, _, err := NewRauth(buf, tag, qid)
		return m, err
	})
}

// Tattach writes a Tattach message to the underlying io.Writer. If
// the client does not want to authenticate, afid should be NoFid.
// The uname and aname parameters will be truncated if they are
// longer than MaxUidLen and MaxAttachLen, respectively.
func (enc *Encoder) Tattach(tag uint16, fid, afid uint32, uname, aname string) {
	uname, aname = truncAttach(uname, aname)
	enc.send(func(buf []byte) (Msg, error) {
		m, _, err := NewTattach(buf, tag, fid, afid, uname, aname)
		return m, err
	})
}

// Rattach writes an Rattach message to the underlying io.Writer.
func (enc *Encoder) Rattach(tag uint16, qid Qid) {
	enc.send(func(buf []byte) (Msg, error) {
		m, _, err := NewRattach(buf, tag, qid)
		return m, err
	})
}

// Rerror writes an Rerror message to the underlying io.Writer.
// Errfmt may be a printf-style format string, with values filled in
// from the argument list v. If the error string is longer than
// MaxErrorLen bytes, it is truncated.
func (enc *Encoder) Rerror(tag uint16, errfmt string, v ...interface{}) {
	ename := errfmt
	if len(v) > 0 {
		ename = fmt.Sprintf(errfmt, v...)
	}
	enc.send(func(buf []byte) (Msg, error) {
		m, _, err := NewRerror(buf, tag, ename)
		return m, err
	})
}

// Tflush writes a Tflush message to the underlying io.Writer.
func (enc *Encoder) Tflush(tag, oldtag uint16) {
	enc.send(func(buf []byte) (Msg, error) {
		m, _, err := NewTflush(buf, tag, oldtag)
		return m, err
	})
}

// Rflush writes an Rflush message to the underlying io.Writer.
func (enc *Encoder) Rflush(tag uint16) {
	enc.send(func(buf []byte) (Msg, error) {
		m, _, err := NewRflush(buf, tag)
		return m, err
	})
}

// Twalk writes a Twalk message to the underlying io.Writer. An error
// is returned if wname is longer than MaxWElem elements, or if any
// single element in wname is longer than MaxFilenameLen bytes.
func (enc *Encoder) Twalk(tag uint16, fid, newfid uint32, wname ...string) error {
	return enc.send(func(buf []byte) (Msg, error) {
		m, _, err := NewTwalk(buf, tag, fid, newfid, wname...)
		return m, err
	})
}

// Rwalk writes an Rwalk message to the underlying io.Writer. An
// error is returned if wqid has more than MaxWElem elements.
func (enc *Encoder) Rwalk(tag uint16, wqid ...Qid) error {
	return enc.send(func(buf []byte) (Msg, error) {
		m, _, err := NewRwalk(buf, tag, wqid...)
		return m, err
	})
}

// Topen writes a Topen message to the underlying io.Writer.
func (enc *Encoder) Topen(tag uint16, fid uint32, mode uint8) {
	enc.send(func(buf []byte) (Msg, error) {
		m, _, err := NewTopen(buf, tag, fid, mode)
		return m, err
	})
}

// Ropen writes an Ropen message to the underlying io.Writer.
func (enc *Encoder) Ropen(tag uint16, qid Qid, iounit uint32) {
	enc.send(func(buf []byte) (Msg, error) {
		m, _, err := NewRopen(buf, tag, qid, iounit)
		return m, err
	})
}

// Tcreate writes a Tcreate message to the underlying io.Writer. If
// name is longer than MaxFilenameLen, it is truncated.
func (enc *Encoder) Tcreate(tag uint16, fid uint32, name string, perm uint32, mode uint8) {
	if len(name) > MaxFilenameLen {
		name = name[:MaxFilenameLen]
	}
	enc.send(func(buf []byte) (Msg, error) {
		m, _, err := NewTcreate(buf, tag, fid, name, perm, mode)
		return m, err
	})
}

// Rcreate writes an Rcreate message to the underlying io.Writer.
func (enc *Encoder) Rcreate(tag uint16, qid Qid, iounit uint32) {
	enc.send(func(buf []byte) (Msg, error) {
		m, _, err := NewRcreate(buf, tag, qid, iounit)
		return m, err
	})
}

// Tread writes a Tread message to the underlying io.Writer. An error
// is returned if count is greater than the maximum value of a 32-bit
// unsigned integer.
func (enc *Encoder) Tread(tag uint16, fid uint32, offset, count int64) error {
	if count > math.MaxUint32 {
		return ErrMaxCount
	}
	return enc.send(func(buf []byte) (Msg, error) {
		m, _, err := NewTread(buf, tag, fid, uint64(offset), uint32(count))
		return m, err
	})
}

// Rread writes an Rread message to the underlying io.Writer. If
// len(data) is greater than the Encoder's MaxSize, it is broken up
// into multiple Rread messages. Rread returns the number of bytes of
// data written, plus any IO errors encountered.
func (enc *Encoder) Rread(tag uint16, data []byte) (n int, err error) {
	msize := enc.MaxSize
	if msize < MinMsize {
		msize = DefaultMaxSize
	}
	msize -= int64(minSizeLUT[msgRread])

	for first := true; first || len(data) > 0; first = false {
		chunk := data
		if int64(len(chunk)) > msize {
			chunk = chunk[:msize]
		}

		enc.mu.Lock()
		hdr := pheader(enc.buf[:0], minSizeLUT[msgRread]+uint32(len(chunk)),
			msgRread, tag, uint32(len(chunk)))
		tx := enc.tx.Tx()
		ew := &util.ErrWriter{W: tx}
		ew.Write(hdr)
		nchunk, _ := ew.Write(chunk)
		tx.Close()
		err = enc.record(ew.Err)
		enc.mu.Unlock()

		n += nchunk
		if err != nil {
			break
		}
		data = data[len(chunk):]
	}
	return n, err
}

// Twrite writes a Twrite message to the underlying io.Writer. An
// error is returned if the message cannot fit inside a single 9P
// message.
func (enc *Encoder) Twrite(tag uint16, fid uint32, offset int64, data []byte) (int, error) {
	if math.MaxUint32-int(minSizeLUT[msgTwrite]) < len(data) {
		return 0, errTooBig
	}

	enc.mu.Lock()
	defer enc.mu.Unlock()

	hdr := pheader(enc.buf[:0], minSizeLUT[msgTwrite]+uint32(len(data)),
		msgTwrite, tag, fid)
	hdr = puint64(hdr, uint64(offset))
	hdr = puint32(hdr, uint32(len(data)))

	tx := enc.tx.Tx()
	ew := &util.ErrWriter{W: tx}
	ew.Write(hdr)
	n, _ := ew.Write(data)
	tx.Close()
	return n, enc.record(ew.Err)
}

// Rwrite writes an Rwrite message to the underlying io.Writer. If
// count is greater than the maximum value of a 32-bit unsigned
// integer, a run-time panic occurs.
func (enc *Encoder) Rwrite(tag uint16, count int64) {
	if count > math.MaxUint32 {
		panic(ErrMaxCount)
	}
	enc.send(func(buf []byte) (Msg, error) {
		m, _, err := NewRwrite(buf, tag, uint32(count))
		return m, err
	})
}

// Tclunk writes a Tclunk message to the underlying io.Writer.
func (enc *Encoder) Tclunk(tag uint16, fid uint32) {
	enc.send(func(buf []byte) (Msg, error) {
		m, _, err := NewTclunk(buf, tag, fid)
		return m, err
	})
}

// Rclunk writes an Rclunk message to the underlying io.Writer.
func (enc *Encoder) Rclunk(tag uint16) {
	enc.send(func(buf []byte) (Msg, error) {
		m, _, err := NewRclunk(buf, tag)
		return m, err
	})
}

// Tremove writes a Tremove message to the underlying io.Writer.
func (enc *Encoder) Tremove(tag uint16, fid uint32) {
	enc.send(func(buf []byte) (Msg, error) {
		m, _, err := NewTremove(buf, tag, fid)
		return m, err
	})
}

// Rremove writes an Rremove message to the underlying io.Writer.
func (enc *Encoder) Rremove(tag uint16) {
	enc.send(func(buf []byte) (Msg, error) {
		m, _, err := NewRremove(buf, tag)
		return m, err
	})
}

// Tstat writes a Tstat message to the underlying io.Writer.
func (enc *Encoder) Tstat(tag uint16, fid uint32) {
	enc.send(func(buf []byte) (Msg, error) {
		m, _, err := NewTstat(buf, tag, fid)
		return m, err
	})
}

// Rstat writes an Rstat message to the underlying io.Writer. If the
// Stat is larger than the maximum size allowed by the NewStat
// function, a run-time panic occurs.
func (enc *Encoder) Rstat(tag uint16, stat Stat) {
	if len(stat) > MaxStatLen {
		panic(errLongStat)
	}
	if len(stat) < minStatLen {
		panic(errShortStat)
	}
	enc.send(func(buf []byte) (Msg, error) {
		m, _, err := NewRstat(buf, tag, stat)
		return m, err
	})
}

// Twstat writes a Twstat message to the underlying io.Writer. If the
// Stat is larger than the maximum size allowed by the NewStat
// function, a run-time panic occurs.
func (enc *Encoder) Twstat(tag uint16, fid uint32, stat Stat) {
	if len(stat) > MaxStatLen {
		panic(errLongStat)
	}
	if len(stat) < minStatLen {
		panic(errShortStat)
	}
	enc.send(func(buf []byte) (Msg, error) {
		m, _, err := NewTwstat(buf, tag, fid, stat)
		return m, err
	})
}

// Rwstat writes an Rwstat message to the underlying io.Writer.
func (enc *Encoder) Rwstat(tag uint16) {
	enc.send(func(buf []byte) (Msg, error) {
		m, _, err := NewRwstat(buf, tag)
		return m, err
	})
}

func truncAttach(uname, aname string) (string, string) {
	if len(uname) > MaxUidLen {
		uname = uname[:MaxUidLen]
	}
	if len(aname) > MaxAttachLen {
		aname = aname[:MaxAttachLen]
	}
	return uname, aname
}
