// Package tracing provides tracing of sent and received 9P
// messages.
package tracing

import (
	"io"

	"aqwari.net/net/ninep/ninepproto"
)

// A Func can be used to access 9P messages as they pass through a
// ninepproto.Encoder or a ninepproto.Decoder. Messages are not
// copied; a Func should not modify msg, and msg should not be
// accessed after the Func returns.
type Func func(msg ninepproto.Msg)

const kilobyte = 1 << 10

// Decoder creates a new ninepproto.Decoder that calls fn for every
// message received on r.
func Decoder(r io.Reader, fn Func) *ninepproto.Decoder {
	rd, wr := io.Pipe()
	decoderInput := ninepproto.NewDecoderSize(r, 8*kilobyte)
	decoderTrace := ninepproto.NewDecoderSize(rd, 8*kilobyte)
	go func() {
		for decoderInput.Next() {
			fn(decoderInput.Msg())
			if _, err := ninepproto.Write(wr, decoderInput.Msg()); err != nil {
				break
			}
		}
		wr.CloseWithError(decoderInput.Err())
	}()
	return decoderTrace
}

// Encoder creates a new ninepproto.Encoder that calls fn for every
// message before writing it to w.
func Encoder(w io.Writer, fn Func) *ninepproto.Encoder {
	rd, wr := io.Pipe()
	encoder := ninepproto.NewEncoder(wr)
	decoder := ninepproto.NewDecoderSize(rd, 8*kilobyte)
	go func() {
		for decoder.Next() {
			fn(decoder.Msg())
			if _, err := ninepproto.Write(w, decoder.Msg()); err != nil {
				break
			}
		}
	}()
	return encoder
}
