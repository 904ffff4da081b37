package ninep

import (
	"io"
	"sync"

	"aqwari.net/net/ninep/ninepproto"
)

var decoderPool sync.Pool

// newDecoder produces a Decoder whose buffer can hold a message of
// msize bytes. Decoders with a buffer of MinBufSize bytes, used for
// any msize up to MinBufSize, are pooled across connections.
func newDecoder(r io.Reader, msize int64) *ninepproto.Decoder {
	if msize > ninepproto.MinBufSize {
		return ninepproto.NewDecoderSize(r, int(msize))
	}
	if v := decoderPool.Get(); v != nil {
		d := v.(*ninepproto.Decoder)
		d.Reset(r)
		return d
	}
	return ninepproto.NewDecoderSize(r, ninepproto.MinBufSize)
}

func putDecoder(d *ninepproto.Decoder) {
	if d.BufSize() > ninepproto.MinBufSize {
		return
	}
	d.Reset(nil)
	decoderPool.Put(d)
}
