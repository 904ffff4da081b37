package ninepproto

import (
	"bytes"
	"testing"
)

func BenchmarkDecode(b *testing.B) {
	var stream bytes.Buffer
	enc := NewEncoder(&stream)
	enc.Tversion(8192, "9P2000")
	enc.Tattach(1, 0, NoFid, "anon", "")
	enc.Twalk(2, 0, 1, "usr", "glenda", "lib")
	enc.Topen(3, 1, OREAD)
	enc.Tread(4, 1, 0, 8000)
	enc.Tclunk(5, 1)
	if err := enc.Err(); err != nil {
		b.Fatal(err)
	}
	input := stream.Bytes()
	r := bytes.NewReader(input)
	d := NewDecoder(r)

	b.SetBytes(int64(len(input)))
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		r.Reset(input)
		d.Reset(r)
		for d.Next() {
		}
		if err := d.Err(); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkEncode(b *testing.B) {
	buf := make([]byte, MinBufSize)
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, _, err := NewTwalk(buf, 2, 0, 1, "usr", "glenda", "lib"); err != nil {
			b.Fatal(err)
		}
	}
}
