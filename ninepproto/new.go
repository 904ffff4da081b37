package ninepproto

import (
	"io"
	"math"
)

// The New functions in this file build complete, framed 9P messages
// in the front of a caller-supplied buffer. On success they return a
// validated view of the message along with the remaining free space
// in the buffer. If the buffer is too small for the message,
// io.ErrShortBuffer is returned, and the buffer is unchanged.

func newHeader(buf []byte, mtype uint8, tag uint16, extra int) (uint32, error) {
	if mtype != msgTversion && mtype != msgRversion && tag == NoTag {
		return 0, errBadTag
	}
	if extra < 0 || int64(minSizeLUT[mtype])+int64(extra) > maxMsgSize {
		return 0, errTooBig
	}
	size := minSizeLUT[mtype] + uint32(extra)
	if int64(len(buf)) < int64(size) {
		return 0, io.ErrShortBuffer
	}
	return size, nil
}

// NewTversion writes a Tversion message to buf. The tag of the
// message is NoTag.
func NewTversion(buf []byte, msize uint32, version string) (Tversion, []byte, error) {
	if len(version) > MaxVersionLen {
		return nil, buf, errLongVersion
	}
	size, err := newHeader(buf, msgTversion, NoTag, len(version))
	if err != nil {
		return nil, buf, err
	}
	b := pheader(buf[:0], size, msgTversion, NoTag, msize)
	b = pstring(b, version)
	return Tversion(b), buf[len(b):], nil
}

// NewRversion writes an Rversion message to buf. The tag of the
// message is NoTag.
func NewRversion(buf []byte, msize uint32, version string) (Rversion, []byte, error) {
	if len(version) > MaxVersionLen {
		return nil, buf, errLongVersion
	}
	size, err := newHeader(buf, msgRversion, NoTag, len(version))
	if err != nil {
		return nil, buf, err
	}
	b := pheader(buf[:0], size, msgRversion, NoTag, msize)
	b = pstring(b, version)
	return Rversion(b), buf[len(b):], nil
}

// NewTauth writes a Tauth message to buf. The afid will establish
// the authentication file for a later Tattach request.
func NewTauth(buf []byte, tag uint16, afid uint32, uname, aname string) (Tauth, []byte, error) {
	if len(uname) > MaxUidLen {
		return nil, buf, errLongUsername
	}
	if len(aname) > MaxAttachLen {
		return nil, buf, errLongAname
	}
	size, err := newHeader(buf, msgTauth, tag, len(uname)+len(aname))
	if err != nil {
		return nil, buf, err
	}
	b := pheader(buf[:0], size, msgTauth, tag, afid)
	b = pstring(b, uname, aname)
	return Tauth(b), buf[len(b):], nil
}

// NewRauth writes an Rauth message to buf. The qid should be of type
// QTAUTH.
func NewRauth(buf []byte, tag uint16, qid Qid) (Rauth, []byte, error) {
	size, err := newHeader(buf, msgRauth, tag, 0)
	if err != nil {
		return nil, buf, err
	}
	b := pheader(buf[:0], size, msgRauth, tag)
	b = pqid(b, qid)
	return Rauth(b), buf[len(b):], nil
}

// NewTattach writes a Tattach message to buf. If the client does not
// wish to authenticate, afid should be NoFid.
func NewTattach(buf []byte, tag uint16, fid, afid uint32, uname, aname string) (Tattach, []byte, error) {
	if len(uname) > MaxUidLen {
		return nil, buf, errLongUsername
	}
	if len(aname) > MaxAttachLen {
		return nil, buf, errLongAname
	}
	size, err := newHeader(buf, msgTattach, tag, len(uname)+len(aname))
	if err != nil {
		return nil, buf, err
	}
	b := pheader(buf[:0], size, msgTattach, tag, fid, afid)
	b = pstring(b, uname, aname)
	return Tattach(b), buf[len(b):], nil
}

// NewRattach writes an Rattach message to buf. The qid is the qid of
// the root of the file tree the client attached to.
func NewRattach(buf []byte, tag uint16, qid Qid) (Rattach, []byte, error) {
	size, err := newHeader(buf, msgRattach, tag, 0)
	if err != nil {
		return nil, buf, err
	}
	b := pheader(buf[:0], size, msgRattach, tag)
	b = pqid(b, qid)
	return Rattach(b), buf[len(b):], nil
}

// NewRerror writes an Rerror message to buf. If ename is longer than
// MaxErrorLen bytes, it is truncated.
func NewRerror(buf []byte, tag uint16, ename string) (Rerror, []byte, error) {
	if len(ename) > MaxErrorLen {
		ename = ename[:MaxErrorLen]
	}
	size, err := newHeader(buf, msgRerror, tag, len(ename))
	if err != nil {
		return nil, buf, err
	}
	b := pheader(buf[:0], size, msgRerror, tag)
	b = pstring(b, ename)
	return Rerror(b), buf[len(b):], nil
}

// NewTflush writes a Tflush message to buf. Oldtag is the tag of the
// pending transaction to abort.
func NewTflush(buf []byte, tag, oldtag uint16) (Tflush, []byte, error) {
	size, err := newHeader(buf, msgTflush, tag, 0)
	if err != nil {
		return nil, buf, err
	}
	b := pheader(buf[:0], size, msgTflush, tag)
	b = puint16(b, oldtag)
	return Tflush(b), buf[len(b):], nil
}

// NewRflush writes an Rflush message to buf.
func NewRflush(buf []byte, tag uint16) (Rflush, []byte, error) {
	size, err := newHeader(buf, msgRflush, tag, 0)
	if err != nil {
		return nil, buf, err
	}
	b := pheader(buf[:0], size, msgRflush, tag)
	return Rflush(b), buf[len(b):], nil
}

// NewTwalk writes a Twalk message to buf. An error is returned if
// wname has more than MaxWElem elements, or if any single element is
// longer than MaxFilenameLen bytes.
func NewTwalk(buf []byte, tag uint16, fid, newfid uint32, wname ...string) (Twalk, []byte, error) {
	if len(wname) > MaxWElem {
		return nil, buf, errMaxWElem
	}
	extra := 0
	for _, v := range wname {
		if len(v) > MaxFilenameLen {
			return nil, buf, errLongFilename
		}
		extra += 2 + len(v)
	}
	size, err := newHeader(buf, msgTwalk, tag, extra)
	if err != nil {
		return nil, buf, err
	}
	b := pheader(buf[:0], size, msgTwalk, tag, fid, newfid)
	b = puint16(b, uint16(len(wname)))
	b = pstring(b, wname...)
	return Twalk(b), buf[len(b):], nil
}

// NewRwalk writes an Rwalk message to buf. An error is returned if
// wqid has more than MaxWElem elements.
func NewRwalk(buf []byte, tag uint16, wqid ...Qid) (Rwalk, []byte, error) {
	if len(wqid) > MaxWElem {
		return nil, buf, errMaxWElem
	}
	size, err := newHeader(buf, msgRwalk, tag, QidLen*len(wqid))
	if err != nil {
		return nil, buf, err
	}
	b := pheader(buf[:0], size, msgRwalk, tag)
	b = puint16(b, uint16(len(wqid)))
	b = pqid(b, wqid...)
	return Rwalk(b), buf[len(b):], nil
}

// NewTopen writes a Topen message to buf.
func NewTopen(buf []byte, tag uint16, fid uint32, mode uint8) (Topen, []byte, error) {
	size, err := newHeader(buf, msgTopen, tag, 0)
	if err != nil {
		return nil, buf, err
	}
	b := pheader(buf[:0], size, msgTopen, tag, fid)
	b = puint8(b, mode)
	return Topen(b), buf[len(b):], nil
}

// NewRopen writes an Ropen message to buf.
func NewRopen(buf []byte, tag uint16, qid Qid, iounit uint32) (Ropen, []byte, error) {
	size, err := newHeader(buf, msgRopen, tag, 0)
	if err != nil {
		return nil, buf, err
	}
	b := pheader(buf[:0], size, msgRopen, tag)
	b = pqid(b, qid)
	b = puint32(b, iounit)
	return Ropen(b), buf[len(b):], nil
}

// NewTcreate writes a Tcreate message to buf.
func NewTcreate(buf []byte, tag uint16, fid uint32, name string, perm uint32, mode uint8) (Tcreate, []byte, error) {
	if len(name) > MaxFilenameLen {
		return nil, buf, errLongFilename
	}
	size, err := newHeader(buf, msgTcreate, tag, len(name))
	if err != nil {
		return nil, buf, err
	}
	b := pheader(buf[:0], size, msgTcreate, tag, fid)
	b = pstring(b, name)
	b = puint32(b, perm)
	b = puint8(b, mode)
	return Tcreate(b), buf[len(b):], nil
}

// NewRcreate writes an Rcreate message to buf.
func NewRcreate(buf []byte, tag uint16, qid Qid, iounit uint32) (Rcreate, []byte, error) {
	size, err := newHeader(buf, msgRcreate, tag, 0)
	if err != nil {
		return nil, buf, err
	}
	b := pheader(buf[:0], size, msgRcreate, tag)
	b = pqid(b, qid)
	b = puint32(b, iounit)
	return Rcreate(b), buf[len(b):], nil
}

// NewTread writes a Tread message to buf.
func NewTread(buf []byte, tag uint16, fid uint32, offset uint64, count uint32) (Tread, []byte, error) {
	if offset > MaxOffset {
		return nil, buf, errMaxOffset
	}
	size, err := newHeader(buf, msgTread, tag, 0)
	if err != nil {
		return nil, buf, err
	}
	b := pheader(buf[:0], size, msgTread, tag, fid)
	b = puint64(b, offset)
	b = puint32(b, count)
	return Tread(b), buf[len(b):], nil
}

// NewRread writes an Rread message to buf. The data must fit within
// a single message; it is the caller's responsibility to split large
// payloads across messages.
func NewRread(buf []byte, tag uint16, data []byte) (Rread, []byte, error) {
	if len(data) > math.MaxUint32-int(minSizeLUT[msgRread]) {
		return nil, buf, ErrMaxCount
	}
	size, err := newHeader(buf, msgRread, tag, len(data))
	if err != nil {
		return nil, buf, err
	}
	b := pheader(buf[:0], size, msgRread, tag, uint32(len(data)))
	b = append(b, data...)
	return Rread(b), buf[len(b):], nil
}

// NewTwrite writes a Twrite message to buf. The data must fit within
// a single message; it is the caller's responsibility to split large
// payloads across messages.
func NewTwrite(buf []byte, tag uint16, fid uint32, offset uint64, data []byte) (Twrite, []byte, error) {
	if offset > MaxOffset {
		return nil, buf, errMaxOffset
	}
	if len(data) > math.MaxUint32-int(minSizeLUT[msgTwrite]) {
		return nil, buf, ErrMaxCount
	}
	size, err := newHeader(buf, msgTwrite, tag, len(data))
	if err != nil {
		return nil, buf, err
	}
	b := pheader(buf[:0], size, msgTwrite, tag, fid)
	b = puint64(b, offset)
	b = puint32(b, uint32(len(data)))
	b = append(b, data...)
	return Twrite(b), buf[len(b):], nil
}

// NewRwrite writes an Rwrite message to buf.
func NewRwrite(buf []byte, tag uint16, count uint32) (Rwrite, []byte, error) {
	size, err := newHeader(buf, msgRwrite, tag, 0)
	if err != nil {
		return nil, buf, err
	}
	b := pheader(buf[:0], size, msgRwrite, tag, count)
	return Rwrite(b), buf[len(b):], nil
}

// NewTclunk writes a Tclunk message to buf.
func NewTclunk(buf []byte, tag uint16, fid uint32) (Tclunk, []byte, error) {
	size, err := newHeader(buf, msgTclunk, tag, 0)
	if err != nil {
		return nil, buf, err
	}
	b := pheader(buf[:0], size, msgTclunk, tag, fid)
	return Tclunk(b), buf[len(b):], nil
}

// NewRclunk writes an Rclunk message to buf.
func NewRclunk(buf []byte, tag uint16) (Rclunk, []byte, error) {
	size, err := newHeader(buf, msgRclunk, tag, 0)
	if err != nil {
		return nil, buf, err
	}
	b := pheader(buf[:0], size, msgRclunk, tag)
	return Rclunk(b), buf[len(b):], nil
}

// NewTremove writes a Tremove message to buf.
func NewTremove(buf []byte, tag uint16, fid uint32) (Tremove, []byte, error) {
	size, err := newHeader(buf, msgTremove, tag, 0)
	if err != nil {
		return nil, buf, err
	}
	b := pheader(buf[:0], size, msgTremove, tag, fid)
	return Tremove(b), buf[len(b):], nil
}

// NewRremove writes an Rremove message to buf.
func NewRremove(buf []byte, tag uint16) (Rremove, []byte, error) {
	size, err := newHeader(buf, msgRremove, tag, 0)
	if err != nil {
		return nil, buf, err
	}
	b := pheader(buf[:0], size, msgRremove, tag)
	return Rremove(b), buf[len(b):], nil
}

// NewTstat writes a Tstat message to buf.
func NewTstat(buf []byte, tag uint16, fid uint32) (Tstat, []byte, error) {
	size, err := newHeader(buf, msgTstat, tag, 0)
	if err != nil {
		return nil, buf, err
	}
	b := pheader(buf[:0], size, msgTstat, tag, fid)
	return Tstat(b), buf[len(b):], nil
}

// NewRstat writes an Rstat message to buf.
func NewRstat(buf []byte, tag uint16, stat Stat) (Rstat, []byte, error) {
	if len(stat) > MaxStatLen {
		return nil, buf, errLongStat
	}
	if len(stat) < minStatLen {
		return nil, buf, errShortStat
	}
	size, err := newHeader(buf, msgRstat, tag, len(stat)-minStatLen)
	if err != nil {
		return nil, buf, err
	}
	b := pheader(buf[:0], size, msgRstat, tag)
	b = pbyte(b, stat)
	return Rstat(b), buf[len(b):], nil
}

// NewTwstat writes a Twstat message to buf.
func NewTwstat(buf []byte, tag uint16, fid uint32, stat Stat) (Twstat, []byte, error) {
	if len(stat) > MaxStatLen {
		return nil, buf, errLongStat
	}
	if len(stat) < minStatLen {
		return nil, buf, errShortStat
	}
	size, err := newHeader(buf, msgTwstat, tag, len(stat)-minStatLen)
	if err != nil {
		return nil, buf, err
	}
	b := pheader(buf[:0], size, msgTwstat, tag, fid)
	b = pbyte(b, stat)
	return Twstat(b), buf[len(b):], nil
}

// NewRwstat writes an Rwstat message to buf.
func NewRwstat(buf []byte, tag uint16) (Rwstat, []byte, error) {
	size, err := newHeader(buf, msgRwstat, tag, 0)
	if err != nil {
		return nil, buf, err
	}
	b := pheader(buf[:0], size, msgRwstat, tag)
	return Rwstat(b), buf[len(b):], nil
}
