package ninepproto

// Validating messages becomes more complicated if we allow
// arbitrarily-long values for some of the non-fixed fields in a
// message. To simplify things, we set some limits on how big any
// of these fields can be.

// MaxVersionLen is the maximum length of the protocol version string
// in bytes.
const MaxVersionLen = 20

// MaxOffset is the maximum value of the offset field in Tread and
// Twrite requests.
const MaxOffset = 1<<63 - 1

// MaxFileLen is the maximum length of a single file, and the maximum
// value of the length field in a Stat structure.
const MaxFileLen = 1<<63 - 1

// MaxFilenameLen is the maximum length of a file name in bytes.
const MaxFilenameLen = 512

// MaxWElem is the maximum allowed number of path elements in a Twalk
// request.
const MaxWElem = 16

// MaxUidLen is the maximum length (in bytes) of a username or
// group identifier.
const MaxUidLen = 45

// MaxErrorLen is the maximum length (in bytes) of the Ename field
// in an Rerror message.
const MaxErrorLen = 512

// MaxAttachLen is the maximum length (in bytes) of the aname field
// of Tattach and Tauth requests.
const MaxAttachLen = 255

// largest walk request body
const maxWalkLen = MaxWElem * (MaxFilenameLen + 2)

// MinBufSize is the minimum size (in bytes) of the internal buffer
// in a Decoder, and the minimum scratch space in an Encoder. It is
// large enough to hold the largest non-data 9P message.
const MinBufSize = maxWalkLen + 64

// DefaultBufSize is the default buffer size used in a Decoder.
const DefaultBufSize = 1 << 16

// MinMsize is the smallest maximum-message-size a connection will
// agree to during version negotiation.
const MinMsize = 256

// DefaultMaxSize is the default maximum 9P message size, used when
// negotiating a connection.
const DefaultMaxSize = 8192

// QidLen is the length of a Qid on the wire.
const QidLen = 13

// See stat(5) for the layout of a stat structure. minStatLen counts
// the leading size[2] field and four empty strings.
const minStatLen = 49

// MaxStatLen is the largest stat structure this package will produce
// or accept.
const MaxStatLen = minStatLen + MaxFilenameLen + (MaxUidLen * 3)

// Largest possible message, limited by the 4-byte size field.
const maxMsgSize = 1<<32 - 1

// Smallest possible message: size[4] type[1] tag[2].
const minMsgSize = 4 + 1 + 2

// NoTag is the tag reserved for the version exchange. No other
// message may carry it.
const NoTag uint16 = 0xFFFF

// NoFid is a reserved fid used in the afid field of Tattach requests
// by clients that do not wish to authenticate.
const NoFid uint32 = 0xFFFFFFFF

// 9P2000 message types. Terror is never sent, and never accepted.
const (
	msgTversion uint8 = 100 + iota
	msgRversion
	msgTauth
	msgRauth
	msgTattach
	msgRattach
	msgTerror // illegal
	msgRerror
	msgTflush
	msgRflush
	msgTwalk
	msgRwalk
	msgTopen
	msgRopen
	msgTcreate
	msgRcreate
	msgTread
	msgRread
	msgTwrite
	msgRwrite
	msgTclunk
	msgRclunk
	msgTremove
	msgRremove
	msgTstat
	msgRstat
	msgTwstat
	msgRwstat
)

// Flags for the mode field in Topen and Tcreate messages.
const (
	OREAD   = 0  // open read-only
	OWRITE  = 1  // open write-only
	ORDWR   = 2  // open read-write
	OEXEC   = 3  // execute (== read but check execute permission)
	OTRUNC  = 16 // or'ed in, truncate file first
	OCEXEC  = 32 // or'ed in, close on exec
	ORCLOSE = 64 // or'ed in, remove on close
)

// File mode bits, stored in the high bits of a Stat's mode word.
const (
	DMDIR    = 0x80000000 // directory
	DMAPPEND = 0x40000000 // append only
	DMEXCL   = 0x20000000 // exclusive use
	DMAUTH   = 0x08000000 // authentication file
	DMTMP    = 0x04000000 // non-backed-up file
)

// Minimum size of a complete message of each type, including the
// size[4] field. A zero entry marks an invalid message type.
var minSizeLUT = [...]uint32{
	msgTversion: 13,               // size[4] Tversion tag[2] msize[4] version[s]
	msgRversion: 13,               // size[4] Rversion tag[2] msize[4] version[s]
	msgTauth:    15,               // size[4] Tauth tag[2] afid[4] uname[s] aname[s]
	msgRauth:    20,               // size[4] Rauth tag[2] aqid[13]
	msgTattach:  19,               // size[4] Tattach tag[2] fid[4] afid[4] uname[s] aname[s]
	msgRattach:  20,               // size[4] Rattach tag[2] qid[13]
	msgRerror:   9,                // size[4] Rerror tag[2] ename[s]
	msgTflush:   9,                // size[4] Tflush tag[2] oldtag[2]
	msgRflush:   7,                // size[4] Rflush tag[2]
	msgTwalk:    17,               // size[4] Twalk tag[2] fid[4] newfid[4] nwname[2] nwname*(wname[s])
	msgRwalk:    9,                // size[4] Rwalk tag[2] nwqid[2] nwqid*(wqid[13])
	msgTopen:    12,               // size[4] Topen tag[2] fid[4] mode[1]
	msgRopen:    24,               // size[4] Ropen tag[2] qid[13] iounit[4]
	msgTcreate:  18,               // size[4] Tcreate tag[2] fid[4] name[s] perm[4] mode[1]
	msgRcreate:  24,               // size[4] Rcreate tag[2] qid[13] iounit[4]
	msgTread:    23,               // size[4] Tread tag[2] fid[4] offset[8] count[4]
	msgRread:    11,               // size[4] Rread tag[2] count[4] data[count]
	msgTwrite:   23,               // size[4] Twrite tag[2] fid[4] offset[8] count[4] data[count]
	msgRwrite:   11,               // size[4] Rwrite tag[2] count[4]
	msgTclunk:   11,               // size[4] Tclunk tag[2] fid[4]
	msgRclunk:   7,                // size[4] Rclunk tag[2]
	msgTremove:  11,               // size[4] Tremove tag[2] fid[4]
	msgRremove:  7,                // size[4] Rremove tag[2]
	msgTstat:    11,               // size[4] Tstat tag[2] fid[4]
	msgRstat:    9 + minStatLen,   // size[4] Rstat tag[2] stat[n]
	msgTwstat:   13 + minStatLen,  // size[4] Twstat tag[2] fid[4] stat[n]
	msgRwstat:   7,                // size[4] Rwstat tag[2]
}

func validMsgType(m uint8) bool {
	return int(m) < len(minSizeLUT) && minSizeLUT[m] != 0
}

// fixedSize reports whether messages of the given type are always
// exactly minSizeLUT[m] bytes long.
func fixedSize(m uint8) bool {
	switch m {
	case msgTversion, msgRversion, msgTauth, msgTattach:
		fallthrough
	case msgRerror, msgTwalk, msgRwalk, msgTcreate:
		fallthrough
	case msgRread, msgTwrite, msgRstat, msgTwstat:
		return false
	}
	return true
}
