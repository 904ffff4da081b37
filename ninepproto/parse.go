package ninepproto

// Per-message validation. Each parse function receives a complete
// frame whose size and type fields have already been checked against
// minSizeLUT, and returns a typed view of the frame. A parse
// function must verify every variable-length field before the view
// escapes; the accessor methods assume the size headers within the
// message are consistent.

var msgParseLUT = [len(minSizeLUT)]func(msg) (Msg, error){
	msgTversion: parseTversion,
	msgRversion: parseRversion,
	msgTauth:    parseTauth,
	msgRauth:    parseRauth,
	msgTattach:  parseTattach,
	msgRattach:  parseRattach,
	msgRerror:   parseRerror,
	msgTflush:   parseTflush,
	msgRflush:   parseRflush,
	msgTwalk:    parseTwalk,
	msgRwalk:    parseRwalk,
	msgTopen:    parseTopen,
	msgRopen:    parseRopen,
	msgTcreate:  parseTcreate,
	msgRcreate:  parseRcreate,
	msgTread:    parseTread,
	msgRread:    parseRread,
	msgTwrite:   parseTwrite,
	msgRwrite:   parseRwrite,
	msgTclunk:   parseTclunk,
	msgRclunk:   parseRclunk,
	msgTremove:  parseTremove,
	msgRremove:  parseRremove,
	msgTstat:    parseTstat,
	msgRstat:    parseRstat,
	msgTwstat:   parseTwstat,
	msgRwstat:   parseRwstat,
}

// check that a message is as big or as small as it needs to be,
// given what we know about its type.
func verifySize(m msg) error {
	t, n := m.Type(), m.Len()
	if !validMsgType(t) {
		return errInvalidMsgType
	}
	if min := int64(minSizeLUT[t]); n < min {
		return errTooSmall
	} else if fixedSize(t) && n > min {
		return errTooBig
	}
	return nil
}

// The reserved NOTAG tag may only, and must only, be used by the
// version exchange.
func verifyTag(m msg) error {
	t := m.Type()
	if t == msgTversion || t == msgRversion {
		if m.Tag() != NoTag {
			return errBadTag
		}
	} else if m.Tag() == NoTag {
		return errBadTag
	}
	return nil
}

// parseMsg validates a complete frame. The frame must be exactly as
// long as its size field declares.
func parseMsg(dot msg) (Msg, error) {
	if int64(len(dot)) != dot.Len() {
		return nil, errTooSmall
	}
	if err := verifySize(dot); err != nil {
		return nil, err
	}
	if err := verifyTag(dot); err != nil {
		return nil, err
	}
	return msgParseLUT[dot.Type()](dot)
}

func parseTversion(dot msg) (Msg, error) {
	if ver, _, err := verifyField(dot.Body()[4:], true, 0); err != nil {
		return nil, err
	} else if err := verifyString(ver); err != nil {
		return nil, err
	} else if len(ver) > MaxVersionLen {
		return nil, errLongVersion
	}
	return Tversion(dot), nil
}

func parseRversion(dot msg) (Msg, error) {
	if _, err := parseTversion(dot); err != nil {
		return nil, err
	}
	return Rversion(dot), nil
}

func parseTauth(dot msg) (Msg, error) {
	if err := parseTauthBody(dot.Body()[4:]); err != nil {
		return nil, err
	}
	return Tauth(dot), nil
}

// uname[s] aname[s], the common suffix of Tauth and Tattach.
func parseTauthBody(body []byte) error {
	uname, rest, err := verifyField(body, false, 2)
	if err != nil {
		return err
	} else if err := verifyString(uname); err != nil {
		return err
	} else if len(uname) > MaxUidLen {
		return errLongUsername
	}
	aname, _, err := verifyField(rest, true, 0)
	if err != nil {
		return err
	} else if err := verifyString(aname); err != nil {
		return err
	} else if len(aname) > MaxAttachLen {
		return errLongAname
	}
	return nil
}

func parseRauth(dot msg) (Msg, error) {
	if err := verifyQid(dot.Body()); err != nil {
		return nil, err
	}
	return Rauth(dot), nil
}

func parseTattach(dot msg) (Msg, error) {
	if err := parseTauthBody(dot.Body()[8:]); err != nil {
		return nil, err
	}
	return Tattach(dot), nil
}

func parseRattach(dot msg) (Msg, error) {
	if err := verifyQid(dot.Body()); err != nil {
		return nil, err
	}
	return Rattach(dot), nil
}

func parseRerror(dot msg) (Msg, error) {
	if str, _, err := verifyField(dot.Body(), true, 0); err != nil {
		return nil, err
	} else if err := verifyString(str); err != nil {
		return nil, err
	} else if len(str) > MaxErrorLen {
		return nil, errLongError
	}
	return Rerror(dot), nil
}

func parseTflush(dot msg) (Msg, error) {
	return Tflush(dot), nil
}

func parseRflush(dot msg) (Msg, error) {
	return Rflush(dot), nil
}

func parseTwalk(dot msg) (Msg, error) {
	// size[4] Twalk tag[2] fid[4] newfid[4] nwname[2] nwname*(wname[s])
	var (
		err       error
		el, elems []byte // first, rest in *wname
	)
	nwelem := guint16(dot.Body()[8:])
	if nwelem > MaxWElem {
		return nil, errMaxWElem
	}
	elems = dot.Body()[10:]
	if len(elems) < int(nwelem)*2 {
		return nil, errOverSize
	}
	if nwelem == 0 && len(elems) > 0 {
		return nil, errUnderSize
	}
	for i := uint16(0); i < nwelem; i++ {
		last := i == nwelem-1
		el, elems, err = verifyField(elems, last, 0)
		if err != nil {
			return nil, err
		} else if err := verifyString(el); err != nil {
			return nil, err
		} else if len(el) > MaxFilenameLen {
			return nil, errLongFilename
		}
	}
	return Twalk(dot), nil
}

func parseRwalk(dot msg) (Msg, error) {
	nwqid := guint16(dot.Body()[:2])
	if nwqid > MaxWElem {
		return nil, errMaxWElem
	}
	sz := int64(len(dot.Body()) - 2)
	if real := int64(nwqid) * QidLen; real < sz {
		return nil, errUnderSize
	} else if real > sz {
		return nil, errOverSize
	}
	for i := uint16(0); i < nwqid; i++ {
		if err := verifyQid(dot.Body()[2+i*QidLen : 2+(i+1)*QidLen]); err != nil {
			return nil, err
		}
	}
	return Rwalk(dot), nil
}

func parseTopen(dot msg) (Msg, error) {
	return Topen(dot), nil
}

func parseRopen(dot msg) (Msg, error) {
	if err := verifyQid(dot.Body()[:QidLen]); err != nil {
		return nil, err
	}
	return Ropen(dot), nil
}

func parseTcreate(dot msg) (Msg, error) {
	name, rest, err := verifyField(dot.Body()[4:], true, 5)
	if err != nil {
		return nil, err
	} else if err := verifyString(name); err != nil {
		return nil, err
	} else if len(name) > MaxFilenameLen {
		return nil, errLongFilename
	} else if len(rest) != 5 {
		// name must stop exactly at the perm[4] mode[1] trailer
		return nil, errOverSize
	}
	return Tcreate(dot), nil
}

func parseRcreate(dot msg) (Msg, error) {
	if err := verifyQid(dot.Body()[:QidLen]); err != nil {
		return nil, err
	}
	return Rcreate(dot), nil
}

func parseTread(dot msg) (Msg, error) {
	// size[4] Tread tag[2] fid[4] offset[8] count[4]
	if guint64(dot.Body()[4:12]) > MaxOffset {
		return nil, errMaxOffset
	}
	return Tread(dot), nil
}

func parseRread(dot msg) (Msg, error) {
	// size[4] Rread tag[2] count[4] data[count]
	count := int64(guint32(dot.Body()[:4]))
	realSize := count + int64(minSizeLUT[msgRread])
	if realSize < dot.Len() {
		return nil, errUnderSize
	} else if realSize > dot.Len() {
		return nil, errOverSize
	}
	return Rread(dot), nil
}

func parseTwrite(dot msg) (Msg, error) {
	// size[4] Twrite tag[2] fid[4] offset[8] count[4] data[count]
	if guint64(dot.Body()[4:12]) > MaxOffset {
		return nil, errMaxOffset
	}
	count := int64(guint32(dot.Body()[12:16]))
	realSize := count + int64(minSizeLUT[msgTwrite])
	if realSize < dot.Len() {
		return nil, errUnderSize
	} else if realSize > dot.Len() {
		return nil, errOverSize
	}
	return Twrite(dot), nil
}

func parseRwrite(dot msg) (Msg, error) {
	return Rwrite(dot), nil
}

func parseTclunk(dot msg) (Msg, error) {
	return Tclunk(dot), nil
}

func parseRclunk(dot msg) (Msg, error) {
	return Rclunk(dot), nil
}

func parseTremove(dot msg) (Msg, error) {
	return Tremove(dot), nil
}

func parseRremove(dot msg) (Msg, error) {
	return Rremove(dot), nil
}

func parseTstat(dot msg) (Msg, error) {
	return Tstat(dot), nil
}

func parseRstat(dot msg) (Msg, error) {
	stat, _, err := verifyField(dot.Body(), true, 0)
	if err != nil {
		return nil, err
	}
	if err := verifyStat(stat); err != nil {
		return nil, err
	}
	return Rstat(dot), nil
}

func parseTwstat(dot msg) (Msg, error) {
	stat, _, err := verifyField(dot.Body()[4:], true, 0)
	if err != nil {
		return nil, err
	}
	if err := verifyStat(stat); err != nil {
		return nil, err
	}
	return Twstat(dot), nil
}

func parseRwstat(dot msg) (Msg, error) {
	return Rwstat(dot), nil
}
