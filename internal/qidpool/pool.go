// Package qidpool manages pools of 9P Qids, unique 13-byte
// identifiers for files.
package qidpool

import (
	"sync"
	"sync/atomic"

	"aqwari.net/net/ninep/ninepproto"
)

// A Pool maintains a set of unique Qids for the files on a 9P file
// server, keyed by name. Paths are assigned in order of creation,
// starting at 0. A Pool must be created with a call to New.
type Pool struct {
	m    sync.Map
	path uint64
}

// New returns a new, empty Pool.
func New() *Pool {
	return &Pool{}
}

// LoadOrStore creates a new, unique Qid of the given type and adds
// it to the pool. The returned Qid should be considered read-only.
// LoadOrStore will not modify an existing Qid; if there is already a
// Qid associated with name, it is returned instead.
func (p *Pool) LoadOrStore(name string, qtype ninepproto.QidType) ninepproto.Qid {
	if v, ok := p.m.Load(name); ok {
		return v.(ninepproto.Qid)
	}
	buf := make([]byte, ninepproto.QidLen)
	path := atomic.AddUint64(&p.path, 1) - 1

	qid, _, err := ninepproto.NewQid(buf, qtype, 0, path)
	if err != nil {
		panic(err)
	}
	return p.LoadOrStoreQid(name, qid)
}

// LoadOrStoreQid adds a caller-provided Qid to the pool under name.
// If there is already a Qid associated with name, it is returned
// instead.
func (p *Pool) LoadOrStoreQid(name string, qid ninepproto.Qid) ninepproto.Qid {
	actual, _ := p.m.LoadOrStore(name, qid)
	return actual.(ninepproto.Qid)
}

// Del removes a Qid from a Pool. Once a Qid is removed from a pool,
// its path will never be used again.
func (p *Pool) Del(name string) {
	p.m.Delete(name)
}

// Load fetches the Qid currently associated with name from the pool.
// The Qid is only valid if the second return value is true.
func (p *Pool) Load(name string) (ninepproto.Qid, bool) {
	if v, ok := p.m.Load(name); ok {
		return v.(ninepproto.Qid), true
	}
	return nil, false
}
