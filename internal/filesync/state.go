package filesync

import (
	"net"
	"sort"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
)

type versionKey struct {
	session string
	path    string
}

// VersionTable records the latest broadcast version per (session, path).
type VersionTable struct {
	mu       sync.RWMutex
	versions map[versionKey]int64
}

func NewVersionTable() *VersionTable {
	return &VersionTable{versions: make(map[versionKey]int64)}
}

// Record stores version when it is newer than the known one and reports
// whether it did.
func (t *VersionTable) Record(session, path string, version int64) bool {
	k := versionKey{session: session, path: path}
	t.mu.Lock()
	defer t.mu.Unlock()
	if cur, ok := t.versions[k]; ok && cur >= version {
		return false
	}
	t.versions[k] = version
	return true
}

func (t *VersionTable) Version(session, path string) (int64, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	v, ok := t.versions[versionKey{session: session, path: path}]
	return v, ok
}

// DefaultPeerCapacity bounds the addresses Peers remembers across sessions.
const DefaultPeerCapacity = 1024

type peerKey struct {
	session string
	addr    string
}

// Peers tracks the addresses seen per session. The least recently seen
// address is forgotten once capacity is reached.
type Peers struct {
	members *lru.Cache[peerKey, *net.UDPAddr]
}

func NewPeers(capacity int) *Peers {
	if capacity <= 0 {
		capacity = DefaultPeerCapacity
	}
	cache, err := lru.New[peerKey, *net.UDPAddr](capacity)
	if err != nil {
		panic(err)
	}
	return &Peers{members: cache}
}

func (p *Peers) Add(session string, addr *net.UDPAddr) {
	if addr == nil {
		return
	}
	p.members.Add(peerKey{session: session, addr: addr.String()}, addr)
}

// Others returns the session members except exclude, ordered by address.
func (p *Peers) Others(session string, exclude *net.UDPAddr) []*net.UDPAddr {
	skip := ""
	if exclude != nil {
		skip = exclude.String()
	}
	var out []*net.UDPAddr
	for _, k := range p.members.Keys() {
		if k.session != session || k.addr == skip {
			continue
		}
		if addr, ok := p.members.Peek(k); ok {
			out = append(out, addr)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out
}

func (p *Peers) Len(session string) int {
	n := 0
	for _, k := range p.members.Keys() {
		if k.session == session {
			n++
		}
	}
	return n
}
