package filesync

import (
	"bytes"
	"fmt"
	"sync"

	"github.com/danmuck/remotesync/internal/protocol/message"
	"github.com/danmuck/remotesync/internal/protocol/packet"
	lru "github.com/hashicorp/golang-lru/v2"
)

const DefaultPendingAssemblies = 64

type assemblyKey struct {
	session string
	id      uint64
}

type assembly struct {
	total    int64
	length   int64
	version  int64
	received int64
	chunks   map[int64][]byte
}

// Assembler rebuilds files from RetrieveFileResponse chunks. Transfers are
// keyed by (session, id); the least recently touched transfer is evicted
// when the cache is full.
type Assembler struct {
	mu      sync.Mutex
	pending *lru.Cache[assemblyKey, *assembly]
}

func NewAssembler(size int) *Assembler {
	if size <= 0 {
		size = DefaultPendingAssemblies
	}
	cache, err := lru.New[assemblyKey, *assembly](size)
	if err != nil {
		panic(err)
	}
	return &Assembler{pending: cache}
}

// Add stores one chunk. It returns the file contents and true once every
// chunk of the transfer has arrived. Duplicate chunks are ignored.
func (a *Assembler) Add(r *message.RetrieveFileResponse) ([]byte, bool, error) {
	if r == nil {
		return nil, false, message.ErrNilMessage
	}
	if !plausible(r) {
		return nil, false, fmt.Errorf("%w: chunk %d of %d, length %d", ErrInconsistentChunk, r.ChunkIndex, r.TotalChunks, r.FileLength)
	}
	key := assemblyKey{session: r.Session, id: r.ID}

	a.mu.Lock()
	defer a.mu.Unlock()

	cur, ok := a.pending.Get(key)
	if !ok {
		cur = &assembly{
			total:   r.TotalChunks,
			length:  r.FileLength,
			version: r.FileVersion,
			chunks:  make(map[int64][]byte),
		}
		a.pending.Add(key, cur)
	}
	if cur.total != r.TotalChunks || cur.length != r.FileLength || cur.version != r.FileVersion {
		return nil, false, fmt.Errorf("%w: transfer %d changed shape", ErrInconsistentChunk, r.ID)
	}
	if _, dup := cur.chunks[r.ChunkIndex]; dup {
		return nil, false, nil
	}
	if cur.received+int64(len(r.ChunkData)) > cur.length {
		a.pending.Remove(key)
		return nil, false, fmt.Errorf("%w: transfer %d exceeds %d bytes", ErrInconsistentChunk, r.ID, cur.length)
	}
	cur.chunks[r.ChunkIndex] = bytes.Clone(r.ChunkData)
	cur.received += int64(len(r.ChunkData))
	if int64(len(cur.chunks)) < cur.total {
		return nil, false, nil
	}

	a.pending.Remove(key)
	var buf bytes.Buffer
	for i := int64(0); i < cur.total; i++ {
		buf.Write(cur.chunks[i])
	}
	if int64(buf.Len()) != cur.length {
		return nil, false, fmt.Errorf("%w: assembled %d bytes, expected %d", ErrInconsistentChunk, buf.Len(), cur.length)
	}
	out := buf.Bytes()
	if out == nil {
		out = []byte{}
	}
	return out, true, nil
}

// plausible bounds the peer-claimed shape: a file of n bytes splits into at
// most max(1, n) chunks, each no larger than one datagram.
func plausible(r *message.RetrieveFileResponse) bool {
	if r.TotalChunks < 1 || r.ChunkIndex < 0 || r.ChunkIndex >= r.TotalChunks || r.FileLength < 0 {
		return false
	}
	if r.FileLength > 0 && r.TotalChunks > r.FileLength {
		return false
	}
	if r.FileLength == 0 && r.TotalChunks != 1 {
		return false
	}
	return r.FileLength/packet.MaxDatagramSize < r.TotalChunks
}

// Progress reports received and total chunks for an in-flight transfer.
func (a *Assembler) Progress(session string, id uint64) (received, total int64, ok bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	cur, ok := a.pending.Peek(assemblyKey{session: session, id: id})
	if !ok {
		return 0, 0, false
	}
	return int64(len(cur.chunks)), cur.total, true
}

func (a *Assembler) Pending() int {
	return a.pending.Len()
}
