package filesync

import (
	"context"
	"fmt"
	"net"
	"sync"

	"github.com/danmuck/remotesync/internal/observability"
	"github.com/danmuck/remotesync/internal/protocol/message"
	"github.com/danmuck/remotesync/internal/transport"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

const DefaultChunkSize = 1024

// Sender delivers a message to one peer. transport.Server implements it.
type Sender interface {
	SendMessage(m message.Message, addr *net.UDPAddr) error
}

type Config struct {
	Root     string
	Username string
	// ChunkSize is the payload size of each RetrieveFileResponse.
	ChunkSize int
	// ChunksPerSecond paces chunk sends per retrieval. Zero is unpaced.
	ChunksPerSecond float64
	// RequireValid skips messages whose signature did not verify.
	RequireValid bool
	// PeerCapacity bounds remembered broadcast peers. Zero uses the default.
	PeerCapacity int
	Sink         transport.Sink
}

// Service is the server-side message router.
type Service struct {
	sender       Sender
	root         Root
	username     string
	chunkSize    int
	chunkRate    rate.Limit
	requireValid bool
	sink         transport.Sink

	versions *VersionTable
	peers    *Peers
	wg       sync.WaitGroup
}

func NewService(sender Sender, cfg Config) (*Service, error) {
	root, err := NewRoot(cfg.Root)
	if err != nil {
		return nil, fmt.Errorf("filesync: root: %w", err)
	}
	chunk := cfg.ChunkSize
	if chunk <= 0 {
		chunk = DefaultChunkSize
	}
	limit := rate.Inf
	if cfg.ChunksPerSecond > 0 {
		limit = rate.Limit(cfg.ChunksPerSecond)
	}
	sink := cfg.Sink
	if sink == nil {
		sink = transport.LogSink{Role: "filesync"}
	}
	return &Service{
		sender:       sender,
		root:         root,
		username:     cfg.Username,
		chunkSize:    chunk,
		chunkRate:    limit,
		requireValid: cfg.RequireValid,
		sink:         sink,
		versions:     NewVersionTable(),
		peers:        NewPeers(cfg.PeerCapacity),
	}, nil
}

func (s *Service) Versions() *VersionTable { return s.versions }
func (s *Service) Peers() *Peers           { return s.peers }

// Wait blocks until in-flight retrievals finish.
func (s *Service) Wait() {
	s.wg.Wait()
}

// HandleDelivery routes one inbound message.
func (s *Service) HandleDelivery(ctx context.Context, d transport.Delivery) {
	msg := d.Message
	if msg == nil {
		return
	}
	if !d.Valid && s.requireValid {
		s.sink.NotifyError(fmt.Sprintf("Ignored %s from %s: signature mismatch", message.Describe(msg), d.Addr))
		s.record(msg, false)
		return
	}
	s.peers.Add(msg.GetSession(), d.Addr)

	var err error
	switch m := msg.(type) {
	case *message.FileListRequest:
		err = s.handleList(m, d.Addr)
	case *message.RetrieveFileRequest:
		err = s.handleRetrieve(ctx, m, d.Addr)
	case *message.FileChangeBroadcast:
		err = s.handleBroadcast(m, d.Addr)
	default:
		log.Debug().Str("message", message.Describe(msg)).Msg("response received by server; not routed")
	}
	if err != nil {
		s.sink.NotifyError(fmt.Sprintf("Failed %s from %s: %v", message.Describe(msg), d.Addr, err))
	}
	s.record(msg, err == nil)
}

func (s *Service) record(m message.Message, ok bool) {
	observability.RecordMessageHandled(m.Type().String(), m.Subtype().String(), ok)
}

func (s *Service) reply(req message.Message) message.Envelope {
	return message.Envelope{ID: req.GetID(), Username: s.username, Session: req.GetSession()}
}

func (s *Service) handleList(m *message.FileListRequest, addr *net.UDPAddr) error {
	entries, err := s.root.List(m.Path)
	if err != nil {
		return err
	}
	return s.sender.SendMessage(&message.FileListResponse{Envelope: s.reply(m), FileList: entries}, addr)
}

// handleRetrieve reads the file up front and streams chunks on a separate
// goroutine so the read loop is not held by pacing.
func (s *Service) handleRetrieve(ctx context.Context, m *message.RetrieveFileRequest, addr *net.UDPAddr) error {
	data, mtime, err := s.root.ReadFile(m.FilePath)
	if err != nil {
		return err
	}
	version, ok := s.versions.Version(m.GetSession(), m.FilePath)
	if !ok {
		version = mtime
	}
	chunks := Split(data, s.chunkSize)
	env := s.reply(m)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		pace := rate.NewLimiter(s.chunkRate, 1)
		sent := 0
		for i, chunk := range chunks {
			if err := pace.Wait(ctx); err != nil {
				log.Debug().Err(err).Str("path", m.FilePath).Msg("retrieval cancelled")
				break
			}
			resp := &message.RetrieveFileResponse{
				Envelope:    env,
				FileLength:  int64(len(data)),
				FileVersion: version,
				TotalChunks: int64(len(chunks)),
				ChunkIndex:  int64(i),
				ChunkData:   chunk,
			}
			if err := s.sender.SendMessage(resp, addr); err != nil {
				s.sink.NotifyError(fmt.Sprintf("Chunk %d/%d of %s to %s failed: %v", i+1, len(chunks), m.FilePath, addr, err))
				break
			}
			sent++
		}
		observability.RecordChunksServed(sent)
		log.Debug().Str("path", m.FilePath).Int("chunks", sent).Stringer("peer", addr).Msg("retrieval served")
	}()
	return nil
}

func (s *Service) handleBroadcast(m *message.FileChangeBroadcast, addr *net.UDPAddr) error {
	if _, err := s.root.Resolve(m.FilePath); err != nil {
		return err
	}
	if !s.versions.Record(m.GetSession(), m.FilePath, m.FileVersion) {
		log.Debug().Str("path", m.FilePath).Int64("version", m.FileVersion).Msg("stale broadcast ignored")
		return nil
	}
	var firstErr error
	for _, peer := range s.peers.Others(m.GetSession(), addr) {
		if err := s.sender.SendMessage(m, peer); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("forward to %s: %w", peer, err)
		}
	}
	return firstErr
}

// Split cuts data into size-byte chunks. Empty data yields one empty chunk.
func Split(data []byte, size int) [][]byte {
	if size <= 0 {
		size = DefaultChunkSize
	}
	if len(data) == 0 {
		return [][]byte{{}}
	}
	out := make([][]byte, 0, (len(data)+size-1)/size)
	for start := 0; start < len(data); start += size {
		end := min(start+size, len(data))
		out = append(out, data[start:end])
	}
	return out
}
