package main

import (
	"context"
	"fmt"
	"os"
	"sync"
	"text/tabwriter"
	"time"

	"github.com/danmuck/remotesync/internal/filesync"
	"github.com/danmuck/remotesync/internal/protocol/message"
	"github.com/danmuck/remotesync/internal/protocol/packet"
	"github.com/danmuck/remotesync/internal/transport"
	"github.com/rs/zerolog/log"
)

// dial connects a client and waits for it to be running.
func (a *app) dial(h transport.Handler) (*transport.Client, error) {
	c := transport.NewClient(transport.ClientConfig{
		Addr:    a.cfg.Client.Addr,
		Port:    a.cfg.Client.Port,
		Key:     a.key(),
		Sink:    transport.LogSink{Role: "client"},
		Handler: h,
	})
	started := make(chan error, 1)
	if err := c.Run(func(err error) { started <- err }); err != nil {
		return nil, err
	}
	select {
	case err := <-started:
		if err != nil {
			return nil, err
		}
	case <-a.ctx.Done():
		c.Stop()
		return nil, a.ctx.Err()
	}
	return c, nil
}

// verified applies client.require_signature to an inbound delivery.
func (a *app) verified(d transport.Delivery) bool {
	if d.Valid || !a.cfg.Client.RequireSignature {
		return true
	}
	log.Warn().
		Str("message", message.Describe(d.Message)).
		Stringer("peer", d.Addr).
		Msg("dropped reply: signature mismatch")
	return false
}

func (a *app) retrier(send func() error) *filesync.Retrier {
	return filesync.NewRetrier(a.cfg.Client.RetryInterval, a.cfg.Client.RetryAttempts, send)
}

func (a *app) waitContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(a.ctx, a.cfg.Client.Wait)
}

type listCmd struct {
	Path string `arg:"" optional:"" default:"/" help:"Remote directory"`
}

func (c *listCmd) Run(a *app) error {
	id := newRequestID()
	req := &message.FileListRequest{Envelope: a.envelope(id), Path: c.Path}

	var client *transport.Client
	result := make(chan []packet.FileEntry, 1)
	retry := a.retrier(func() error { return client.SendMessage(req) })

	client, err := a.dial(transport.HandlerFunc(func(_ context.Context, d transport.Delivery) {
		resp, ok := d.Message.(*message.FileListResponse)
		if !ok || resp.ID != id || !a.verified(d) {
			return
		}
		select {
		case result <- resp.FileList:
		default:
		}
		retry.Done()
	}))
	if err != nil {
		return err
	}
	defer client.Stop()

	entries, err := awaitReply(a, retry, result)
	if err != nil {
		return fmt.Errorf("list %s: %w", c.Path, err)
	}
	tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	for _, e := range entries {
		if e.Size == packet.DirSize {
			fmt.Fprintf(tw, "%s/\t-\n", e.Path)
			continue
		}
		fmt.Fprintf(tw, "%s\t%d\n", e.Path, e.Size)
	}
	return tw.Flush()
}

// awaitReply starts retry and waits for the first value on result.
func awaitReply[T any](a *app, retry *filesync.Retrier, result chan T) (T, error) {
	var zero T
	if err := retry.Start(); err != nil {
		return zero, err
	}
	ctx, cancel := a.waitContext()
	defer cancel()
	defer retry.Done()

	if err := retry.Wait(ctx); err != nil {
		select {
		case v := <-result:
			return v, nil
		default:
		}
		return zero, err
	}
	select {
	case v := <-result:
		return v, nil
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

type fetchCmd struct {
	Path   string `arg:"" help:"Remote file"`
	Output string `short:"o" placeholder:"FILE" help:"Write to FILE instead of stdout"`
}

func (c *fetchCmd) Run(a *app) error {
	id := newRequestID()
	req := &message.RetrieveFileRequest{Envelope: a.envelope(id), FilePath: c.Path}

	var client *transport.Client
	asm := filesync.NewAssembler(1)
	firstChunk := make(chan struct{}, 1)
	done := make(chan []byte, 1)
	failed := make(chan error, 1)
	retry := a.retrier(func() error { return client.SendMessage(req) })
	var doneOnce sync.Once

	client, err := a.dial(transport.HandlerFunc(func(_ context.Context, d transport.Delivery) {
		resp, ok := d.Message.(*message.RetrieveFileResponse)
		if !ok || resp.ID != id || !a.verified(d) {
			return
		}
		select {
		case firstChunk <- struct{}{}:
		default:
		}
		retry.Done()
		data, complete, err := asm.Add(resp)
		if err != nil {
			select {
			case failed <- err:
			default:
			}
			return
		}
		if complete {
			doneOnce.Do(func() { done <- data })
		}
	}))
	if err != nil {
		return err
	}
	defer client.Stop()

	if _, err := awaitReply(a, retry, firstChunk); err != nil {
		return fmt.Errorf("fetch %s: %w", c.Path, err)
	}

	ctx, cancel := a.waitContext()
	defer cancel()
	var data []byte
	select {
	case data = <-done:
	case err := <-failed:
		return fmt.Errorf("fetch %s: %w", c.Path, err)
	case <-ctx.Done():
		received, total, _ := asm.Progress(a.cfg.Peer.Session, id)
		return fmt.Errorf("fetch %s: incomplete, %d of %d chunks: %w", c.Path, received, total, ctx.Err())
	}

	if c.Output == "" {
		_, err := a.out.Write(data)
		return err
	}
	if err := os.WriteFile(c.Output, data, 0o644); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "wrote %s (%d bytes)\n", c.Output, len(data))
	return nil
}

type notifyCmd struct {
	Path    string `arg:"" help:"Remote path that changed"`
	Version int64  `help:"New file version (default: current unix time)"`
	Length  int64  `help:"New file length in bytes"`
}

func (c *notifyCmd) Run(a *app) error {
	version := c.Version
	if version == 0 {
		version = time.Now().Unix()
	}
	client, err := a.dial(nil)
	if err != nil {
		return err
	}
	defer client.Stop()

	b := &message.FileChangeBroadcast{
		Envelope:    a.envelope(newRequestID()),
		FilePath:    c.Path,
		FileVersion: version,
		FileLength:  c.Length,
	}
	if err := client.SendMessage(b); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "notified %s version %d\n", c.Path, version)
	return nil
}

type watchCmd struct{}

func (c *watchCmd) Run(a *app) error {
	id := newRequestID()
	req := &message.FileListRequest{Envelope: a.envelope(id), Path: "/"}

	var client *transport.Client
	registered := make(chan struct{}, 1)
	retry := a.retrier(func() error { return client.SendMessage(req) })
	var mu sync.Mutex

	client, err := a.dial(transport.HandlerFunc(func(_ context.Context, d transport.Delivery) {
		if !a.verified(d) {
			return
		}
		switch m := d.Message.(type) {
		case *message.FileListResponse:
			if m.ID != id {
				return
			}
			select {
			case registered <- struct{}{}:
			default:
			}
			retry.Done()
		case *message.FileChangeBroadcast:
			mu.Lock()
			fmt.Fprintf(a.out, "%s changed: version %d, %d bytes (from %s, signature valid: %t)\n",
				m.FilePath, m.FileVersion, m.FileLength, m.Username, d.Valid)
			mu.Unlock()
		}
	}))
	if err != nil {
		return err
	}
	defer client.Stop()

	if _, err := awaitReply(a, retry, registered); err != nil {
		return fmt.Errorf("watch: register: %w", err)
	}
	mu.Lock()
	fmt.Fprintf(a.out, "watching session %s\n", a.cfg.Peer.Session)
	mu.Unlock()
	<-a.ctx.Done()
	return nil
}
