package main

import (
	"context"
	"errors"

	"github.com/danmuck/remotesync/internal/admin"
	"github.com/danmuck/remotesync/internal/filesync"
	"github.com/danmuck/remotesync/internal/transport"
	"github.com/rs/zerolog/log"
	"github.com/thejerf/suture/v4"
)

type serveCmd struct {
	Root string `placeholder:"DIR" help:"Directory to serve (overrides server.root)"`
	Port int    `help:"UDP port (overrides server.port)"`
}

func (c *serveCmd) Run(a *app) error {
	if c.Root != "" {
		a.cfg.Server.Root = c.Root
	}
	if c.Port != 0 {
		a.cfg.Server.Port = c.Port
	}
	srv, svc, err := a.newServer()
	if err != nil {
		return err
	}

	sup := suture.New("remotectl", suture.Spec{
		EventHook: func(e suture.Event) {
			log.Warn().Fields(e.Map()).Msg(e.String())
		},
	})
	sup.Add(srv)
	if addr := a.cfg.Admin.Addr; addr != "" {
		sup.Add(admin.New("remotesync", addr, srv, nil))
	}

	log.Info().
		Str("root", a.cfg.Server.Root).
		Int("port", a.cfg.Server.Port).
		Str("admin", a.cfg.Admin.Addr).
		Msg("serving")

	err = sup.Serve(a.ctx)
	svc.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// newServer wires the UDP server to the file sync router.
func (a *app) newServer() (*transport.Server, *filesync.Service, error) {
	sc := a.cfg.Server
	srv := transport.NewServer(transport.ServerConfig{
		Addr:      sc.Addr,
		Port:      sc.Port,
		Key:       a.key(),
		Sink:      transport.LogSink{Role: "server"},
		PeerRate:  sc.PeerRate,
		PeerBurst: sc.PeerBurst,
		PeerCache: sc.PeerCache,
	})
	svc, err := filesync.NewService(srv, filesync.Config{
		Root:            sc.Root,
		Username:        a.cfg.Peer.Username,
		ChunkSize:       sc.ChunkSize,
		ChunksPerSecond: sc.ChunksPerSecond,
		RequireValid:    sc.RequireSignature,
		PeerCapacity:    sc.PeerCache,
		Sink:            transport.LogSink{Role: "filesync"},
	})
	if err != nil {
		return nil, nil, err
	}
	srv.SetHandler(svc)
	return srv, svc, nil
}
