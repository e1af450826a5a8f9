// Command remotectl runs a remotesync file server or talks to one.
package main

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/alecthomas/kong"
	"github.com/danmuck/remotesync/internal/config"
	"github.com/danmuck/remotesync/internal/logging"
	"github.com/danmuck/remotesync/internal/protocol/message"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

type CLI struct {
	Config   string `short:"c" placeholder:"PATH" env:"REMOTESYNC_CONFIG" help:"TOML config file"`
	LogLevel string `name:"log-level" placeholder:"LEVEL" help:"Override the configured log level"`

	Serve  serveCmd  `cmd:"" help:"Serve a directory over UDP"`
	List   listCmd   `cmd:"" help:"List a remote directory"`
	Fetch  fetchCmd  `cmd:"" help:"Retrieve a remote file"`
	Notify notifyCmd `cmd:"" help:"Broadcast a file change to the session"`
	Watch  watchCmd  `cmd:"" help:"Print file change broadcasts for the session"`
	Init   initCmd   `cmd:"" help:"Write a starter config file"`
}

// app is the state bound into every command's Run.
type app struct {
	ctx context.Context
	cfg config.Config
	out io.Writer
}

func main() {
	logging.ConfigureRuntime()

	var cli CLI
	kctx := kong.Parse(&cli,
		kong.Name("remotectl"),
		kong.Description("Signed UDP file listing, retrieval and change notification."),
		kong.UsageOnError(),
	)

	cfg, err := cli.load()
	kctx.FatalIfErrorf(err)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := kctx.Run(&app{ctx: ctx, cfg: cfg, out: os.Stdout}); err != nil {
		fmt.Fprintf(os.Stderr, "remotectl: %v\n", err)
		os.Exit(1)
	}
}

func (c CLI) load() (config.Config, error) {
	cfg := config.Default()
	if path := strings.TrimSpace(c.Config); path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return config.Config{}, err
		}
		cfg = loaded
	}
	level := cfg.Log.Level
	if c.LogLevel != "" {
		level = c.LogLevel
	}
	if level != "" && !logging.SetLevel(level) {
		return config.Config{}, fmt.Errorf("unknown log level %q", level)
	}
	return cfg, nil
}

func (a *app) key() []byte {
	key := a.cfg.Peer.KeyBytes()
	if key == nil {
		log.Warn().Msg("no key configured; signing with the well-known default key")
	}
	return key
}

func (a *app) envelope(id uint64) message.Envelope {
	return message.Envelope{ID: id, Username: a.cfg.Peer.Username, Session: a.cfg.Peer.Session}
}

func newRequestID() uint64 {
	id := uuid.New()
	return binary.BigEndian.Uint64(id[:8])
}

type initCmd struct {
	Path  string `arg:"" optional:"" default:"remotesync.toml" help:"Where to write the config"`
	Force bool   `help:"Overwrite an existing file"`
}

func (c *initCmd) Run(a *app) error {
	if err := config.WriteTemplate(c.Path, c.Force); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "wrote %s\n", c.Path)
	return nil
}
