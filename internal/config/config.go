package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/danmuck/remotesync/internal/protocol/packet"
	"github.com/google/uuid"
)

const (
	DefaultPort          = 8080
	DefaultServerAddr    = "0.0.0.0"
	DefaultClientAddr    = "127.0.0.1"
	DefaultChunkSize     = 1024
	DefaultRetryInterval = time.Second
	DefaultRetryAttempts = 5
	DefaultWait          = 10 * time.Second
	DefaultPeerCache     = 1024

	// ChunkOverhead is the datagram budget reserved for the envelope, chunk
	// metadata and signature around each chunk, excluding username and session.
	ChunkOverhead = 512
)

type Config struct {
	Peer   PeerConfig
	Server ServerConfig
	Client ClientConfig
	Admin  AdminConfig
	Log    LogConfig
}

type PeerConfig struct {
	Username string
	Session  string
	// Key is the shared HMAC key. Empty selects the well-known default key.
	Key string
}

type ServerConfig struct {
	Addr             string
	Port             int
	Root             string
	ChunkSize        int
	ChunksPerSecond  float64
	RequireSignature bool
	PeerRate         float64
	PeerBurst        int
	PeerCache        int
}

type ClientConfig struct {
	Addr          string
	Port          int
	RetryInterval time.Duration
	RetryAttempts int
	Wait          time.Duration
	// RequireSignature drops replies and broadcasts whose signature did not verify.
	RequireSignature bool
}

type AdminConfig struct {
	// Addr is the admin HTTP listen address. Empty disables the admin server.
	Addr string
}

type LogConfig struct {
	Level string
}

// Default returns a complete configuration with a fresh random session id.
func Default() Config {
	return Config{
		Peer: PeerConfig{
			Username: defaultUsername(),
			Session:  uuid.NewString(),
		},
		Server: ServerConfig{
			Addr:             DefaultServerAddr,
			Port:             DefaultPort,
			Root:             ".",
			ChunkSize:        DefaultChunkSize,
			RequireSignature: true,
			PeerCache:        DefaultPeerCache,
		},
		Client: ClientConfig{
			Addr:             DefaultClientAddr,
			Port:             DefaultPort,
			RetryInterval:    DefaultRetryInterval,
			RetryAttempts:    DefaultRetryAttempts,
			Wait:             DefaultWait,
			RequireSignature: true,
		},
	}
}

func defaultUsername() string {
	for _, env := range []string{"USER", "USERNAME"} {
		if v := strings.TrimSpace(os.Getenv(env)); v != "" {
			return v
		}
	}
	return "remotesync"
}

type fileConfig struct {
	Peer struct {
		Username string `toml:"username"`
		Session  string `toml:"session"`
		Key      string `toml:"key"`
	} `toml:"peer"`
	Server struct {
		Addr             string  `toml:"addr"`
		Port             int     `toml:"port"`
		Root             string  `toml:"root"`
		ChunkSize        int     `toml:"chunk_size"`
		ChunksPerSecond  float64 `toml:"chunks_per_second"`
		RequireSignature bool    `toml:"require_signature"`
		PeerRate         float64 `toml:"peer_rate"`
		PeerBurst        int     `toml:"peer_burst"`
		PeerCache        int     `toml:"peer_cache"`
	} `toml:"server"`
	Client struct {
		Addr             string `toml:"addr"`
		Port             int    `toml:"port"`
		RetryInterval    string `toml:"retry_interval"`
		RetryAttempts    int    `toml:"retry_attempts"`
		Wait             string `toml:"wait"`
		RequireSignature bool   `toml:"require_signature"`
	} `toml:"client"`
	Admin struct {
		Addr string `toml:"addr"`
	} `toml:"admin"`
	Log struct {
		Level string `toml:"level"`
	} `toml:"log"`
}

// Load overlays the keys present in the TOML file at path onto Default and
// validates the result.
func Load(path string) (Config, error) {
	cfg := Default()

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return Config{}, fmt.Errorf("config load failed (%s): %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return Config{}, fmt.Errorf("config parse failed (%s): unknown key %q", path, undecoded[0].String())
	}

	if meta.IsDefined("peer", "username") {
		cfg.Peer.Username = strings.TrimSpace(raw.Peer.Username)
	}
	if meta.IsDefined("peer", "session") {
		cfg.Peer.Session = strings.TrimSpace(raw.Peer.Session)
	}
	if meta.IsDefined("peer", "key") {
		cfg.Peer.Key = raw.Peer.Key
	}

	if meta.IsDefined("server", "addr") {
		cfg.Server.Addr = strings.TrimSpace(raw.Server.Addr)
	}
	if meta.IsDefined("server", "port") {
		cfg.Server.Port = raw.Server.Port
	}
	if meta.IsDefined("server", "root") {
		cfg.Server.Root = strings.TrimSpace(raw.Server.Root)
	}
	if meta.IsDefined("server", "chunk_size") {
		cfg.Server.ChunkSize = raw.Server.ChunkSize
	}
	if meta.IsDefined("server", "chunks_per_second") {
		cfg.Server.ChunksPerSecond = raw.Server.ChunksPerSecond
	}
	if meta.IsDefined("server", "require_signature") {
		cfg.Server.RequireSignature = raw.Server.RequireSignature
	}
	if meta.IsDefined("server", "peer_rate") {
		cfg.Server.PeerRate = raw.Server.PeerRate
	}
	if meta.IsDefined("server", "peer_burst") {
		cfg.Server.PeerBurst = raw.Server.PeerBurst
	}
	if meta.IsDefined("server", "peer_cache") {
		cfg.Server.PeerCache = raw.Server.PeerCache
	}

	if meta.IsDefined("client", "addr") {
		cfg.Client.Addr = strings.TrimSpace(raw.Client.Addr)
	}
	if meta.IsDefined("client", "port") {
		cfg.Client.Port = raw.Client.Port
	}
	if meta.IsDefined("client", "retry_interval") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.Client.RetryInterval))
		if err != nil {
			return Config{}, fmt.Errorf("parse client.retry_interval: %w", err)
		}
		cfg.Client.RetryInterval = d
	}
	if meta.IsDefined("client", "retry_attempts") {
		cfg.Client.RetryAttempts = raw.Client.RetryAttempts
	}
	if meta.IsDefined("client", "wait") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.Client.Wait))
		if err != nil {
			return Config{}, fmt.Errorf("parse client.wait: %w", err)
		}
		cfg.Client.Wait = d
	}
	if meta.IsDefined("client", "require_signature") {
		cfg.Client.RequireSignature = raw.Client.RequireSignature
	}

	if meta.IsDefined("admin", "addr") {
		cfg.Admin.Addr = strings.TrimSpace(raw.Admin.Addr)
	}
	if meta.IsDefined("log", "level") {
		cfg.Log.Level = strings.TrimSpace(raw.Log.Level)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("config invalid (%s): %w", path, err)
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if c.Peer.Session == "" {
		return fmt.Errorf("peer.session is required")
	}
	if err := validPort("server.port", c.Server.Port, true); err != nil {
		return err
	}
	if err := validPort("client.port", c.Client.Port, false); err != nil {
		return err
	}
	if c.Server.ChunkSize <= 0 {
		return fmt.Errorf("server.chunk_size must be positive")
	}
	if limit := c.Peer.MaxChunkSize(); c.Server.ChunkSize > limit {
		return fmt.Errorf("server.chunk_size %d exceeds %d, the largest that fits one datagram", c.Server.ChunkSize, limit)
	}
	if c.Server.ChunksPerSecond < 0 {
		return fmt.Errorf("server.chunks_per_second must not be negative")
	}
	if c.Server.PeerRate < 0 || c.Server.PeerBurst < 0 || c.Server.PeerCache < 0 {
		return fmt.Errorf("server peer limits must not be negative")
	}
	if c.Client.RetryInterval <= 0 {
		return fmt.Errorf("client.retry_interval must be positive")
	}
	if c.Client.RetryAttempts < 1 {
		return fmt.Errorf("client.retry_attempts must be at least 1")
	}
	if c.Client.Wait <= 0 {
		return fmt.Errorf("client.wait must be positive")
	}
	return nil
}

func validPort(name string, port int, allowZero bool) error {
	if port == 0 && allowZero {
		return nil
	}
	if port < 1 || port > 65535 {
		return fmt.Errorf("%s out of range: %d", name, port)
	}
	return nil
}

// MaxChunkSize is the largest chunk payload that still fits one signed
// datagram for this identity.
func (c PeerConfig) MaxChunkSize() int {
	return packet.MaxDatagramSize - ChunkOverhead - len(c.Username) - len(c.Session)
}

// KeyBytes is the HMAC key, or nil when the default key applies.
func (c PeerConfig) KeyBytes() []byte {
	if c.Key == "" {
		return nil
	}
	return []byte(c.Key)
}
