package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/danmuck/remotesync/internal/config"
	"github.com/danmuck/remotesync/internal/testutil/testlog"
)

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met before deadline")
}

func baseConfig(root string) config.Config {
	cfg := config.Default()
	cfg.Peer.Username = "tester"
	cfg.Peer.Session = "test-session"
	cfg.Peer.Key = "test-key"
	cfg.Server.Addr = "127.0.0.1"
	cfg.Server.Port = 0
	cfg.Server.Root = root
	cfg.Client.Addr = "127.0.0.1"
	cfg.Client.RetryInterval = 20 * time.Millisecond
	cfg.Client.RetryAttempts = 5
	cfg.Client.Wait = 2 * time.Second
	return cfg
}

// startServer runs a server for root and returns a client-side config
// pointed at it.
func startServer(t *testing.T, root string) config.Config {
	t.Helper()
	return startServerWith(t, root, nil)
}

// startServerWith is startServer with the server-side config adjusted by mutate.
func startServerWith(t *testing.T, root string, mutate func(*config.Config)) config.Config {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	serverCfg := baseConfig(root)
	if mutate != nil {
		mutate(&serverCfg)
	}
	a := &app{ctx: ctx, cfg: serverCfg, out: &syncBuffer{}}
	srv, svc, err := a.newServer()
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	done := make(chan struct{})
	go func() {
		_ = srv.Serve(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
		svc.Wait()
	})
	waitFor(t, srv.IsRunning)

	cfg := baseConfig(root)
	cfg.Client.Port = srv.LocalAddr().Port
	return cfg
}

func newApp(t *testing.T, cfg config.Config) (*app, *syncBuffer) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	out := &syncBuffer{}
	return &app{ctx: ctx, cfg: cfg, out: out}, out
}

func writeFile(t *testing.T, path string, data []byte) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func TestListCommand(t *testing.T) {
	testlog.Start(t)
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "a.txt"), []byte("hello"))
	writeFile(t, filepath.Join(root, "sub", "b.txt"), []byte("x"))

	a, out := newApp(t, startServer(t, root))
	if err := (&listCmd{Path: "/"}).Run(a); err != nil {
		t.Fatalf("list: %v", err)
	}
	got := out.String()
	if !strings.Contains(got, "a.txt") || !strings.Contains(got, "5") || !strings.Contains(got, "sub/") {
		t.Fatalf("unexpected listing:\n%s", got)
	}
}

func TestFetchCommandReassemblesChunks(t *testing.T) {
	testlog.Start(t)
	root := t.TempDir()
	data := bytes.Repeat([]byte("remotesync"), 300)
	writeFile(t, filepath.Join(root, "big.bin"), data)

	a, out := newApp(t, startServer(t, root))
	dest := filepath.Join(t.TempDir(), "big.bin")
	if err := (&fetchCmd{Path: "big.bin", Output: dest}).Run(a); err != nil {
		t.Fatalf("fetch: %v", err)
	}
	got, err := os.ReadFile(dest)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Fatalf("fetched %d bytes, want %d", len(got), len(data))
	}
	if !strings.Contains(out.String(), "wrote") {
		t.Fatalf("missing summary: %q", out.String())
	}
}

func TestFetchMissingFileGivesUp(t *testing.T) {
	testlog.Start(t)
	cfg := startServer(t, t.TempDir())
	cfg.Client.RetryAttempts = 2
	cfg.Client.Wait = 500 * time.Millisecond

	a, _ := newApp(t, cfg)
	if err := (&fetchCmd{Path: "absent.txt"}).Run(a); err == nil {
		t.Fatalf("expected fetch of missing file to fail")
	}
}

func TestListRejectedWithWrongKey(t *testing.T) {
	testlog.Start(t)
	cfg := startServer(t, t.TempDir())
	cfg.Peer.Key = "other-key"
	cfg.Client.RetryAttempts = 2
	cfg.Client.Wait = 500 * time.Millisecond

	a, _ := newApp(t, cfg)
	if err := (&listCmd{Path: "/"}).Run(a); err == nil {
		t.Fatalf("expected unsigned request to go unanswered")
	}
}

// spoofingServer answers every request but signs with a key the client
// does not share.
func spoofingServer(t *testing.T, root string) config.Config {
	t.Helper()
	return startServerWith(t, root, func(c *config.Config) {
		c.Peer.Key = "spoof-key"
		c.Server.RequireSignature = false
	})
}

func TestRepliesWithForeignSignatureDropped(t *testing.T) {
	logs := testlog.Capture(t)
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "a.txt"), []byte("forged"))
	cfg := spoofingServer(t, root)
	cfg.Client.RetryAttempts = 2
	cfg.Client.Wait = 500 * time.Millisecond

	a, out := newApp(t, cfg)
	if err := (&listCmd{Path: "/"}).Run(a); err == nil {
		t.Fatalf("expected forged listing to be dropped")
	}
	dest := filepath.Join(t.TempDir(), "a.txt")
	if err := (&fetchCmd{Path: "a.txt", Output: dest}).Run(a); err == nil {
		t.Fatalf("expected forged chunks to be dropped")
	}
	if _, err := os.Stat(dest); !os.IsNotExist(err) {
		t.Fatalf("forged file written: %v", err)
	}
	if strings.Contains(out.String(), "a.txt") {
		t.Fatalf("forged listing printed:\n%s", out.String())
	}
	if !logs.Contains("dropped reply: signature mismatch", "FILE_LIST/RESPONSE") ||
		!logs.Contains("dropped reply: signature mismatch", "RETRIEVE_FILE/RESPONSE") {
		t.Fatalf("drops not logged:\n%s", logs)
	}
}

func TestRepliesWithForeignSignatureAcceptedWhenPermitted(t *testing.T) {
	testlog.Start(t)
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "a.txt"), []byte("forged"))
	cfg := spoofingServer(t, root)
	cfg.Client.RequireSignature = false

	a, out := newApp(t, cfg)
	if err := (&fetchCmd{Path: "a.txt"}).Run(a); err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if out.String() != "forged" {
		t.Fatalf("unexpected output: %q", out.String())
	}
}

func TestNotifyReachesWatcher(t *testing.T) {
	testlog.Start(t)
	root := t.TempDir()
	cfg := startServer(t, root)

	watcher, watchOut := newApp(t, cfg)
	ctx, cancel := context.WithCancel(context.Background())
	watcher.ctx = ctx
	done := make(chan error, 1)
	go func() { done <- (&watchCmd{}).Run(watcher) }()
	waitFor(t, func() bool { return strings.Contains(watchOut.String(), "watching session test-session") })

	notifier, notifyOut := newApp(t, cfg)
	if err := (&notifyCmd{Path: "doc.txt", Version: 7, Length: 12}).Run(notifier); err != nil {
		t.Fatalf("notify: %v", err)
	}
	if !strings.Contains(notifyOut.String(), "notified doc.txt version 7") {
		t.Fatalf("unexpected notify output: %q", notifyOut.String())
	}
	waitFor(t, func() bool { return strings.Contains(watchOut.String(), "doc.txt changed: version 7, 12 bytes") })

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("watch: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("watch did not exit")
	}
}

func TestInitCommand(t *testing.T) {
	testlog.Start(t)
	path := filepath.Join(t.TempDir(), "remotesync.toml")
	a, out := newApp(t, config.Default())
	if err := (&initCmd{Path: path}).Run(a); err != nil {
		t.Fatalf("init: %v", err)
	}
	if !strings.Contains(out.String(), "wrote "+path) {
		t.Fatalf("unexpected output: %q", out.String())
	}
	if err := (&initCmd{Path: path}).Run(a); err == nil {
		t.Fatalf("expected init to refuse overwrite")
	}
	if err := (&initCmd{Path: path, Force: true}).Run(a); err != nil {
		t.Fatalf("forced init: %v", err)
	}
}

func TestCLILoad(t *testing.T) {
	testlog.Start(t)
	path := filepath.Join(t.TempDir(), "remotesync.toml")
	writeFile(t, path, []byte("[peer]\nsession = \"from-file\"\n[log]\nlevel = \"debug\"\n"))

	cfg, err := CLI{Config: path}.load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Peer.Session != "from-file" {
		t.Fatalf("unexpected session: %q", cfg.Peer.Session)
	}
	if _, err := (CLI{LogLevel: "loud"}).load(); err == nil {
		t.Fatalf("expected unknown log level error")
	}
	if _, err := (CLI{LogLevel: "info"}).load(); err != nil {
		t.Fatalf("load defaults: %v", err)
	}
}
