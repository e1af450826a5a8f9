package config

import (
	"fmt"
	"os"
)

// WriteTemplate writes a commented starter config to path.
func WriteTemplate(path string, overwrite bool) error {
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config already exists: %s", path)
		}
	}
	return os.WriteFile(path, []byte(Template), 0o600)
}

const Template = `[peer]
username = "remotesync"
# session = "shared-session-id"   # random uuid when unset
key = "change-me"                 # empty uses the well-known default key

[server]
addr = "0.0.0.0"
port = 8080
root = "."
chunk_size = 1024                 # at most ~64 KiB, one datagram per chunk
chunks_per_second = 0             # 0 sends chunks unpaced
require_signature = true
peer_rate = 0                     # datagrams/s per peer IP, 0 disables
peer_burst = 0
peer_cache = 1024

[client]
addr = "127.0.0.1"
port = 8080
retry_interval = "1s"
retry_attempts = 5
wait = "10s"
require_signature = true          # drop replies that fail verification

[admin]
addr = "127.0.0.1:7010"

[log]
level = "info"
`
