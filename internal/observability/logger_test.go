package observability

import (
	"bytes"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func TestComponentLoggerTagsComponent(t *testing.T) {
	prev := log.Logger
	t.Cleanup(func() { log.Logger = prev })

	var buf bytes.Buffer
	log.Logger = zerolog.New(&buf)
	l := ComponentLogger("admin")
	l.Info().Msg("hello")

	if !strings.Contains(buf.String(), `"component":"admin"`) {
		t.Fatalf("missing component field: %s", buf.String())
	}
}
