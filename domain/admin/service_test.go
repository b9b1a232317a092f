package admin

import (
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arenaeval/server/domain/environments"
	"github.com/arenaeval/server/pkg/adminbuffer"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestService_UploadPlugin(t *testing.T) {
	registry := environments.NewRegistry()
	registry.Register("nimlike", func(environments.RawJSON) (environments.Capability, error) {
		return nil, nil
	})

	svc := &Service{registry: registry, log: testLogger()}

	require.NoError(t, svc.UploadPlugin("nimlike-v2", "nimlike"))
	assert.True(t, registry.Has("nimlike-v2"))

	err := svc.UploadPlugin("whatever", "unknown-capability")
	assert.Error(t, err)
}

func TestService_Errors(t *testing.T) {
	buf := adminbuffer.NewBuffer()
	buf.Capture("/act/demo", "boom", "", "req-1")

	svc := &Service{errBuf: buf, log: testLogger()}

	entries := svc.Errors()
	require.Len(t, entries, 1)
	assert.Equal(t, "boom", entries[0].Message)
}
