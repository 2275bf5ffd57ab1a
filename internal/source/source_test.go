package source

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		url     string
		want    Protocol
		wantErr bool
	}{
		{"http", "http://host/a.wav", ProtocolHTTP, false},
		{"https", "https://host/a.wav", ProtocolHTTP, false},
		{"websocket", "ws://host:8080/ws?file=a", ProtocolSocket, false},
		{"secure websocket upper case", "WSS://host/ws", ProtocolSocket, false},
		{"empty", "", 0, true},
		{"blank", "   ", 0, true},
		{"ftp", "ftp://host/a.wav", 0, true},
		{"garbage", "://nope", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse(tt.url)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrInvalidURL))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNew_Defaults(t *testing.T) {
	d, err := New("http://host/a.wav", 0)
	require.NoError(t, err)
	assert.Equal(t, DefaultChunkSize, d.ChunkSize)
	assert.True(t, d.IsUnbounded())
	assert.Equal(t, Unbounded, d.Remaining())
	assert.False(t, d.Complete())
}

func TestDescriptor_AdvanceAndComplete(t *testing.T) {
	d := &Descriptor{URL: "http://h/x", Size: 100, ChunkSize: 40}

	d.Advance(39)
	assert.Equal(t, int64(40), d.Offset)
	assert.Equal(t, int64(60), d.Remaining())

	// A late chunk from before the current offset is ignored.
	d.Advance(10)
	assert.Equal(t, int64(40), d.Offset)

	d.Advance(99)
	assert.True(t, d.Complete())
	assert.Zero(t, d.Remaining())
}

func TestDescriptor_Align(t *testing.T) {
	d := &Descriptor{URL: "http://h/x", Size: 100, Offset: 80}

	assert.True(t, d.Align(0))
	assert.Zero(t, d.Offset)
	assert.True(t, d.Align(99))
	assert.False(t, d.Align(100))
	assert.False(t, d.Align(-5))
	assert.Equal(t, int64(99), d.Offset)
}
