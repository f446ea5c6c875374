package runtimecfg

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseSizePlainBytes(t *testing.T) {
	v, err := ParseSize("4096")
	require.NoError(t, err)
	require.Equal(t, int64(4096), v)
}

func TestParseSizeSuffixes(t *testing.T) {
	cases := map[string]int64{
		"1K":  1024,
		"1KB": 1024,
		"2M":  2 * 1024 * 1024,
		"1GB": 1024 * 1024 * 1024,
	}
	for s, want := range cases {
		v, err := ParseSize(s)
		require.NoError(t, err)
		require.Equal(t, want, v, s)
	}
}

func TestParseSizeRejectsUnknownSuffix(t *testing.T) {
	_, err := ParseSize("5XB")
	require.Error(t, err)
}

func TestFromMapOverridesDefaults(t *testing.T) {
	cfg, err := FromMap(map[string]string{
		"reactor_count": "4",
		"queue_size":    "2MB",
		"poller":        "io_uring",
	})
	require.NoError(t, err)
	require.Equal(t, 4, cfg.ReactorCount)
	require.Equal(t, uint64(2*1024*1024), cfg.QueueSize)
	require.Equal(t, "io_uring", cfg.PollerKind)
	require.Equal(t, uint64(4096), cfg.MailboxSize) // untouched default
}

func TestFromMapRejectsInvalidReactorCount(t *testing.T) {
	_, err := FromMap(map[string]string{"reactor_count": "0"})
	require.Error(t, err)
}

func TestFromMapRejectsUnknownPoller(t *testing.T) {
	_, err := FromMap(map[string]string{"poller": "select"})
	require.Error(t, err)
}
