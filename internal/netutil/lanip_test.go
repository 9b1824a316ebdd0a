package netutil_test

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/HMasataka/fanout/internal/netutil"
)

func TestLanIP(t *testing.T) {
	ip := netutil.LanIP()
	require.NotEmpty(t, ip)

	parsed := net.ParseIP(ip)
	require.NotNil(t, parsed, "LanIP returned %q", ip)
	assert.NotNil(t, parsed.To4(), "LanIP returns an IPv4 address")
}
