package util

import (
	"net/http/httptest"
	"testing"

	"github.com/krobus00/realtime-gateway/internal/entity"
	"github.com/stretchr/testify/require"
)

func TestClientIP(t *testing.T) {
	r := httptest.NewRequest("GET", "/ws", nil)
	r.RemoteAddr = "10.0.0.9:51234"
	require.Equal(t, "10.0.0.9", ClientIP(r))

	r.Header.Set("X-Real-IP", "172.16.0.4")
	require.Equal(t, "172.16.0.4", ClientIP(r))

	r.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")
	require.Equal(t, "203.0.113.7", ClientIP(r))
}

func TestDetectDeviceType(t *testing.T) {
	require.Equal(t, entity.DeviceTypeMobile, DetectDeviceType("Mozilla/5.0 (iPhone; CPU iPhone OS 17_0 like Mac OS X) Mobile/15E148"))
	require.Equal(t, entity.DeviceTypeMobile, DetectDeviceType("Mozilla/5.0 (Linux; Android 14)"))
	require.Equal(t, entity.DeviceTypeTablet, DetectDeviceType("Mozilla/5.0 (iPad; CPU OS 17_0 like Mac OS X)"))
	require.Equal(t, entity.DeviceTypeDesktop, DetectDeviceType("Mozilla/5.0 (X11; Linux x86_64)"))
	require.Equal(t, entity.DeviceTypeDesktop, DetectDeviceType(""))
}
