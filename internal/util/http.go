package util

import (
	"net"
	"net/http"
	"strings"

	"github.com/krobus00/realtime-gateway/internal/entity"
)

// ClientIP prefers the first X-Forwarded-For hop, then X-Real-IP, then the
// remote address.
func ClientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	if realIP := strings.TrimSpace(r.Header.Get("X-Real-IP")); realIP != "" {
		return realIP
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func DetectDeviceType(userAgent string) entity.DeviceType {
	ua := strings.ToLower(userAgent)
	switch {
	case strings.Contains(ua, "ipad"), strings.Contains(ua, "tablet"):
		return entity.DeviceTypeTablet
	case strings.Contains(ua, "mobile"), strings.Contains(ua, "android"), strings.Contains(ua, "iphone"):
		return entity.DeviceTypeMobile
	default:
		return entity.DeviceTypeDesktop
	}
}
