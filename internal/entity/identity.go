package entity

import "time"

// Identity is the validated caller behind a gateway session.
type Identity struct {
	UserID string         `json:"userId"`
	Tenant string         `json:"tenant,omitempty"`
	Claims map[string]any `json:"claims,omitempty"`
}

type DeviceType string

const (
	DeviceTypeDesktop DeviceType = "desktop"
	DeviceTypeMobile  DeviceType = "mobile"
	DeviceTypeTablet  DeviceType = "tablet"
)

// ClientInfo is the connection metadata captured at upgrade time.
type ClientInfo struct {
	IP          string     `json:"ip"`
	UserAgent   string     `json:"userAgent"`
	DeviceType  DeviceType `json:"deviceType"`
	ConnectedAt time.Time  `json:"connectedAt"`
}
