package sessions

import (
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strings"
)

// DeviceHeader lets clients name their own device.
const DeviceHeader = "X-Device-Id"

// UnknownDevice groups tokens issued without any device information.
const UnknownDevice DeviceID = "unknown"

const maxDeviceIDLength = 128

// DeviceID is the marker that groups a subject's tokens into one session.
type DeviceID string

// ResolveDeviceID takes the device header when present, else the first 16 hex
// characters of the SHA-256 of the User-Agent, else UnknownDevice.
func ResolveDeviceID(h http.Header) DeviceID {
	if id := strings.TrimSpace(h.Get(DeviceHeader)); id != "" {
		if len(id) > maxDeviceIDLength {
			id = id[:maxDeviceIDLength]
		}
		return DeviceID(id)
	}
	if ua := strings.TrimSpace(h.Get("User-Agent")); ua != "" {
		return HashUserAgent(ua)
	}
	return UnknownDevice
}

func HashUserAgent(userAgent string) DeviceID {
	sum := sha256.Sum256([]byte(userAgent))
	return DeviceID(hex.EncodeToString(sum[:])[:16])
}
