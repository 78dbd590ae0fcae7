package config

import "strings"

// BootstrapConfig seeds a first admin and client so a fresh deployment can
// issue tokens without any prior setup.
type BootstrapConfig interface {
	GetAdminUsername() string
	GetAdminPassword() string
	GetClientID() string
	GetClientSecret() string
	GetClientRedirectURIs() []string
}

type Bootstrap struct{}

var _ BootstrapConfig = Bootstrap{}

func (Bootstrap) GetAdminUsername() string {
	return GetEnv("ADMIN_USERNAME", "admin")
}

// GetAdminPassword is empty when a random password should be generated.
func (Bootstrap) GetAdminPassword() string {
	return GetEnv("ADMIN_PASSWORD", "")
}

// GetClientID is empty when no client should be seeded.
func (Bootstrap) GetClientID() string {
	return GetEnv("CLIENT_ID", "")
}

// GetClientSecret is empty for a public client.
func (Bootstrap) GetClientSecret() string {
	return GetEnv("CLIENT_SECRET", "")
}

func (Bootstrap) GetClientRedirectURIs() []string {
	var uris []string
	for _, uri := range strings.Split(GetEnv("CLIENT_REDIRECT_URIS", ""), ",") {
		if uri = strings.TrimSpace(uri); uri != "" {
			uris = append(uris, uri)
		}
	}
	return uris
}
