package config

import (
	"fmt"
	"sort"
)

// Endpoints holds the URLs for one Yandex Direct environment
type Endpoints struct {
	OAuthServer string
	APIBase     string
}

// AuthorizeURL returns the OAuth authorization endpoint
func (e Endpoints) AuthorizeURL() string {
	return e.OAuthServer + "/authorize"
}

// TokenURL returns the OAuth token exchange endpoint
func (e Endpoints) TokenURL() string {
	return e.OAuthServer + "/token"
}

// ServiceURL returns the JSON API v5 endpoint for a service
func (e Endpoints) ServiceURL(service string) string {
	return e.APIBase + "/json/v5/" + service
}

// Environments maps environment names to their endpoint configurations.
// The sandbox shares the production OAuth server.
var Environments = map[string]Endpoints{
	"production": {
		OAuthServer: "https://oauth.yandex.ru",
		APIBase:     "https://api.direct.yandex.com",
	},
	"sandbox": {
		OAuthServer: "https://oauth.yandex.ru",
		APIBase:     "https://api-sandbox.direct.yandex.com",
	},
}

// DefaultEnvironment is used when no environment is configured
const DefaultEnvironment = "production"

// GetEnvironment returns the endpoints for the named environment
func GetEnvironment(name string) (Endpoints, error) {
	if name == "" {
		name = DefaultEnvironment
	}
	cfg, ok := Environments[name]
	if !ok {
		return Endpoints{}, fmt.Errorf("unknown environment: %s", name)
	}
	return cfg, nil
}

// ValidEnvironments returns a sorted list of environment names
func ValidEnvironments() []string {
	names := make([]string, 0, len(Environments))
	for name := range Environments {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
