package channel

import (
	"fmt"
	"net/url"
	"strings"
)

// SchemeForOrigin maps a page origin scheme to the matching channel scheme:
// https gives wss, http gives ws.
func SchemeForOrigin(origin string) (string, error) {
	u, err := url.Parse(origin)
	if err != nil {
		return "", fmt.Errorf("invalid origin %q: %w", origin, err)
	}
	switch strings.ToLower(u.Scheme) {
	case "https", "wss":
		return "wss", nil
	case "http", "ws":
		return "ws", nil
	default:
		return "", fmt.Errorf("unsupported origin scheme %q", u.Scheme)
	}
}

// EndpointURL builds the channel address from a base address and a path.
// base is either host[:port] or a URL with an http(s) or ws(s) scheme. The
// channel is secure when base is secure or when secure is set.
func EndpointURL(base string, secure bool, path string) (string, error) {
	if base == "" {
		return "", fmt.Errorf("empty base address")
	}
	if !strings.Contains(base, "://") {
		base = "http://" + base
	}
	scheme, err := SchemeForOrigin(base)
	if err != nil {
		return "", err
	}
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("invalid base address %q: %w", base, err)
	}
	if u.Host == "" {
		return "", fmt.Errorf("base address %q has no host", base)
	}
	if secure {
		scheme = "wss"
	}
	u.Scheme = scheme
	if path != "" {
		u.Path = strings.TrimSuffix(u.Path, "/") + "/" + strings.TrimPrefix(path, "/")
	}
	u.RawPath = ""
	u.Fragment = ""
	return u.String(), nil
}
