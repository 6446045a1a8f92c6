package cli

import (
	"fmt"
	"net/url"
	"strings"
)

// normalizeHost checks that host is a bare http(s) base URL and returns it
// as scheme://host[:port] with no trailing slash.
func normalizeHost(host string) (string, error) {
	raw := strings.TrimSpace(host)
	if raw == "" {
		return "", fmt.Errorf("host URL cannot be empty")
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("invalid host %q: %w", raw, err)
	}
	switch {
	case u.Scheme != "http" && u.Scheme != "https":
		return "", fmt.Errorf("invalid host %q: scheme must be http or https", raw)
	case u.Host == "":
		return "", fmt.Errorf("invalid host %q: missing host", raw)
	case u.Path != "" && u.Path != "/":
		return "", fmt.Errorf("invalid host %q: the /v1 prefix is added by the client, drop the path", raw)
	case u.RawQuery != "" || u.Fragment != "" || u.User != nil:
		return "", fmt.Errorf("invalid host %q: query, fragment and credentials are not allowed", raw)
	}
	return u.Scheme + "://" + u.Host, nil
}
