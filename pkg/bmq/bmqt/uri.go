package bmqt

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

var ErrInvalidURI = errors.New("invalid queue uri")

// URI is a parsed queue address of the form scheme://domain/queue[?id=appid].
type URI struct {
	raw    string
	Scheme string
	Domain string
	Queue  string
	AppID  string
}

// ParseURI validates a queue URI. Any scheme is accepted; domain and a single queue
// path segment are required.
func ParseURI(raw string) (URI, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return URI{}, fmt.Errorf("%w: %q: %w", ErrInvalidURI, raw, err)
	}

	queue := strings.TrimPrefix(u.Path, "/")

	switch {
	case u.Scheme == "":
		return URI{}, fmt.Errorf("%w: %q: missing scheme", ErrInvalidURI, raw)
	case u.Host == "":
		return URI{}, fmt.Errorf("%w: %q: missing domain", ErrInvalidURI, raw)
	case queue == "" || strings.Contains(queue, "/"):
		return URI{}, fmt.Errorf("%w: %q: queue name must be a single path segment", ErrInvalidURI, raw)
	case u.User != nil || u.Port() != "":
		return URI{}, fmt.Errorf("%w: %q: unexpected authority", ErrInvalidURI, raw)
	}

	return URI{
		raw:    raw,
		Scheme: u.Scheme,
		Domain: u.Host,
		Queue:  queue,
		AppID:  u.Query().Get("id"),
	}, nil
}

func (u URI) String() string { return u.raw }
