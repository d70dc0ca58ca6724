package bridge

import (
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"sync"
)

var (
	ErrNoDriver     = errors.New("no driver registered for scheme")
	ErrInvalidURI   = errors.New("invalid broker uri")
	ErrDriverExists = errors.New("driver already registered")
)

// Driver constructs Native sessions for the URI schemes it is registered under.
type Driver interface {
	Open(cfg NativeConfig, cb Callbacks) (Native, error)
}

// DriverFunc adapts a function to the Driver interface.
type DriverFunc func(cfg NativeConfig, cb Callbacks) (Native, error)

func (f DriverFunc) Open(cfg NativeConfig, cb Callbacks) (Native, error) { return f(cfg, cb) }

var drivers = struct {
	sync.RWMutex
	byScheme map[string]Driver
}{byScheme: make(map[string]Driver)}

// Register makes a driver available for the given URI schemes. It panics on
// duplicate registration, as database/sql does.
func Register(d Driver, schemes ...string) {
	drivers.Lock()
	defer drivers.Unlock()

	for _, scheme := range schemes {
		scheme = strings.ToLower(scheme)
		if _, ok := drivers.byScheme[scheme]; ok {
			panic(fmt.Errorf("%w: %s", ErrDriverExists, scheme))
		}

		drivers.byScheme[scheme] = d
	}
}

// Drivers lists the registered schemes.
func Drivers() []string {
	drivers.RLock()
	defer drivers.RUnlock()

	out := make([]string, 0, len(drivers.byScheme))
	for scheme := range drivers.byScheme {
		out = append(out, scheme)
	}

	sort.Strings(out)

	return out
}

func lookupDriver(rawURI string) (Driver, *url.URL, error) {
	u, err := url.Parse(rawURI)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %q: %w", ErrInvalidURI, rawURI, err)
	}

	if u.Scheme == "" {
		return nil, nil, fmt.Errorf("%w: %q: missing scheme", ErrInvalidURI, rawURI)
	}

	drivers.RLock()
	d, ok := drivers.byScheme[strings.ToLower(u.Scheme)]
	drivers.RUnlock()

	if !ok {
		return nil, nil, fmt.Errorf("%w: %s", ErrNoDriver, u.Scheme)
	}

	return d, u, nil
}
