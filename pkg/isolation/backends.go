package isolation

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sort"
	"time"
)

// Backend identifiers accepted by New
const (
	BackendHTTP   = "http"
	BackendBorder = "border"
	BackendNone   = "none"
)

// ErrUnknownBackend is returned by New for unregistered identifiers
var ErrUnknownBackend = errors.New("unknown isolation backend")

// BackendConfig selects and configures a Remover
type BackendConfig struct {
	// Backend is one of the registered identifiers
	Backend string `yaml:"backend"`

	// Model is the matting model requested from the HTTP backend
	Model string `yaml:"model"`

	// Endpoint is the HTTP backend URL
	Endpoint string `yaml:"endpoint"`

	// RequestTimeout bounds one HTTP request
	RequestTimeout time.Duration `yaml:"requestTimeout"`

	// Border configures the built-in border-colour matting
	Border BorderOptions `yaml:"border"`
}

// DefaultBackendConfig uses the built-in border backend, so a run works
// without a matting server
func DefaultBackendConfig() BackendConfig {
	return BackendConfig{
		Backend:        BackendBorder,
		Model:          "u2net",
		Endpoint:       "http://localhost:7000/api/remove",
		RequestTimeout: 45 * time.Second,
		Border:         DefaultBorderOptions(),
	}
}

type factory func(cfg BackendConfig) (Remover, error)

var backends = map[string]factory{
	BackendHTTP: func(cfg BackendConfig) (Remover, error) {
		return NewHTTPRemover(cfg.Endpoint, cfg.Model, cfg.RequestTimeout)
	},
	BackendBorder: func(cfg BackendConfig) (Remover, error) {
		return NewBorderRemover(cfg.Border)
	},
	BackendNone: func(BackendConfig) (Remover, error) {
		return passThrough{}, nil
	},
}

// New builds the Remover named by cfg.Backend
func New(cfg BackendConfig) (Remover, error) {
	f, ok := backends[cfg.Backend]
	if !ok {
		return nil, fmt.Errorf("%w %q (available: %v)", ErrUnknownBackend, cfg.Backend, Backends())
	}
	return f(cfg)
}

// Backends lists the registered identifiers
func Backends() []string {
	names := make([]string, 0, len(backends))
	for name := range backends {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// passThrough keeps every pixel opaque
type passThrough struct{}

func (passThrough) RemoveBackground(_ context.Context, img image.Image) (image.Image, error) {
	return Opaque(img), nil
}
