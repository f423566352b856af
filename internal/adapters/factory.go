package adapters

import "fmt"

// Known adapter kinds. Wire-level HTTP integrations register here as they
// are added; each must satisfy the Adapter contract and nothing more.
const (
	KindSim  = "sim"
	KindMock = "mock"
)

// New builds an adapter of the given kind. Unknown kinds are a configuration
// error surfaced at startup, not at request time.
func New(kind string, desc Descriptor) (Adapter, error) {
	switch kind {
	case KindSim:
		return NewSimAdapter(desc), nil
	case KindMock:
		return NewMockAdapter(desc), nil
	default:
		return nil, fmt.Errorf("unknown adapter kind %q for provider %q", kind, desc.ID)
	}
}
