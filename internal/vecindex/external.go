package vecindex

import "fmt"

// External is a placeholder for an out-of-process vector database. It is a
// recognized, constructible backend type so deployments can configure it
// ahead of a real integration, but every data operation fails with
// ErrNotImplemented.
type External struct {
	dim      int
	endpoint string
}

// NewExternal validates the configuration without dialing anything.
func NewExternal(opts Options) (*External, error) {
	if opts.Endpoint == "" {
		return nil, fmt.Errorf("external index backend requires an endpoint")
	}
	return &External{dim: opts.Dimension, endpoint: opts.Endpoint}, nil
}

func (e *External) Add([][]float32, []string) error { return ErrNotImplemented }

func (e *External) Search([]float32, int) ([]Match, error) { return nil, ErrNotImplemented }

func (e *External) Remove(...string) error { return ErrNotImplemented }

func (e *External) Save(string) error { return ErrNotImplemented }

func (e *External) Load(string) error { return ErrNotImplemented }

func (e *External) Clear() error { return ErrNotImplemented }

func (e *External) Rebuild() error { return ErrNotImplemented }

func (e *External) Size() int { return 0 }

func (e *External) Dimension() int { return e.dim }

func (e *External) Stats() Stats {
	return Stats{Type: string(TypeExternal), Dimension: e.dim}
}
