package discovery

import (
	"context"

	types "github.com/oif-solver/solver-core/pkg/solvertypes"
)

// Composite fans out StartAll/StopAll across every configured Discovery
// adapter, merging their intents onto one sink. Used to run the EVM and
// off-chain feed watchers side by side as a single Discovery collaborator.
type Composite struct {
	adapters []Discovery
}

func NewComposite(adapters ...Discovery) *Composite {
	return &Composite{adapters: adapters}
}

func (c *Composite) StartAll(ctx context.Context, sink chan<- types.Intent) error {
	for _, adapter := range c.adapters {
		if err := adapter.StartAll(ctx, sink); err != nil {
			return err
		}
	}
	return nil
}

func (c *Composite) StopAll(ctx context.Context) error {
	var firstErr error
	for _, adapter := range c.adapters {
		if err := adapter.StopAll(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
