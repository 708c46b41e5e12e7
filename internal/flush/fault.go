package flush

import (
	"sync"

	"github.com/tinytelemetry/spool/internal/model"
)

// faultCell carries a worker failure to the next caller. The first failure
// wins; reading it clears the stored value but the cell stays poisoned so no
// further flush is attempted.
type faultCell struct {
	mu       sync.Mutex
	err      error
	poisoned bool
}

func (c *faultCell) set(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.poisoned {
		return
	}
	c.poisoned = true
	c.err = err
}

// take returns the stored failure as a worker fault and clears it.
func (c *faultCell) take() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err == nil {
		return nil
	}
	err := c.err
	c.err = nil
	return model.NewWorkerFault(err)
}

func (c *faultCell) faulted() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.poisoned
}
