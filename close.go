package facevault

import "context"

// Close persists the index and releases the snapshot directory lock.
// Closing an already closed Engine is a no-op.
func (e *Engine) Close() error {
	if e == nil {
		return nil
	}
	e.gate.Lock()
	defer e.gate.Unlock()

	if e.closed {
		return nil
	}
	e.closed = true

	var firstErr error
	if err := e.persist(context.Background()); err != nil {
		firstErr = err
	}
	if err := e.lock.Unlock(); err != nil && firstErr == nil {
		firstErr = err
	}
	e.logger.Info("engine closed", "home", e.home, "size", e.idx.Size())
	return firstErr
}
