//go:build !linux

package input

import "errors"

// Watcher is only available on linux.
type Watcher struct{}

// Watch always fails; the GPIO character device only exists on linux.
func Watch(chip string, l Lines, q *Quadrature, d *Debouncer) (*Watcher, error) {
	return nil, errors.New("gpio character device not supported on this platform")
}

// Close does nothing.
func (w *Watcher) Close() error {
	return nil
}
