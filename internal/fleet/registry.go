package fleet

import (
	"errors"
	"fmt"
	"sync"
)

// ErrUnknownDevice is returned for ordinals outside the fleet.
var ErrUnknownDevice = errors.New("unknown device")

// Registry holds every device of the run in enumeration order.
type Registry struct {
	mu      sync.RWMutex
	order   []int
	devices map[int]*Device
}

// NewRegistry enumerates devices 1..size using naming.
func NewRegistry(size int, naming Naming) *Registry {
	r := &Registry{devices: make(map[int]*Device, size)}
	for n := 1; n <= size; n++ {
		ep := naming.Endpoint(n)
		r.order = append(r.order, n)
		r.devices[n] = &Device{
			Ordinal:  n,
			Hostname: ep.Host,
			User:     ep.User,
			State:    StatePending,
			endpoint: ep,
		}
	}
	return r
}

// Len returns the fleet size.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

// Get returns the device with the given ordinal.
func (r *Registry) Get(ordinal int) (*Device, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.devices[ordinal]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownDevice, ordinal)
	}
	return d, nil
}

// Devices returns every device in enumeration order.
func (r *Registry) Devices() []*Device {
	return r.filter(func(*Device) bool { return true })
}

// Eligible returns devices that have not been excluded.
func (r *Registry) Eligible() []*Device {
	return r.filter(func(d *Device) bool { return d.Eligible() })
}

// Snapshot returns copies of all devices, safe to hand to renderers.
func (r *Registry) Snapshot() []Device {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Device, 0, len(r.order))
	for _, n := range r.order {
		d := *r.devices[n]
		d.Failures = append([]Failure{}, d.Failures...)
		out = append(out, d)
	}
	return out
}

func (r *Registry) filter(keep func(*Device) bool) []*Device {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Device, 0, len(r.order))
	for _, n := range r.order {
		if d := r.devices[n]; keep(d) {
			out = append(out, d)
		}
	}
	return out
}

// Advance moves the device forward to s. Backward moves and moves out of a
// terminal state are ignored; the return value reports whether s was applied.
func (r *Registry) Advance(ordinal int, s State) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.devices[ordinal]
	if !ok {
		return false, fmt.Errorf("%w: %d", ErrUnknownDevice, ordinal)
	}
	if !canAdvance(d.State, s) {
		return false, nil
	}
	d.State = s
	return true, nil
}

// MarkOffline excludes the device for the remainder of the run.
func (r *Registry) MarkOffline(ordinal int) (bool, error) {
	return r.Advance(ordinal, StateOffline)
}

// SetAddress records the last known address.
func (r *Registry) SetAddress(ordinal int, addr string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.devices[ordinal]
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownDevice, ordinal)
	}
	d.Address = addr
	return nil
}

// RecordFailure accumulates a phase error on the device.
func (r *Registry) RecordFailure(ordinal int, f Failure) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.devices[ordinal]
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownDevice, ordinal)
	}
	d.Failures = append(d.Failures, f)
	return nil
}
