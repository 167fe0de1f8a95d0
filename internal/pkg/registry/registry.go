package registry

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/samber/lo"

	"github.com/anicoll/cloudage-integration/internal/pkg/cloudage"
	"github.com/anicoll/cloudage-integration/internal/pkg/config"
)

// Device is one controller and the output cells it owns. Cell writes are
// serialized per device; cells of different devices never share a lock.
type Device struct {
	ID        string
	Alias     string
	Signature string

	mu    sync.RWMutex
	cells []*OutputCell
}

// OutputCell is the last known or commanded state of one relay.
type OutputCell struct {
	DeviceID string
	Index    int
	on       atomic.Bool
}

func (c *OutputCell) IsOn() bool {
	return c.on.Load()
}

func (d *Device) OutputCount() int {
	return len(d.cells)
}

func (d *Device) Cells() []*OutputCell {
	return d.cells
}

// Cell returns the cell at a 0-based index.
func (d *Device) Cell(index int) (*OutputCell, bool) {
	if index < 0 || index >= len(d.cells) {
		return nil, false
	}
	return d.cells[index], true
}

// Update runs fn with the device write lock held. fn may call Set on any of
// the device's cells; readers using Snapshot never see a partial update.
func (d *Device) Update(fn func(cells []*OutputCell)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	fn(d.cells)
}

// Set is only valid inside Update.
func (c *OutputCell) Set(on bool) {
	c.on.Store(on)
}

func (d *Device) Snapshot() []bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return lo.Map(d.cells, func(c *OutputCell, _ int) bool {
		return c.IsOn()
	})
}

// Registry maps device ids to devices for one configuration generation.
type Registry struct {
	devices map[string]*Device
	order   []string
}

func New() *Registry {
	return &Registry{
		devices: make(map[string]*Device),
	}
}

// Register adds a device with outputs cells, all off.
func (r *Registry) Register(deviceID, alias string, outputs int, signature string) (*Device, error) {
	if !cloudage.ValidDeviceID(deviceID) {
		return nil, fmt.Errorf("%w: device id %q cannot be used in a topic", cloudage.ErrConfig, deviceID)
	}
	if outputs <= 0 || outputs > cloudage.MaxOutputs {
		return nil, fmt.Errorf("%w: device %s outputs %d not in 1..%d", cloudage.ErrConfig, deviceID, outputs, cloudage.MaxOutputs)
	}
	if _, exists := r.devices[deviceID]; exists {
		return nil, fmt.Errorf("%w: device %s already registered", cloudage.ErrConfig, deviceID)
	}
	if alias == "" {
		alias = deviceID
	}

	d := &Device{
		ID:        deviceID,
		Alias:     alias,
		Signature: signature,
		cells:     make([]*OutputCell, outputs),
	}
	for i := range d.cells {
		d.cells[i] = &OutputCell{DeviceID: deviceID, Index: i}
	}
	r.devices[deviceID] = d
	r.order = append(r.order, deviceID)
	return d, nil
}

func (r *Registry) Lookup(deviceID string) (*Device, bool) {
	d, ok := r.devices[deviceID]
	return d, ok
}

// CellsOf returns the ordered cells of a device, or nil if it is unknown.
func (r *Registry) CellsOf(deviceID string) []*OutputCell {
	if d, ok := r.devices[deviceID]; ok {
		return d.cells
	}
	return nil
}

// Devices returns devices in registration order.
func (r *Registry) Devices() []*Device {
	return lo.Map(r.order, func(id string, _ int) *Device {
		return r.devices[id]
	})
}

func (r *Registry) IDs() []string {
	return append([]string(nil), r.order...)
}

func (r *Registry) Len() int {
	return len(r.order)
}

// Build creates a registry generation from configuration. Invalid entries are
// skipped and reported; they never prevent the rest from registering.
func Build(devices []config.DeviceConfig) (*Registry, []error) {
	r := New()
	var errs []error
	for _, dc := range devices {
		if _, err := r.Register(dc.DeviceID, dc.Alias, dc.Outputs, dc.Signature); err != nil {
			errs = append(errs, err)
		}
	}
	return r, errs
}

// Holder publishes the current registry generation. Readers always see a
// fully built registry.
type Holder struct {
	current atomic.Pointer[Registry]
}

func NewHolder(r *Registry) *Holder {
	h := &Holder{}
	if r == nil {
		r = New()
	}
	h.current.Store(r)
	return h
}

func (h *Holder) Load() *Registry {
	return h.current.Load()
}

// Swap installs next and returns the previous generation.
func (h *Holder) Swap(next *Registry) *Registry {
	return h.current.Swap(next)
}
