package jeebie

import (
	"fmt"

	"github.com/valerio/jeebie-core/jeebie/state"
)

// components lists everything a snapshot covers, in stream order.
func (d *DMG) components() []state.Stater {
	return []state.Stater{&d.clock, d.cpu, d.mem}
}

func (d *DMG) payload() []byte {
	s := state.New()
	for _, c := range d.components() {
		c.Save(s)
	}
	return s.Bytes()
}

func (d *DMG) load(payload []byte) error {
	s := state.FromBytes(payload)
	for _, c := range d.components() {
		c.Load(s)
	}
	if err := s.Err(); err != nil {
		return err
	}
	if n := s.Remaining(); n != 0 {
		return fmt.Errorf("%w: %d trailing bytes", state.ErrBadSnapshot, n)
	}
	return nil
}

// Snapshot serializes the session: clock, CPU, memory, timer, interrupt and
// bank controller state. Attached devices and tick hooks are not included.
func (d *DMG) Snapshot() ([]byte, error) {
	if err := d.cpu.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFaulted, err)
	}

	data, err := state.Encode(d.cartDigest, d.payload())
	if err != nil {
		return nil, err
	}

	d.logger.Info("snapshot saved", "bytes", len(data), "cycles", d.clock.Cycles())
	return data, nil
}

// Restore replaces the session state with a snapshot taken from the same
// cartridge. On failure the session is left unchanged.
func (d *DMG) Restore(data []byte) error {
	payload, err := state.Decode(d.cartDigest, data)
	if err != nil {
		return err
	}

	backup := d.payload()
	if err := d.load(payload); err != nil {
		if rollback := d.load(backup); rollback != nil {
			panic(fmt.Sprintf("jeebie: session state could not be rolled back: %v", rollback))
		}
		return err
	}

	d.cpu.ClearFault()
	d.faulted = false
	d.logger.Info("snapshot restored", "bytes", len(data), "cycles", d.clock.Cycles())
	return nil
}
