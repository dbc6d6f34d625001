// SPDX-License-Identifier: Apache-2.0

//go:build !linux

package dm

import "context"

// Control is unavailable outside linux; Open always fails.
type Control struct{}

func Open(path string) (*Control, error) {
	return nil, ErrUnsupported
}

func (c *Control) Close() error { return nil }
func (c *Control) Version() [3]uint32 { return [3]uint32{} }
func (c *Control) VersionString() string { return "0.0.0" }
func (c *Control) List() ([]Device, error) { return nil, ErrUnsupported }
func (c *Control) Info(name string) (Info, error) { return Info{}, ErrUnsupported }
func (c *Control) EventNr(name string) (uint32, error) { return 0, ErrUnsupported }

func (c *Control) TableStatus(name string) ([]Target, error) {
	return nil, ErrUnsupported
}

func (c *Control) WaitEvent(ctx context.Context, name string, eventNr uint32) error {
	return ErrUnsupported
}
