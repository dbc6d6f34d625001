// Copyright 2025 Raamsri Kumar <raam@tinkershack.in>
// Copyright 2025 The StrataSTOR Authors and Contributors
// SPDX-License-Identifier: Apache-2.0

// Package dm talks to the kernel device-mapper through its control node.
//
// # Overview
//
// Requests are fixed-layout dm_ioctl headers followed by a variable data
// area. The package covers what the multipath event waiters need:
//
//   - DM_VERSION to check the ioctl interface on Open
//   - DM_LIST_DEVICES to enumerate maps for discovery
//   - DM_DEV_STATUS to read a map's event number, open count and flags
//   - DM_TABLE_STATUS to read the target status lines
//   - DM_DEV_ARM_POLL + poll(2) to block until a device event
//
// # Waiting for events
//
// WaitEvent does not use DM_DEV_WAIT. A blocked DM_DEV_WAIT can only be
// interrupted by a signal, and the Go runtime restarts interrupted
// syscalls. Instead each wait opens a private control descriptor, arms it
// and polls it together with an eventfd. Cancelling the context writes to
// the eventfd, so a wake that races ahead of poll(2) is never lost: the
// eventfd stays readable until the descriptor is closed.
package dm

import (
	"github.com/stratastor/mpathd/pkg/errors"
)

const (
	// NameLen and UUIDLen include the terminating NUL.
	NameLen = 128
	UUIDLen = 129

	headerSize     = 312
	targetSpecSize = 40
	targetTypeLen  = 16

	// Interface version sent with every request
	versionMajor = 4
	versionMinor = 0
	versionPatch = 0

	// DM_DEV_ARM_POLL appeared in 4.37
	minPollMinor = 37

	defaultBufferSize = 16 * 1024
	maxBufferSize     = 1024 * 1024
)

// ioctl command numbers, _IOWR(0xfd, nr, struct dm_ioctl)
const (
	cmdVersion     = 0
	cmdListDevices = 2
	cmdDevStatus   = 7
	cmdTableStatus = 12
	cmdDevArmPoll  = 16

	iocWrite     = 1
	iocRead      = 2
	iocDirShift  = 30
	iocSizeShift = 16
	iocTypeShift = 8
	dmIoctlType  = 0xfd
)

// Header flags
const (
	FlagReadOnly       = 1 << 0
	FlagSuspend        = 1 << 1
	FlagStatusTable    = 1 << 4
	FlagActivePresent  = 1 << 5
	FlagInactivePresent = 1 << 6
	FlagBufferFull     = 1 << 8
	FlagSkipBdget      = 1 << 9
	FlagUUID           = 1 << 14
)

var (
	// ErrNoDevice matches any error for a device the kernel does not know.
	ErrNoDevice = errors.New(errors.DMNoDevice, "")
	// ErrUnsupported is returned where device-mapper is not available.
	ErrUnsupported = errors.New(errors.NotSupported, "device-mapper requires linux")
)

func ioctlCmd(nr uintptr) uintptr {
	return (iocRead|iocWrite)<<iocDirShift |
		headerSize<<iocSizeShift |
		dmIoctlType<<iocTypeShift |
		nr
}

// Device is one entry of DM_LIST_DEVICES.
type Device struct {
	Name  string `json:"name"`
	Major uint32 `json:"major"`
	Minor uint32 `json:"minor"`
}

// Info is the DM_DEV_STATUS view of a device.
type Info struct {
	Name        string `json:"name"`
	UUID        string `json:"uuid"`
	Major       uint32 `json:"major"`
	Minor       uint32 `json:"minor"`
	OpenCount   int32  `json:"open_count"`
	EventNr     uint32 `json:"event_nr"`
	TargetCount uint32 `json:"target_count"`
	Suspended   bool   `json:"suspended"`
	ReadOnly    bool   `json:"read_only"`
	LiveTable   bool   `json:"live_table"`
}

// Target is one line of a device's table status.
type Target struct {
	Start  uint64 `json:"start"`
	Length uint64 `json:"length"`
	Type   string `json:"type"`
	Params string `json:"params"`
}

// ValidateName rejects names the kernel would refuse.
func ValidateName(name string) error {
	if name == "" {
		return errors.New(errors.DMInvalidName, "empty device name")
	}
	if len(name) >= NameLen {
		return errors.New(errors.DMInvalidName, "device name too long").
			WithMetadata("name", name)
	}
	for i := 0; i < len(name); i++ {
		if name[i] == 0 || name[i] == '/' {
			return errors.New(errors.DMInvalidName, "device name contains invalid character").
				WithMetadata("name", name)
		}
	}
	return nil
}

// devMajor/devMinor decode the kernel's huge_encode_dev layout.
func devMajor(dev uint64) uint32 {
	return uint32((dev & 0xfff00) >> 8)
}

func devMinor(dev uint64) uint32 {
	return uint32((dev & 0xff) | ((dev >> 12) & 0xfff00))
}
