// SPDX-License-Identifier: Apache-2.0

//go:build linux

package dm

import (
	"context"
	"encoding/binary"
	"fmt"
	"strconv"
	"unsafe"

	"github.com/stratastor/mpathd/pkg/errors"
	"golang.org/x/sys/unix"
)

// Control is an open device-mapper control node. Methods are safe for
// concurrent use; the kernel serializes requests per device.
type Control struct {
	path    string
	fd      int
	version [3]uint32
}

// Open opens the control node at path and checks that the kernel supports
// event polling.
func Open(path string) (*Control, error) {
	fd, err := unix.Open(path, unix.O_RDWR|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, errors.Wrap(err, errors.DMControlOpenFailed).
			WithMetadata("path", path)
	}

	c := &Control{path: path, fd: fd}
	h, _, err := c.run(fd, cmdVersion, "", 0, headerSize)
	if err != nil {
		unix.Close(fd)
		return nil, err
	}
	c.version = h.Version

	if h.Version[0] != versionMajor || h.Version[1] < minPollMinor {
		unix.Close(fd)
		return nil, errors.New(errors.DMVersionUnsupported,
			fmt.Sprintf("need %d.%d or newer", versionMajor, minPollMinor)).
			WithMetadata("version", c.VersionString())
	}

	return c, nil
}

func (c *Control) Close() error {
	if err := unix.Close(c.fd); err != nil {
		return errors.Wrap(err, errors.DMIoctlFailed).
			WithMetadata("path", c.path)
	}
	return nil
}

// Version returns the kernel's dm ioctl interface version.
func (c *Control) Version() [3]uint32 {
	return c.version
}

func (c *Control) VersionString() string {
	return fmt.Sprintf("%d.%d.%d", c.version[0], c.version[1], c.version[2])
}

// List returns every device-mapper device, multipath or not.
func (c *Control) List() ([]Device, error) {
	h, buf, err := c.run(c.fd, cmdListDevices, "", 0, defaultBufferSize)
	if err != nil {
		return nil, err
	}
	data, err := h.payload(buf)
	if err != nil {
		return nil, err
	}
	return parseNameList(data)
}

// Info returns the DM_DEV_STATUS view of name.
func (c *Control) Info(name string) (Info, error) {
	return c.info(c.fd, name)
}

// EventNr returns the current event sequence number of name.
func (c *Control) EventNr(name string) (uint32, error) {
	info, err := c.info(c.fd, name)
	if err != nil {
		return 0, err
	}
	return info.EventNr, nil
}

// TableStatus returns the status lines of name's live table.
func (c *Control) TableStatus(name string) ([]Target, error) {
	h, buf, err := c.run(c.fd, cmdTableStatus, name, 0, defaultBufferSize)
	if err != nil {
		return nil, err
	}
	if h.Flags&FlagActivePresent == 0 {
		return nil, nil
	}
	data, err := h.payload(buf)
	if err != nil {
		return nil, err
	}
	return parseTargets(data, h.TargetCount)
}

// WaitEvent blocks until name's event number differs from eventNr, or ctx
// is done. It returns nil when an event was observed and ctx.Err() when
// the wait was cancelled.
func (c *Control) WaitEvent(ctx context.Context, name string, eventNr uint32) error {
	if err := ValidateName(name); err != nil {
		return err
	}

	// A private descriptor keeps the armed poll state per waiter
	fd, err := unix.Open(c.path, unix.O_RDWR|unix.O_CLOEXEC, 0)
	if err != nil {
		return errors.Wrap(err, errors.DMControlOpenFailed).
			WithMetadata("path", c.path)
	}
	defer unix.Close(fd)

	efd, err := unix.Eventfd(0, unix.EFD_CLOEXEC|unix.EFD_NONBLOCK)
	if err != nil {
		return errors.Wrap(err, errors.DMIoctlFailed).
			WithMetadata("op", "eventfd")
	}
	defer unix.Close(efd)

	woken := make(chan struct{})
	stop := context.AfterFunc(ctx, func() {
		defer close(woken)
		var one [8]byte
		binary.NativeEndian.PutUint64(one[:], 1)
		unix.Write(efd, one[:])
	})
	// Runs before the closes above; efd must stay open while the wake runs
	defer func() {
		if !stop() {
			<-woken
		}
	}()

	fds := []unix.PollFd{
		{Fd: int32(fd), Events: unix.POLLIN},
		{Fd: int32(efd), Events: unix.POLLIN},
	}
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		// Arm first so an event between the status read and poll(2)
		// still wakes us.
		if _, _, err := c.run(fd, cmdDevArmPoll, "", 0, headerSize); err != nil {
			return err
		}

		info, err := c.info(fd, name)
		if err != nil {
			return err
		}
		if info.EventNr != eventNr {
			return nil
		}

		fds[0].Revents, fds[1].Revents = 0, 0
		if _, err := unix.Poll(fds, -1); err != nil {
			if err == unix.EINTR {
				continue
			}
			return errors.Wrap(err, errors.DMIoctlFailed).
				WithMetadata("op", "poll").
				WithMetadata("device", name)
		}

		if fds[1].Revents != 0 {
			return ctx.Err()
		}
	}
}

func (c *Control) info(fd int, name string) (Info, error) {
	h, _, err := c.run(fd, cmdDevStatus, name, 0, headerSize)
	if err != nil {
		return Info{}, err
	}
	return h.info(), nil
}

// run issues one request on fd, growing the buffer while the kernel
// reports it full.
func (c *Control) run(fd int, cmd uintptr, name string, flags uint32, size int) (header, []byte, error) {
	for {
		buf, err := newRequest(name, flags, size)
		if err != nil {
			return header{}, nil, err
		}

		if err := ioctl(fd, ioctlCmd(cmd), buf); err != nil {
			return header{}, nil, ioctlError(err, cmd, name)
		}

		h, err := decodeHeader(buf)
		if err != nil {
			return header{}, nil, err
		}
		if h.Flags&FlagBufferFull == 0 {
			return h, buf, nil
		}

		if size >= maxBufferSize {
			return header{}, nil, errors.New(errors.DMBufferTooSmall, "").
				WithMetadata("device", name).
				WithMetadata("size", strconv.Itoa(size))
		}
		size *= 2
	}
}

func ioctl(fd int, cmd uintptr, buf []byte) error {
	for {
		_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(fd), cmd, uintptr(unsafe.Pointer(&buf[0])))
		switch errno {
		case 0:
			return nil
		case unix.EINTR:
			continue
		default:
			return errno
		}
	}
}

func ioctlError(err error, cmd uintptr, name string) error {
	var code errors.ErrorCode = errors.DMIoctlFailed
	if err == unix.ENXIO {
		code = errors.DMNoDevice
	}
	re := errors.Wrap(err, code).WithMetadata("cmd", strconv.Itoa(int(cmd)))
	if name != "" {
		re.WithMetadata("device", name)
	}
	return re
}
