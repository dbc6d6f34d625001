// SPDX-License-Identifier: Apache-2.0

package dm

import (
	"bytes"
	"encoding/binary"
	"strconv"

	"github.com/stratastor/mpathd/pkg/errors"
)

// header mirrors struct dm_ioctl. Field order and sizes are fixed by the
// kernel ABI and add up to headerSize without implicit padding.
type header struct {
	Version     [3]uint32
	DataSize    uint32
	DataStart   uint32
	TargetCount uint32
	OpenCount   int32
	Flags       uint32
	EventNr     uint32
	Padding     uint32
	Dev         uint64
	Name        [NameLen]byte
	UUID        [UUIDLen]byte
	Data        [7]byte
}

// newRequest returns a zeroed buffer of size bytes with a request header
// for name already encoded at its start.
func newRequest(name string, flags uint32, size int) ([]byte, error) {
	if size < headerSize {
		size = headerSize
	}

	h := header{
		Version:   [3]uint32{versionMajor, versionMinor, versionPatch},
		DataSize:  uint32(size),
		DataStart: headerSize,
		Flags:     flags,
	}
	if name != "" {
		if err := ValidateName(name); err != nil {
			return nil, err
		}
		copy(h.Name[:], name)
	}

	buf := make([]byte, size)
	if _, err := binary.Encode(buf, binary.NativeEndian, &h); err != nil {
		return nil, errors.Wrap(err, errors.DMParseFailed)
	}
	return buf, nil
}

func decodeHeader(buf []byte) (header, error) {
	var h header
	if len(buf) < headerSize {
		return h, errors.New(errors.DMParseFailed, "short dm_ioctl header").
			WithMetadata("length", strconv.Itoa(len(buf)))
	}
	if _, err := binary.Decode(buf[:headerSize], binary.NativeEndian, &h); err != nil {
		return h, errors.Wrap(err, errors.DMParseFailed)
	}
	return h, nil
}

// payload returns the data area the kernel filled in.
func (h header) payload(buf []byte) ([]byte, error) {
	start, end := int(h.DataStart), int(h.DataSize)
	if start < headerSize || start > end || end > len(buf) {
		return nil, errors.New(errors.DMParseFailed, "data area out of bounds").
			WithMetadata("data_start", strconv.Itoa(start)).
			WithMetadata("data_size", strconv.Itoa(end))
	}
	return buf[start:end], nil
}

func (h header) info() Info {
	return Info{
		Name:        cstring(h.Name[:]),
		UUID:        cstring(h.UUID[:]),
		Major:       devMajor(h.Dev),
		Minor:       devMinor(h.Dev),
		OpenCount:   h.OpenCount,
		EventNr:     h.EventNr,
		TargetCount: h.TargetCount,
		Suspended:   h.Flags&FlagSuspend != 0,
		ReadOnly:    h.Flags&FlagReadOnly != 0,
		LiveTable:   h.Flags&FlagActivePresent != 0,
	}
}

func cstring(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		return string(b[:i])
	}
	return string(b)
}

// parseNameList decodes the struct dm_name_list chain returned by
// DM_LIST_DEVICES. Each entry's next field is relative to the entry itself;
// zero ends the chain. A first entry with dev == 0 means no devices.
func parseNameList(data []byte) ([]Device, error) {
	const fixed = 12 // u64 dev + u32 next

	var devices []Device
	off := 0
	for {
		if off+fixed > len(data) {
			if off == 0 && len(data) == 0 {
				return nil, nil
			}
			return nil, errors.New(errors.DMParseFailed, "truncated name list").
				WithMetadata("offset", strconv.Itoa(off))
		}

		dev := binary.NativeEndian.Uint64(data[off:])
		next := binary.NativeEndian.Uint32(data[off+8:])
		if off == 0 && dev == 0 {
			return nil, nil
		}

		devices = append(devices, Device{
			Name:  cstring(data[off+fixed:]),
			Major: devMajor(dev),
			Minor: devMinor(dev),
		})

		if next == 0 {
			return devices, nil
		}
		off += int(next)
	}
}

// parseTargets decodes count struct dm_target_spec records. Each spec's
// next field is an offset from the start of the data area.
func parseTargets(data []byte, count uint32) ([]Target, error) {
	targets := make([]Target, 0, count)
	off := 0
	for i := uint32(0); i < count; i++ {
		if off+targetSpecSize > len(data) {
			return nil, errors.New(errors.DMParseFailed, "truncated target spec").
				WithMetadata("index", strconv.Itoa(int(i)))
		}

		spec := data[off : off+targetSpecSize]
		next := binary.NativeEndian.Uint32(spec[20:])
		targets = append(targets, Target{
			Start:  binary.NativeEndian.Uint64(spec[0:]),
			Length: binary.NativeEndian.Uint64(spec[8:]),
			Type:   cstring(spec[24 : 24+targetTypeLen]),
			Params: cstring(data[off+targetSpecSize:]),
		})

		if int(next) <= off && i+1 < count {
			return nil, errors.New(errors.DMParseFailed, "target spec chain does not advance").
				WithMetadata("index", strconv.Itoa(int(i)))
		}
		off = int(next)
	}
	return targets, nil
}
