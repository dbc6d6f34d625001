// SPDX-License-Identifier: Apache-2.0

package dm

import (
	"encoding/binary"
	"strings"
	"testing"

	"github.com/stratastor/mpathd/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIoctlCmd(t *testing.T) {
	assert.Equal(t, uintptr(0xC138FD00), ioctlCmd(cmdVersion))
	assert.Equal(t, uintptr(0xC138FD07), ioctlCmd(cmdDevStatus))
	assert.Equal(t, uintptr(0xC138FD10), ioctlCmd(cmdDevArmPoll))
}

func TestHeaderLayout(t *testing.T) {
	assert.Equal(t, headerSize, binary.Size(header{}))

	buf, err := newRequest("mpatha", FlagSuspend, 1024)
	require.NoError(t, err)
	require.Len(t, buf, 1024)

	// Offsets fixed by struct dm_ioctl
	assert.Equal(t, uint32(versionMajor), binary.NativeEndian.Uint32(buf[0:]))
	assert.Equal(t, uint32(1024), binary.NativeEndian.Uint32(buf[12:]))
	assert.Equal(t, uint32(headerSize), binary.NativeEndian.Uint32(buf[16:]))
	assert.Equal(t, uint32(FlagSuspend), binary.NativeEndian.Uint32(buf[28:]))
	assert.Equal(t, "mpatha", cstring(buf[48:176]))

	h, err := decodeHeader(buf)
	require.NoError(t, err)
	assert.Equal(t, [3]uint32{versionMajor, versionMinor, versionPatch}, h.Version)
	assert.Equal(t, "mpatha", cstring(h.Name[:]))
}

func TestNewRequestMinimumSize(t *testing.T) {
	buf, err := newRequest("", 0, 0)
	require.NoError(t, err)
	assert.Len(t, buf, headerSize)
}

func TestNewRequestRejectsBadNames(t *testing.T) {
	_, err := newRequest(strings.Repeat("a", NameLen), 0, headerSize)
	require.Error(t, err)
	assert.Equal(t, errors.ErrorCode(errors.DMInvalidName), errors.GetCode(err))

	_, err = newRequest("bad/name", 0, headerSize)
	assert.Error(t, err)
}

func TestHeaderInfo(t *testing.T) {
	buf, err := newRequest("mpathb", 0, headerSize)
	require.NoError(t, err)

	// Fill in what the kernel would return
	binary.NativeEndian.PutUint32(buf[20:], 1)
	binary.NativeEndian.PutUint32(buf[24:], 2)
	binary.NativeEndian.PutUint32(buf[28:], FlagActivePresent|FlagSuspend)
	binary.NativeEndian.PutUint32(buf[32:], 42)
	binary.NativeEndian.PutUint64(buf[40:], 253<<8|7)
	copy(buf[176:], "mpath-3600a098038303053")

	h, err := decodeHeader(buf)
	require.NoError(t, err)
	info := h.info()

	assert.Equal(t, "mpathb", info.Name)
	assert.Equal(t, "mpath-3600a098038303053", info.UUID)
	assert.Equal(t, uint32(253), info.Major)
	assert.Equal(t, uint32(7), info.Minor)
	assert.Equal(t, int32(2), info.OpenCount)
	assert.Equal(t, uint32(42), info.EventNr)
	assert.Equal(t, uint32(1), info.TargetCount)
	assert.True(t, info.Suspended)
	assert.True(t, info.LiveTable)
	assert.False(t, info.ReadOnly)
}

func TestDecodeHeaderShort(t *testing.T) {
	_, err := decodeHeader(make([]byte, 10))
	assert.Error(t, err)
}

func TestPayloadBounds(t *testing.T) {
	h := header{DataStart: headerSize, DataSize: headerSize + 8}
	data, err := h.payload(make([]byte, headerSize+16))
	require.NoError(t, err)
	assert.Len(t, data, 8)

	h.DataSize = headerSize + 64
	_, err = h.payload(make([]byte, headerSize+16))
	assert.Error(t, err)
}

func nameEntry(dev uint64, name string, last bool) []byte {
	size := 12 + len(name) + 1
	size = (size + 7) &^ 7
	b := make([]byte, size)
	binary.NativeEndian.PutUint64(b[0:], dev)
	if !last {
		binary.NativeEndian.PutUint32(b[8:], uint32(size))
	}
	copy(b[12:], name)
	return b
}

func TestParseNameList(t *testing.T) {
	var data []byte
	data = append(data, nameEntry(253<<8|0, "mpatha", false)...)
	data = append(data, nameEntry(253<<8|3, "mpathb", true)...)

	devices, err := parseNameList(data)
	require.NoError(t, err)
	require.Len(t, devices, 2)
	assert.Equal(t, Device{Name: "mpatha", Major: 253, Minor: 0}, devices[0])
	assert.Equal(t, Device{Name: "mpathb", Major: 253, Minor: 3}, devices[1])
}

func TestParseNameListEmpty(t *testing.T) {
	devices, err := parseNameList(make([]byte, 16))
	require.NoError(t, err)
	assert.Empty(t, devices)

	devices, err = parseNameList(nil)
	require.NoError(t, err)
	assert.Empty(t, devices)
}

func TestParseNameListTruncated(t *testing.T) {
	entry := nameEntry(253<<8, "mpatha", false)
	_, err := parseNameList(entry)
	assert.Error(t, err)
}

func targetSpec(start, length uint64, typ, params string, next uint32) []byte {
	size := targetSpecSize + len(params) + 1
	size = (size + 7) &^ 7
	b := make([]byte, size)
	binary.NativeEndian.PutUint64(b[0:], start)
	binary.NativeEndian.PutUint64(b[8:], length)
	binary.NativeEndian.PutUint32(b[20:], next)
	copy(b[24:24+targetTypeLen], typ)
	copy(b[targetSpecSize:], params)
	return b
}

func TestParseTargets(t *testing.T) {
	first := targetSpec(0, 2048, "linear", "8:16 0", 0)
	next := uint32(len(first))
	first = targetSpec(0, 2048, "linear", "8:16 0", next)
	second := targetSpec(2048, 4096, TargetMultipath, "2 0 0 0 1 1 A 0 1 0 8:32 A 0", 0)

	targets, err := parseTargets(append(first, second...), 2)
	require.NoError(t, err)
	require.Len(t, targets, 2)

	assert.Equal(t, Target{Start: 0, Length: 2048, Type: "linear", Params: "8:16 0"}, targets[0])
	assert.Equal(t, uint64(2048), targets[1].Start)
	assert.Equal(t, uint64(4096), targets[1].Length)
	assert.Equal(t, TargetMultipath, targets[1].Type)
	assert.Equal(t, "2 0 0 0 1 1 A 0 1 0 8:32 A 0", targets[1].Params)
}

func TestParseTargetsMalformed(t *testing.T) {
	_, err := parseTargets(make([]byte, 10), 1)
	assert.Error(t, err)

	// A chain pointing backwards would loop forever
	spec := targetSpec(0, 8, "linear", "", 0)
	_, err = parseTargets(append(spec, spec...), 2)
	assert.Error(t, err)
}

func TestValidateName(t *testing.T) {
	assert.NoError(t, ValidateName("mpatha"))
	assert.Error(t, ValidateName(""))
	assert.Error(t, ValidateName("a/b"))
	assert.Error(t, ValidateName(strings.Repeat("x", NameLen)))
	assert.NoError(t, ValidateName(strings.Repeat("x", NameLen-1)))
}
