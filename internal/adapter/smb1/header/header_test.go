package header

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/dittosmb/internal/adapter/smb1/types"
)

func sampleHeader() *SMB1Header {
	return &SMB1Header{
		Command: types.SMBReadAndX,
		Flags:   types.FlagsCaseInsensitive,
		Flags2:  types.Flags2NTStatus | types.Flags2Unicode,
		PIDHigh: 0x0001,
		TID:     7,
		PIDLow:  0xBEEF,
		UID:     100,
		MID:     42,
	}
}

func TestParseEncode(t *testing.T) {
	h := sampleHeader()
	h.Status = types.StatusAccessDenied

	buf := h.Encode()
	require.Len(t, buf, HeaderSize)
	assert.True(t, IsSMB1Message(buf))

	got, err := Parse(buf)
	require.NoError(t, err)
	assert.Equal(t, h, got)
	assert.Equal(t, uint32(0x0001BEEF), got.PID())
	assert.True(t, got.IsUnicode())
	assert.True(t, got.UsesNTStatus())
}

func TestParseErrors(t *testing.T) {
	_, err := Parse(make([]byte, 10))
	assert.ErrorIs(t, err, ErrMessageTooShort)

	buf := sampleHeader().Encode()
	buf[0] = 0xFE
	_, err = Parse(buf)
	assert.ErrorIs(t, err, ErrInvalidProtocolID)
}

func TestEncodeDOSStatus(t *testing.T) {
	h := sampleHeader()
	h.Flags2 = 0
	h.Status = types.StatusObjectNameNotFound

	buf := h.Encode()
	assert.Equal(t, byte(types.ErrDOS), buf[5])
	assert.Equal(t, byte(types.ERRbadfile), buf[7])

	got, err := Parse(buf)
	require.NoError(t, err)
	assert.Equal(t, types.DOSStatus(types.ErrDOS, types.ERRbadfile), got.Status)
}

func TestEncodeCheckDirectoryRemap(t *testing.T) {
	h := sampleHeader()
	h.Command = types.SMBCheckDirectory
	h.Flags2 = 0
	h.Status = types.StatusObjectNameNotFound

	buf := h.Encode()
	assert.Equal(t, byte(types.ErrDOS), buf[5])
	assert.Equal(t, byte(types.ERRbadpath), buf[7])
}

func TestEncodeDOSStatusToNTClient(t *testing.T) {
	h := sampleHeader()
	h.Status = types.DOSStatus(types.ErrDOS, types.ERRcancelviolation)

	got, err := Parse(h.Encode())
	require.NoError(t, err)
	assert.Equal(t, h.Status, got.Status)
	assert.Equal(t, types.DOSError{Class: types.ErrDOS, Code: types.ERRcancelviolation}, types.ToDOSError(got.Status))
}

func TestReply(t *testing.T) {
	h := sampleHeader()
	h.Signature = [8]byte{1, 2, 3}
	r := h.Reply(types.StatusSuccess)
	assert.True(t, r.IsReply())
	assert.False(t, h.IsReply())
	assert.Equal(t, [8]byte{}, r.Signature)
	assert.Equal(t, h.MID, r.MID)
}
