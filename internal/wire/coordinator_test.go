package wire_test

import (
	"testing"

	"github.com/TrueBrain/game-coordinator/internal/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeRegister(t *testing.T) {
	payload := []byte{1, uint8(wire.ServerGameTypePublic), 0x98, 0x0F} // port 3992 LE
	p, err := wire.DecodeRegister(payload)
	require.NoError(t, err)
	assert.Equal(t, wire.ServerGameTypePublic, p.GameType)
	assert.EqualValues(t, 3992, p.ServerPort)
}

func TestDecodeRegisterRejectsBadGameType(t *testing.T) {
	payload := []byte{1, 0xFF, 0x00, 0x00}
	_, err := wire.DecodeRegister(payload)
	assert.Error(t, err)
}

func TestDecodeRegisterRejectsTrailingBytes(t *testing.T) {
	payload := []byte{1, uint8(wire.ServerGameTypePublic), 0x00, 0x00, 0xFF}
	_, err := wire.DecodeRegister(payload)
	assert.Error(t, err)
}

func TestEncodeServerListingEntryLayout(t *testing.T) {
	info := wire.GameInfo{
		JoinKey:        "abc123",
		Newgrfs:        []wire.NewGRF{{GRFID: 42}},
		GameDate:       100,
		StartDate:      50,
		CompaniesMax:   15,
		SpectatorsMax:  1,
		Name:           "Test server",
		OpenTTDVersion: "14.0",
		ClientsMax:     8,
		MapWidth:       256,
		MapHeight:      256,
	}
	raw := wire.EncodeServerListingEntry(wire.ListingEntry{JoinKey: "abc123", Info: info})
	assert.NotEmpty(t, raw)
	require.Len(t, raw, 70)
	assert.Equal(t, []byte{1, 0, 5}, raw[:3]) // count=1 (LE), game info version 5
	assert.Equal(t, []byte("abc123\x00"), raw[3:10])
	assert.Equal(t, []byte{1, 1, 42, 0, 0, 0}, raw[10:16]) // has-newgrf-data, 1 NewGRF, GRFID 42 (LE)
}

func TestDecodeConnectFailed(t *testing.T) {
	payload := append([]byte{1}, append([]byte("tok"), 0, 7)...)
	p, err := wire.DecodeConnectFailed(payload)
	require.NoError(t, err)
	assert.Equal(t, "tok", p.Token)
	assert.EqualValues(t, 7, p.TrackingNumber)
}

func TestDecodeStunResult(t *testing.T) {
	payload := append([]byte{1}, append([]byte("tok"), 0, 1, 1)...)
	p, err := wire.DecodeStunResult(payload)
	require.NoError(t, err)
	assert.Equal(t, "tok", p.Token)
	assert.EqualValues(t, 1, p.Interface)
	assert.True(t, p.Success)
}
