package pyramid

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTileSetMarshalBareStates(t *testing.T) {
	pending, err := json.Marshal(Pending())
	require.NoError(t, err)
	assert.JSONEq(t, `"pending"`, string(pending))

	processing, err := json.Marshal(Processing())
	require.NoError(t, err)
	assert.JSONEq(t, `"processing"`, string(processing))
}

func TestTileSetMarshalDone(t *testing.T) {
	ts := Done([]LevelTiles{
		{
			Index:  0,
			Width:  8,
			Height: 8,
			Tiles: []TileRef{
				{Index: 0, X: 0, Y: 0, Width: 8, Height: 8, BlobID: "b1", Name: "u_L0_T0"},
			},
		},
	})

	data, err := json.Marshal(ts)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"state": "done",
		"level_tiles": [{
			"index": 0, "width": 8, "height": 8,
			"tiles": [{"index": 0, "x": 0, "y": 0, "width": 8, "height": 8, "blob_id": "b1", "name": "u_L0_T0"}]
		}]
	}`, string(data))
}

func TestTileSetMarshalFailed(t *testing.T) {
	data, err := json.Marshal(Failed("decode level 2"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"state": "failed", "reason": "decode level 2"}`, string(data))
}

func TestTileSetRoundTrip(t *testing.T) {
	for _, ts := range []TileSet{
		Pending(),
		Processing(),
		Done([]LevelTiles{{Index: 1, Width: 4, Height: 3, Tiles: []TileRef{{Name: "u_L1_T0"}}}}),
		Failed("boom"),
	} {
		data, err := json.Marshal(ts)
		require.NoError(t, err)

		var got TileSet
		require.NoError(t, json.Unmarshal(data, &got))
		assert.Equal(t, ts, got)
	}
}

func TestTileSetUnmarshalInvalid(t *testing.T) {
	var ts TileSet
	assert.Error(t, json.Unmarshal([]byte(`"exploded"`), &ts))
	assert.Error(t, json.Unmarshal([]byte(`{"state": "unknown"}`), &ts))
}

func TestTileSetTerminal(t *testing.T) {
	assert.False(t, Pending().Terminal())
	assert.False(t, Processing().Terminal())
	assert.True(t, Done(nil).Terminal())
	assert.True(t, Failed("x").Terminal())
}

func TestNaming(t *testing.T) {
	assert.Equal(t, "abc_L0", LevelName("abc", 0))
	assert.Equal(t, "abc_L3_T12", TileName("abc", 3, 12))
	assert.Equal(t, "/image/abc_L2", LevelURL("abc", 2))
	assert.Equal(t, "/tile/abc_L2_T5", TileURL("abc", 2, 5))
}
