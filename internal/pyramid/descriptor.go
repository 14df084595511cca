// Package pyramid implements the image pyramid data model and the
// processing routines that build, tile, and compress pyramid levels.
package pyramid

import (
	"encoding/json"
	"fmt"
	"time"
)

// TileState enumerates the lifecycle states of a pyramid's tile set.
type TileState string

const (
	TilesPending    TileState = "pending"
	TilesProcessing TileState = "processing"
	TilesDone       TileState = "done"
	TilesFailed     TileState = "failed"
)

// Level describes one persisted pyramid level.
type Level struct {
	Index  int    `json:"index"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
	BlobID string `json:"blob_id"`
	URL    string `json:"url"`
}

// TileRef describes one persisted tile within a level manifest.
type TileRef struct {
	Index  int    `json:"index"`
	X      int    `json:"x"`
	Y      int    `json:"y"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
	BlobID string `json:"blob_id"`
	Name   string `json:"name"`
}

// LevelTiles is the tile manifest for a single level.
type LevelTiles struct {
	Index  int       `json:"index"`
	Width  int       `json:"width"`
	Height int       `json:"height"`
	Tiles  []TileRef `json:"tiles"`
}

// TileSet is the tagged value of a descriptor's tiles field. Pending and
// processing carry no payload; done carries the per-level manifests and
// failed carries a short diagnostic.
type TileSet struct {
	State      TileState
	LevelTiles []LevelTiles
	Reason     string
}

// Pending returns the initial tile set value.
func Pending() TileSet { return TileSet{State: TilesPending} }

// Processing returns the in-progress tile set value.
func Processing() TileSet { return TileSet{State: TilesProcessing} }

// Done returns the terminal successful tile set value.
func Done(manifests []LevelTiles) TileSet {
	return TileSet{State: TilesDone, LevelTiles: manifests}
}

// Failed returns the terminal failed tile set value.
func Failed(reason string) TileSet {
	return TileSet{State: TilesFailed, Reason: reason}
}

// Terminal reports whether the tile set can no longer change.
func (ts TileSet) Terminal() bool {
	return ts.State == TilesDone || ts.State == TilesFailed
}

// MarshalJSON encodes pending/processing as bare strings and done/failed
// as tagged objects, matching the wire shape clients poll.
func (ts TileSet) MarshalJSON() ([]byte, error) {
	switch ts.State {
	case TilesPending, TilesProcessing:
		return json.Marshal(string(ts.State))
	case TilesDone:
		return json.Marshal(struct {
			State      TileState    `json:"state"`
			LevelTiles []LevelTiles `json:"level_tiles"`
		}{ts.State, ts.LevelTiles})
	case TilesFailed:
		return json.Marshal(struct {
			State  TileState `json:"state"`
			Reason string    `json:"reason"`
		}{ts.State, ts.Reason})
	}
	return nil, fmt.Errorf("invalid tile state %q", ts.State)
}

// UnmarshalJSON is the inverse of MarshalJSON.
func (ts *TileSet) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		switch TileState(s) {
		case TilesPending, TilesProcessing:
			*ts = TileSet{State: TileState(s)}
			return nil
		}
		return fmt.Errorf("invalid tile state %q", s)
	}

	var tagged struct {
		State      TileState    `json:"state"`
		LevelTiles []LevelTiles `json:"level_tiles"`
		Reason     string       `json:"reason"`
	}
	if err := json.Unmarshal(data, &tagged); err != nil {
		return err
	}
	switch tagged.State {
	case TilesDone:
		*ts = TileSet{State: TilesDone, LevelTiles: tagged.LevelTiles}
	case TilesFailed:
		*ts = TileSet{State: TilesFailed, Reason: tagged.Reason}
	default:
		return fmt.Errorf("invalid tile state %q", tagged.State)
	}
	return nil
}

// Descriptor is the authoritative per-pyramid document.
type Descriptor struct {
	UUID             string    `json:"uuid"`
	MIMEType         string    `json:"mime_type"`
	OriginalFilename string    `json:"original_filename,omitempty"`
	Levels           []Level   `json:"levels"`
	Tiles            TileSet   `json:"tiles"`
	CreatedAt        time.Time `json:"created_at"`
}

// LevelName returns the public name of level k, e.g. "abc_L0".
func LevelName(uuid string, k int) string {
	return fmt.Sprintf("%s_L%d", uuid, k)
}

// TileName returns the public name of tile t of level k, e.g. "abc_L0_T3".
func TileName(uuid string, k, t int) string {
	return fmt.Sprintf("%s_L%d_T%d", uuid, k, t)
}

// LevelURL returns the public URL of level k.
func LevelURL(uuid string, k int) string {
	return "/image/" + LevelName(uuid, k)
}

// TileURL returns the public URL of tile t of level k.
func TileURL(uuid string, k, t int) string {
	return "/tile/" + TileName(uuid, k, t)
}
