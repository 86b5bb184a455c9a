package stitch

import (
	"fmt"
	"image"
	"time"

	"github.com/bryanchriswhite/TileShot/internal/capture"
	"github.com/bryanchriswhite/TileShot/internal/geometry"
	"github.com/bryanchriswhite/TileShot/internal/tiles"
)

// TileReport records what happened to one tile
type TileReport struct {
	Tile    tiles.Tile            `json:"tile"`
	Outcome capture.ScrollOutcome `json:"outcome"`
	// Offset is where the tile's content landed inside its frame, in CSS px
	Offset  geometry.Point  `json:"offset"`
	Src     image.Rectangle `json:"src"`
	Dst     image.Rectangle `json:"dst"`
	Skipped bool            `json:"skipped"`
}

// Report summarizes a capture job. It is returned for failed jobs too, filled
// in as far as the job got.
type Report struct {
	Mode       Mode          `json:"mode"`
	Cols       int           `json:"cols"`
	Rows       int           `json:"rows"`
	Tiles      []TileReport  `json:"tiles"`
	Composited int           `json:"composited"`
	Skipped    int           `json:"skipped"`
	Warnings   []string      `json:"warnings,omitempty"`
	Size       image.Point   `json:"size"`
	Duration   time.Duration `json:"duration"`
}

func (r *Report) warn(format string, args ...interface{}) string {
	msg := fmt.Sprintf(format, args...)
	r.Warnings = append(r.Warnings, msg)
	return msg
}
