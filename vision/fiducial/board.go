package fiducial

import (
	"sort"

	"github.com/golang/geo/r2"
	"github.com/samber/lo"
)

// A Board is a planar arrangement of equally sized markers. The board plane is z = 0 with y up,
// so a board facing the camera has its y axis pointing up in the image.
type Board struct {
	markerSize float64
	centers    map[int]r2.Point
}

// NewBoard returns an empty board of markers with side length markerSize.
func NewBoard(markerSize float64) *Board {
	return &Board{markerSize: markerSize, centers: map[int]r2.Point{}}
}

// Place puts the center of marker id at (x, y).
func (b *Board) Place(id int, x, y float64) {
	b.centers[id] = r2.Point{X: x, Y: y}
}

// MarkerSize is the side length of every marker.
func (b *Board) MarkerSize() float64 {
	return b.markerSize
}

// IDs returns the ids of all placed markers in increasing order.
func (b *Board) IDs() []int {
	ids := lo.Keys(b.centers)
	sort.Ints(ids)
	return ids
}

// Corners returns the board coordinates of marker id's corners, ordered like Marker.Corners.
func (b *Board) Corners(id int) ([4]r2.Point, bool) {
	c, ok := b.centers[id]
	if !ok {
		return [4]r2.Point{}, false
	}
	h := b.markerSize / 2
	return [4]r2.Point{
		{X: c.X - h, Y: c.Y + h},
		{X: c.X + h, Y: c.Y + h},
		{X: c.X + h, Y: c.Y - h},
		{X: c.X - h, Y: c.Y - h},
	}, true
}

// Correspondences pairs the corners of every known detected marker with their board
// coordinates. Unknown ids are skipped.
func (b *Board) Correspondences(markers []Marker) (board, image []r2.Point, used []int) {
	for _, m := range markers {
		corners, ok := b.Corners(m.ID)
		if !ok {
			continue
		}
		board = append(board, corners[:]...)
		image = append(image, m.Corners[:]...)
		used = append(used, m.ID)
	}
	return board, image, used
}
