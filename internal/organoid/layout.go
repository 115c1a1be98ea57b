package organoid

import (
	"fmt"

	"neuroplate/internal/electrode"
	"neuroplate/internal/model"
)

const (
	LayoutCentroid = "centroid"
	LayoutGrid     = "grid"
)

// ElectrodeLayout places electrodes over the built organoid. Centroid puts
// a single electrode at the mean unit position; grid lays Rows x Cols
// electrodes in a horizontal plane at height Z, MEA style.
type ElectrodeLayout struct {
	Kind    string
	Rows    int
	Cols    int
	Z       float64
	Spacing float64
}

func PlaceElectrodes(b *Built, layout ElectrodeLayout) ([]model.ElectrodeID, error) {
	switch layout.Kind {
	case "", LayoutCentroid:
		positions := make([]model.Vec3, 0, len(b.Units))
		for _, u := range b.Units {
			positions = append(positions, u.Position)
		}
		return []model.ElectrodeID{b.Array.Add(electrode.Centroid(positions))}, nil
	case LayoutGrid:
		if layout.Rows < 1 || layout.Cols < 1 {
			return nil, fmt.Errorf("grid layout needs rows and cols >= 1, got %dx%d", layout.Rows, layout.Cols)
		}
		if layout.Spacing <= 0 {
			return nil, fmt.Errorf("grid spacing must be > 0, got %g", layout.Spacing)
		}
		ids := make([]model.ElectrodeID, 0, layout.Rows*layout.Cols)
		for r := 0; r < layout.Rows; r++ {
			for c := 0; c < layout.Cols; c++ {
				ids = append(ids, b.Array.Add(model.Vec3{
					X: float64(c) * layout.Spacing,
					Y: float64(r) * layout.Spacing,
					Z: layout.Z,
				}))
			}
		}
		return ids, nil
	default:
		return nil, fmt.Errorf("unsupported electrode layout: %s", layout.Kind)
	}
}
