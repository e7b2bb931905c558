package export

import (
	"fmt"
	"strconv"
	"strings"

	"planline/internal/geom"
	"planline/internal/store"
)

// DXF layer names for the exported drawing.
const (
	layerRooms   = "ROOMS"
	layerRoutes  = "ROUTES"
	layerDevices = "DEVICES"
	layerDevText = "DEV_TEXT"
)

// dxfWriter emits ASCII DXF group code and value pairs.
type dxfWriter struct {
	b strings.Builder
}

func (w *dxfWriter) group(code int, value string) {
	fmt.Fprintf(&w.b, "%3d\n%s\n", code, value)
}

func (w *dxfWriter) groupF(code int, v float64) {
	w.group(code, strconv.FormatFloat(v, 'f', -1, 64))
}

func (w *dxfWriter) polyline(layer string, pts []geom.Point, closed bool) {
	w.group(0, "LWPOLYLINE")
	w.group(8, layer)
	w.group(90, strconv.Itoa(len(pts)))
	if closed {
		w.group(70, "1")
	} else {
		w.group(70, "0")
	}
	for _, p := range pts {
		w.groupF(10, p.X)
		w.groupF(20, p.Y)
	}
}

func (w *dxfWriter) point(layer string, p geom.Point) {
	w.group(0, "POINT")
	w.group(8, layer)
	w.groupF(10, p.X)
	w.groupF(20, p.Y)
}

func (w *dxfWriter) text(layer, s string, p geom.Point, height float64) {
	w.group(0, "TEXT")
	w.group(8, layer)
	w.groupF(10, p.X)
	w.groupF(20, p.Y)
	w.groupF(40, height)
	w.group(1, s)
}

// renderDXF writes rooms as closed polylines, cable routes as open polylines,
// devices as points with a type label next to each.
func renderDXF(st store.State) ([]byte, error) {
	var w dxfWriter
	w.group(0, "SECTION")
	w.group(2, "ENTITIES")

	for _, r := range st.Rooms {
		w.polyline(layerRooms, r.Polygon, true)
	}
	if st.Routes != nil {
		for _, rt := range st.Routes.Routes {
			if rt.Resolved() {
				w.polyline(layerRoutes, rt.Points, false)
			}
		}
	}
	for _, d := range st.Devices {
		w.point(layerDevices, d.Pos)
		w.text(layerDevText, d.Type, geom.Point{X: d.Pos.X + 0.1, Y: d.Pos.Y + 0.1}, 0.2)
	}

	w.group(0, "ENDSEC")
	w.group(0, "EOF")
	return []byte(w.b.String()), nil
}
