package export

import (
	"bytes"
	"fmt"
	"math"

	svg "github.com/ajstarks/svgo"

	"planline/internal/domain"
	"planline/internal/geom"
	"planline/internal/store"
)

const (
	svgScale  = 40.0 // pixels per drawing unit
	svgMargin = 24
)

// canvas maps drawing coordinates onto the SVG pixel grid, flipping Y so the
// plan reads the same way up as the source drawing.
type canvas struct {
	min  geom.Point
	maxY float64
}

func (c canvas) x(v float64) int { return svgMargin + int(math.Round((v-c.min.X)*svgScale)) }
func (c canvas) y(v float64) int { return svgMargin + int(math.Round((c.maxY-v)*svgScale)) }

func (c canvas) poly(pg []geom.Point) ([]int, []int) {
	xs := make([]int, len(pg))
	ys := make([]int, len(pg))
	for i, p := range pg {
		xs[i] = c.x(p.X)
		ys[i] = c.y(p.Y)
	}
	return xs, ys
}

func deviceColor(devType string) string {
	switch devType {
	case domain.DeviceFixture:
		return "#f2a900"
	case domain.DeviceSwitch:
		return "#2e7d32"
	case domain.DeviceSocket:
		return "#1565c0"
	case domain.DeviceCamera, domain.DeviceAccessPoint, domain.DeviceSensor:
		return "#8e24aa"
	default:
		return "#555"
	}
}

func renderSVG(st store.State) ([]byte, error) {
	min, max := boundsAll(st.Rooms)
	c := canvas{min: min, maxY: max.Y}
	w := 2*svgMargin + int(math.Ceil((max.X-min.X)*svgScale))
	h := 2*svgMargin + int(math.Ceil((max.Y-min.Y)*svgScale))

	var buf bytes.Buffer
	s := svg.New(&buf)
	s.Start(w, h)

	for _, r := range st.Rooms {
		xs, ys := c.poly(r.Polygon)
		s.Polygon(xs, ys, "fill:#f7f7f2;stroke:#333;stroke-width:2")
		cen := r.Polygon.Centroid()
		s.Text(c.x(cen.X), c.y(cen.Y), r.ID, "font-size:12px;fill:#777;text-anchor:middle")
	}

	if st.Routes != nil {
		for _, rt := range st.Routes.Routes {
			if !rt.Resolved() {
				continue
			}
			xs, ys := c.poly(rt.Points)
			s.Polyline(xs, ys, "fill:none;stroke:#d32f2f;stroke-width:1.5;stroke-dasharray:4 2")
		}
	}

	for _, d := range st.Devices {
		s.Circle(c.x(d.Pos.X), c.y(d.Pos.Y), 4, fmt.Sprintf("fill:%s;stroke:#222", deviceColor(d.Type)))
		s.Text(c.x(d.Pos.X)+6, c.y(d.Pos.Y)-6, d.Type, "font-size:9px;fill:#444")
	}

	if st.Hub != nil {
		s.Square(c.x(st.Hub.X)-5, c.y(st.Hub.Y)-5, 10, "fill:#000")
		s.Text(c.x(st.Hub.X)+8, c.y(st.Hub.Y), "hub", "font-size:10px;fill:#000")
	}

	s.End()
	return buf.Bytes(), nil
}

func boundsAll(rooms []domain.Room) (geom.Point, geom.Point) {
	min := geom.Point{X: math.Inf(1), Y: math.Inf(1)}
	max := geom.Point{X: math.Inf(-1), Y: math.Inf(-1)}
	for _, r := range rooms {
		lo, hi := r.Polygon.Bounds()
		min.X = math.Min(min.X, lo.X)
		min.Y = math.Min(min.Y, lo.Y)
		max.X = math.Max(max.X, hi.X)
		max.Y = math.Max(max.Y, hi.Y)
	}
	if len(rooms) == 0 {
		return geom.Point{}, geom.Point{X: 1, Y: 1}
	}
	return min, max
}
