// Package route builds a walk graph over room boundaries and computes
// hub-to-device cable paths with Dijkstra. Edge weights are euclidean length
// plus a configured penalty when the edge crosses an opening in a wall;
// load-bearing walls cost more than doors, partitions are free to cross.
package route

import (
	"math"
	"sort"
	"sync"

	"planline/internal/config"
	"planline/internal/domain"
	"planline/internal/geom"
	"planline/internal/store"
)

// Hub picks the distribution-panel position: the declared hub when ingest
// found one, the room centroid for single-room plans, otherwise the bounding
// box corner nudged inward by one percent of the diagonal.
func Hub(st store.State) geom.Point {
	if st.Hub != nil {
		return *st.Hub
	}
	if len(st.Rooms) == 1 {
		return st.Rooms[0].Polygon.Centroid()
	}
	min, max := boundsAll(st.Rooms)
	diag := min.Dist(max)
	off := 0.01 * diag
	return geom.Point{X: min.X + off, Y: min.Y + off}
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
	return min, max
}

// Solve routes every device back to the hub. A device with no path is
// counted in Unresolved, never an error; the caller decides whether an
// all-unresolved result is worth keeping.
func Solve(st store.State, cfg *config.Config) domain.RouteResult {
	hub := Hub(st)
	g := buildGraph(st, cfg)
	hubNode := g.attach(hub)

	dist, prev := g.dijkstra(hubNode)

	// one source pass serves every device; extraction per device is
	// independent and bounded to a small worker set
	routes := make([]domain.Route, len(st.Devices))
	var wg sync.WaitGroup
	sem := make(chan struct{}, 4)
	for i, d := range st.Devices {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int, d domain.Device) {
			defer wg.Done()
			defer func() { <-sem }()
			routes[i] = g.extract(d, dist, prev)
		}(i, d)
	}
	wg.Wait()

	res := domain.RouteResult{Routes: routes, BOM: make(map[string]float64)}
	for _, r := range routes {
		if !r.Resolved() {
			res.Unresolved++
			continue
		}
		cat := domain.CableCategory(r.DeviceType)
		res.BOM[cat] = roundTenth(res.BOM[cat] + r.Length)
	}
	return res
}

func roundTenth(v float64) float64 { return math.Round(v*10) / 10 }

type node struct {
	id  int
	pos geom.Point
}

type edge struct {
	to      int
	length  float64
	penalty float64
}

type graph struct {
	nodes  []node
	index  map[geom.Point]int
	adj    [][]edge
	cfg    *config.Config
	doors  []geom.Segment
	walls  []geom.Segment // load-bearing
	device map[string]int // device id -> attached node
}

// buildGraph walks every room boundary, snapping vertices to the configured
// precision so shared walls collapse onto shared nodes, then bridges rooms
// whose boundary segments coincide within the adjacency tolerance.
func buildGraph(st store.State, cfg *config.Config) *graph {
	g := &graph{
		index:  make(map[geom.Point]int),
		cfg:    cfg,
		device: make(map[string]int),
	}
	for _, o := range st.Openings {
		switch o.Kind {
		case domain.OpeningDoor:
			g.doors = append(g.doors, o.At)
		case domain.OpeningBearingWall:
			g.walls = append(g.walls, o.At)
		}
	}

	type boundary struct {
		roomID string
		segs   []geom.Segment
	}
	bounds := make([]boundary, 0, len(st.Rooms))
	for _, r := range st.Rooms {
		segs := r.Polygon.Segments()
		bounds = append(bounds, boundary{roomID: r.ID, segs: segs})
		for _, s := range segs {
			a := g.node(s.A)
			b := g.node(s.B)
			g.connect(a, b)
		}
	}

	// bridge near-coincident boundary segments of different rooms
	for i := 0; i < len(bounds); i++ {
		for j := i + 1; j < len(bounds); j++ {
			for _, sa := range bounds[i].segs {
				for _, sb := range bounds[j].segs {
					if geom.Coincident(sa, sb, cfg.Routing.AdjacencyTolerance) {
						g.connect(g.node(sa.A), g.node(sb.A))
						g.connect(g.node(sa.B), g.node(sb.B))
					}
				}
			}
		}
	}

	for _, d := range st.Devices {
		g.device[d.ID] = g.attach(d.Pos)
	}
	return g
}

// node interns a position, snapped to the routing precision.
func (g *graph) node(p geom.Point) int {
	key := p.Round(g.cfg.Routing.NodePrecision)
	if id, ok := g.index[key]; ok {
		return id
	}
	id := len(g.nodes)
	g.nodes = append(g.nodes, node{id: id, pos: key})
	g.index[key] = id
	g.adj = append(g.adj, nil)
	return id
}

// connect adds an undirected weighted edge. The penalty applies when the edge
// midpoint sits on an opening within the configured tolerance.
func (g *graph) connect(a, b int) {
	if a == b {
		return
	}
	for _, e := range g.adj[a] {
		if e.to == b {
			return
		}
	}
	seg := geom.Segment{A: g.nodes[a].pos, B: g.nodes[b].pos}
	pen := g.penalty(seg)
	g.adj[a] = append(g.adj[a], edge{to: b, length: seg.Length(), penalty: pen})
	g.adj[b] = append(g.adj[b], edge{to: a, length: seg.Length(), penalty: pen})
}

func (g *graph) penalty(seg geom.Segment) float64 {
	mid := seg.Midpoint()
	tol := g.cfg.Routing.OpeningTolerance
	for _, w := range g.walls {
		if w.DistToPoint(mid) <= tol {
			return g.cfg.Routing.BearingWallPenalty
		}
	}
	for _, d := range g.doors {
		if d.DistToPoint(mid) <= tol {
			return g.cfg.Routing.DoorPenalty
		}
	}
	return 0
}

// attach interns a free point and links it to the nearest existing node.
func (g *graph) attach(p geom.Point) int {
	id := g.node(p)
	if len(g.adj[id]) > 0 {
		return id
	}
	best, bestDist := -1, math.Inf(1)
	for _, n := range g.nodes {
		if n.id == id {
			continue
		}
		if d := n.pos.Dist(p); d < bestDist {
			best, bestDist = n.id, d
		}
	}
	if best >= 0 {
		g.connect(id, best)
	}
	return id
}

type pathState struct {
	cost    float64
	penalty float64
	edges   int
}

// better orders path candidates: lowest total cost, then lowest accumulated
// penalty, then fewest edges.
func (a pathState) better(b pathState) bool {
	if a.cost != b.cost {
		return a.cost < b.cost
	}
	if a.penalty != b.penalty {
		return a.penalty < b.penalty
	}
	return a.edges < b.edges
}

// dijkstra runs a single-source shortest path from src. All edge weights are
// non-negative, so settled nodes are final.
func (g *graph) dijkstra(src int) ([]pathState, []int) {
	dist := make([]pathState, len(g.nodes))
	prev := make([]int, len(g.nodes))
	for i := range dist {
		dist[i] = pathState{cost: math.Inf(1)}
		prev[i] = -1
	}
	dist[src] = pathState{}

	h := &pqueue{{node: src}}
	for h.Len() > 0 {
		cur := h.pop()
		if dist[cur.node].better(cur.pathState) {
			continue
		}
		for _, e := range g.adj[cur.node] {
			next := pathState{
				cost:    cur.cost + e.length + e.penalty,
				penalty: cur.penalty + e.penalty,
				edges:   cur.edges + 1,
			}
			if next.better(dist[e.to]) {
				dist[e.to] = next
				prev[e.to] = cur.node
				h.push(pqItem{node: e.to, pathState: next})
			}
		}
	}
	return dist, prev
}

// extract walks the predecessor chain back from the device's attachment node.
func (g *graph) extract(d domain.Device, dist []pathState, prev []int) domain.Route {
	r := domain.Route{DeviceID: d.ID, DeviceType: d.Type}
	at, ok := g.device[d.ID]
	if !ok || math.IsInf(dist[at].cost, 1) {
		return r
	}
	var pts []geom.Point
	for n := at; n >= 0; n = prev[n] {
		pts = append(pts, g.nodes[n].pos)
	}
	// reverse so the path runs hub -> device
	for i, j := 0, len(pts)-1; i < j; i, j = i+1, j-1 {
		pts[i], pts[j] = pts[j], pts[i]
	}
	r.Points = pts
	r.Penalty = dist[at].penalty
	r.Edges = dist[at].edges
	for i := 1; i < len(pts); i++ {
		r.Length += pts[i-1].Dist(pts[i])
	}
	r.Length = roundTenth(r.Length)
	return r
}

// SortRoutes orders routes by device id for stable output.
func SortRoutes(routes []domain.Route) {
	sort.Slice(routes, func(i, j int) bool { return routes[i].DeviceID < routes[j].DeviceID })
}
