package grid

const DefaultCapacity = 16

// Index is a point quadtree over integer cells. Nodes keep up to capacity points
// and split lazily into four children once full. Points that were stored before a
// split stay at their node.
type Index struct {
	boundary Rect
	capacity int
	points   []Point
	divided  bool

	northeast *Index
	northwest *Index
	southeast *Index
	southwest *Index
}

type IndexStats struct {
	Nodes  int
	Depth  int
	Points int
}

func NewIndex(boundary Rect, capacity int) *Index {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Index{
		boundary: boundary,
		capacity: capacity,
		points:   make([]Point, 0, capacity),
	}
}

func (qt *Index) Boundary() Rect {
	return qt.boundary
}

func (qt *Index) Capacity() int {
	return qt.capacity
}

// Insert stores p. It returns false without mutating anything when p lies outside
// the boundary.
func (qt *Index) Insert(p Point) bool {
	if !qt.boundary.Contains(p.X, p.Y) {
		return false
	}

	if len(qt.points) < qt.capacity {
		qt.points = append(qt.points, p)
		return true
	}

	if !qt.divided {
		qt.subdivide()
	}

	return qt.northeast.Insert(p) ||
		qt.northwest.Insert(p) ||
		qt.southeast.Insert(p) ||
		qt.southwest.Insert(p)
}

func (qt *Index) subdivide() {
	ne, nw, se, sw := qt.boundary.quadrants()
	qt.northeast = NewIndex(ne, qt.capacity)
	qt.northwest = NewIndex(nw, qt.capacity)
	qt.southeast = NewIndex(se, qt.capacity)
	qt.southwest = NewIndex(sw, qt.capacity)
	qt.divided = true
}

// Query returns every stored point inside r. Order is unspecified.
func (qt *Index) Query(r Rect) []Point {
	return qt.QueryInto(r, nil)
}

// QueryInto appends the points inside r to dst.
func (qt *Index) QueryInto(r Rect, dst []Point) []Point {
	if !qt.boundary.Intersects(r) {
		return dst
	}
	for _, p := range qt.points {
		if r.Contains(p.X, p.Y) {
			dst = append(dst, p)
		}
	}
	if qt.divided {
		dst = qt.northeast.QueryInto(r, dst)
		dst = qt.northwest.QueryInto(r, dst)
		dst = qt.southeast.QueryInto(r, dst)
		dst = qt.southwest.QueryInto(r, dst)
	}
	return dst
}

// Len is the number of stored points, duplicates included.
func (qt *Index) Len() int {
	return qt.Stats().Points
}

func (qt *Index) Stats() IndexStats {
	s := IndexStats{Nodes: 1, Depth: 1, Points: len(qt.points)}
	if !qt.divided {
		return s
	}
	for _, child := range []*Index{qt.northeast, qt.northwest, qt.southeast, qt.southwest} {
		cs := child.Stats()
		s.Nodes += cs.Nodes
		s.Points += cs.Points
		s.Depth = max(s.Depth, cs.Depth+1)
	}
	return s
}
