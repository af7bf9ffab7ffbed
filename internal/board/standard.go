package board

// Size is the side length of the standard board.
const Size = 7

type coord struct{ r, c int }

// ring walks the k-th concentric square anticlockwise (right along the bottom
// edge first), starting at the middle of its bottom edge.
func ring(k int) []coord {
	lo, hi, mid := k, Size-1-k, Size/2
	if lo == hi {
		return []coord{{mid, mid}}
	}
	var out []coord
	for c := mid; c <= hi; c++ {
		out = append(out, coord{hi, c})
	}
	for r := hi - 1; r >= lo; r-- {
		out = append(out, coord{r, hi})
	}
	for c := hi - 1; c >= lo; c-- {
		out = append(out, coord{lo, c})
	}
	for r := lo + 1; r <= hi; r++ {
		out = append(out, coord{r, lo})
	}
	for c := lo + 1; c < mid; c++ {
		out = append(out, coord{hi, c})
	}
	return out
}

func reversed(in []coord) []coord {
	out := make([]coord, len(in))
	for i, c := range in {
		out[len(in)-1-i] = c
	}
	return out
}

// rotate turns a coordinate a quarter turn so that the bottom ghar maps to the right one.
func rotate(p coord, times int) coord {
	for i := 0; i < times; i++ {
		p = coord{Size - 1 - p.c, p.r}
	}
	return p
}

func index(p coord) int { return p.r*Size + p.c }

// Standard builds the 7x7 board. Player 0 starts at the middle of the bottom
// edge, players 1..3 are quarter turns of it. Every path covers all 49 cells:
// outer ring anticlockwise, second ring clockwise, third ring anticlockwise,
// then the centre. The four edge ghars are the home cells.
func Standard() *Topology {
	base := append([]coord(nil), ring(0)...)
	base = append(base, reversed(ring(1))...)
	base = append(base, ring(2)...)
	base = append(base, ring(3)...)

	var paths [Players][]int
	var ghars [Players]int
	for p := 0; p < Players; p++ {
		path := make([]int, len(base))
		for i, c := range base {
			path[i] = index(rotate(c, p))
		}
		paths[p] = path
		ghars[p] = path[0]
	}

	cells := make([]Cell, Size*Size)
	for r := 0; r < Size; r++ {
		for c := 0; c < Size; c++ {
			cells[r*Size+c] = Cell{Index: r*Size + c, Row: r, Col: c}
		}
	}
	for _, g := range ghars {
		cells[g].Home = true
	}

	t, err := New(cells, paths, ghars)
	if err != nil {
		panic(err)
	}
	return t
}
