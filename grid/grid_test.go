package grid

import (
	"math"
	"testing"
)

func TestParseSquare(t *testing.T) {
	tests := []struct {
		sq   string
		want GridIndices
	}{
		{"a1", GridIndices{2, 2}},
		{"h8", GridIndices{9, 9}},
		{"e4", GridIndices{6, 5}},
		{"D2", GridIndices{5, 3}},
	}
	for _, tt := range tests {
		got, err := ParseSquare(tt.sq)
		if err != nil {
			t.Fatalf("ParseSquare(%q): %v", tt.sq, err)
		}
		if got != tt.want {
			t.Errorf("ParseSquare(%q) = %v, want %v", tt.sq, got, tt.want)
		}
		if got.Square() != string([]byte{tt.sq[0] | 0x20, tt.sq[1]}) {
			t.Errorf("Square() = %q for %q", got.Square(), tt.sq)
		}
	}
	for _, bad := range []string{"", "i1", "a9", "a0", "e44"} {
		if _, err := ParseSquare(bad); err == nil {
			t.Errorf("ParseSquare(%q) should fail", bad)
		}
	}
}

func TestRings(t *testing.T) {
	if !(GridIndices{0, 5}).IsHome() || (GridIndices{0, 5}).IsDeadzone() {
		t.Error("(0,5) should be home only")
	}
	if !(GridIndices{1, 5}).IsDeadzone() || (GridIndices{1, 5}).IsBoard() {
		t.Error("(1,5) should be deadzone only")
	}
	if !(GridIndices{2, 2}).IsBoard() {
		t.Error("(2,2) should be board")
	}
	if (GridIndices{12, 2}).InBounds() {
		t.Error("(12,2) is off-grid")
	}
	if got := ClampToDeadzone(GridIndices{0, 0}); got != (GridIndices{1, 1}) {
		t.Errorf("ClampToDeadzone corner = %v", got)
	}
	if got := ClampToDeadzone(GridIndices{4, 11}); got != (GridIndices{4, 10}) {
		t.Errorf("ClampToDeadzone top = %v", got)
	}
}

func TestPositionConversions(t *testing.T) {
	g := GridIndices{5, 2}
	c := g.Center()
	if c != (Position{5.5, 2.5}) {
		t.Errorf("Center = %v", c)
	}
	if FromPosition(c) != g {
		t.Errorf("FromPosition(Center) = %v", FromPosition(c))
	}
	if FromPosition(Position{3.99, 2.01}) != (GridIndices{3, 2}) {
		t.Error("floor conversion")
	}
	sum := c.Add(Position{1, -1}).Sub(Position{1, -1})
	if sum != c {
		t.Errorf("add/sub not closed: %v", sum)
	}
}

func TestHeadings(t *testing.T) {
	if h := NormalizeHeading(-math.Pi / 2); math.Abs(h-3*math.Pi/2) > 1e-9 {
		t.Errorf("NormalizeHeading(-π/2) = %v", h)
	}
	if h := NormalizeHeading(2 * math.Pi); h != 0 {
		t.Errorf("NormalizeHeading(2π) = %v", h)
	}
	if d := ShortestTurn(0.1, 2*math.Pi-0.1); math.Abs(d+0.2) > 1e-9 {
		t.Errorf("ShortestTurn wrap = %v", d)
	}
	if d := ShortestTurn(0, math.Pi); math.Abs(d-math.Pi) > 1e-9 {
		t.Errorf("ShortestTurn half = %v", d)
	}
	v := HeadingVector(math.Pi / 2)
	if !v.ApproxEqual(Position{0, 1}, 1e-9) {
		t.Errorf("HeadingVector(π/2) = %v", v)
	}
}
