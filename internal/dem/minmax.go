package dem

import "math"

// MinMaxNode is a node of a tile's min/max k-d pyramid: a balanced binary
// subdivision of the tile's cells, alternating along the larger side, down to
// single cells. Every node covers a rectangular cell range and stores the
// envelope of all elevation samples under it, so a traversal can discard
// whole subregions a ray cannot touch.
//
// Invariant: for every cell under a node, all four of its corner samples lie
// within [HMin, HMax].
type MinMaxNode struct {
	minLatCell, minLonCell int
	nLatCells, nLonCells   int

	// HMin and HMax bound every sample under the node.
	HMin, HMax float64

	// For internal nodes: the subdivision. Below covers the lower cell
	// indices, Above the upper ones; SplitValue is the latitude or longitude
	// of the dividing sample line.
	SplitAlongLatitude bool
	SplitValue         float64
	Below, Above       *MinMaxNode
}

// Leaf reports whether the node is a single cell.
func (n *MinMaxNode) Leaf() bool {
	return n.Below == nil
}

// CellIndices returns the (latIndex, lonIndex) of a leaf's cell.
func (n *MinMaxNode) CellIndices() (int, int) {
	return n.minLatCell, n.minLonCell
}

// CellRange returns the covered cell rectangle as (minLat, minLon, nLat, nLon).
func (n *MinMaxNode) CellRange() (int, int, int, int) {
	return n.minLatCell, n.minLonCell, n.nLatCells, n.nLonCells
}

// buildMinMaxTree builds the pyramid over the cell rectangle
// [minLatCell, minLatCell+nLatCells) × [minLonCell, minLonCell+nLonCells).
func buildMinMaxTree(t *Tile, minLatCell, minLonCell, nLatCells, nLonCells int) *MinMaxNode {
	node := &MinMaxNode{
		minLatCell: minLatCell,
		minLonCell: minLonCell,
		nLatCells:  nLatCells,
		nLonCells:  nLonCells,
	}

	if nLatCells == 1 && nLonCells == 1 {
		h00 := t.elevations[minLatCell*t.lonCols+minLonCell]
		h10 := t.elevations[minLatCell*t.lonCols+minLonCell+1]
		h01 := t.elevations[(minLatCell+1)*t.lonCols+minLonCell]
		h11 := t.elevations[(minLatCell+1)*t.lonCols+minLonCell+1]
		node.HMin = math.Min(math.Min(h00, h10), math.Min(h01, h11))
		node.HMax = math.Max(math.Max(h00, h10), math.Max(h01, h11))
		return node
	}

	// Split along the larger side; ties split along latitude.
	if nLatCells >= nLonCells {
		half := nLatCells / 2
		node.SplitAlongLatitude = true
		node.SplitValue = t.minLat + float64(minLatCell+half)*t.stepLat
		node.Below = buildMinMaxTree(t, minLatCell, minLonCell, half, nLonCells)
		node.Above = buildMinMaxTree(t, minLatCell+half, minLonCell, nLatCells-half, nLonCells)
	} else {
		half := nLonCells / 2
		node.SplitAlongLatitude = false
		node.SplitValue = t.minLon + float64(minLonCell+half)*t.stepLon
		node.Below = buildMinMaxTree(t, minLatCell, minLonCell, nLatCells, half)
		node.Above = buildMinMaxTree(t, minLatCell, minLonCell+half, nLatCells, nLonCells-half)
	}

	node.HMin = math.Min(node.Below.HMin, node.Above.HMin)
	node.HMax = math.Max(node.Below.HMax, node.Above.HMax)
	return node
}

// Locate descends to the deepest node whose cell rectangle contains the cell
// (latIndex, lonIndex), returning nil when the cell is outside the tree.
func (n *MinMaxNode) Locate(latIndex, lonIndex int) *MinMaxNode {
	if latIndex < n.minLatCell || latIndex >= n.minLatCell+n.nLatCells ||
		lonIndex < n.minLonCell || lonIndex >= n.minLonCell+n.nLonCells {
		return nil
	}
	if n.Leaf() {
		return n
	}
	if sub := n.Below.Locate(latIndex, lonIndex); sub != nil {
		return sub
	}
	return n.Above.Locate(latIndex, lonIndex)
}
