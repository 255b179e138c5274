package inventory

import "fmt"

// NoSlot is returned by SlotIndex for coordinates outside the container.
const NoSlot = -1

// slot grid dimensions; a socket is a single cell regardless of what it holds.
func (c *Container) cols() int { return c.width }
func (c *Container) rows() int { return c.height }

// SlotIndex maps (x, y) to an index into the slot array.
//
// Postcondition: returns NoSlot iff x < 0, y < 0, x >= cols or y >= rows.
func (c *Container) SlotIndex(x, y int) int {
	if x < 0 || y < 0 || x >= c.cols() || y >= c.rows() {
		return NoSlot
	}
	return y*c.cols() + x
}

// SlotCoords maps a slot index back to (x, y), or (-1, -1) for an invalid index.
func (c *Container) SlotCoords(index int) (x, y int) {
	if index < 0 || index >= len(c.slots) {
		return -1, -1
	}
	return index % c.cols(), index / c.cols()
}

// OccupantAt returns the ID of the item covering (x, y), or "" when the cell is
// empty or outside the container.
func (c *Container) OccupantAt(x, y int) ItemID {
	return c.OccupantAtIndex(c.SlotIndex(x, y))
}

// OccupantAtIndex returns the ID stored at slot index, or "" when empty or invalid.
func (c *Container) OccupantAtIndex(index int) ItemID {
	if index < 0 || index >= len(c.slots) {
		return ""
	}
	return c.slots[index]
}

// IsSlotEmpty reports whether (x, y) is inside the container and unoccupied.
func (c *Container) IsSlotEmpty(x, y int) bool {
	idx := c.SlotIndex(x, y)
	return idx != NoSlot && c.slots[idx] == ""
}

// inBounds reports whether the w x h region at (x, y) lies inside c. The
// comparisons are arranged so that no sum can overflow.
func (c *Container) inBounds(x, y, w, h int) bool {
	return w >= 1 && h >= 1 && x >= 0 && y >= 0 &&
		w <= c.cols() && x <= c.cols()-w &&
		h <= c.rows() && y <= c.rows()-h
}

// regionEmpty reports whether every cell of the w x h region at (x, y) is empty.
//
// Precondition: the region is in bounds.
func (c *Container) regionEmpty(x, y, w, h int) bool {
	for cy := y; cy < y+h; cy++ {
		row := cy * c.cols()
		for cx := x; cx < x+w; cx++ {
			if c.slots[row+cx] != "" {
				return false
			}
		}
	}
	return true
}

// regionOccupants returns the distinct item IDs covering the w x h region at
// (x, y), in row-major order of first appearance.
//
// Precondition: the region is in bounds.
func (c *Container) regionOccupants(x, y, w, h int) []ItemID {
	var out []ItemID
	seen := make(map[ItemID]struct{})
	for cy := y; cy < y+h; cy++ {
		row := cy * c.cols()
		for cx := x; cx < x+w; cx++ {
			id := c.slots[row+cx]
			if id == "" {
				continue
			}
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			out = append(out, id)
		}
	}
	return out
}

// reserve writes id into every cell of the inclusive rectangle.
//
// Precondition: the rectangle is in bounds and entirely empty. Violations are
// programming errors and panic before any cell is written.
func (c *Container) reserve(x0, y0, x1, y1 int, id ItemID) {
	w, h := x1-x0+1, y1-y0+1
	if !c.inBounds(x0, y0, w, h) {
		panic(fmt.Sprintf("inventory: reserve (%d,%d)-(%d,%d) outside container %q", x0, y0, x1, y1, c.id))
	}
	if !c.regionEmpty(x0, y0, w, h) {
		panic(fmt.Sprintf("inventory: reserve (%d,%d)-(%d,%d) in container %q overlaps %v",
			x0, y0, x1, y1, c.id, c.regionOccupants(x0, y0, w, h)))
	}
	for cy := y0; cy <= y1; cy++ {
		row := cy * c.cols()
		for cx := x0; cx <= x1; cx++ {
			c.slots[row+cx] = id
		}
	}
}

// clearRegion empties every cell of the inclusive rectangle regardless of content.
//
// Precondition: the rectangle is in bounds.
func (c *Container) clearRegion(x0, y0, x1, y1 int) {
	if !c.inBounds(x0, y0, x1-x0+1, y1-y0+1) {
		panic(fmt.Sprintf("inventory: clear (%d,%d)-(%d,%d) outside container %q", x0, y0, x1, y1, c.id))
	}
	for cy := y0; cy <= y1; cy++ {
		row := cy * c.cols()
		for cx := x0; cx <= x1; cx++ {
			c.slots[row+cx] = ""
		}
	}
}
