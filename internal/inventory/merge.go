package inventory

import "maps"

// Mergeable reports whether src can be stacked onto dst: both stackable, same
// footprint, image, name and background, and not the same item.
func Mergeable(dst, src *Item) bool {
	return dst != nil && src != nil &&
		dst.ID != src.ID &&
		dst.Stackable() && src.Stackable() &&
		dst.Width == src.Width && dst.Height == src.Height &&
		dst.Image == src.Image &&
		dst.Name == src.Name &&
		dst.Background == src.Background
}

// mergeInto folds all of src into dst. The caller discards src.
//
// Precondition: Mergeable(dst, src).
func mergeInto(dst, src *Item) {
	dst.StackSize += src.StackSize
	switch {
	case dst.Description == "":
		dst.Description = src.Description
	case src.Description != "" && src.Description != dst.Description:
		dst.Description = dst.Description + "\n\n" + src.Description
	}
	if len(src.Metadata) > 0 {
		if dst.Metadata == nil {
			dst.Metadata = make(map[string]string, len(src.Metadata))
		}
		maps.Copy(dst.Metadata, src.Metadata)
	}
}

// transferOne moves a single unit from src to dst. src may reach zero; it is
// never discarded here.
//
// Precondition: Mergeable(dst, src) and src.StackSize >= 1.
func transferOne(dst, src *Item) {
	dst.StackSize++
	src.StackSize--
}

// splitOne detaches one unit of src into a fresh item with StackSize 1.
//
// Precondition: src.StackSize > 1.
func splitOne(src *Item) *Item {
	unit := src.Clone()
	unit.StackSize = 1
	src.StackSize--
	return unit
}
