package fil

// CatSets holds the forest's categorical split data: a per-feature
// category count and one packed bit pool. Every categorical node owns a
// contiguous byte range inside Bits, sized to its feature's category
// count rounded up to whole bytes; the node's val union stores the byte
// offset of that range.
type CatSets struct {
	// FeatureCounts[f] is the number of categories feature f can take;
	// 0 marks a numeric-only feature.
	FeatureCounts []int32
	Bits          []byte
}

// catValueInRange reports whether v maps to a representable category.
// Categories are small non-negative integers encoded as floats upstream;
// anything non-finite or outside [0, count) is out of domain and must be
// routed by the node's default direction instead of a bit test. The
// comparison stays in float space: converting an oversized float to an
// integer first is implementation-dependent and would let values far
// beyond the category domain slip through. NaN fails both comparisons.
func catValueInRange(v float32, count int32) bool {
	return v >= 0 && v < float32(count)
}

// contains tests the membership bit for an in-range value.
func (c *CatSets) contains(offset uint32, v float32) bool {
	cat := uint32(v)
	return c.Bits[offset+cat>>3]&(1<<(cat&7)) != 0
}

// Match reports whether v is a member of the node's category set. Values
// outside [0, count), NaN and infinities never match.
func (c *CatSets) Match(offset uint32, count int32, v float32) bool {
	if !catValueInRange(v, count) {
		return false
	}
	return c.contains(offset, v)
}

// setBytes returns the byte footprint of a set over count categories.
func setBytes(count int32) int {
	return int(count+7) / 8
}

// catSetsBuilder accumulates node bit-sets during import or training.
type catSetsBuilder struct {
	sets CatSets
}

func newCatSetsBuilder(featureCounts []int32) *catSetsBuilder {
	return &catSetsBuilder{sets: CatSets{FeatureCounts: featureCounts}}
}

// addSet appends a bit range for one node and returns its byte offset.
// Categories outside [0, count) are ignored; they can never match.
func (b *catSetsBuilder) addSet(feature int, categories []int) uint32 {
	count := b.sets.FeatureCounts[feature]
	offset := uint32(len(b.sets.Bits))
	b.sets.Bits = append(b.sets.Bits, make([]byte, setBytes(count))...)
	for _, cat := range categories {
		if cat < 0 || int32(cat) >= count {
			continue
		}
		b.sets.Bits[offset+uint32(cat)>>3] |= 1 << (uint32(cat) & 7)
	}
	return offset
}
