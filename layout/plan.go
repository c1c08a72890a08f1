package layout

import "fmt"

// Plan is the layout decision for a descriptor.
type Plan struct {
	Strategy Strategy
	Packing  Packing

	RawSize     int
	AlignedSize int
	// Stride is the distance between consecutive slots in a block.
	Stride int
	// VectorsPerBlock is floor(PayloadSize/AlignedSize); zero when a single
	// vector spans several extent blocks.
	VectorsPerBlock int
	// ExtentsPerVector is the number of blocks one vector occupies.
	ExtentsPerVector int

	VectorCount int
	// BlocksNeeded is ceil(total aligned bytes / BlockSize), the nominal
	// block count Fragmentation is derived from.
	BlocksNeeded int
	// BlocksAllocated is the number of blocks the layout actually occupies
	// once headers, per-block packing and extents are accounted for. It is
	// never less than BlocksNeeded.
	BlocksAllocated int
	AlignmentWaste  int
	Fragmentation   int
}

// Choose applies the strategy rules to a descriptor.
func Choose(desc VectorDescriptor, threshold int) (Strategy, Packing) {
	if threshold <= 0 {
		threshold = DefaultAlignmentThreshold
	}
	switch {
	case desc.IsCompressed():
		return StrategyCompressed, PackingTight
	case desc.IsSparse():
		return StrategySparse, PackingNone
	case desc.RawSize() >= threshold:
		return StrategyAligned, PackingAligned
	default:
		return StrategyPacked, PackingTight
	}
}

// AlignUp rounds n up to the next multiple of align.
func AlignUp(n, align int) int {
	if align <= 0 {
		return n
	}
	return (n + align - 1) / align * align
}

// NewPlan computes the layout of count vectors described by desc.
func NewPlan(desc VectorDescriptor, count, threshold int) (Plan, error) {
	if err := desc.Validate(); err != nil {
		return Plan{}, err
	}
	if count < 0 {
		return Plan{}, fmt.Errorf("%w: negative vector count %d", ErrInvalidDescriptor, count)
	}

	strategy, packing := Choose(desc, threshold)
	raw := desc.RawSize()
	aligned := AlignUp(raw, int(desc.SIMDAlignment))

	p := Plan{
		Strategy:         strategy,
		Packing:          packing,
		RawSize:          raw,
		AlignedSize:      aligned,
		Stride:           raw,
		VectorsPerBlock:  PayloadSize / aligned,
		ExtentsPerVector: 1,
		VectorCount:      count,
		AlignmentWaste:   (aligned - raw) * count,
	}
	if packing == PackingAligned {
		p.Stride = aligned
	}

	if p.VectorsPerBlock == 0 {
		p.ExtentsPerVector = (p.Stride + PayloadSize - 1) / PayloadSize
		if p.ExtentsPerVector > 0xFFFF {
			return Plan{}, fmt.Errorf("%w: vector needs %d extents", ErrCapacityExceeded, p.ExtentsPerVector)
		}
		p.BlocksAllocated = count * p.ExtentsPerVector
	} else {
		p.BlocksAllocated = (count + p.VectorsPerBlock - 1) / p.VectorsPerBlock
	}
	p.BlocksNeeded = (count*aligned + BlockSize - 1) / BlockSize

	if p.BlocksNeeded > 1 {
		p.Fragmentation = (p.BlocksNeeded - 1) * 10
	}
	return p, nil
}

// SlotOffset returns the payload offset of slot i.
func (p Plan) SlotOffset(slot int) int {
	return slot * p.Stride
}

// Efficiency returns 100 * raw bytes / allocated block bytes for the plan.
func (p Plan) Efficiency() float64 {
	if p.BlocksAllocated == 0 {
		return 0
	}
	return 100 * float64(p.RawSize*p.VectorCount) / float64(p.BlocksAllocated*BlockSize)
}
