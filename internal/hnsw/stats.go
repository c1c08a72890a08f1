package hnsw

const nodeOverhead = 64

// Stats returns a snapshot of graph state.
func (s *Snapshot) Stats() Stats {
	g := s.g
	st := Stats{
		Nodes:      g.live,
		Tombstones: int(g.tombstones.GetCardinality()),
		MaxLevel:   g.maxLevel,
		Levels:     make([]LevelStats, g.maxLevel+1),
	}
	for l := range st.Levels {
		st.Levels[l].Level = l
	}
	if g.hasEntry {
		st.EntryID = g.nodes[g.entry].id
	}

	for slot, n := range g.nodes {
		if n == nil {
			continue
		}
		st.Bytes += nodeOverhead + int64(cap(n.vec))*4
		for l, links := range n.links {
			st.Bytes += int64(cap(links)) * 4
			if g.tombstones.Contains(uint32(slot)) || l >= len(st.Levels) {
				continue
			}
			st.Levels[l].Nodes++
			st.Levels[l].Edges += len(links)
		}
	}
	return st
}

// TombstoneRatio returns tombstones / (live + tombstones).
func (s *Snapshot) TombstoneRatio() float64 {
	dead := s.g.tombstones.GetCardinality()
	total := uint64(s.g.live) + dead
	if total == 0 {
		return 0
	}
	return float64(dead) / float64(total)
}
