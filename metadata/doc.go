// Package metadata holds per-vector metadata documents and the search
// filters evaluated against them.
//
// A Filter is a closed tagged variant: its Field selects one of four kinds
// (range, category, score, custom) and a single dispatch function, Match,
// evaluates it. A FilterSet combines filters with AND.
//
//	fs := metadata.FilterSet{
//	    metadata.Category("lang", "go"),
//	    metadata.Between("year", 2020, 2024),
//	    metadata.Score(metadata.OpGe, 0.5),
//	}
//
// Filters are applied when a candidate is admitted to a result set; they
// never prune graph traversal. Index keeps a Roaring bitmap per category
// value so a selective category filter can be answered by scanning only
// its candidates.
package metadata
