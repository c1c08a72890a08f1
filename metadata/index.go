package metadata

import (
	"sync"

	"github.com/RoaringBitmap/roaring/v2/roaring64"
)

// Index stores one Document per vector id and keeps an inverted index of
// string values for category prefiltering.
//
// Structure: field -> value key -> bitmap of ids. Elements of string arrays
// are posted individually.
type Index struct {
	mu sync.RWMutex

	schema   Schema
	docs     map[uint64]Document
	postings map[string]map[string]*roaring64.Bitmap
}

// NewIndex creates an empty index. A nil schema accepts any document.
func NewIndex(schema Schema) *Index {
	return &Index{
		schema:   schema,
		docs:     make(map[uint64]Document),
		postings: make(map[string]map[string]*roaring64.Bitmap),
	}
}

// Set replaces the document of id. A nil or empty doc removes it.
func (ix *Index) Set(id uint64, doc Document) error {
	if err := ix.schema.Validate(doc); err != nil {
		return err
	}
	doc = doc.Clone()

	ix.mu.Lock()
	defer ix.mu.Unlock()

	if old, ok := ix.docs[id]; ok {
		ix.unpostLocked(id, old)
		delete(ix.docs, id)
	}
	if len(doc) == 0 {
		return nil
	}
	ix.docs[id] = doc
	ix.postLocked(id, doc)
	return nil
}

// Get returns a copy of the document of id.
func (ix *Index) Get(id uint64) (Document, bool) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	doc, ok := ix.docs[id]
	return doc.Clone(), ok
}

// Delete removes the document of id.
func (ix *Index) Delete(id uint64) {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	if old, ok := ix.docs[id]; ok {
		ix.unpostLocked(id, old)
		delete(ix.docs, id)
	}
}

// Len returns the number of stored documents.
func (ix *Index) Len() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	return len(ix.docs)
}

// Match evaluates fs against the document of id.
func (ix *Index) Match(fs FilterSet, id uint64, score float32) bool {
	if len(fs) == 0 {
		return true
	}
	var doc Document
	if fs.NeedsDocument() {
		ix.mu.RLock()
		doc = ix.docs[id]
		ix.mu.RUnlock()
	}
	return fs.Match(Candidate{ID: id, Doc: doc, Score: score})
}

// Candidates returns a superset of the ids that can satisfy the category
// filters in fs. ok is false when fs has no category filter.
func (ix *Index) Candidates(fs FilterSet) (bm *roaring64.Bitmap, ok bool) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	for i := range fs {
		f := &fs[i]
		if f.Field != FieldCategory || f.Value.Kind != KindString {
			continue
		}
		if f.Operator == OpContains {
			// Substring matches are not posted.
			if _, ok := ix.postings[f.Key]; !ok {
				return roaring64.New(), true
			}
			continue
		}
		posting := ix.postings[f.Key][f.Value.Key()]
		if posting == nil {
			return roaring64.New(), true
		}
		if bm == nil {
			bm = posting.Clone()
		} else {
			bm.And(posting)
		}
	}
	if bm == nil {
		return nil, false
	}
	return bm, true
}

func (ix *Index) postLocked(id uint64, doc Document) {
	for field, v := range doc {
		forEachPosted(v, func(key string) {
			byValue := ix.postings[field]
			if byValue == nil {
				byValue = make(map[string]*roaring64.Bitmap)
				ix.postings[field] = byValue
			}
			bm := byValue[key]
			if bm == nil {
				bm = roaring64.New()
				byValue[key] = bm
			}
			bm.Add(id)
		})
	}
}

func (ix *Index) unpostLocked(id uint64, doc Document) {
	for field, v := range doc {
		forEachPosted(v, func(key string) {
			byValue := ix.postings[field]
			bm := byValue[key]
			if bm == nil {
				return
			}
			bm.Remove(id)
			if bm.IsEmpty() {
				delete(byValue, key)
			}
			if len(byValue) == 0 {
				delete(ix.postings, field)
			}
		})
	}
}

func forEachPosted(v Value, fn func(key string)) {
	switch v.Kind {
	case KindString:
		fn(v.Key())
	case KindArray:
		for _, e := range v.A {
			if e.Kind == KindString {
				fn(e.Key())
			}
		}
	}
}
