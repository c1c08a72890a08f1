package metadata

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleDoc() Document {
	return Document{
		"lang":  String("go"),
		"tags":  Strings([]string{"db", "vector"}),
		"year":  Int(2023),
		"price": Float(9.5),
		"title": String("embedded vector store"),
	}
}

func TestFilterMatch(t *testing.T) {
	doc := sampleDoc()
	tests := []struct {
		name   string
		filter Filter
		score  float32
		want   bool
	}{
		{"range eq", Range("year", OpEq, 2023), 0, true},
		{"range ge", Range("year", OpGe, 2024), 0, false},
		{"range le float", Range("price", OpLe, 9.5), 0, true},
		{"range between", Between("year", 2020, 2023), 0, true},
		{"range missing key", Range("missing", OpGe, 0), 0, false},
		{"range on string", Range("lang", OpGe, 0), 0, false},
		{"category eq", Category("lang", "go"), 0, true},
		{"category eq miss", Category("lang", "rust"), 0, false},
		{"category contains array", HasCategory("tags", "vector"), 0, true},
		{"category contains array miss", HasCategory("tags", "graph"), 0, false},
		{"category contains substring", HasCategory("title", "vector"), 0, true},
		{"score ge", Score(OpGe, 0.5), 0.7, true},
		{"score le", Score(OpLe, 0.5), 0.7, false},
		{"score between", ScoreBetween(0.2, 0.8), 0.8, true},
		{"score between lower bound", ScoreBetween(0.2, 0.8), 0.2, true},
		{"score between above", ScoreBetween(0.2, 0.8), 0.81, false},
		{"score le boundary", Score(OpLe, 0.8), 0.8, true},
		{"score ge boundary", Score(OpGe, 0.3), 0.3, true},
		{"score eq", Score(OpEq, 0.1), 0.1, true},
		{"custom", Custom(func(id uint64, d Document) bool { return id == 7 && d["lang"].Equal(String("go")) }), 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.NoError(t, tt.filter.Validate())
			assert.Equal(t, tt.want, tt.filter.Match(Candidate{ID: 7, Doc: doc, Score: tt.score}))
		})
	}
}

func TestFilterSet_And(t *testing.T) {
	doc := sampleDoc()
	fs := FilterSet{Category("lang", "go"), Range("year", OpGe, 2020)}
	assert.True(t, fs.Match(Candidate{Doc: doc}))

	fs = append(fs, Score(OpGe, 0.9))
	assert.False(t, fs.Match(Candidate{Doc: doc, Score: 0.5}))
	assert.True(t, FilterSet(nil).Match(Candidate{}))

	assert.False(t, FilterSet{Score(OpGe, 0)}.NeedsDocument())
	assert.True(t, fs.NeedsDocument())
}

func TestFilterValidate(t *testing.T) {
	invalid := []Filter{
		{Field: FieldRange, Operator: OpContains, Key: "x", Value: Int(1)},
		{Field: FieldRange, Operator: OpGe, Key: "x", Value: String("a")},
		{Field: FieldRange, Operator: OpGe, Value: Int(1)},
		Between("x", 5, 1),
		{Field: FieldCategory, Operator: OpGe, Key: "x"},
		{Field: FieldCategory, Operator: OpEq},
		{Field: FieldCustom},
		{Field: 42},
	}
	for _, f := range invalid {
		assert.ErrorIs(t, f.Validate(), ErrInvalidFilter, "%+v", f)
	}

	err := FilterSet{Category("a", "b"), {Field: FieldCustom}}.Validate()
	assert.ErrorIs(t, err, ErrInvalidFilter)
	assert.Contains(t, err.Error(), "filter 1")
}

func TestValueEqual(t *testing.T) {
	assert.True(t, Int(3).Equal(Float(3)))
	assert.True(t, Float(3).Equal(Int(3)))
	assert.False(t, Int(3).Equal(String("3")))
	assert.True(t, Strings([]string{"a", "b"}).Equal(Strings([]string{"a", "b"})))
	assert.False(t, Strings([]string{"a"}).Equal(Strings([]string{"a", "b"})))
	assert.True(t, Null().Equal(Null()))
	assert.Equal(t, "s:go", String("go").Key())
}

func TestDocumentClone(t *testing.T) {
	doc := sampleDoc()
	c := doc.Clone()
	c["tags"].A[0] = String("changed")
	assert.Equal(t, "db", doc["tags"].A[0].StringValue())
}

func TestDocumentFromAny(t *testing.T) {
	doc, err := DocumentFromAny(map[string]any{
		"a": 1,
		"b": 2.5,
		"c": "x",
		"d": []any{"y", true},
		"e": nil,
	})
	require.NoError(t, err)
	assert.Equal(t, Int(1), doc["a"])
	assert.Equal(t, KindArray, doc["d"].Kind)
	assert.Equal(t, KindNull, doc["e"].Kind)

	_, err = DocumentFromAny(map[string]any{"bad": struct{}{}})
	assert.Error(t, err)
	_, err = FromAny(uint64(1 << 63))
	assert.Error(t, err)
}

func TestSchema(t *testing.T) {
	s := Schema{"year": KindInt, "price": KindFloat}
	require.NoError(t, s.Validate(Document{"year": Int(1), "price": Int(2), "other": Bool(true)}))
	require.NoError(t, s.Validate(Document{"year": Null()}))
	assert.ErrorIs(t, s.Validate(Document{"year": String("x")}), ErrSchemaViolation)
}

func TestIndex(t *testing.T) {
	ix := NewIndex(Schema{"year": KindInt})
	require.NoError(t, ix.Set(1, Document{"lang": String("go"), "tags": Strings([]string{"a", "b"}), "year": Int(2020)}))
	require.NoError(t, ix.Set(2, Document{"lang": String("go"), "tags": Strings([]string{"b"}), "year": Int(2024)}))
	require.NoError(t, ix.Set(3, Document{"lang": String("rust")}))
	assert.Error(t, ix.Set(4, Document{"year": String("x")}))
	assert.Equal(t, 3, ix.Len())

	bm, ok := ix.Candidates(FilterSet{Category("lang", "go")})
	require.True(t, ok)
	assert.Equal(t, []uint64{1, 2}, bm.ToArray())

	bm, ok = ix.Candidates(FilterSet{Category("lang", "go"), HasCategory("tags", "a")})
	require.True(t, ok)
	assert.Equal(t, []uint64{1, 2}, bm.ToArray(), "contains filters do not narrow")

	bm, ok = ix.Candidates(FilterSet{Category("lang", "java")})
	require.True(t, ok)
	assert.True(t, bm.IsEmpty())

	_, ok = ix.Candidates(FilterSet{Range("year", OpGe, 0)})
	assert.False(t, ok)

	fs := FilterSet{Category("lang", "go"), Range("year", OpGe, 2021)}
	assert.False(t, ix.Match(fs, 1, 0))
	assert.True(t, ix.Match(fs, 2, 0))
	assert.False(t, ix.Match(fs, 99, 0))

	// Replace and delete keep postings consistent.
	require.NoError(t, ix.Set(2, Document{"lang": String("rust")}))
	bm, _ = ix.Candidates(FilterSet{Category("lang", "go")})
	assert.Equal(t, []uint64{1}, bm.ToArray())

	ix.Delete(1)
	bm, _ = ix.Candidates(FilterSet{Category("lang", "go")})
	assert.True(t, bm.IsEmpty())
	_, ok = ix.Get(1)
	assert.False(t, ok)

	require.NoError(t, ix.Set(3, nil))
	assert.Equal(t, 1, ix.Len())
}

func TestIndexGetReturnsCopy(t *testing.T) {
	ix := NewIndex(nil)
	require.NoError(t, ix.Set(1, Document{"a": Int(1)}))
	doc, ok := ix.Get(1)
	require.True(t, ok)
	doc["a"] = Int(2)
	again, _ := ix.Get(1)
	assert.Equal(t, Int(1), again["a"])
}
