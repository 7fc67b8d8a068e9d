package consolidate

import (
	"testing"

	"github.com/c360studio/repograph/kg"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func extraction(id string, langs []string, license string, triples ...kg.Triple) *kg.Extraction {
	e := kg.NewExtraction(id)
	e.AddEntity(kg.EntityRepository, id)
	e.AddEntity(kg.EntityLanguage, langs...)
	e.AddEntity(kg.EntityLicense, license)
	e.AddTriples(triples...)
	return e
}

func triple(subject, predicate, object string, src kg.Source) kg.Triple {
	return kg.Triple{Subject: subject, Predicate: predicate, Object: object, Confidence: 1, Source: src}
}

func TestAccumulator_Add(t *testing.T) {
	a := New()
	a.Add(extraction("acme_foo", []string{"Go", "Python"}, "MIT",
		triple("acme_foo", "uses_language", "Go", kg.SourceMetadata),
		triple("acme_foo", "writtenIn", "Go", kg.SourcePattern)))
	a.Add(extraction("acme_bar", []string{"Go"}, "",
		triple("acme_bar", "uses_language", "Go", kg.SourceMetadata)))
	a.Add(nil)

	assert.Equal(t, []string{"acme_bar", "acme_foo"}, a.Table(kg.EntityRepository))
	assert.Equal(t, []string{"Go", "Python"}, a.Table(kg.EntityLanguage))
	assert.Equal(t, []string{"MIT"}, a.Table(kg.EntityLicense))
	assert.Empty(t, a.Table(kg.EntityContributor))

	triples := a.Triples()
	require.Len(t, triples, 3)
	assert.Equal(t, "acme_foo", triples[0].Subject)
	assert.Equal(t, "acme_bar", triples[2].Subject)
	assert.Equal(t, []string{"acme_foo", "acme_bar"}, a.Repositories())
}

func TestAccumulator_NoTripleDedup(t *testing.T) {
	tr := triple("acme_foo", "writtenIn", "Go", kg.SourcePattern)
	gen := tr
	gen.Source = kg.SourceGenerative

	a := Fold(extraction("acme_foo", nil, "", tr, tr, gen))
	assert.Len(t, a.Triples(), 3)

	st := a.Stats()
	assert.Equal(t, 2, st.BySource[string(kg.SourcePattern)])
	assert.Equal(t, 1, st.BySource[string(kg.SourceGenerative)])
}

func TestFold_TablesOrderIndependent(t *testing.T) {
	x := extraction("acme_foo", []string{"Go", "Rust"}, "MIT")
	y := extraction("acme_bar", []string{"Python", "Go"}, "Apache-2.0")
	z := extraction("umbrella_corp", []string{"C"}, "MIT")

	forward := Fold(x, y, z).Tables()
	backward := Fold(z, y, x).Tables()

	if diff := cmp.Diff(forward, backward); diff != "" {
		t.Errorf("tables depend on fold order (-forward +backward):\n%s", diff)
	}
}

func TestAccumulator_MergeMatchesSequentialFold(t *testing.T) {
	x := extraction("acme_foo", []string{"Go"}, "MIT", triple("acme_foo", "has_license", "MIT", kg.SourceMetadata))
	y := extraction("acme_bar", []string{"Rust"}, "", triple("acme_bar", "uses_language", "Rust", kg.SourceMetadata))

	sequential := Fold(x, y)

	left := Fold(x)
	left.Merge(Fold(y))
	left.Merge(nil)
	left.Merge(left)

	if diff := cmp.Diff(sequential.Tables(), left.Tables()); diff != "" {
		t.Errorf("tables differ (-sequential +merged):\n%s", diff)
	}
	if diff := cmp.Diff(sequential.Triples(), left.Triples()); diff != "" {
		t.Errorf("triples differ (-sequential +merged):\n%s", diff)
	}
	assert.Equal(t, sequential.Stats(), left.Stats())
}

func TestAccumulator_TablesCoverEveryType(t *testing.T) {
	tables := New().Tables()
	for _, et := range kg.EntityTypes {
		names, ok := tables[et]
		assert.True(t, ok, "missing table %s", et)
		assert.Empty(t, names)
	}
}
