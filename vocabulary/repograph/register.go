package repograph

import "github.com/c360studio/semstreams/vocabulary"

// standardIRIs aligns predicates with established vocabularies where one fits.
var standardIRIs = map[string]string{
	DevelopedBy:          vocabulary.ProvWasAttributedTo,
	HasRelatedRepository: vocabulary.SkosRelated,
}

func init() {
	for _, name := range Names() {
		p := predicates[name]
		iri := p.IRI()
		if std, ok := standardIRIs[name]; ok {
			iri = std
		}
		vocabulary.Register(p.Dotted,
			vocabulary.WithDescription(p.Description),
			vocabulary.WithDataType(p.DataType),
			vocabulary.WithIRI(iri))
	}
}

// StandardIRI returns the registered IRI of a predicate: a standard
// vocabulary term where one is aligned, otherwise the repograph IRI.
func StandardIRI(name string) string {
	if meta := vocabulary.GetPredicateMetadata(DottedName(name)); meta != nil && meta.StandardIRI != "" {
		return meta.StandardIRI
	}
	return PredicateIRI(name)
}
