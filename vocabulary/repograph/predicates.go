// Package repograph defines the predicate vocabulary of the repository
// knowledge graph: canonical predicate names used in tabular artifacts,
// dotted names used for graph ingestion, and IRIs used for RDF export.
package repograph

import (
	"sort"
	"strings"
)

// Structured-field predicates produced by the rule extractor.
const (
	// UsesLanguage links a repository to a language from its language breakdown.
	UsesLanguage = "uses_language"

	// HasLicense links a repository to its license name.
	HasLicense = "has_license"

	// HasTag links a repository to a topic.
	HasTag = "has_tag"

	// HasStars records the star count.
	HasStars = "has_stars"

	// HasURL records the canonical repository URL.
	HasURL = "has_url"

	// HasContributor links a repository to a contributor login.
	HasContributor = "has_contributor"

	// HasDescription records a free-text description.
	HasDescription = "has_description"

	// HasRelatedRepository links a repository to another repository.
	HasRelatedRepository = "has_related_repository"
)

// Free-text predicates produced by pattern mining and the generative extractor.
const (
	// WrittenIn links software to a programming language mentioned in text.
	WrittenIn = "writtenIn"

	// UsesTechnology links software to a framework, library or technology.
	UsesTechnology = "usesTechnology"

	// DevelopedBy links software to a person or organization.
	DevelopedBy = "developedBy"

	// HasRelease links software to a version number.
	HasRelease = "hasRelease"

	// ApplicationDomain links software to its field of application.
	ApplicationDomain = "applicationDomain"
)

// Predicate describes one vocabulary entry.
type Predicate struct {
	// Name is the canonical predicate used in triples and CSV output.
	Name string

	// Dotted is the domain.category.property form used on graph ingest subjects.
	Dotted string

	// Description explains the relation.
	Description string

	// DataType is the object type: "string", "int", "uri" or "entity".
	DataType string

	// ObjectEntity is the entity table the object belongs to, if any.
	ObjectEntity string
}

// IRI returns the ontology IRI for the predicate.
func (p Predicate) IRI() string {
	return Namespace + p.Name
}

var predicates = map[string]Predicate{
	UsesLanguage: {
		Name:         UsesLanguage,
		Dotted:       "repo.language.uses",
		Description:  "Language present in the repository language breakdown",
		DataType:     "entity",
		ObjectEntity: "language",
	},
	HasLicense: {
		Name:         HasLicense,
		Dotted:       "repo.license.name",
		Description:  "License declared by the repository",
		DataType:     "entity",
		ObjectEntity: "license",
	},
	HasTag: {
		Name:         HasTag,
		Dotted:       "repo.topic.tag",
		Description:  "Topic attached to the repository",
		DataType:     "entity",
		ObjectEntity: "tag",
	},
	HasStars: {
		Name:        HasStars,
		Dotted:      "repo.popularity.stars",
		Description: "Star count at acquisition time",
		DataType:    "int",
	},
	HasURL: {
		Name:        HasURL,
		Dotted:      "repo.location.url",
		Description: "Canonical web URL",
		DataType:    "uri",
	},
	HasContributor: {
		Name:         HasContributor,
		Dotted:       "repo.people.contributor",
		Description:  "Account that contributed commits",
		DataType:     "entity",
		ObjectEntity: "contributor",
	},
	HasDescription: {
		Name:        HasDescription,
		Dotted:      "repo.text.description",
		Description: "Short description of the repository",
		DataType:    "string",
	},
	HasRelatedRepository: {
		Name:         HasRelatedRepository,
		Dotted:       "repo.relation.related",
		Description:  "Another repository this one depends on or is related to",
		DataType:     "entity",
		ObjectEntity: "repository",
	},
	WrittenIn: {
		Name:        WrittenIn,
		Dotted:      "repo.text.written_in",
		Description: "Programming language stated in free text",
		DataType:    "string",
	},
	UsesTechnology: {
		Name:        UsesTechnology,
		Dotted:      "repo.text.uses_technology",
		Description: "Technology or framework stated in free text",
		DataType:    "string",
	},
	DevelopedBy: {
		Name:        DevelopedBy,
		Dotted:      "repo.text.developed_by",
		Description: "Developer or organization stated in free text",
		DataType:    "string",
	},
	HasRelease: {
		Name:        HasRelease,
		Dotted:      "repo.text.release",
		Description: "Version number stated in free text",
		DataType:    "string",
	},
	ApplicationDomain: {
		Name:        ApplicationDomain,
		Dotted:      "repo.text.application_domain",
		Description: "Field the software is applied to",
		DataType:    "string",
	},
}

// aliases maps alternative spellings returned by models to canonical names.
var aliases = map[string]string{
	"relatedrepository":    HasRelatedRepository,
	"related_repository":   HasRelatedRepository,
	"hasrelatedrepository": HasRelatedRepository,
	"description":          HasDescription,
	"hasdescription":       HasDescription,
	"written_in":           WrittenIn,
	"uses_technology":      UsesTechnology,
	"developed_by":         DevelopedBy,
	"has_release":          HasRelease,
	"application_domain":   ApplicationDomain,
	"license":              HasLicense,
	"haslicense":           HasLicense,
	"language":             WrittenIn,
	"useslanguage":         UsesLanguage,
}

// Lookup returns the vocabulary entry for a canonical predicate name.
func Lookup(name string) (Predicate, bool) {
	p, ok := predicates[name]
	return p, ok
}

// Align maps a predicate name onto the vocabulary. Canonical names are
// returned as is, known aliases are rewritten, and unknown names pass through
// trimmed. The boolean reports whether the result is a vocabulary predicate.
func Align(name string) (string, bool) {
	name = strings.TrimSpace(name)
	if _, ok := predicates[name]; ok {
		return name, true
	}
	if canonical, ok := aliases[strings.ToLower(name)]; ok {
		return canonical, true
	}
	for canonical := range predicates {
		if strings.EqualFold(canonical, name) {
			return canonical, true
		}
	}
	return name, false
}

// DottedName returns the graph-ingest form of a predicate. Unknown predicates
// are placed under repo.extra.
func DottedName(name string) string {
	if p, ok := predicates[name]; ok {
		return p.Dotted
	}
	return "repo.extra." + strings.ToLower(name)
}

// PredicateIRI returns the IRI for a predicate name, known or not.
func PredicateIRI(name string) string {
	return Namespace + name
}

// Names returns all canonical predicate names sorted.
func Names() []string {
	out := make([]string, 0, len(predicates))
	for name := range predicates {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// GenerativePredicates lists the relations the generative extractor is asked
// to produce, in prompt order.
func GenerativePredicates() []Predicate {
	names := []string{DevelopedBy, WrittenIn, UsesTechnology, ApplicationDomain, HasRelatedRepository, HasRelease}
	out := make([]Predicate, 0, len(names))
	for _, n := range names {
		out = append(out, predicates[n])
	}
	return out
}
