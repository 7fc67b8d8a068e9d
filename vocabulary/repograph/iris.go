package repograph

import "github.com/c360studio/repograph/kg"

// Namespace is the base IRI prefix for repograph ontology terms.
const Namespace = "https://repograph.dev/ontology/"

// EntityNamespace is the base IRI for entity instances.
const EntityNamespace = "https://repograph.dev/entity/"

// Class IRIs for the entity tables.
const (
	// ClassRepository represents a hosted source repository.
	ClassRepository = Namespace + "Repository"

	// ClassLicense represents an open-source license.
	ClassLicense = Namespace + "License"

	// ClassLanguage represents a programming language.
	ClassLanguage = Namespace + "ProgrammingLanguage"

	// ClassTag represents a repository topic.
	ClassTag = Namespace + "Tag"

	// ClassContributor represents a contributing account.
	ClassContributor = Namespace + "Contributor"
)

// ClassMap maps entity types to class IRIs.
var ClassMap = map[kg.EntityType]string{
	kg.EntityRepository:  ClassRepository,
	kg.EntityLicense:     ClassLicense,
	kg.EntityLanguage:    ClassLanguage,
	kg.EntityTag:         ClassTag,
	kg.EntityContributor: ClassContributor,
}

// ClassIRI returns the class IRI for an entity type, or "" when unmapped.
func ClassIRI(t kg.EntityType) string {
	return ClassMap[t]
}
