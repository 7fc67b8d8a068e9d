// Package export renders candidate triples as RDF in N-Triples, Turtle or
// JSON-LD.
package export

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/c360studio/repograph/kg"
	vocab "github.com/c360studio/repograph/vocabulary/repograph"
	"github.com/c360studio/semstreams/vocabulary"
)

const (
	rdfType   = "http://www.w3.org/1999/02/22-rdf-syntax-ns#type"
	rdfsLabel = "http://www.w3.org/2000/01/rdf-schema#label"
	xsdNS     = "http://www.w3.org/2001/XMLSchema#"
)

// term is an RDF object: an IRI or a literal with an optional datatype.
type term struct {
	iri      string
	literal  string
	datatype string
}

type property struct {
	predicate string
	object    term
}

// node is one subject with its type assertions and properties.
type node struct {
	iri   string
	types []string
	props []property
}

// RDFExporter converts candidate triples to RDF.
type RDFExporter struct {
	profile       ProfileConfig
	minConfidence float64
	prefixes      map[string]string
}

// Option configures an RDFExporter.
type Option func(*RDFExporter)

// WithMinConfidence drops triples scored below c.
func WithMinConfidence(c float64) Option {
	return func(e *RDFExporter) {
		e.minConfidence = c
	}
}

// NewRDFExporter creates an exporter for the given profile.
func NewRDFExporter(profile Profile, opts ...Option) *RDFExporter {
	e := &RDFExporter{
		profile:  GetProfileConfig(profile),
		prefixes: defaultPrefixes(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// defaultPrefixes returns the namespace prefixes declared in Turtle and
// JSON-LD output.
func defaultPrefixes() map[string]string {
	return map[string]string{
		"rdf":    "http://www.w3.org/1999/02/22-rdf-syntax-ns#",
		"rdfs":   "http://www.w3.org/2000/01/rdf-schema#",
		"xsd":    xsdNS,
		"prov":   "http://www.w3.org/ns/prov#",
		"skos":   "http://www.w3.org/2004/02/skos/core#",
		"rg":     vocab.Namespace,
		"entity": vocab.EntityNamespace,
	}
}

// Export serializes triples to the specified format.
func (e *RDFExporter) Export(triples []kg.Triple, format Format) (string, error) {
	nodes := e.buildNodes(triples)
	switch format {
	case FormatTurtle:
		return e.toTurtle(nodes), nil
	case FormatNTriples:
		return toNTriples(nodes), nil
	case FormatJSONLD:
		return e.toJSONLD(nodes)
	default:
		return "", fmt.Errorf("unsupported format: %s", format)
	}
}

// WriteFile exports triples to candidate_triples.<ext> in dir and returns
// the path written.
func (e *RDFExporter) WriteFile(dir string, triples []kg.Triple, format Format) (string, error) {
	info, ok := GetFormatInfo(format)
	if !ok {
		return "", fmt.Errorf("unsupported format: %s", format)
	}
	out, err := e.Export(triples, format)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create export directory: %w", err)
	}
	path := filepath.Join(dir, "candidate_triples"+info.Extension)
	if err := os.WriteFile(path, []byte(out), 0o644); err != nil {
		return "", fmt.Errorf("write %s: %w", path, err)
	}
	return path, nil
}

// buildNodes groups triples by subject in order of first appearance.
// Under typing profiles, referenced entities become nodes of their own.
func (e *RDFExporter) buildNodes(triples []kg.Triple) []*node {
	var order []string
	nodes := make(map[string]*node)
	get := func(iri string, types ...string) *node {
		n, ok := nodes[iri]
		if !ok {
			n = &node{iri: iri}
			if e.profile.IncludeTypes {
				n.types = types
			}
			nodes[iri] = n
			order = append(order, iri)
		}
		return n
	}

	for _, t := range triples {
		if t.Confidence < e.minConfidence {
			continue
		}
		repoTypes := []string{vocab.ClassRepository}
		if e.profile.IncludePROV {
			repoTypes = append(repoTypes, vocabulary.ProvEntity)
		}
		subject := get(RepositoryIRI(t.Subject), repoTypes...)

		obj, entityType := objectTerm(t)
		subject.props = append(subject.props, property{predicate: e.predicateIRI(t.Predicate), object: obj})

		if entityType != "" && e.profile.IncludeTypes {
			en := get(obj.iri, vocab.ClassIRI(entityType))
			if e.profile.IncludeLabels && len(en.props) == 0 {
				en.props = append(en.props, property{predicate: rdfsLabel, object: term{literal: t.Object}})
			}
		}
	}

	out := make([]*node, 0, len(order))
	for _, iri := range order {
		out = append(out, nodes[iri])
	}
	return out
}

func (e *RDFExporter) predicateIRI(name string) string {
	if e.profile.TranslatePredicates {
		return vocab.StandardIRI(name)
	}
	return vocab.PredicateIRI(name)
}

// RepositoryIRI returns the IRI of a repository identifier.
func RepositoryIRI(repoID string) string {
	return EntityIRI(kg.EntityRepository, repoID)
}

// EntityIRI returns the IRI of a named entity.
func EntityIRI(t kg.EntityType, name string) string {
	return vocab.EntityNamespace + string(t) + "/" + url.PathEscape(name)
}

// objectTerm types the object of a triple from its predicate's data type.
// Entity-valued objects become entity IRIs and report their entity type.
func objectTerm(t kg.Triple) (term, kg.EntityType) {
	p, ok := vocab.Lookup(t.Predicate)
	if !ok {
		return term{literal: t.Object}, ""
	}
	switch p.DataType {
	case "int":
		if _, err := strconv.ParseInt(t.Object, 10, 64); err == nil {
			return term{literal: t.Object, datatype: xsdNS + "integer"}, ""
		}
	case "uri":
		if strings.HasPrefix(t.Object, "http://") || strings.HasPrefix(t.Object, "https://") {
			return term{iri: t.Object}, ""
		}
	case "entity":
		if et, err := kg.ParseEntityType(p.ObjectEntity); err == nil {
			return term{iri: EntityIRI(et, t.Object)}, et
		}
	}
	return term{literal: t.Object}, ""
}

// toNTriples serializes to N-Triples format.
func toNTriples(nodes []*node) string {
	var sb strings.Builder
	for _, n := range nodes {
		for _, typeIRI := range n.types {
			fmt.Fprintf(&sb, "<%s> <%s> <%s> .\n", n.iri, rdfType, typeIRI)
		}
		for _, p := range n.props {
			fmt.Fprintf(&sb, "<%s> <%s> %s .\n", n.iri, p.predicate, formatNTriples(p.object))
		}
	}
	return sb.String()
}

// toTurtle serializes to Turtle format with one block per subject.
func (e *RDFExporter) toTurtle(nodes []*node) string {
	var sb strings.Builder

	keys := make([]string, 0, len(e.prefixes))
	for k := range e.prefixes {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, prefix := range keys {
		fmt.Fprintf(&sb, "@prefix %s: <%s> .\n", prefix, e.prefixes[prefix])
	}
	sb.WriteString("\n")

	for _, n := range nodes {
		fmt.Fprintf(&sb, "<%s>\n", n.iri)
		total := len(n.types) + len(n.props)
		i := 0
		terminator := func() string {
			i++
			if i == total {
				return " .\n"
			}
			return " ;\n"
		}
		for _, typeIRI := range n.types {
			fmt.Fprintf(&sb, "    a <%s>%s", typeIRI, terminator())
		}
		for _, p := range n.props {
			fmt.Fprintf(&sb, "    <%s> %s%s", p.predicate, formatTurtle(p.object), terminator())
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

// toJSONLD serializes to JSON-LD. Repeated predicates become arrays.
func (e *RDFExporter) toJSONLD(nodes []*node) (string, error) {
	doc := JSONLDDocument{
		Context: make(map[string]any, len(e.prefixes)),
		Graph:   make([]JSONLDNode, 0, len(nodes)),
	}
	for k, v := range e.prefixes {
		doc.Context[k] = v
	}

	for _, n := range nodes {
		props := make(map[string]any)
		for _, p := range n.props {
			v := formatJSONLD(p.object)
			switch existing := props[p.predicate].(type) {
			case nil:
				props[p.predicate] = v
			case []any:
				props[p.predicate] = append(existing, v)
			default:
				props[p.predicate] = []any{existing, v}
			}
		}
		doc.Graph = append(doc.Graph, JSONLDNode{ID: n.iri, Type: n.types, Properties: props})
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal JSON-LD: %w", err)
	}
	return string(data) + "\n", nil
}

func formatNTriples(t term) string {
	if t.iri != "" {
		return "<" + t.iri + ">"
	}
	if t.datatype != "" {
		return fmt.Sprintf("\"%s\"^^<%s>", escapeString(t.literal), t.datatype)
	}
	return fmt.Sprintf("\"%s\"", escapeString(t.literal))
}

func formatTurtle(t term) string {
	if t.datatype != "" && strings.HasPrefix(t.datatype, xsdNS) {
		return fmt.Sprintf("\"%s\"^^xsd:%s", escapeString(t.literal), strings.TrimPrefix(t.datatype, xsdNS))
	}
	return formatNTriples(t)
}

func formatJSONLD(t term) any {
	if t.iri != "" {
		return map[string]string{"@id": t.iri}
	}
	if t.datatype != "" {
		return map[string]string{"@value": t.literal, "@type": t.datatype}
	}
	return t.literal
}

// escapeString escapes special characters in strings for RDF serialization.
func escapeString(s string) string {
	s = strings.ReplaceAll(s, "\\", "\\\\")
	s = strings.ReplaceAll(s, "\"", "\\\"")
	s = strings.ReplaceAll(s, "\n", "\\n")
	s = strings.ReplaceAll(s, "\r", "\\r")
	s = strings.ReplaceAll(s, "\t", "\\t")
	return s
}
