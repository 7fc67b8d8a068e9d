package export

// Profile determines which type assertions and predicate IRIs are emitted.
type Profile string

const (
	// ProfileMinimal emits the candidate triples with repograph IRIs only.
	ProfileMinimal Profile = "minimal"

	// ProfileStandard adds class assertions, PROV-O typing and labels, and
	// translates predicates to standard vocabulary IRIs where aligned.
	ProfileStandard Profile = "standard"
)

// ProfileConfig contains configuration for an export profile.
type ProfileConfig struct {
	// Name is the profile identifier.
	Name Profile

	// Description describes the profile.
	Description string

	// IncludeTypes adds rdf:type assertions for repositories and entities.
	IncludeTypes bool

	// IncludePROV types repositories as prov:Entity.
	IncludePROV bool

	// IncludeLabels adds rdfs:label to entity nodes.
	IncludeLabels bool

	// TranslatePredicates uses standard vocabulary IRIs where registered.
	TranslatePredicates bool
}

// Profiles contains the configuration for all available export profiles.
var Profiles = map[Profile]ProfileConfig{
	ProfileMinimal: {
		Name:        ProfileMinimal,
		Description: "Candidate triples with repograph predicate IRIs",
	},
	ProfileStandard: {
		Name:                ProfileStandard,
		Description:         "Typed nodes, labels, PROV-O and standard predicate IRIs",
		IncludeTypes:        true,
		IncludePROV:         true,
		IncludeLabels:       true,
		TranslatePredicates: true,
	},
}

// GetProfileConfig returns the configuration for a profile, defaulting to
// the minimal profile.
func GetProfileConfig(profile Profile) ProfileConfig {
	if config, ok := Profiles[profile]; ok {
		return config
	}
	return Profiles[ProfileMinimal]
}
