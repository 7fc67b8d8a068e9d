package generative

import (
	"fmt"
	"strings"

	vocab "github.com/c360studio/repograph/vocabulary/repograph"
)

// systemPrompt is the system message sent with every extraction request.
const systemPrompt = `You are a relation extractor. You receive repository text and reply with a JSON array only.`

// userPrompt is the instruction template. The placeholders are the relation
// list, the repository identifier and the (truncated) text.
const userPrompt = `You are a relation extractor. Target relations:
%s
Input: README text of a software repository and the repository name.
Reply in JSON with this format:
[
  {"predicate":"developedBy", "object":"OpenAI", "span":"...text span...", "confidence":0.9},
  ...
]

Example:
Input: repo=vllm, text="vLLM is an inference engine developed by OpenAI. It is written in Python and uses CUDA and Transformers."
Output: [{"predicate":"developedBy","object":"OpenAI","span":"developed by OpenAI","confidence":0.98},
         {"predicate":"writtenIn","object":"Python","span":"written in Python","confidence":0.96},
         {"predicate":"usesTechnology","object":"CUDA","span":"uses CUDA","confidence":0.9},
         {"predicate":"usesTechnology","object":"Transformers","span":"uses Transformers","confidence":0.9}
        ]

Now the input:
repo=%s
text: """%s"""
Return the JSON array only.`

// promptNames gives the name a relation is introduced to the model under.
// has_related_repository is asked for as relatedRepository and aligned back
// on parse.
var promptNames = map[string]string{
	vocab.HasRelatedRepository: "relatedRepository",
}

// relationTargets renders the relation list of the instruction template.
func relationTargets() string {
	var sb strings.Builder
	for _, p := range vocab.GenerativePredicates() {
		name := p.Name
		if alias, ok := promptNames[name]; ok {
			name = alias
		}
		fmt.Fprintf(&sb, "- %s (software -> %s)\n", name, targetKind(p.Name))
	}
	return sb.String()
}

func targetKind(predicate string) string {
	switch predicate {
	case vocab.DevelopedBy:
		return "person/organization"
	case vocab.WrittenIn:
		return "programming language"
	case vocab.UsesTechnology:
		return "technology/framework"
	case vocab.ApplicationDomain:
		return "application domain"
	case vocab.HasRelatedRepository:
		return "software repository"
	case vocab.HasRelease:
		return "version number"
	default:
		return "value"
	}
}

// BuildPrompt returns the user message for one repository.
func BuildPrompt(repoID, text string) string {
	return fmt.Sprintf(userPrompt, relationTargets(), repoID, text)
}
