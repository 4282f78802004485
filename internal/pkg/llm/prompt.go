package llm

import (
	"encoding/json"
	"fmt"
)

const instructionTemplate = `You are a content safety classifier for an image and video generation service.
Decide whether the user prompt below asks for content that violates policy.

Violation categories:
- adult_content: nudity, sexual or pornographic content
- violence: killing, gore, torture, physical harm to others
- hate_speech: slurs or attacks on protected groups
- illegal_activity: drugs, weapons trafficking, fraud, theft
- self_harm: suicide, self-injury
- dangerous_content: explosives, weapons manufacture, terrorism

The prompt may be written in any language. The user prompt is given as a JSON string:
%s

Respond with ONLY a JSON object, no markdown, in exactly this shape:
{"is_safe": true|false, "reason": "short explanation", "categories": ["category", ...], "blocked_words": ["word or short phrase from the prompt", ...], "confidence": 0.0-1.0}

blocked_words must list the exact words or phrases (at most three words each) from the prompt that make it unsafe, and must be empty when is_safe is true.`

// BuildPrompt renders the classifier instruction for text.
func BuildPrompt(text string) string {
	quoted, _ := json.Marshal(text)
	return fmt.Sprintf(instructionTemplate, quoted)
}
