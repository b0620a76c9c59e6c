package imagegen

import "strings"

// CharacterDescription keeps generations on-model.
const CharacterDescription = "Trogdor the Burninator, a green S-shaped dragon with a single muscular arm emerging from the back, consummate V-shaped spikes down the spine, sharp white teeth, breathing bright orange and yellow flames"

const StyleModifiers = "Hand-drawn cartoon style, bold black outlines, vibrant colors, simple shapes, comic book illustration, dynamic action scene, flames and fire effects"

const (
	MinPromptLength = 3
	MaxPromptLength = 500
)

// EnhancePrompt wraps the user's prompt with the fixed character and style text.
func EnhancePrompt(prompt string) string {
	return CharacterDescription + ", " + strings.TrimSpace(prompt) + ". " + StyleModifiers
}
