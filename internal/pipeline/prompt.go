package pipeline

import (
	"strings"

	"studio/internal/domain"
)

const promptPreamble = "Professional commercial product photograph, photorealistic, sharp focus, natural colors."

const (
	refClauseBoth    = "Use the first reference image as the exact product and the second reference image as the model. Preserve the product's shape, label and colors, and keep the model's face and build consistent with the reference."
	refClauseProduct = "Use the reference image as the exact product. Preserve its shape, label and colors; do not invent variants."
	refClauseModel   = "Use the reference image as the model. Keep the model's face and build consistent with the reference."
	refClauseNone    = "No reference images are provided; render the product exactly as described."
)

// genericStyleClause is the fallback for styles outside the fixed set.
const genericStyleClause = "Clean studio backdrop, soft diffused lighting, true-to-life colors."

var styleClauses = map[domain.Style]string{
	domain.StyleStudio:     "Seamless studio backdrop, controlled softbox lighting, crisp commercial look.",
	domain.StyleLifestyle:  "Candid lifestyle setting, warm natural light, the product in everyday use.",
	domain.StyleOutdoor:    "Outdoor location with natural daylight, shallow depth of field, open-air atmosphere.",
	domain.StyleEditorial:  "High-fashion editorial treatment, dramatic directional lighting, bold composition.",
	domain.StyleMinimalist: "Minimalist scene, single accent surface, generous negative space, muted palette.",
	domain.StyleFestive:    "Festive styled scene, celebratory props and bokeh highlights, rich saturated tones.",
}

// BuildPrompt assembles the full generation instruction for one pose.
// Pure and deterministic: identical inputs produce identical output.
func BuildPrompt(params domain.BatchParameters, pose string) string {
	parts := []string{promptPreamble}

	if desc := strings.TrimSpace(params.Description); desc != "" {
		parts = append(parts, "Product: "+desc+".")
	}

	hasProduct := params.ProductImage != nil && !params.ProductImage.IsZero()
	hasModel := params.ModelImage != nil && !params.ModelImage.IsZero()
	switch {
	case hasProduct && hasModel:
		parts = append(parts, refClauseBoth)
	case hasProduct:
		parts = append(parts, refClauseProduct)
	case hasModel:
		parts = append(parts, refClauseModel)
	default:
		parts = append(parts, refClauseNone)
	}

	if pose = strings.TrimSpace(pose); pose != "" {
		parts = append(parts, "Pose and framing: "+pose+".")
	}

	parts = append(parts, "Compose for a "+string(params.AspectRatio)+" aspect ratio; the scene must fill the full frame.")
	parts = append(parts, styleClause(params.Style))

	return strings.Join(parts, " ")
}

func styleClause(style domain.Style) string {
	if clause, ok := styleClauses[style]; ok {
		return clause
	}
	return genericStyleClause
}
