package generation

import (
	"fmt"
	"strings"

	"pantrychef/internal/recipe"
)

// RecipesPerPrompt is how many recipes the model is asked for.
const RecipesPerPrompt = 3

var complexityGuide = map[int]string{
	1: "very simple with minimal cooking steps",
	2: "simple with basic cooking techniques",
	3: "of moderate complexity with standard techniques",
	4: "advanced with multiple techniques",
	5: "expert level with complex techniques",
}

const sudaneseContext = `Focus on authentic Sudanese cuisine with traditional ingredients and cooking methods.
Draw on dishes such as ful medames, kisra, bamia and mulah, and on ingredients like sorghum,
fava beans, okra, peanuts, sesame and tamarind with spices like cardamom, cinnamon and coriander.
Mention traditional accompaniments and serving customs.`

// BuildPrompt renders the generation prompt for a query.
func BuildPrompt(q recipe.Query) string {
	cuisine := recipe.NormalizeCuisine(q.Filters.Cuisine)

	complexity, ok := complexityGuide[q.Filters.Difficulty]
	if !ok {
		complexity = complexityGuide[3]
	}

	var b strings.Builder
	b.WriteString("You are an expert chef specializing in creating recipes from available ingredients.\n\n")
	fmt.Fprintf(&b, "INGREDIENTS AVAILABLE: %s\n\n", strings.Join(q.Ingredients, ", "))

	b.WriteString("REQUIREMENTS:\n")
	fmt.Fprintf(&b, "- Create %d unique, practical recipes using primarily these ingredients\n", RecipesPerPrompt)
	fmt.Fprintf(&b, "- Recipes should be %s\n", complexity)
	if cuisine != "" {
		fmt.Fprintf(&b, "- Cuisine: %s\n", cuisine)
	}
	if len(q.Filters.Dietary) > 0 {
		fmt.Fprintf(&b, "- The recipes must be %s\n", strings.Join(q.Filters.Dietary, ", "))
	}
	if q.Filters.MaxCookTime > 0 {
		fmt.Fprintf(&b, "- Total cooking time must not exceed %d minutes\n", q.Filters.MaxCookTime)
	}
	b.WriteString("- Provide clear, numbered, step-by-step instructions\n\n")

	switch cuisine {
	case "":
	case recipe.CuisineSudanese:
		b.WriteString(sudaneseContext)
		b.WriteString("\n\n")
	default:
		fmt.Fprintf(&b, "Focus on authentic %s cuisine with traditional flavors and techniques.\n\n", cuisine)
	}

	schemaCuisine := cuisine
	if schemaCuisine == "" {
		schemaCuisine = recipe.CuisineGlobal
	}
	difficulty := q.Filters.Difficulty
	if difficulty < 1 || difficulty > 5 {
		difficulty = 3
	}
	b.WriteString("RESPONSE FORMAT (JSON only):\n")
	fmt.Fprintf(&b, `{
  "recipes": [
    {
      "name": "Recipe Name",
      "ingredients": ["ingredient1", "ingredient2"],
      "instructions": ["1. First step", "2. Second step"],
      "cuisine": "%s",
      "difficulty": %d,
      "cook_time_minutes": 30,
      "servings": 4,
      "dietary_tags": ["tag1", "tag2"],
      "calories_per_serving": 450
    }
  ]
}
`, schemaCuisine, difficulty)
	fmt.Fprintf(&b, "\nUse dietary tags from: %s.\n", strings.Join(recipe.DietaryTags, ", "))
	b.WriteString("Important: Respond with valid JSON only. No additional text or markdown formatting.")
	return b.String()
}
