package generation

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pantrychef/internal/recipe"
)

type countingBudget struct {
	left     int
	consumed int
}

func (b *countingBudget) TryConsume(cost int) bool {
	if b.left < cost {
		return false
	}
	b.left -= cost
	b.consumed += cost
	return true
}

func TestParseSubstitutions(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []string
	}{
		{"envelope", `{"substitutions": ["Turkey", "tofu"]}`, []string{"turkey", "tofu"}},
		{"code block", "```json\n{\"substitutions\": [\"ghee\"]}\n```", []string{"ghee"}},
		{"bare array", `["lamb", "lentils"]`, []string{"lamb", "lentils"}},
		{"drops self and duplicates", `{"substitutions": ["chicken", "Tofu", "tofu ", ""]}`, []string{"tofu"}},
		{"caps the list", `{"substitutions": ["a", "b", "c", "d", "e", "f", "g"]}`, []string{"a", "b", "c", "d", "e"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseSubstitutions(tt.text, "Chicken")
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	for _, text := range []string{"", "none", `{"substitutions": []}`, `{"substitutions": "tofu"}`} {
		_, err := ParseSubstitutions(text, "chicken")
		assert.ErrorIs(t, err, recipe.ErrGenerationParse, "input %q", text)
	}
}

func TestBuildSubstitutionPrompt(t *testing.T) {
	prompt := BuildSubstitutionPrompt("okra", "Sudanese")
	assert.Contains(t, prompt, `"okra" in sudanese cooking`)
	assert.Contains(t, prompt, `{"substitutions"`)

	assert.Contains(t, BuildSubstitutionPrompt("okra", ""), "in global cooking")
}

func TestFallbackSubstitutions(t *testing.T) {
	assert.Equal(t, []string{"turkey", "tofu", "tempeh", "mushrooms"}, FallbackSubstitutions(" Chicken "))
	assert.Empty(t, FallbackSubstitutions("durian"))
	assert.NotNil(t, FallbackSubstitutions("durian"))

	// Callers cannot change the table through the returned slice.
	subs := FallbackSubstitutions("beef")
	subs[0] = "changed"
	assert.Equal(t, "lamb", FallbackSubstitutions("beef")[0])
}

func TestSubstituter(t *testing.T) {
	ctx := context.Background()

	t.Run("generated", func(t *testing.T) {
		backend := &mockCompleter{response: `{"substitutions": ["fava beans", "chickpeas"]}`}
		budget := &countingBudget{left: 1}
		s := NewSubstituter(NewClient(backend, nil), budget, time.Second, nil)

		got := s.Substitute(ctx, " Lentils ", "sudanese")
		assert.Equal(t, Substitution{
			Ingredient:    "lentils",
			Substitutions: []string{"fava beans", "chickpeas"},
			Source:        SourceGenerated,
		}, got)
		assert.Equal(t, 1, budget.consumed)
		assert.Contains(t, backend.receivedPrompt, `"lentils"`)
	})

	t.Run("backend error falls back", func(t *testing.T) {
		backend := &mockCompleter{returnError: errors.New("boom")}
		s := NewSubstituter(NewClient(backend, nil), nil, time.Second, nil)

		got := s.Substitute(ctx, "butter", "")
		assert.Equal(t, SourceFallback, got.Source)
		assert.Equal(t, []string{"oil", "margarine", "coconut oil", "ghee"}, got.Substitutions)
	})

	t.Run("malformed output falls back", func(t *testing.T) {
		backend := &mockCompleter{response: "I cannot help with that."}
		s := NewSubstituter(NewClient(backend, nil), nil, time.Second, nil)

		got := s.Substitute(ctx, "milk", "")
		assert.Equal(t, SourceFallback, got.Source)
		assert.Len(t, got.Substitutions, 4)
	})

	t.Run("budget exhausted skips backend", func(t *testing.T) {
		backend := &mockCompleter{response: `{"substitutions": ["tofu"]}`}
		s := NewSubstituter(NewClient(backend, nil), &countingBudget{}, time.Second, nil)

		got := s.Substitute(ctx, "chicken", "")
		assert.Equal(t, SourceFallback, got.Source)
		assert.Empty(t, backend.receivedPrompt)
	})

	t.Run("no backend", func(t *testing.T) {
		s := NewSubstituter(nil, nil, 0, nil)

		got := s.Substitute(ctx, "eggs", "")
		assert.Equal(t, SourceFallback, got.Source)
		assert.Equal(t, "eggs", got.Ingredient)
		assert.Len(t, got.Substitutions, 4)
	})
}
