package config

import (
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c4h-run/refactorctl/pkg/schema"
)

func TestMerge_EmptyOverlayIsIdentity(t *testing.T) {
	base := schema.Tree{"a": 1, "b": schema.Tree{"c": 2}}
	result := Merge(base, schema.Tree{})
	assert.True(t, reflect.DeepEqual(base, result))
}

func TestMerge_ListReplacesWholesale(t *testing.T) {
	base := schema.Tree{"items": []any{"a", "b", "c"}}
	overlay := schema.Tree{"items": []any{"x"}}
	result := Merge(base, overlay)
	assert.Equal(t, []any{"x"}, result["items"])
}

func TestMerge_NullOverlaySetsPresentNullLeaf(t *testing.T) {
	base := schema.Tree{"keep": 1, "nulled": 2}
	overlay := schema.Tree{"nulled": nil}
	result := Merge(base, overlay)

	value, present := result["nulled"]
	assert.True(t, present, "a null overlay value must still be present, not absent")
	assert.Nil(t, value)
	assert.Equal(t, 1, result["keep"])
}

func TestMerge_KeyAbsentFromOverlayIsUntouched(t *testing.T) {
	base := schema.Tree{"keep": 1, "untouched": "value"}
	overlay := schema.Tree{"keep": 2}
	result := Merge(base, overlay)

	assert.Equal(t, "value", result["untouched"])
	assert.Equal(t, 2, result["keep"])
}

func TestMerge_RecursesIntoMaps(t *testing.T) {
	base := schema.Tree{"llm_config": schema.Tree{"agents": schema.Tree{"coder": schema.Tree{"temperature": 0.2, "model": "gpt"}}}}
	overlay := schema.Tree{"llm_config": schema.Tree{"agents": schema.Tree{"coder": schema.Tree{"temperature": 0.5}}}}
	result := Merge(base, overlay)

	coder := result["llm_config"].(schema.Tree)["agents"].(schema.Tree)["coder"].(schema.Tree)
	assert.Equal(t, 0.5, coder["temperature"])
	assert.Equal(t, "gpt", coder["model"], "untouched sibling key survives the merge")
}

func TestMerge_TypeMismatchOverlayWins(t *testing.T) {
	base := schema.Tree{"x": schema.Tree{"nested": true}}
	overlay := schema.Tree{"x": "now a string"}
	result := Merge(base, overlay)
	assert.Equal(t, "now a string", result["x"])
}

func TestMerge_DoesNotMutateInputs(t *testing.T) {
	base := schema.Tree{"a": schema.Tree{"b": 1}}
	overlay := schema.Tree{"a": schema.Tree{"b": 2}}
	_ = Merge(base, overlay)
	assert.Equal(t, 1, base["a"].(schema.Tree)["b"])
}

func TestMerge_AssociativeForDisjointLeafPaths(t *testing.T) {
	base := schema.Tree{"shared": schema.Tree{"x": 1}}
	a := schema.Tree{"shared": schema.Tree{"y": 2}}
	b := schema.Tree{"shared": schema.Tree{"z": 3}}

	left := Merge(Merge(base, a), b)
	right := Merge(base, Merge(a, b))
	assert.True(t, reflect.DeepEqual(left, right))
}

func TestGetValue_AbsentIsNotAnError(t *testing.T) {
	tree := schema.Tree{"a": schema.Tree{"b": 1}}
	v, ok := GetValue(tree, "a.b")
	require.True(t, ok)
	assert.Equal(t, 1, v)

	_, ok = GetValue(tree, "a.missing")
	assert.False(t, ok)

	_, ok = GetValue(tree, "a.b.c") // b is a scalar, not a map: still absent, not a panic
	assert.False(t, ok)
}

func TestAgentView_PrecedenceScenario(t *testing.T) {
	// spec §8 scenario 5: base=0.2, system_config=0.5, app_config=0 → resolved 0.
	base := schema.Tree{"llm_config": schema.Tree{"agents": schema.Tree{"coder": schema.Tree{
		"provider": "openai", "model": "gpt-4", "temperature": 0.2,
	}}}}
	system := schema.Tree{"llm_config": schema.Tree{"agents": schema.Tree{"coder": schema.Tree{"temperature": 0.5}}}}
	app := schema.Tree{"llm_config": schema.Tree{"agents": schema.Tree{"coder": schema.Tree{"temperature": 0.0}}}}

	store := Build(base, system, app)
	params, _, err := store.AgentView("coder")
	require.NoError(t, err)
	assert.Equal(t, 0.0, params.Temperature)
	assert.Equal(t, "openai", params.Provider)
}

func TestAgentView_UnresolvableProviderIsConfigError(t *testing.T) {
	store := New(schema.Tree{})
	_, _, err := store.AgentView("coder")
	require.Error(t, err)
	var te *schema.TaxonomyError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, schema.ErrCodeConfig, te.Code)
}

func TestAgentView_FallsBackToProviderDefaults(t *testing.T) {
	base := schema.Tree{
		"llm_config": schema.Tree{
			"default_provider": "openai",
			"providers": schema.Tree{
				"openai": schema.Tree{"default_model": "gpt-4o", "default_temperature": 0.3},
			},
			"agents": schema.Tree{"discovery": schema.Tree{}},
		},
	}
	store := New(base)
	params, _, err := store.AgentView("discovery")
	require.NoError(t, err)
	assert.Equal(t, "openai", params.Provider)
	assert.Equal(t, "gpt-4o", params.Model)
	assert.Equal(t, 0.3, params.Temperature)
}

func TestLoadYAML_EnvExpansion(t *testing.T) {
	t.Setenv("REFACTORCTL_TEST_KEY", "secret-value")
	tree, err := ParseYAML([]byte("providers:\n  openai:\n    api_key: \"${REFACTORCTL_TEST_KEY}\"\n"))
	require.NoError(t, err)
	providers := tree["providers"].(map[string]any)
	openai := providers["openai"].(map[string]any)
	assert.Equal(t, "secret-value", openai["api_key"])
}

func TestYAMLRoundTrip(t *testing.T) {
	tree := schema.Tree{"a": 1, "b": schema.Tree{"c": []any{"x", "y"}}}
	out, err := SerializeYAML(tree)
	require.NoError(t, err)
	parsed, err := ParseYAML(out)
	require.NoError(t, err)
	assert.Equal(t, float64(1), toFloat(parsed["a"]))
}
