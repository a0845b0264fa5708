package tool

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func echoTool(name, category string, optFns ...func(t *FunctionTool)) *FunctionTool {
	spec := &ParameterSpec{
		Properties: map[string]Property{
			"query": {Type: "string", Description: "Search text", DescriptionZh: "搜索文本"},
			"limit": {Type: "integer", Description: "Max results"},
		},
		Required: []string{"query"},
	}
	return NewFunctionTool(name, category, spec,
		func(ctx context.Context, args map[string]any) *Result {
			return Ok(args["query"])
		},
		append([]func(t *FunctionTool){WithDescriptions("Echo the query", "回显查询")}, optFns...)...)
}

func TestRegistryRegisterAndLookup(t *testing.T) {
	r := NewRegistry(nil)
	r.Register(echoTool("echo", "search"))

	got, ok := r.Get("echo")
	require.True(t, ok)
	assert.Equal(t, "echo", got.Name())

	_, ok = r.Get("missing")
	assert.False(t, ok)
}

func TestRegistryReplaceKeepsCount(t *testing.T) {
	r := NewRegistry(nil)
	first := echoTool("echo", "search")
	second := echoTool("echo", "search", WithDescriptions("Echo v2", ""))
	r.Register(first)
	r.Register(second)

	assert.Len(t, r.All(), 1)
	got, _ := r.Get("echo")
	assert.Equal(t, "Echo v2", got.Description("en"))
}

func TestRegistryOrdering(t *testing.T) {
	r := NewRegistry(nil)
	r.Register(echoTool("b_tool", "beta"))
	r.Register(echoTool("a_tool", "alpha"))
	r.Register(echoTool("c_tool", "beta"))

	// Categories in first-seen registration order, not alphabetical.
	assert.Equal(t, []string{"beta", "alpha"}, r.Categories())

	beta := r.ByCategory("beta")
	require.Len(t, beta, 2)
	assert.Equal(t, "b_tool", beta[0].Name())
	assert.Equal(t, "c_tool", beta[1].Name())

	catalog := r.Descriptions("en")
	assert.Less(t, strings.Index(catalog, "## beta"), strings.Index(catalog, "## alpha"))
}

func TestRegistryDescriptionsContent(t *testing.T) {
	r := NewRegistry(nil)
	r.Register(echoTool("echo", "search"))

	en := r.Descriptions("en")
	assert.Contains(t, en, "- echo: Echo the query")
	assert.Contains(t, en, "query (string, required): Search text")
	assert.Contains(t, en, "limit (integer, optional): Max results")
	// Required parameters are listed before optional ones.
	assert.Less(t, strings.Index(en, "query (string, required)"), strings.Index(en, "limit (integer, optional)"))

	zh := r.Descriptions("zh")
	assert.Contains(t, zh, "回显查询")
	assert.Contains(t, zh, "搜索文本")
}

func TestRegistrySchemas(t *testing.T) {
	r := NewRegistry(nil)
	r.Register(echoTool("echo", "search"))

	schemas := r.Schemas("en")
	require.Len(t, schemas, 1)
	assert.Equal(t, "echo", schemas[0].Name)
	assert.Equal(t, "search", schemas[0].Category)
	require.NotNil(t, schemas[0].Parameters)
	assert.Contains(t, schemas[0].Parameters.Properties, "query")
}

func TestRegistrySearch(t *testing.T) {
	r := NewRegistry(nil)
	r.Register(echoTool("search_concepts", "search"))
	r.Register(echoTool("save_note", "notes"))

	assert.Equal(t, []string{"search_concepts"}, r.Search("CONCEPT", "en"))
	assert.Equal(t, []string{"save_note"}, r.Search("notes", "en"))
	assert.Len(t, r.Search("e", "en"), 2)
	assert.Empty(t, r.Search("zzz", "en"))
}

func TestRegistryValidate(t *testing.T) {
	r := NewRegistry(nil)
	r.Register(echoTool("echo", "search"))

	res := r.Validate("echo", map[string]any{"query": "x"})
	assert.True(t, res.Success)

	res = r.Validate("echo", map[string]any{})
	assert.False(t, res.Success)
	require.Len(t, res.ValidationErrors, 1)
	assert.Contains(t, res.ValidationErrors[0].Message, "Missing required parameter: query")

	res = r.Validate("ghost", nil)
	assert.False(t, res.Success)
	assert.Equal(t, CodeUnknownTool, res.Error)
}
