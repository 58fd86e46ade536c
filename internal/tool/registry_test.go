package tool

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func weatherSchema() json.RawMessage {
	return json.RawMessage(`{"type":"object","properties":{"city":{"type":"string"}},"required":["city"]}`)
}

func echoTool(name string) Descriptor {
	return Descriptor{
		Name: name, Description: "echoes args", Schema: weatherSchema(),
		Execute: func(ctx context.Context, args json.RawMessage, tc *Ctx) (string, error) {
			return string(args), nil
		},
	}
}

func TestCustomToolShadowingBuiltinIsQuarantined(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.RegisterBuiltin(echoTool("get_weather")))

	reg.RegisterCustom(echoTool("get_weather"))

	_, ok := reg.Get("get_weather")
	require.True(t, ok) // built-in still resolves
	quarantine := reg.Quarantined()
	require.Len(t, quarantine, 1)
	require.Contains(t, quarantine[0].Reason, "shadows a built-in")
}

func TestDuplicateCustomToolsFirstLoadedWins(t *testing.T) {
	reg := NewRegistry()
	first := echoTool("search")
	first.Execute = func(ctx context.Context, args json.RawMessage, tc *Ctx) (string, error) { return "first", nil }
	reg.RegisterCustom(first)

	second := echoTool("search")
	second.Execute = func(ctx context.Context, args json.RawMessage, tc *Ctx) (string, error) { return "second", nil }
	reg.RegisterCustom(second)

	d, ok := reg.Get("search")
	require.True(t, ok)
	out, _ := reg.Execute(context.Background(), d.Name, json.RawMessage(`{}`), &Ctx{})
	require.Equal(t, "first", out)
	require.Len(t, reg.Quarantined(), 1)
}

func TestValidateSchemaRejectsMissingPropertyType(t *testing.T) {
	bad := json.RawMessage(`{"type":"object","properties":{"city":{}}}`)
	err := ValidateSchema(bad)
	require.Error(t, err)
}

func TestValidateSchemaRejectsRequiredNotInProperties(t *testing.T) {
	bad := json.RawMessage(`{"type":"object","properties":{"city":{"type":"string"}},"required":["zip"]}`)
	err := ValidateSchema(bad)
	require.Error(t, err)
}

func TestFilterByOutfitWildcard(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.RegisterBuiltin(echoTool("mcp:search")))
	require.NoError(t, reg.RegisterBuiltin(echoTool("journal.append")))
	require.NoError(t, reg.RegisterBuiltin(echoTool("email.send")))

	filtered := reg.FilterByOutfit([]string{"mcp:*", "journal.*"})
	names := map[string]bool{}
	for _, d := range filtered {
		names[d.Name] = true
	}
	require.True(t, names["mcp:search"])
	require.True(t, names["journal.append"])
	require.False(t, names["email.send"])
}

func TestExecuteUnknownToolReturnsError(t *testing.T) {
	reg := NewRegistry()
	out, isErr := reg.Execute(context.Background(), "missing", json.RawMessage(`{}`), &Ctx{})
	require.True(t, isErr)
	require.Contains(t, out, "unknown tool")
}
