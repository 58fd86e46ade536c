package provider

import (
	"context"
	"testing"

	"github.com/haasonsaas/sentineld/pkg/model"
	"github.com/stretchr/testify/require"
)

type stubProvider struct{ name string }

func (s *stubProvider) Name() string           { return s.name }
func (s *stubProvider) ModelName() string      { return "stub-model" }
func (s *stubProvider) Dialect() model.Dialect { return model.DialectA }
func (s *stubProvider) Chat(ctx context.Context, messages []model.Message, opts ChatOptions) (*ChatResult, error) {
	return &ChatResult{Content: "ok", StopReason: StopEndTurn}, nil
}
func (s *stubProvider) Stream(ctx context.Context, messages []model.Message, opts ChatOptions) <-chan StreamChunk {
	ch := make(chan StreamChunk)
	close(ch)
	return ch
}

func TestRegistryResolvesConfiguredRole(t *testing.T) {
	quick := &stubProvider{name: "quick-provider"}
	reg := NewRegistry(map[model.Role]Provider{model.RoleQuick: quick})

	res, err := reg.Resolve(model.RoleQuick)
	require.NoError(t, err)
	require.Equal(t, quick, res.Provider)
	require.Equal(t, model.RoleQuick, res.RequestedRole)
}

func TestRegistryFallsBackToDefault(t *testing.T) {
	def := &stubProvider{name: "default-provider"}
	reg := NewRegistry(map[model.Role]Provider{model.RoleDefault: def})

	res, err := reg.Resolve(model.RoleDeep)
	require.NoError(t, err)
	require.Equal(t, def, res.Provider)
	// Requested role must be preserved for cost-ledger tagging even on fallback.
	require.Equal(t, model.RoleDeep, res.RequestedRole)
}

func TestRegistryErrorsWithNoDefault(t *testing.T) {
	reg := NewRegistry(map[model.Role]Provider{})
	_, err := reg.Resolve(model.RoleDeep)
	require.Error(t, err)
}
