package agent

import (
	"context"
	"fmt"
	"testing"

	"github.com/harun/convoy/pkg/tool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validDefinition(name string) Definition {
	return Definition{
		Name:         name,
		Instructions: StaticInstructions("You are a helpful assistant."),
		Model:        DefaultModelSettings(),
	}
}

func weatherTool() tool.Definition {
	return tool.Definition{
		Name:        "get_weather",
		Description: "Weather lookup",
		Handler: func(ctx context.Context, rc *tool.RunContext, params map[string]interface{}) (interface{}, error) {
			return "sunny", nil
		},
	}
}

func TestDefinitionValidate(t *testing.T) {
	t.Run("should accept a minimal definition", func(t *testing.T) {
		assert.NoError(t, validDefinition("triage").Validate())
	})

	t.Run("should require a name", func(t *testing.T) {
		def := validDefinition("")
		err := def.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "name")
	})

	t.Run("should require instructions", func(t *testing.T) {
		def := validDefinition("triage")
		def.Instructions = Instructions{}
		err := def.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "instructions")
	})

	t.Run("should require a model", func(t *testing.T) {
		def := validDefinition("triage")
		def.Model.Model = ""
		assert.Error(t, def.Validate())
	})

	t.Run("should bound temperature", func(t *testing.T) {
		def := validDefinition("triage")
		def.Model.Temperature = 1.5
		assert.Error(t, def.Validate())
	})

	t.Run("should reject duplicate tools", func(t *testing.T) {
		def := validDefinition("triage")
		def.Tools = []tool.Definition{weatherTool(), weatherTool()}
		err := def.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "twice")
	})

	t.Run("should reject invalid tools", func(t *testing.T) {
		def := validDefinition("triage")
		def.Tools = []tool.Definition{{Name: "broken"}}
		assert.Error(t, def.Validate())
	})

	t.Run("should allow a declared self handoff", func(t *testing.T) {
		def := validDefinition("triage")
		def.HandoffTargets = []string{"triage"}
		assert.NoError(t, def.Validate())
		assert.True(t, def.CanHandoffTo("triage"))
	})
}

func TestInstructions(t *testing.T) {
	t.Run("static instructions render verbatim", func(t *testing.T) {
		i := StaticInstructions("Always answer in haiku.")
		assert.Equal(t, "Always answer in haiku.", i.Render(nil))
	})

	t.Run("dynamic instructions see the run context", func(t *testing.T) {
		i := DynamicInstructions(func(rc *tool.RunContext) string {
			return fmt.Sprintf("The user's name is %s.", rc.String("name"))
		})
		rc := tool.NewRunContext(map[string]interface{}{"name": "John"})
		assert.Equal(t, "The user's name is John.", i.Render(rc))
	})

	t.Run("zero value renders empty", func(t *testing.T) {
		var i Instructions
		assert.True(t, i.IsZero())
		assert.Empty(t, i.Render(nil))
	})
}

func TestCanHandoffTo(t *testing.T) {
	def := validDefinition("triage")
	def.HandoffTargets = []string{"billing", "refunds"}

	assert.True(t, def.CanHandoffTo("billing"))
	assert.True(t, def.CanHandoffTo("refunds"))
	assert.False(t, def.CanHandoffTo("triage"))
	assert.False(t, def.CanHandoffTo("unknown"))
}
