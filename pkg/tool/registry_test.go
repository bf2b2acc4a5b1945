package tool

import (
	"context"
	"fmt"
	"testing"

	"github.com/harun/convoy/pkg/capability"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeServer implements RemoteProvider in-process.
type fakeServer struct {
	name   string
	tools  []capability.ToolSpec
	invoke func(toolName string, args map[string]interface{}) (string, error)
}

func (f *fakeServer) Name() string                  { return f.name }
func (f *fakeServer) Tools() []capability.ToolSpec { return f.tools }
func (f *fakeServer) Invoke(ctx context.Context, toolName string, args map[string]interface{}) (string, error) {
	if f.invoke == nil {
		return "", fmt.Errorf("no invoke handler")
	}
	return f.invoke(toolName, args)
}

func echoDefinition(name string) Definition {
	return Definition{
		Name:        name,
		Description: "Echoes its input",
		Parameters: []Parameter{
			{Name: "text", Type: "string", Description: "Text to echo", Required: true},
		},
		Handler: func(ctx context.Context, rc *RunContext, params map[string]interface{}) (interface{}, error) {
			return params["text"], nil
		},
	}
}

func TestRegister(t *testing.T) {
	t.Run("should register a valid local tool", func(t *testing.T) {
		r := NewRegistry()
		require.NoError(t, r.Register(echoDefinition("echo")))

		assert.True(t, r.Has("echo"))
		assert.Contains(t, r.Names(), "echo")
	})

	t.Run("should reject duplicate names", func(t *testing.T) {
		r := NewRegistry()
		require.NoError(t, r.Register(echoDefinition("echo")))

		err := r.Register(echoDefinition("echo"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "already registered")
	})

	t.Run("should reject definitions without a handler", func(t *testing.T) {
		r := NewRegistry()
		err := r.Register(Definition{Name: "broken", Description: "No handler"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "handler")
	})

	t.Run("should reject invalid parameter types", func(t *testing.T) {
		r := NewRegistry()
		def := echoDefinition("echo")
		def.Parameters[0].Type = "uuid"

		err := r.Register(def)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid parameter type")
	})
}

func TestBindServer(t *testing.T) {
	weatherSpec := capability.ToolSpec{
		Name:        "get_weather",
		Description: "Weather lookup",
		InputSchema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"city": map[string]interface{}{"type": "string"},
			},
			"required": []interface{}{"city"},
		},
	}

	t.Run("should bind remote tools under their own names", func(t *testing.T) {
		r := NewRegistry()
		bound, err := r.BindServer(context.Background(), &fakeServer{
			name:  "meteo",
			tools: []capability.ToolSpec{weatherSpec},
		})
		require.NoError(t, err)

		assert.Equal(t, []string{"get_weather"}, bound)
		assert.True(t, r.Has("get_weather"))
	})

	t.Run("should prefix conflicting names with the server name", func(t *testing.T) {
		r := NewRegistry()
		require.NoError(t, r.Register(Definition{
			Name:        "get_weather",
			Description: "Local weather",
			Handler: func(ctx context.Context, rc *RunContext, params map[string]interface{}) (interface{}, error) {
				return "local", nil
			},
		}))

		bound, err := r.BindServer(context.Background(), &fakeServer{
			name:  "meteo",
			tools: []capability.ToolSpec{weatherSpec},
		})
		require.NoError(t, err)

		assert.Equal(t, []string{"meteo_get_weather"}, bound)
		assert.True(t, r.Has("get_weather"))
		assert.True(t, r.Has("meteo_get_weather"))
	})

	t.Run("should reject a nil client", func(t *testing.T) {
		r := NewRegistry()
		_, err := r.BindServer(context.Background(), nil)
		assert.Error(t, err)
	})
}

func TestSpecs(t *testing.T) {
	t.Run("should expose local and remote tools alike", func(t *testing.T) {
		r := NewRegistry()
		require.NoError(t, r.Register(echoDefinition("echo")))
		_, err := r.BindServer(context.Background(), &fakeServer{
			name: "meteo",
			tools: []capability.ToolSpec{{
				Name:        "get_weather",
				Description: "Weather lookup",
			}},
		})
		require.NoError(t, err)

		specs := r.Specs()
		require.Len(t, specs, 2)

		byName := map[string]Spec{}
		for _, s := range specs {
			byName[s.Name] = s
		}
		assert.Contains(t, byName, "echo")
		assert.Contains(t, byName, "get_weather")
		assert.Contains(t, byName["echo"].InputSchema, "properties")
		// Remote tool without a schema still gets an empty object schema.
		assert.Equal(t, "object", byName["get_weather"].InputSchema["type"])
	})
}
