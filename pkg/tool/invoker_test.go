package tool

import (
	"context"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/harun/convoy/pkg/capability"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() zerolog.Logger {
	return zerolog.New(os.Stdout).Level(zerolog.Disabled)
}

func TestInvoke(t *testing.T) {
	t.Run("should execute a local tool", func(t *testing.T) {
		r := NewRegistry()
		require.NoError(t, r.Register(echoDefinition("echo")))
		inv := NewInvoker(r, nil, testLogger())

		result := inv.Invoke(context.Background(), nil, Invocation{
			CallID: "call_1",
			Name:   "echo",
			Args:   map[string]interface{}{"text": "hello"},
		})

		assert.False(t, result.IsError())
		assert.Equal(t, "hello", result.Output)
		assert.Equal(t, "call_1", result.CallID)
	})

	t.Run("should fold unknown tools into the result", func(t *testing.T) {
		inv := NewInvoker(NewRegistry(), nil, testLogger())

		result := inv.Invoke(context.Background(), nil, Invocation{
			CallID: "call_1",
			Name:   "nope",
		})

		assert.True(t, result.IsError())
		assert.Contains(t, result.Err, "unknown tool: nope")
	})

	t.Run("should fold validation failures into the result", func(t *testing.T) {
		r := NewRegistry()
		require.NoError(t, r.Register(echoDefinition("echo")))
		inv := NewInvoker(r, nil, testLogger())

		result := inv.Invoke(context.Background(), nil, Invocation{
			CallID: "call_1",
			Name:   "echo",
			Args:   map[string]interface{}{"text": 42},
		})

		assert.True(t, result.IsError())
		assert.Contains(t, result.Err, "validation")
	})

	t.Run("should fold handler errors into the result", func(t *testing.T) {
		r := NewRegistry()
		require.NoError(t, r.Register(Definition{
			Name:        "flaky",
			Description: "Always fails",
			Handler: func(ctx context.Context, rc *RunContext, params map[string]interface{}) (interface{}, error) {
				return nil, fmt.Errorf("backend unavailable")
			},
		}))
		inv := NewInvoker(r, nil, testLogger())

		result := inv.Invoke(context.Background(), nil, Invocation{CallID: "call_1", Name: "flaky"})

		assert.True(t, result.IsError())
		assert.Contains(t, result.Err, "backend unavailable")
	})

	t.Run("should JSON-encode structured outputs", func(t *testing.T) {
		r := NewRegistry()
		require.NoError(t, r.Register(Definition{
			Name:        "stats",
			Description: "Returns structured data",
			Handler: func(ctx context.Context, rc *RunContext, params map[string]interface{}) (interface{}, error) {
				return map[string]interface{}{"count": 3}, nil
			},
		}))
		inv := NewInvoker(r, nil, testLogger())

		result := inv.Invoke(context.Background(), nil, Invocation{CallID: "call_1", Name: "stats"})

		assert.Equal(t, `{"count":3}`, result.Output)
	})

	t.Run("should pass run context to handlers", func(t *testing.T) {
		r := NewRegistry()
		require.NoError(t, r.Register(Definition{
			Name:        "fetch_user_age",
			Description: "Returns the user's age",
			Handler: func(ctx context.Context, rc *RunContext, params map[string]interface{}) (interface{}, error) {
				return fmt.Sprintf("User %s is 47 years old", rc.String("name")), nil
			},
		}))
		inv := NewInvoker(r, nil, testLogger())
		rc := NewRunContext(map[string]interface{}{"name": "John", "uid": 123})

		result := inv.Invoke(context.Background(), rc, Invocation{CallID: "call_1", Name: "fetch_user_age"})

		assert.Equal(t, "User John is 47 years old", result.Output)
	})

	t.Run("should time out a stuck handler", func(t *testing.T) {
		r := NewRegistry()
		require.NoError(t, r.Register(Definition{
			Name:        "sleepy",
			Description: "Never returns",
			Handler: func(ctx context.Context, rc *RunContext, params map[string]interface{}) (interface{}, error) {
				<-ctx.Done()
				return nil, ctx.Err()
			},
		}))
		inv := NewInvoker(r, nil, testLogger())
		inv.SetTimeout(50 * time.Millisecond)

		result := inv.Invoke(context.Background(), nil, Invocation{CallID: "call_1", Name: "sleepy"})

		assert.True(t, result.IsError())
		assert.Contains(t, result.Err, "timeout")
	})

	t.Run("should proxy remote tools and carry their errors", func(t *testing.T) {
		r := NewRegistry()
		_, err := r.BindServer(context.Background(), &fakeServer{
			name: "meteo",
			tools: []capability.ToolSpec{
				{Name: "get_weather", Description: "Weather lookup"},
				{Name: "get_forecast", Description: "Forecast lookup"},
			},
			invoke: func(toolName string, args map[string]interface{}) (string, error) {
				if toolName == "get_weather" {
					return "sunny", nil
				}
				return "", &capability.RemoteToolError{
					Server: "meteo",
					Tool:   toolName,
					Kind:   capability.ErrKindRemote,
					Err:    fmt.Errorf("upstream down"),
				}
			},
		})
		require.NoError(t, err)
		inv := NewInvoker(r, nil, testLogger())

		ok := inv.Invoke(context.Background(), nil, Invocation{CallID: "c1", Name: "get_weather"})
		assert.Equal(t, "sunny", ok.Output)

		failed := inv.Invoke(context.Background(), nil, Invocation{CallID: "c2", Name: "get_forecast"})
		assert.True(t, failed.IsError())
		assert.Contains(t, failed.Err, "upstream down")
	})
}

func TestInvokeApprovalGate(t *testing.T) {
	approvalTool := func(executions *int) Definition {
		return Definition{
			Name:        "sensitive",
			Description: "Needs sign-off",
			Handler: func(ctx context.Context, rc *RunContext, params map[string]interface{}) (interface{}, error) {
				*executions++
				return "done", nil
			},
			NeedsApproval: func(rc *RunContext, params map[string]interface{}) bool {
				return true
			},
		}
	}

	t.Run("should execute once when approved", func(t *testing.T) {
		executions := 0
		r := NewRegistry()
		require.NoError(t, r.Register(approvalTool(&executions)))

		am := NewApprovalManager(&StaticDecider{Decision: Decision{Approved: true}})
		inv := NewInvoker(r, am, testLogger())

		result := inv.Invoke(context.Background(), nil, Invocation{CallID: "c1", Name: "sensitive"})

		assert.False(t, result.IsError())
		assert.Equal(t, 1, executions)
	})

	t.Run("should reject and never execute when denied", func(t *testing.T) {
		executions := 0
		r := NewRegistry()
		require.NoError(t, r.Register(approvalTool(&executions)))

		am := NewApprovalManager(&StaticDecider{Decision: Decision{Approved: false, Reason: "not today"}})
		inv := NewInvoker(r, am, testLogger())

		result := inv.Invoke(context.Background(), nil, Invocation{CallID: "c1", Name: "sensitive"})

		assert.True(t, result.Rejected)
		assert.Contains(t, result.Err, "not today")
		assert.Equal(t, 0, executions)
	})

	t.Run("should reject when no decider is configured", func(t *testing.T) {
		executions := 0
		r := NewRegistry()
		require.NoError(t, r.Register(approvalTool(&executions)))
		inv := NewInvoker(r, nil, testLogger())

		result := inv.Invoke(context.Background(), nil, Invocation{CallID: "c1", Name: "sensitive"})

		assert.True(t, result.Rejected)
		assert.Equal(t, 0, executions)
	})

	t.Run("should skip the gate when the predicate is false", func(t *testing.T) {
		executions := 0
		def := approvalTool(&executions)
		def.NeedsApproval = func(rc *RunContext, params map[string]interface{}) bool {
			return rc.String("city") == "San Francisco"
		}
		r := NewRegistry()
		require.NoError(t, r.Register(def))

		am := NewApprovalManager(&StaticDecider{Decision: Decision{Approved: false}})
		inv := NewInvoker(r, am, testLogger())

		rc := NewRunContext(map[string]interface{}{"city": "Oslo"})
		result := inv.Invoke(context.Background(), rc, Invocation{CallID: "c1", Name: "sensitive"})

		assert.False(t, result.IsError())
		assert.Equal(t, 1, executions)
	})
}

func TestInvokeConcurrency(t *testing.T) {
	t.Run("independent calls should run concurrently", func(t *testing.T) {
		r := NewRegistry()
		var mu sync.Mutex
		inFlight, peak := 0, 0
		require.NoError(t, r.Register(Definition{
			Name:        "slow",
			Description: "Sleeps briefly",
			Handler: func(ctx context.Context, rc *RunContext, params map[string]interface{}) (interface{}, error) {
				mu.Lock()
				inFlight++
				if inFlight > peak {
					peak = inFlight
				}
				mu.Unlock()

				time.Sleep(50 * time.Millisecond)

				mu.Lock()
				inFlight--
				mu.Unlock()
				return "ok", nil
			},
		}))
		inv := NewInvoker(r, nil, testLogger())

		var wg sync.WaitGroup
		for i := 0; i < 4; i++ {
			wg.Add(1)
			go func(n int) {
				defer wg.Done()
				inv.Invoke(context.Background(), nil, Invocation{
					CallID: fmt.Sprintf("c%d", n),
					Name:   "slow",
				})
			}(i)
		}
		wg.Wait()

		assert.Greater(t, peak, 1)
	})
}
