package printer

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// machineFuncs extracts the machine_func of every machine_query_command seen
func machineFuncs(calls []recordedCall) []string {
	var funcs []string
	for _, call := range calls {
		if call.method != MethodMachineQuery {
			continue
		}
		params, _ := call.params.(map[string]any)
		fn, _ := params["machine_func"].(string)
		funcs = append(funcs, fn)
	}
	return funcs
}

type recordedCall struct {
	method RPCMethod
	params any
}

func TestRecoverFilamentSlip(t *testing.T) {
	var calls []recordedCall
	device := &fakeDevice{script: func(method RPCMethod, params any) (RPCResponse, error) {
		calls = append(calls, recordedCall{method, params})
		return okScript(method, params)
	}}
	session := newFakeSession(t, device)

	require.NoError(t, session.RecoverFilamentSlip(context.Background(), 0))

	// pause, unload, load, resume, each as its own operation
	assert.Equal(t, 4, device.opens)
	assert.Equal(t, device.opens, device.closes())

	var commands []RPCMethod
	for _, call := range calls {
		if call.method != MethodAuthenticate && call.method != MethodProcessMethod {
			commands = append(commands, call.method)
		}
	}
	assert.Equal(t, []RPCMethod{MethodMachineQuery, MethodUnloadFilament, MethodLoadFilament, MethodMachineQuery}, commands)
	assert.Equal(t, []string{MachineFuncPause, MachineFuncResume}, machineFuncs(calls))
}

func TestRecoverTemperatureSag(t *testing.T) {
	t.Run("pause, reheat, resume", func(t *testing.T) {
		var calls []recordedCall
		device := &fakeDevice{script: func(method RPCMethod, params any) (RPCResponse, error) {
			calls = append(calls, recordedCall{method, params})
			return okScript(method, params)
		}}
		session := newFakeSession(t, device)

		require.NoError(t, session.RecoverTemperatureSag(context.Background(), []int{210, 60}))

		assert.Equal(t, 3, device.opens)
		assert.Equal(t, device.opens, device.closes())
		assert.Equal(t, []string{MachineFuncPause, MachineFuncResume}, machineFuncs(calls))
		assert.Equal(t, 1, device.countRequests(MethodPreheat))
	})

	t.Run("stops at the first failing step", func(t *testing.T) {
		device := &fakeDevice{script: func(method RPCMethod, params any) (RPCResponse, error) {
			return RPCResponse{"status": "denied"}, nil
		}}
		session := newFakeSession(t, device)

		err := session.RecoverTemperatureSag(context.Background(), []int{210})
		assert.ErrorIs(t, err, ErrAuthenticationFailed)
		assert.Equal(t, 1, device.opens)
		assert.Equal(t, device.opens, device.closes())
	})

	t.Run("cancellation during a wait aborts the sequence", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())

		device := &fakeDevice{script: func(method RPCMethod, params any) (RPCResponse, error) {
			resp, err := okScript(method, params)
			if method == MethodMachineQuery {
				// Cancel while the thermal wait is pending
				cancel()
			}
			return resp, err
		}}
		session := newFakeSession(t, device)

		err := session.RecoverTemperatureSag(ctx, []int{210})
		assert.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, 1, device.opens)
		assert.Equal(t, device.opens, device.closes())
	})
}
