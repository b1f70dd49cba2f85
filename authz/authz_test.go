package authz

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	console "github.com/network-plane/planeconsole"
	"github.com/network-plane/planeconsole/kibana"
)

type fakeLicenses struct {
	license License
	err     error
	calls   atomic.Int32
	delay   time.Duration
}

func (f *fakeLicenses) License(context.Context) (License, error) {
	f.calls.Add(1)
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	return f.license, f.err
}

type fakeCaps map[string]bool

func (f fakeCaps) Capabilities(context.Context) (map[string]bool, error) { return f, nil }

func allMLCapabilities() fakeCaps {
	caps := fakeCaps{}
	for _, name := range MachineLearning().AdminCapabilities {
		caps[name] = true
	}
	return caps
}

func TestLicenseHasAtLeast(t *testing.T) {
	tests := []struct {
		license License
		want    bool
	}{
		{License{Type: "platinum", Status: "active"}, true},
		{License{Type: "enterprise", Status: "active"}, true},
		{License{Type: "trial", Status: "active"}, true},
		{License{Type: "gold", Status: "active"}, false},
		{License{Type: "basic", Status: "active"}, false},
		{License{Type: "platinum", Status: "expired"}, false},
		{License{Type: "mystery", Status: "active"}, false},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, tc.license.HasAtLeast(TierPlatinum), "%+v", tc.license)
	}
}

func TestValidateMessages(t *testing.T) {
	active := &fakeLicenses{license: License{Type: "platinum", Status: "active"}}
	basic := &fakeLicenses{license: License{Type: "basic", Status: "active"}}

	tests := []struct {
		name     string
		licenses LicenseSource
		caps     CapabilitySource
		want     Validation
	}{
		{"plugin missing", active, nil, Validation{Message: "The machine learning plugin is not available. Try enabling the plugin."}},
		{"license too low", basic, allMLCapabilities(), Validation{Message: "Your license does not support machine learning. Please upgrade your license."}},
		{"not admin", active, fakeCaps{"canCreateJob": true}, Validation{Message: "The current user is not a machine learning administrator."}},
		{"valid", active, allMLCapabilities(), Validation{Valid: true}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			a := New(MachineLearning(), tc.licenses, tc.caps, nil)
			got, err := a.Validate(context.Background())
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestValidateIsCachedAndShared(t *testing.T) {
	licenses := &fakeLicenses{license: License{Type: "platinum", Status: "active"}, delay: 20 * time.Millisecond}
	a := New(MachineLearning(), licenses, allMLCapabilities(), nil)

	var wg sync.WaitGroup
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err := a.Validate(context.Background())
			assert.NoError(t, err)
			assert.True(t, v.Valid)
		}()
	}
	wg.Wait()
	_, err := a.Validate(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 1, licenses.calls.Load())

	a.Reset()
	_, err = a.Validate(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 2, licenses.calls.Load())
}

func TestValidateErrorsAreNotCached(t *testing.T) {
	licenses := &fakeLicenses{err: errors.New("connection refused")}
	a := New(MachineLearning(), licenses, allMLCapabilities(), nil)

	_, err := a.Validate(context.Background())
	require.Error(t, err)

	licenses.err = nil
	licenses.license = License{Type: "platinum", Status: "active"}
	v, err := a.Validate(context.Background())
	require.NoError(t, err)
	assert.True(t, v.Valid)
	assert.EqualValues(t, 2, licenses.calls.Load())
}

func TestValidateCommandSkipsUnguarded(t *testing.T) {
	licenses := &fakeLicenses{license: License{Type: "basic", Status: "active"}}
	a := New(MachineLearning(), licenses, allMLCapabilities(), ForCommands("kill-process"))

	v, err := a.ValidateCommand(context.Background(), &console.CommandDefinition{Name: "status"})
	require.NoError(t, err)
	assert.True(t, v.Valid)
	assert.Zero(t, licenses.calls.Load())

	v, err = a.ValidateCommand(context.Background(), &console.CommandDefinition{Name: "kill-process"})
	require.NoError(t, err)
	assert.False(t, v.Valid)
}

func TestMiddlewareBlocksUnauthorizedCommands(t *testing.T) {
	licenses := &fakeLicenses{license: License{Type: "gold", Status: "active"}}
	a := New(MachineLearning(), licenses, allMLCapabilities(), ForCommands("kill-process"))

	rendered := map[string]int{}
	renderer := console.RendererFunc(func(props console.ExecutionProps) {
		rendered[props.Command.Name()]++
		_ = props.SetStatus(console.StatusSuccess)
	})
	var out bytes.Buffer
	engine := console.NewEngine(
		console.WithOutputWriter(&out),
		console.WithMiddleware(Middleware(a)),
		console.WithCommands(
			&console.CommandDefinition{Name: "kill-process", Args: []console.ArgDefinition{{Name: "pid"}}, Renderer: renderer},
			&console.CommandDefinition{Name: "status", Renderer: renderer},
		),
	)
	defer engine.Close()

	inv, err := engine.Exec(context.Background(), "kill-process --pid 4")
	require.NoError(t, err)
	assert.Equal(t, console.StatusError, inv.Session.Status())
	assert.Contains(t, out.String(), "ERROR: Your license does not support machine learning. Please upgrade your license.")

	inv, err = engine.Exec(context.Background(), "status")
	require.NoError(t, err)
	assert.Equal(t, console.StatusSuccess, inv.Session.Status())
	assert.Equal(t, map[string]int{"status": 1}, rendered)
}

func TestKibanaSources(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/licensing/info":
			_, _ = w.Write([]byte(`{"license":{"type":"enterprise","status":"active"}}`))
		case "/api/ml/ml_capabilities":
			_, _ = w.Write([]byte(`{"capabilities":{"canCreateJob":true}}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	client, err := kibana.New(srv.URL)
	require.NoError(t, err)
	a := New(MachineLearning(), KibanaLicenses{Client: client}, KibanaMLCapabilities{Client: client}, nil)

	v, err := a.Validate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "The current user is not a machine learning administrator.", v.Message)
}
