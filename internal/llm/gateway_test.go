package llm

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeBackend returns scripted responses in order, then repeats the last one.
type fakeBackend struct {
	name      string
	available bool
	responses []string
	err       error
	calls     int
}

func (f *fakeBackend) Name() string      { return f.name }
func (f *fakeBackend) IsAvailable() bool { return f.available }

func (f *fakeBackend) Generate(_ context.Context, _ Request) (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	idx := f.calls - 1
	if idx >= len(f.responses) {
		idx = len(f.responses) - 1
	}
	return f.responses[idx], nil
}

func TestIsRefusal(t *testing.T) {
	assert.True(t, IsRefusal("I cannot review this code for you."))
	assert.True(t, IsRefusal("  I'm sorry, but I can't help with that."))
	assert.True(t, IsRefusal("Nie mogę tego zrobić."))
	assert.False(t, IsRefusal(`{"issues": [], "summary": "ok"}`))
	// Phrase beyond the inspection window does not count as a refusal.
	long := ""
	for i := 0; i < 30; i++ {
		long += "analysis " // 10 chars each
	}
	long += "I cannot say more."
	assert.False(t, IsRefusal(long))
}

func TestGateway_ExplicitBackend(t *testing.T) {
	primary := &fakeBackend{name: "primary", available: true, responses: []string{"fine"}}
	reg := NewRegistry()
	reg.Register(primary)
	reg.Register(NewOfflineBackend())

	g := NewGateway(reg, "")
	res, err := g.Generate(context.Background(), []Message{{Role: "user", Content: "hi"}}, GenerateOpts{Backend: "primary", Model: "m1"})
	require.NoError(t, err)
	assert.Equal(t, "fine", res.Text)
	assert.Equal(t, "primary", res.Backend)
	assert.Equal(t, "m1", res.Model)
}

func TestGateway_FallsBackToOfflineWhenNothingAvailable(t *testing.T) {
	down := &fakeBackend{name: "down", available: false}
	reg := NewRegistry()
	reg.Register(down)
	reg.Register(NewOfflineBackend())

	g := NewGateway(reg, "down")
	res, err := g.Generate(context.Background(), []Message{{Role: "user", Content: "review"}}, GenerateOpts{Backend: "down"})
	require.NoError(t, err)
	assert.Equal(t, BackendOffline, res.Backend)
	assert.Contains(t, res.Text, `"issues"`)
	assert.Zero(t, down.calls)
}

func TestGateway_RefusalRetriesSameBackendFirst(t *testing.T) {
	flaky := &fakeBackend{name: "flaky", available: true, responses: []string{
		"I cannot analyze that.",
		`{"issues": [], "summary": "second try worked"}`,
	}}
	reg := NewRegistry()
	reg.Register(flaky)

	g := NewGateway(reg, "flaky")
	res, err := g.Generate(context.Background(), []Message{{Role: "user", Content: "go"}}, GenerateOpts{})
	require.NoError(t, err)
	assert.Equal(t, 2, flaky.calls)
	assert.Contains(t, res.Text, "second try worked")
	assert.Equal(t, "flaky", res.Backend)
}

func TestGateway_RefusalFailsOverToAlternate(t *testing.T) {
	stubborn := &fakeBackend{name: "stubborn", available: true, responses: []string{"I'm sorry, I can't."}}
	alternate := &fakeBackend{name: "alternate", available: true, responses: []string{"all good"}}
	reg := NewRegistry()
	reg.Register(stubborn)
	reg.Register(alternate)

	g := NewGateway(reg, "stubborn")
	res, err := g.Generate(context.Background(), []Message{{Role: "user", Content: "go"}}, GenerateOpts{})
	require.NoError(t, err)
	assert.Equal(t, 2, stubborn.calls) // original + same-backend retry
	assert.Equal(t, "all good", res.Text)
	assert.Equal(t, "alternate", res.Backend)
}

func TestGateway_AllRefuse_ReturnsOriginalRefusal(t *testing.T) {
	a := &fakeBackend{name: "a", available: true, responses: []string{"I cannot do this."}}
	b := &fakeBackend{name: "b", available: true, responses: []string{"I'm sorry, no."}}
	reg := NewRegistry()
	reg.Register(a)
	reg.Register(b)

	g := NewGateway(reg, "a")
	res, err := g.Generate(context.Background(), []Message{{Role: "user", Content: "go"}}, GenerateOpts{})
	require.NoError(t, err)
	assert.Equal(t, "I cannot do this.", res.Text)
	assert.Equal(t, "a", res.Backend)
}

func TestGateway_TransportErrorPropagates(t *testing.T) {
	upstream := &UpstreamError{Backend: "broken", Message: "connection refused"}
	broken := &fakeBackend{name: "broken", available: true, err: upstream}
	reg := NewRegistry()
	reg.Register(broken)

	g := NewGateway(reg, "broken")
	_, err := g.Generate(context.Background(), []Message{{Role: "user", Content: "go"}}, GenerateOpts{})
	require.Error(t, err)
	var ue *UpstreamError
	assert.True(t, errors.As(err, &ue))
	assert.Equal(t, "broken", ue.Backend)
	assert.Equal(t, 1, broken.calls)
}

func TestGateway_ErroringAlternateIsSkipped(t *testing.T) {
	refusing := &fakeBackend{name: "refusing", available: true, responses: []string{"I cannot."}}
	erroring := &fakeBackend{name: "erroring", available: true, err: errors.New("boom")}
	good := &fakeBackend{name: "good", available: true, responses: []string{"done"}}
	reg := NewRegistry()
	reg.Register(refusing)
	reg.Register(erroring)
	reg.Register(good)

	g := NewGateway(reg, "refusing")
	res, err := g.Generate(context.Background(), []Message{{Role: "user", Content: "go"}}, GenerateOpts{})
	require.NoError(t, err)
	assert.Equal(t, "done", res.Text)
	assert.Equal(t, "good", res.Backend)
}

func TestUpstreamError_TruncatesDiagnostic(t *testing.T) {
	long := make([]byte, 1000)
	for i := range long {
		long[i] = 'x'
	}
	e := upstreamErr("big", nil, "%s", string(long))
	assert.Less(t, len(e.Error()), 400)
}

func TestOfflineBackend_Deterministic(t *testing.T) {
	b := NewOfflineBackend()
	req := Request{Messages: []Message{{Role: "user", Content: "same prompt"}}}
	out1, err := b.Generate(context.Background(), req)
	require.NoError(t, err)
	out2, err := b.Generate(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, out1, out2)

	other, err := b.Generate(context.Background(), Request{Messages: []Message{{Role: "user", Content: "different"}}})
	require.NoError(t, err)
	assert.NotEqual(t, out1, other)
}
