package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hadijannat/basyx-opcua-bridge/internal/aasmodel"
)

func sampleSubmodel(identifier, idShort, elementIDShort string) *aasmodel.Submodel {
	sm := aasmodel.NewSubmodel(identifier, idShort)
	sm.Elements[elementIDShort] = &aasmodel.Property{
		IDShort:   elementIDShort,
		ModelType: "Property",
		ValueType: "xs:double",
		Value:     21.5,
	}
	return sm
}

func TestRegisterAndWriteElement(t *testing.T) {
	p := New(0)
	sm := sampleSubmodel("urn:sm:1", "Temperature", "Value")
	require.NoError(t, p.RegisterSubmodel(context.Background(), sm))

	require.NoError(t, p.WriteElement(context.Background(), "urn:sm:1", "Value", 23.0))

	el, ok := p.Element("urn:sm:1", "Value")
	require.True(t, ok)
	assert.Equal(t, 23.0, el.Value)
}

func TestWriteElementUnknownSubmodel(t *testing.T) {
	p := New(0)
	err := p.WriteElement(context.Background(), "missing", "Value", 1.0)
	assert.Error(t, err)
}

func TestWriteElementUnknownElement(t *testing.T) {
	p := New(0)
	sm := sampleSubmodel("urn:sm:1", "Temperature", "Value")
	require.NoError(t, p.RegisterSubmodel(context.Background(), sm))

	err := p.WriteElement(context.Background(), "urn:sm:1", "NotThere", 1.0)
	assert.Error(t, err)
}

func TestRegisterSubmodelReplacesExisting(t *testing.T) {
	p := New(0)
	first := sampleSubmodel("urn:sm:1", "Temperature", "Value")
	require.NoError(t, p.RegisterSubmodel(context.Background(), first))

	second := aasmodel.NewSubmodel("urn:sm:1", "Temperature")
	second.Elements["Other"] = &aasmodel.Property{IDShort: "Other", ValueType: "xs:int", Value: 1}
	require.NoError(t, p.RegisterSubmodel(context.Background(), second))

	_, ok := p.Element("urn:sm:1", "Value")
	assert.False(t, ok, "old element should be gone after re-registration")

	_, ok = p.Element("urn:sm:1", "Other")
	assert.True(t, ok)
}

func TestFindByIDShortUniqueMatch(t *testing.T) {
	p := New(0)
	require.NoError(t, p.RegisterSubmodel(context.Background(), sampleSubmodel("urn:sm:1", "Temperature", "Value")))

	id, ok := p.FindByIDShort("Value")
	require.True(t, ok)
	assert.Equal(t, "urn:sm:1", id)
}

func TestFindByIDShortAmbiguousReturnsNoMatch(t *testing.T) {
	p := New(0)
	require.NoError(t, p.RegisterSubmodel(context.Background(), sampleSubmodel("urn:sm:1", "Temperature", "Value")))
	require.NoError(t, p.RegisterSubmodel(context.Background(), sampleSubmodel("urn:sm:2", "Pressure", "Value")))

	_, ok := p.FindByIDShort("Value")
	assert.False(t, ok, "ambiguous idShort across submodels must not resolve to a guess")
}

func TestFindByIDShortNoMatch(t *testing.T) {
	p := New(0)
	_, ok := p.FindByIDShort("Nonexistent")
	assert.False(t, ok)
}

func TestSubmitWriteAndWriteRequests(t *testing.T) {
	p := New(2)
	require.NoError(t, p.SubmitWrite("urn:sm:1", "Value", 42.0, "alice", "corr-1"))

	select {
	case event := <-p.WriteRequests():
		assert.Equal(t, "urn:sm:1", event.SubmodelID)
		assert.Equal(t, "Value", event.IDShort)
		assert.Equal(t, 42.0, event.Value)
		assert.Equal(t, "alice", event.UserID)
		assert.Equal(t, "corr-1", event.CorrelationID)
	default:
		t.Fatal("expected a queued write event")
	}
}

func TestSubmitWriteDropsWhenQueueFull(t *testing.T) {
	p := New(1)
	require.NoError(t, p.SubmitWrite("urn:sm:1", "A", 1.0, "", ""))

	err := p.SubmitWrite("urn:sm:1", "B", 2.0, "", "")
	assert.Error(t, err, "queue is full, second write should be dropped")
}

func TestCloseIsIdempotentAndClosesChannel(t *testing.T) {
	p := New(1)
	require.NoError(t, p.Close())
	require.NoError(t, p.Close())

	_, open := <-p.WriteRequests()
	assert.False(t, open, "write request channel should be closed")
}
