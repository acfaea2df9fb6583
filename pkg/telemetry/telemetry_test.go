package telemetry

import (
	"testing"

	"github.com/fxamacker/cbor/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilPublisherIsNoOp(t *testing.T) {
	var p *Publisher
	p.ReportState("streaming")
	p.ReportProgress(1, 3)
	assert.NoError(t, p.Close())
}

func TestEventOmitsEmptyFields(t *testing.T) {
	data, err := cbor.Marshal(Event{State: "done"})
	require.NoError(t, err)

	var decoded map[string]interface{}
	require.NoError(t, cbor.Unmarshal(data, &decoded))
	assert.Equal(t, "done", decoded["state"])
	assert.NotContains(t, decoded, "sent")
	assert.NotContains(t, decoded, "total")
}
