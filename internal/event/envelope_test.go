package event

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEnvelope_FlattensFields(t *testing.T) {
	env := New(AggregateDocument, "d1", "t1", map[string]interface{}{
		"version": 7,
		"status":  "POSTED",
	})

	raw, err := env.Encode()
	assert.NoError(t, err)

	// event-specific fields sit next to the fixed keys, not nested
	var flat map[string]interface{}
	assert.NoError(t, json.Unmarshal(raw, &flat))
	assert.Equal(t, "Document", flat["aggregateType"])
	assert.Equal(t, "d1", flat["aggregateId"])
	assert.Equal(t, "t1", flat["tenantId"])
	assert.Equal(t, "POSTED", flat["status"])

	decoded, err := Decode(raw)
	assert.NoError(t, err)
	assert.Equal(t, env.AggregateType, decoded.AggregateType)
	assert.Equal(t, env.AggregateID, decoded.AggregateID)
	assert.Equal(t, env.TenantID, decoded.TenantID)
	assert.Equal(t, "POSTED", decoded.Fields["status"])
	// the fixed keys are not duplicated into Fields
	assert.NotContains(t, decoded.Fields, "aggregateType")
}

func TestDecode_Malformed(t *testing.T) {
	_, err := Decode([]byte("not json"))
	assert.Error(t, err)
}

func TestDecode_MissingKeysTolerated(t *testing.T) {
	env, err := Decode([]byte(`{"something":"else"}`))
	assert.NoError(t, err)
	assert.Empty(t, env.AggregateType)
	assert.Equal(t, "else", env.Fields["something"])
}
