package event

import "encoding/json"

// Broker topics, one per event category.
const (
	TopicDocumentCreated = "docflow.document.created"
	TopicDocumentUpdated = "docflow.document.updated"
	TopicPartnerUpdated  = "docflow.partner.updated"
	TopicRecordCreated   = "docflow.object-record.created"
)

// Topics lists every topic the projector subscribes to.
func Topics() []string {
	return []string{TopicDocumentCreated, TopicDocumentUpdated, TopicPartnerUpdated, TopicRecordCreated}
}

// Aggregate type names carried on the wire.
const (
	AggregateDocument = "Document"
	AggregatePartner  = "Partner"
	AggregateRecord   = "ObjectRecord"
)

// Envelope is the payload shape on the broker. Event-specific fields are
// flattened next to the three fixed keys, so consumers only need
// (aggregateType, aggregateId) to upsert. No sequence number is carried:
// ordering across aggregates is not promised.
type Envelope struct {
	AggregateType string
	AggregateID   string
	TenantID      string
	Fields        map[string]interface{}
}

// New builds an envelope; fields may be nil.
func New(aggregateType, aggregateID, tenantID string, fields map[string]interface{}) Envelope {
	return Envelope{AggregateType: aggregateType, AggregateID: aggregateID, TenantID: tenantID, Fields: fields}
}

const (
	keyAggregateType = "aggregateType"
	keyAggregateID   = "aggregateId"
	keyTenantID      = "tenantId"
)

// Encode marshals the envelope as one flat JSON object.
func (e Envelope) Encode() ([]byte, error) {
	flat := make(map[string]interface{}, len(e.Fields)+3)
	for k, v := range e.Fields {
		flat[k] = v
	}
	flat[keyAggregateType] = e.AggregateType
	flat[keyAggregateID] = e.AggregateID
	flat[keyTenantID] = e.TenantID
	return json.Marshal(flat)
}

// Decode parses a flat JSON object back into an envelope; unknown keys
// land in Fields.
func Decode(data []byte) (Envelope, error) {
	flat := make(map[string]interface{})
	if err := json.Unmarshal(data, &flat); err != nil {
		return Envelope{}, err
	}
	e := Envelope{Fields: flat}
	if v, ok := flat[keyAggregateType].(string); ok {
		e.AggregateType = v
	}
	if v, ok := flat[keyAggregateID].(string); ok {
		e.AggregateID = v
	}
	if v, ok := flat[keyTenantID].(string); ok {
		e.TenantID = v
	}
	delete(flat, keyAggregateType)
	delete(flat, keyAggregateID)
	delete(flat, keyTenantID)
	return e, nil
}
