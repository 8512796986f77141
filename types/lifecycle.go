// Package types defines the core domain model of the resource driver core:
// the lifecycle request/execution records, the property maps attached to
// them, and the associated-topology shape carried between transitions.
package types

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

// Status values for a LifecycleExecution. These three are the only
// values a handler may report; any other value is treated as IN_PROGRESS
// by the monitor (non-terminal).
const (
	StatusInProgress = "IN_PROGRESS"
	StatusComplete   = "COMPLETE"
	StatusFailed     = "FAILED"
)

// Failure codes carried in FailureDetails.Code.
const (
	FailureCodeInternalError = "INTERNAL_ERROR"
)

// PropertyValue is a single named, typed property value. Type is an
// opaque tag ("string", "integer", "key", ...); consumers that don't
// recognize a type treat the value as opaque per spec §3.
type PropertyValue struct {
	Type  string `json:"type" msgpack:"type"`
	Value any    `json:"value" msgpack:"value"`
}

// PropertyValueMap is an ordered name -> PropertyValue mapping. Order is
// preserved from the wire payload; lookups are still O(1) via the index.
type PropertyValueMap struct {
	names  []string
	values map[string]PropertyValue
}

// NewPropertyValueMap builds a PropertyValueMap from a decoded JSON object,
// preserving encounter order.
func NewPropertyValueMap(raw map[string]PropertyValue, order []string) PropertyValueMap {
	names := make([]string, 0, len(order))
	values := make(map[string]PropertyValue, len(raw))
	for _, n := range order {
		if v, ok := raw[n]; ok {
			names = append(names, n)
			values[n] = v
		}
	}
	return PropertyValueMap{names: names, values: values}
}

// Get returns the value for name and whether it was present.
func (m PropertyValueMap) Get(name string) (PropertyValue, bool) {
	v, ok := m.values[name]
	return v, ok
}

// Names returns the property names in wire order.
func (m PropertyValueMap) Names() []string {
	return m.names
}

// Len returns the number of properties.
func (m PropertyValueMap) Len() int {
	return len(m.names)
}

// UnmarshalJSON decodes a PropertyValueMap from a JSON object of
// {name: {type, value}}, recording key order as it appears in the raw
// token stream.
func (m *PropertyValueMap) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return &json.UnmarshalTypeError{Value: "non-object", Type: nil}
	}

	values := make(map[string]PropertyValue)
	var order []string
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		key := keyTok.(string)
		var pv PropertyValue
		if err := dec.Decode(&pv); err != nil {
			return err
		}
		order = append(order, key)
		values[key] = pv
	}
	*m = PropertyValueMap{names: order, values: values}
	return nil
}

// MarshalJSON re-emits the map preserving original order.
func (m PropertyValueMap) MarshalJSON() ([]byte, error) {
	buf := []byte{'{'}
	for i, name := range m.names {
		if i > 0 {
			buf = append(buf, ',')
		}
		keyJSON, err := json.Marshal(name)
		if err != nil {
			return nil, err
		}
		valJSON, err := json.Marshal(m.values[name])
		if err != nil {
			return nil, err
		}
		buf = append(buf, keyJSON...)
		buf = append(buf, ':')
		buf = append(buf, valJSON...)
	}
	buf = append(buf, '}')
	return buf, nil
}

// EncodeMsgpack implements msgpack.CustomEncoder. msgpack/v5 does not
// consult json.Marshaler, and PropertyValueMap's fields are unexported,
// so without this the map would encode as empty on the wire - a silent
// loss of every system/resource/request property sent to a driver
// plugin. Encoded as an ordered array of [name, value] pairs so decode
// can recover wire order without a side index.
func (m PropertyValueMap) EncodeMsgpack(enc *msgpack.Encoder) error {
	if err := enc.EncodeArrayLen(len(m.names)); err != nil {
		return err
	}
	for _, name := range m.names {
		if err := enc.EncodeArrayLen(2); err != nil {
			return err
		}
		if err := enc.EncodeString(name); err != nil {
			return err
		}
		if err := enc.Encode(m.values[name]); err != nil {
			return err
		}
	}
	return nil
}

// DecodeMsgpack implements msgpack.CustomDecoder, the mirror of
// EncodeMsgpack's [name, value] pair array.
func (m *PropertyValueMap) DecodeMsgpack(dec *msgpack.Decoder) error {
	n, err := dec.DecodeArrayLen()
	if err != nil {
		return err
	}
	if n <= 0 {
		*m = PropertyValueMap{}
		return nil
	}

	names := make([]string, 0, n)
	values := make(map[string]PropertyValue, n)
	for i := 0; i < n; i++ {
		pairLen, err := dec.DecodeArrayLen()
		if err != nil {
			return err
		}
		if pairLen != 2 {
			return fmt.Errorf("types: PropertyValueMap entry %d: expected pair of length 2, got %d", i, pairLen)
		}
		name, err := dec.DecodeString()
		if err != nil {
			return err
		}
		var pv PropertyValue
		if err := dec.Decode(&pv); err != nil {
			return err
		}
		names = append(names, name)
		values[name] = pv
	}
	*m = PropertyValueMap{names: names, values: values}
	return nil
}

// ExternalResource is a single entry of an AssociatedTopology: a 3rd
// party resource created during a previous lifecycle transition.
type ExternalResource struct {
	ID   string `json:"id"`
	Type string `json:"type"`
}

// AssociatedTopology maps an external-resource name to its identity.
type AssociatedTopology map[string]ExternalResource

// DeploymentLocation is an opaque mapping describing where a resource
// lives (cluster, region, credentials reference). The core never
// interprets its contents; it is round-tripped to the handler and to
// queued jobs unchanged.
type DeploymentLocation map[string]any

// FailureDetails describes why a LifecycleExecution failed.
type FailureDetails struct {
	Code        string `json:"code"`
	Description string `json:"description"`
}

// LifecycleRequest is the immutable record assembled at admission (C5).
// request_id is minted by the driver service and is the stable identity
// used across every downstream component.
type LifecycleRequest struct {
	RequestID          string             `json:"request_id"`
	LifecycleName      string             `json:"lifecycle_name"`
	DriverFiles        string             `json:"driver_files"` // base64 zip
	SystemProperties   PropertyValueMap   `json:"system_properties"`
	ResourceProperties PropertyValueMap   `json:"resource_properties"`
	RequestProperties  PropertyValueMap   `json:"request_properties"`
	AssociatedTopology AssociatedTopology `json:"associated_topology"`
	DeploymentLocation DeploymentLocation `json:"deployment_location"`
	TenantID           string             `json:"tenant_id,omitempty"`
	LoggingContext     LoggingContext     `json:"logging_context"`
}

// LifecycleExecuteResponse is returned by a handler's ExecuteLifecycle
// and, for the asynchronous request-queue path, synthesized by C5 with
// the freshly minted request_id before the handler is ever called.
type LifecycleExecuteResponse struct {
	RequestID string `json:"requestId"`
}

// LifecycleExecution is the result shape returned by the handler and
// forwarded to the bus by messaging.Service. When Status is terminal
// (COMPLETE or FAILED) the record is immutable and fit for publication.
type LifecycleExecution struct {
	RequestID          string              `json:"requestId"`
	Status             string              `json:"status"`
	Outputs            PropertyValueMap    `json:"outputs,omitempty"`
	AssociatedTopology *AssociatedTopology `json:"associatedTopology,omitempty"`
	FailureDetails     *FailureDetails     `json:"failureDetails,omitempty"`
}

// IsTerminal reports whether status is a sink state of the monitor's
// per-request state machine (spec §4.3).
func IsTerminal(status string) bool {
	return status == StatusComplete || status == StatusFailed
}

// FindReferenceResult is a single resolved reference instance.
type FindReferenceResult struct {
	ID                 string              `json:"id"`
	Name               string              `json:"name"`
	Outputs            PropertyValueMap    `json:"outputs,omitempty"`
	AssociatedTopology *AssociatedTopology `json:"associatedTopology,omitempty"`
}

// FindReferenceResponse is returned by a handler's FindReference.
type FindReferenceResponse struct {
	Resources []FindReferenceResult `json:"resources"`
}
