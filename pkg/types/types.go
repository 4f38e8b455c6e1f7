package types

import (
	"encoding/binary"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// DataType identifies the kind of entity a transaction mutates
type DataType string

const (
	DataTypeTemplate DataType = "Template"
	DataTypeSchedule DataType = "Schedule"
	DataTypeForm     DataType = "Form"
	DataTypeBytes    DataType = "Bytes"
)

// DataTypes lists every entity kind in a stable order
var DataTypes = []DataType{DataTypeTemplate, DataTypeSchedule, DataTypeForm, DataTypeBytes}

// ParseDataType converts the stored text form back to a DataType
func ParseDataType(s string) (DataType, error) {
	switch DataType(s) {
	case DataTypeTemplate, DataTypeSchedule, DataTypeForm, DataTypeBytes:
		return DataType(s), nil
	}
	return "", fmt.Errorf("unknown data type %q: %w", s, ErrDecode)
}

// Action is the mutation recorded by a transaction
type Action string

const (
	ActionAdd    Action = "Add"
	ActionEdit   Action = "Edit"
	ActionDelete Action = "Delete"
)

// ParseAction converts the stored text form back to an Action
func ParseAction(s string) (Action, error) {
	switch Action(s) {
	case ActionAdd, ActionEdit, ActionDelete:
		return Action(s), nil
	}
	return "", fmt.Errorf("unknown action %q: %w", s, ErrDecode)
}

// Live reports whether an entity whose latest transaction carries this
// action is visible (Add and Edit are live, Delete is a tombstone)
func (a Action) Live() bool {
	return a == ActionAdd || a == ActionEdit
}

// Transaction is one immutable entry of the mutation log
type Transaction struct {
	ID        uuid.UUID `json:"id"`
	DataType  DataType  `json:"data_type"`
	Action    Action    `json:"action"`
	BlobID    uuid.UUID `json:"blob_id"`
	AltKey    string    `json:"alt_key"`
	Timestamp int64     `json:"timestamp"` // microseconds, node-local clock
}

// NewTransaction mints a transaction with a fresh id. The timestamp is
// assigned by the transaction log at append time.
func NewTransaction(dataType DataType, action Action, blobID uuid.UUID, altKey string) Transaction {
	return Transaction{
		ID:       uuid.New(),
		DataType: dataType,
		Action:   action,
		BlobID:   blobID,
		AltKey:   altKey,
	}
}

// Storable is any entity kind served by alt-key through the generic
// add/edit/delete/get/list path. Forms share the shape but carry a
// secondary index, so they go through the dedicated forms operations.
type Storable interface {
	AltKey() string
	Kind() DataType
}

// Schedule assigns scouters to shifts for one event
type Schedule struct {
	Event  string  `json:"event"`
	Shifts []Shift `json:"shifts"`
}

// Shift is a single scouting assignment within a schedule
type Shift struct {
	Scouter    string `json:"scouter"`
	Station    uint8  `json:"station"`
	MatchStart uint32 `json:"match_start"`
	MatchEnd   uint32 `json:"match_end"`
}

func (s *Schedule) AltKey() string { return s.Event }
func (s *Schedule) Kind() DataType { return DataTypeSchedule }

// ShiftsFor returns the shifts assigned to one scouter
func (s *Schedule) ShiftsFor(scouter string) []Shift {
	var out []Shift
	for _, shift := range s.Shifts {
		if shift.Scouter == scouter {
			out = append(out, shift)
		}
	}
	return out
}

// Form is a single filled-out scouting form
type Form struct {
	Fields      map[string]FieldValue `json:"fields"`
	Scouter     string                `json:"scouter"`
	Team        int64                 `json:"team"`
	MatchNumber int64                 `json:"match_number"`
	EventKey    string                `json:"event_key"`
	ID          *uuid.UUID            `json:"id,omitempty"`
	// Template records which template the form was submitted under so the
	// forms index can be rebuilt from the log and blobs alone.
	Template string `json:"template,omitempty"`
}

// GetField returns the value stored under name, if any
func (f *Form) GetField(name string) (FieldValue, bool) {
	v, ok := f.Fields[name]
	return v, ok
}

// AddField sets the value stored under name
func (f *Form) AddField(name string, v FieldValue) {
	if f.Fields == nil {
		f.Fields = make(map[string]FieldValue)
	}
	f.Fields[name] = v
}

// Row projects the form into its index row
func (f *Form) Row(blobID uuid.UUID) FormRow {
	return FormRow{
		BlobID:      blobID,
		Team:        f.Team,
		MatchNumber: f.MatchNumber,
		EventKey:    f.EventKey,
		Template:    f.Template,
	}
}

// FormRow is one row of the forms index: a materialized projection of a
// live form version, keyed by blob id
type FormRow struct {
	BlobID      uuid.UUID
	Team        int64
	MatchNumber int64
	EventKey    string
	Template    string
}

// Filter selects forms by any combination of indexed attributes.
// Nil fields are wildcards.
type Filter struct {
	Team        *int64  `json:"team,omitempty"`
	MatchNumber *int64  `json:"match_number,omitempty"`
	Event       *string `json:"event,omitempty"`
	Scouter     *string `json:"scouter,omitempty"`
}

// Watermark records, per remote peer, the last transaction of that peer
// this node has observed
type Watermark struct {
	OwnerID       uuid.UUID
	TransactionID uuid.UUID
}

// EncodeBytesBlob frames a raw payload with its alt-key so a bytes blob is
// self-describing when read cold: 8-byte big-endian key length, the UTF-8
// key, then the payload.
func EncodeBytesBlob(key string, data []byte) []byte {
	out := make([]byte, 8+len(key)+len(data))
	binary.BigEndian.PutUint64(out, uint64(len(key)))
	copy(out[8:], key)
	copy(out[8+len(key):], data)
	return out
}

// DecodeBytesBlob splits a bytes blob back into its alt-key and payload
func DecodeBytesBlob(blob []byte) (string, []byte, error) {
	if len(blob) < 8 {
		return "", nil, fmt.Errorf("bytes blob shorter than length prefix: %w", ErrDecode)
	}
	keyLen := binary.BigEndian.Uint64(blob)
	if uint64(len(blob)-8) < keyLen {
		return "", nil, fmt.Errorf("bytes blob truncated: key length %d exceeds payload: %w", keyLen, ErrDecode)
	}
	key := string(blob[8 : 8+keyLen])
	return key, blob[8+keyLen:], nil
}

// EncodeJSON marshals a payload for blob storage
func EncodeJSON(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("%v: %w", err, ErrEncode)
	}
	return data, nil
}

// DecodeJSON unmarshals a stored blob payload
func DecodeJSON(data []byte, v any) error {
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%v: %w", err, ErrDecode)
	}
	return nil
}
