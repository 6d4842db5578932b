package model

import (
	"database/sql"
	"time"

	"gorm.io/datatypes"
)

////////////////////////
// DATABASE STRUCTURES //
////////////////////////

// DatabaseModels is a list of all the structs exported here which represent
// tables in the database schema.
var DatabaseModels = []interface{}{
	&Flight{},
	&Event{},
	&Change{},
	&Chunk{},
}

// Flight lifecycle states. A flight accepts events while recording; once
// export has begun no further events may be appended.
const (
	FlightStateRecording = "recording"
	FlightStateExporting = "exporting"
)

// Flight identifies one recording session. The primary key is the flight
// plan identifier assigned by the remote flight-plan service, so a duplicate
// registration is a primary-key conflict.
type Flight struct {
	ID           uint64         `json:"id" gorm:"primaryKey;autoIncrement:false"`
	Aircraft     string         `json:"aircraft" gorm:"size:127;not null"`
	Network      string         `json:"network" gorm:"size:63;not null"`
	EngineCount  int            `json:"engineCount" gorm:"not null"`
	PilotComment sql.NullString `json:"pilotComment"`
	ReportID     sql.NullString `json:"reportId" gorm:"size:127"`
	State        string         `json:"state" gorm:"size:15;not null;default:recording"`
	CreatedAt    time.Time      `json:"createdAt"`
}

func (*Flight) TableName() string {
	return "flights"
}

// Event is one persisted tick of a flight: a timestamp plus its change rows.
// Ordering within a flight is by timestamp, ties broken by insertion id.
type Event struct {
	ID        uint64    `json:"id" gorm:"primaryKey;autoIncrement"`
	FlightID  uint64    `json:"flightId" gorm:"index:idx_events_flight_time,priority:1;not null"`
	Flight    Flight    `json:"-" gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;foreignKey:FlightID"`
	Timestamp time.Time `json:"timestamp" gorm:"index:idx_events_flight_time,priority:2;not null"`
	Changes   []Change  `json:"changes" gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;foreignKey:EventID"`
}

func (*Event) TableName() string {
	return "events"
}

// Change is one recorded field update. Value holds the bare JSON encoding of
// the tagged-union Value so the payload type survives storage.
type Change struct {
	ID       uint64         `json:"id" gorm:"primaryKey;autoIncrement"`
	EventID  uint64         `json:"eventId" gorm:"index;not null"`
	Variable string         `json:"variable" gorm:"size:63;not null;index"`
	Value    datatypes.JSON `json:"value" gorm:"not null"`
}

func (*Change) TableName() string {
	return "changes"
}

// DecodeValue parses the stored JSON payload back into a typed Value.
func (c *Change) DecodeValue() (Value, error) {
	var v Value
	if err := v.UnmarshalJSON(c.Value); err != nil {
		return Value{}, err
	}
	return v, nil
}

// EncodeValue serializes a typed Value for storage.
func EncodeValue(v Value) (datatypes.JSON, error) {
	raw, err := v.MarshalJSON()
	if err != nil {
		return nil, err
	}
	return datatypes.JSON(raw), nil
}

// Chunk is one byte range of a flight's compressed export artifact. Rows are
// derived data: rewritten whenever the artifact is split again, deleted one
// by one as uploads succeed, so the surviving rows are the upload backlog.
type Chunk struct {
	FlightID uint64 `json:"flightId" gorm:"primaryKey;autoIncrement:false"`
	Seq      int    `json:"seq" gorm:"primaryKey;autoIncrement:false"`
	Path     string `json:"path" gorm:"size:512;not null"`
	SHA256   string `json:"sha256" gorm:"size:64;not null"`
}

func (*Chunk) TableName() string {
	return "chunks"
}

// ChangeSetFromRows rebuilds the ordered ChangeSet of an event from its
// change rows (already ordered by insertion id).
func ChangeSetFromRows(rows []Change) (ChangeSet, error) {
	var cs ChangeSet
	for i := range rows {
		v, err := rows[i].DecodeValue()
		if err != nil {
			return ChangeSet{}, err
		}
		cs.Put(rows[i].Variable, v)
	}
	return cs, nil
}
