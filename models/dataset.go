package models

import (
	"time"
)

// Dataset is a catalogue entry identified by scope and name
type Dataset struct {
	ID             string    `json:"id" db:"id"` // scope:name
	Scope          string    `json:"scope" db:"scope"`
	Name           string    `json:"name" db:"name"`
	Campaign       string    `json:"campaign" db:"campaign"`
	DetectorConfig string    `json:"detector_config" db:"detector_config"`
	PhysicsProcess string    `json:"physics_process" db:"physics_process"`
	Generator      string    `json:"generator" db:"generator"`
	Collision      string    `json:"collision" db:"collision"`
	Q2             string    `json:"q2" db:"q2"`
	Description    string    `json:"description,omitempty" db:"description"`
	VO             string    `json:"vo" db:"vo"` // owning VO, taken from the creator's verified claims
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time `json:"updated_at" db:"updated_at"`
}

// TableName returns the table name for the Dataset model
func (Dataset) TableName() string {
	return "datasets"
}

// OwnerVO returns the VO that owns the dataset
func (d *Dataset) OwnerVO() string {
	return d.VO
}

// DatasetID builds the catalogue ID of a dataset
func DatasetID(scope, name string) string {
	return scope + ":" + name
}

// DatasetInput is one element of a create request
type DatasetInput struct {
	Scope          string `json:"scope" validate:"required,max=255,excludes=:"`
	Name           string `json:"name" validate:"required,max=255"`
	Campaign       string `json:"campaign" validate:"max=255"`
	DetectorConfig string `json:"detector_config" validate:"max=255"`
	PhysicsProcess string `json:"physics_process" validate:"max=255"`
	Generator      string `json:"generator" validate:"max=255"`
	Collision      string `json:"collision" validate:"max=255"`
	Q2             string `json:"q2" validate:"max=255"`
	Description    string `json:"description" validate:"max=4096"`
}

// NewDataset creates a Dataset owned by vo
func NewDataset(in DatasetInput, vo string) *Dataset {
	now := time.Now().UTC()
	return &Dataset{
		ID:             DatasetID(in.Scope, in.Name),
		Scope:          in.Scope,
		Name:           in.Name,
		Campaign:       in.Campaign,
		DetectorConfig: in.DetectorConfig,
		PhysicsProcess: in.PhysicsProcess,
		Generator:      in.Generator,
		Collision:      in.Collision,
		Q2:             in.Q2,
		Description:    in.Description,
		VO:             vo,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// DatasetUpdate holds the mutable fields of a dataset. Scope and name form
// the ID and cannot change.
type DatasetUpdate struct {
	Campaign       string `json:"campaign" validate:"max=255"`
	DetectorConfig string `json:"detector_config" validate:"max=255"`
	PhysicsProcess string `json:"physics_process" validate:"max=255"`
	Generator      string `json:"generator" validate:"max=255"`
	Collision      string `json:"collision" validate:"max=255"`
	Q2             string `json:"q2" validate:"max=255"`
	Description    string `json:"description" validate:"max=4096"`
}

// Apply copies the update onto d and bumps UpdatedAt
func (u DatasetUpdate) Apply(d *Dataset) {
	d.Campaign = u.Campaign
	d.DetectorConfig = u.DetectorConfig
	d.PhysicsProcess = u.PhysicsProcess
	d.Generator = u.Generator
	d.Collision = u.Collision
	d.Q2 = u.Q2
	d.Description = u.Description
	d.UpdatedAt = time.Now().UTC()
}

// DistinctValue is one bucket of a distinct values aggregation
type DistinctValue struct {
	Value string `json:"value"`
	Count int64  `json:"count"`
}

// DistinctValues is the aggregation result for one field
type DistinctValues struct {
	Field   string          `json:"field"`
	Values  []string        `json:"values"`
	Buckets []DistinctValue `json:"buckets"`
}

// distinctFields maps aggregatable fields to their columns
var distinctFields = map[string]string{
	"scope":           "scope",
	"campaign":        "campaign",
	"detector_config": "detector_config",
	"physics_process": "physics_process",
	"generator":       "generator",
	"collision":       "collision",
	"q2":              "q2",
	"vo":              "vo",
}

// DistinctColumn returns the column for an aggregatable field
func DistinctColumn(field string) (string, bool) {
	column, ok := distinctFields[field]
	return column, ok
}

// DistinctFieldNames lists the aggregatable fields in a stable order
func DistinctFieldNames() []string {
	return []string{"scope", "campaign", "detector_config", "physics_process", "generator", "collision", "q2", "vo"}
}
