// Package domain defines the core persistent entities, change events, and
// error taxonomy used by fieldlog.
package domain

import (
	"fmt"
	"math"
	"time"
)

// SyncStatus tags a record with its remote confirmation state.
type SyncStatus string

// Valid sync statuses. A record starts pending and moves forward only.
const (
	// SyncPending marks a record not yet confirmed by the remote service.
	SyncPending SyncStatus = "pending"
	// SyncSynced marks a record confirmed by the remote service.
	SyncSynced SyncStatus = "synced"
	// SyncError marks a record whose replay was abandoned after bounded retries.
	SyncError SyncStatus = "error"
)

// CanTransition reports whether moving from s to next is a legal status
// transition. Transitions never go backwards: pending→synced and
// pending→error are the only moves.
func (s SyncStatus) CanTransition(next SyncStatus) bool {
	return s == SyncPending && (next == SyncSynced || next == SyncError)
}

// Position is a geographic point in decimal degrees. Latitude and longitude
// are always present together; an absent position is a nil *Position.
type Position struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Round returns the position rounded to six decimal places, the precision
// captured by the recording workflow.
func (p Position) Round() Position {
	return Position{
		Latitude:  math.Round(p.Latitude*1e6) / 1e6,
		Longitude: math.Round(p.Longitude*1e6) / 1e6,
	}
}

// AccuracyPresets is the fixed set of selectable accuracy radii in meters.
var AccuracyPresets = []int{
	1, 5, 10, 25, 50, 75, 100, 125, 150, 200, 250,
	300, 400, 500, 750, 1000, 1500, 2000, 2500, 3000, 5000,
}

// ValidAccuracy reports whether m is one of the preset accuracy radii.
func ValidAccuracy(m int) bool {
	for _, v := range AccuracyPresets {
		if v == m {
			return true
		}
	}
	return false
}

// SpeciesRef is the denormalized species reference embedded in a record.
type SpeciesRef struct {
	ScientificName string `json:"scientific_name"`
	VernacularName string `json:"vernacular_name,omitempty"`
	Category       string `json:"category,omitempty"`
}

// Display returns the vernacular name when the dataset has one, otherwise
// the scientific name.
func (r SpeciesRef) Display() string {
	if r.VernacularName != "" {
		return r.VernacularName
	}
	return r.ScientificName
}

// ImageAttachment references one stored image payload plus its client-side
// presentation metadata. The payload itself lives in the attachment store
// under Key; the record only carries this descriptor.
type ImageAttachment struct {
	Key         string     `json:"key"`
	ContentType string     `json:"content_type,omitempty"`
	Size        int64      `json:"size_bytes,omitempty"`
	Rotation    int        `json:"rotation,omitempty"` // degrees clockwise, multiples of 90
	CapturedAt  *time.Time `json:"captured_at,omitempty"`
}

// Observation is a single field observation record.
//
// ID is device-local, assigned on create, and immutable. ServerID is nil
// until the remote service confirms the write; it never replaces ID.
type Observation struct {
	ID             string            `json:"id"`
	ServerID       *string           `json:"server_id,omitempty"`
	Species        SpeciesRef        `json:"species"`
	Position       *Position         `json:"position,omitempty"`
	AccuracyMeters *int              `json:"accuracy_meters,omitempty"`
	ObservedDate   string            `json:"observed_date,omitempty"` // YYYY-MM-DD
	ObservedTime   string            `json:"observed_time,omitempty"` // HH:MM, optional
	Locality       string            `json:"locality,omitempty"`
	Comment        string            `json:"comment,omitempty"`
	Images         []ImageAttachment `json:"images,omitempty"`
	SyncStatus     SyncStatus        `json:"sync_status"`
	CreatedAt      time.Time         `json:"created_at"`
	UpdatedAt      time.Time         `json:"updated_at"`
}

// Clone returns a deep copy of the observation.
func (o Observation) Clone() Observation {
	cp := o
	if o.ServerID != nil {
		v := *o.ServerID
		cp.ServerID = &v
	}
	if o.Position != nil {
		v := *o.Position
		cp.Position = &v
	}
	if o.AccuracyMeters != nil {
		v := *o.AccuracyMeters
		cp.AccuracyMeters = &v
	}
	if o.Images != nil {
		cp.Images = make([]ImageAttachment, len(o.Images))
		for i, img := range o.Images {
			cp.Images[i] = img
			if img.CapturedAt != nil {
				t := *img.CapturedAt
				cp.Images[i].CapturedAt = &t
			}
		}
	}
	return cp
}

// Validate checks the record-level invariants that hold for every stored
// observation regardless of how it was produced.
func (o Observation) Validate() error {
	if o.AccuracyMeters != nil && !ValidAccuracy(*o.AccuracyMeters) {
		return fmt.Errorf("accuracy %dm is not a preset value", *o.AccuracyMeters)
	}
	switch o.SyncStatus {
	case SyncPending, SyncSynced, SyncError:
	default:
		return fmt.Errorf("unknown sync status %q", o.SyncStatus)
	}
	return nil
}

// ObservationPatch is a partial update merged over an existing record.
// Nil fields are left untouched; ClearPosition removes the position pair as
// a unit so latitude and longitude never survive separately.
type ObservationPatch struct {
	Species        *SpeciesRef
	Position       *Position
	ClearPosition  bool
	AccuracyMeters *int
	ObservedDate   *string
	ObservedTime   *string
	Locality       *string
	Comment        *string
}

// Apply merges the patch into o. Identity, images, and sync bookkeeping are
// never touched by a patch; they have dedicated operations.
func (p ObservationPatch) Apply(o *Observation) {
	if p.Species != nil {
		o.Species = *p.Species
	}
	if p.ClearPosition {
		o.Position = nil
	} else if p.Position != nil {
		v := p.Position.Round()
		o.Position = &v
	}
	if p.AccuracyMeters != nil {
		v := *p.AccuracyMeters
		o.AccuracyMeters = &v
	}
	if p.ObservedDate != nil {
		o.ObservedDate = *p.ObservedDate
	}
	if p.ObservedTime != nil {
		o.ObservedTime = *p.ObservedTime
	}
	if p.Locality != nil {
		o.Locality = *p.Locality
	}
	if p.Comment != nil {
		o.Comment = *p.Comment
	}
}
