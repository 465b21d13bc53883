package domain

import "time"

// ChangeType classifies a record-store mutation for broadcast consumers.
type ChangeType string

// Change types carried by ChangeEvent.
const (
	ChangeCreation    ChangeType = "creation"
	ChangeEdit        ChangeType = "edit"
	ChangeDeletion    ChangeType = "deletion"
	ChangeImageUpdate ChangeType = "imageUpdate"
)

// ChangeEvent is the application-level broadcast emitted after every
// committed mutation. Consumers re-read the durable copy; the event tells
// them what kind of change happened and which records it touched.
type ChangeEvent struct {
	Type        ChangeType
	AffectedIDs []string
	At          time.Time
}

// StorageNotice is the storage-level change signal. It carries no payload:
// any context sharing the same durable key must re-read on receipt.
type StorageNotice struct {
	Key string
}

// StorageKeyObservations is the shared durable key for the observation
// collection.
const StorageKeyObservations = "observations"
