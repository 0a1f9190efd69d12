package allocation

import (
	"encoding/json"
	"errors"
	"fmt"
)

// StoreCopy classifies a node's on-disk copy of a shard.
type StoreCopy int

const (
	// StoreCopyNone means the node has no copy of the shard data.
	StoreCopyNone StoreCopy = iota
	// StoreCopyIOError means the copy exists but could not be read.
	StoreCopyIOError
	// StoreCopyCorrupt means the copy exists but its index data is corrupt.
	StoreCopyCorrupt
	// StoreCopyStale means the copy belongs to a superseded allocation
	// generation.
	StoreCopyStale
	// StoreCopyAvailable means the copy is readable and current.
	StoreCopyAvailable
)

var storeCopyNames = map[StoreCopy]string{
	StoreCopyNone:      "NONE",
	StoreCopyIOError:   "IO_ERROR",
	StoreCopyCorrupt:   "CORRUPT",
	StoreCopyStale:     "STALE",
	StoreCopyAvailable: "AVAILABLE",
}

func (c StoreCopy) String() string {
	if name, ok := storeCopyNames[c]; ok {
		return name
	}
	return fmt.Sprintf("StoreCopy(%d)", int(c))
}

// StoreErrorKind is the closed set of store read failure categories.
type StoreErrorKind int

const (
	// StoreErrorIO is a generic read failure. Unrecognized failure kinds
	// fall into this bucket.
	StoreErrorIO StoreErrorKind = iota
	// StoreErrorCorrupt is a corruption-class failure of the index data.
	StoreErrorCorrupt
)

var storeErrorKindNames = map[StoreErrorKind]string{
	StoreErrorIO:      "io",
	StoreErrorCorrupt: "corrupt",
}

func (k StoreErrorKind) String() string {
	if name, ok := storeErrorKindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("StoreErrorKind(%d)", int(k))
}

// ParseStoreErrorKind parses a store error kind name.
func ParseStoreErrorKind(s string) (StoreErrorKind, error) {
	for kind, name := range storeErrorKindNames {
		if name == s {
			return kind, nil
		}
	}
	return 0, fmt.Errorf("unknown store error kind %q", s)
}

// MarshalJSON encodes the kind as its name.
func (k StoreErrorKind) MarshalJSON() ([]byte, error) {
	return json.Marshal(k.String())
}

// UnmarshalJSON decodes the kind from its name.
func (k *StoreErrorKind) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseStoreErrorKind(s)
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// StoreReadError is a store read failure carried as data through the model.
// It is classified, never propagated as a control-flow fault.
type StoreReadError struct {
	Kind    StoreErrorKind `json:"kind"`
	Message string         `json:"message"`
}

func (e *StoreReadError) Error() string {
	return e.Message
}

// StoreRole marks whether a store copy was written as a primary or a replica.
// Informational only; it does not participate in classification.
type StoreRole int

const (
	StoreRolePrimary StoreRole = iota
	StoreRoleReplica
	StoreRoleUnused
)

var storeRoleNames = map[StoreRole]string{
	StoreRolePrimary: "primary",
	StoreRoleReplica: "replica",
	StoreRoleUnused:  "unused",
}

func (r StoreRole) String() string {
	if name, ok := storeRoleNames[r]; ok {
		return name
	}
	return fmt.Sprintf("StoreRole(%d)", int(r))
}

// ParseStoreRole parses a store role name.
func ParseStoreRole(s string) (StoreRole, error) {
	for role, name := range storeRoleNames {
		if name == s {
			return role, nil
		}
	}
	return 0, fmt.Errorf("unknown store role %q", s)
}

// MarshalJSON encodes the role as its name.
func (r StoreRole) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.String())
}

// UnmarshalJSON decodes the role from its name.
func (r *StoreRole) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseStoreRole(s)
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

// StoreStatus reports a node's on-disk copy of a shard. It is produced by an
// external store collector; this package only classifies it.
type StoreStatus struct {
	NodeID        string          `json:"node_id"`
	LegacyVersion int64           `json:"legacy_version"`
	AllocationID  string          `json:"allocation_id"`
	Role          StoreRole       `json:"role"`
	ReadError     *StoreReadError `json:"read_error,omitempty"`
}

// ClassifyStoreCopy maps a store report, or its absence, into a StoreCopy.
// Rules are evaluated in order; the first match wins:
//
//  1. no report at all: NONE
//  2. corruption-class read failure: CORRUPT
//  3. any other read failure: IO_ERROR
//  4. allocation id not in the shard's active set: STALE
//  5. otherwise: AVAILABLE
func ClassifyStoreCopy(status *StoreStatus, activeAllocationIDs map[string]struct{}) StoreCopy {
	switch {
	case status == nil:
		return StoreCopyNone
	case status.ReadError != nil && status.ReadError.Kind == StoreErrorCorrupt:
		return StoreCopyCorrupt
	case status.ReadError != nil:
		return StoreCopyIOError
	default:
		if _, ok := activeAllocationIDs[status.AllocationID]; !ok {
			return StoreCopyStale
		}
		return StoreCopyAvailable
	}
}

// CorruptionError is the capability a store collector's error type implements
// to mark a failure as corruption of the index data rather than a transient
// read problem.
type CorruptionError interface {
	error
	IsCorruption() bool
}

// CategorizeReadError maps an arbitrary store read failure into the closed
// kind set. Corruption is recognized through the CorruptionError capability;
// every other failure is a generic read error.
func CategorizeReadError(err error) *StoreReadError {
	if err == nil {
		return nil
	}
	var corrupt CorruptionError
	if errors.As(err, &corrupt) && corrupt.IsCorruption() {
		return &StoreReadError{Kind: StoreErrorCorrupt, Message: err.Error()}
	}
	return &StoreReadError{Kind: StoreErrorIO, Message: err.Error()}
}
