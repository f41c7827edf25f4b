// Package faultinject makes experiments repeatable: the decision whether an
// operation fails is a pure function of (seed, profile, fault kind,
// operation id, attempt), so identical runs produce identical incidents.
package faultinject

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"time"
)

type Fault string

const (
	FaultNone         Fault = ""
	FaultStorageDelay Fault = "storage_delay"
	FaultProcessing   Fault = "processing_exception"
	FaultDependency   Fault = "dependency_failure"
)

// Profile is a named table of per-fault probabilities.
type Profile struct {
	Name            string
	StorageDelay    float64
	ProcessingError float64
	DependencyError float64
	DelayDuration   time.Duration
}

var profiles = map[string]Profile{
	"none":  {Name: "none"},
	"mild":  {Name: "mild", StorageDelay: 0.02, ProcessingError: 0.01, DelayDuration: 20 * time.Millisecond},
	"harsh": {Name: "harsh", StorageDelay: 0.10, ProcessingError: 0.05, DependencyError: 0.05, DelayDuration: 20 * time.Millisecond},
}

// ParseProfile resolves a profile by name.
func ParseProfile(name string) (Profile, error) {
	p, ok := profiles[name]
	if !ok {
		return Profile{}, fmt.Errorf("unknown fail profile %q", name)
	}
	return p, nil
}

// Injector decides faults deterministically. It holds no mutable state and
// is safe for concurrent use.
type Injector struct {
	seed    int64
	profile Profile
}

func New(seed int64, profile Profile) *Injector {
	return &Injector{seed: seed, profile: profile}
}

func (i *Injector) Profile() Profile { return i.profile }

// Decide returns the fault injected for this operation attempt, if any.
// Faults are checked in a fixed order so the decision is total.
func (i *Injector) Decide(operationID string, attempt int) Fault {
	if i.score(FaultProcessing, operationID, attempt) < i.profile.ProcessingError {
		return FaultProcessing
	}
	if i.score(FaultDependency, operationID, attempt) < i.profile.DependencyError {
		return FaultDependency
	}
	if i.score(FaultStorageDelay, operationID, attempt) < i.profile.StorageDelay {
		return FaultStorageDelay
	}
	return FaultNone
}

// score maps the tuple onto [0, 1) via a stable hash.
func (i *Injector) score(kind Fault, operationID string, attempt int) float64 {
	payload := fmt.Sprintf("%d:%s:%s:%s:%d", i.seed, i.profile.Name, kind, operationID, attempt)
	digest := sha256.Sum256([]byte(payload))
	value := binary.BigEndian.Uint64(digest[:8])
	return float64(value>>11) / float64(uint64(1)<<53)
}
