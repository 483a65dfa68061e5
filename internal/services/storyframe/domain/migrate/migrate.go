// Package migrate upgrades persisted state documents written by older
// schema versions.
//
// Steps run over the raw JSON object, one version at a time. A step that
// fails or panics is replaced by its fallback, which writes empty defaults for
// the fields it owns; the chain always continues to CurrentVersion.
package migrate

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"math"
	"time"

	"github.com/louisbranch/storyframe/internal/services/storyframe/domain/document"
)

// Step upgrades a raw document from From to From+1.
type Step struct {
	From     int
	Apply    func(raw map[string]any, now time.Time) error
	Fallback func(raw map[string]any)
}

// Steps returns the built-in chain, ordered by source version.
func Steps() []Step {
	return []Step{
		{From: 1, Apply: addRollCollections, Fallback: addRollCollectionsFallback},
		{From: 2, Apply: addSingleChallenge, Fallback: addSingleChallengeFallback},
		{From: 3, Apply: listActiveChallenges, Fallback: listActiveChallengesFallback},
	}
}

// Result is a decoded document and what the decoder had to do to produce it.
type Result struct {
	Document document.Document
	// FromVersion is the version the stored value declared, after defaulting.
	FromVersion int
	// Migrated is true when the stored value must be rewritten.
	Migrated bool
}

// Migrator decodes stored documents, running the chain when needed.
type Migrator struct {
	Steps []Step
	Now   func() time.Time
	Logf  func(format string, args ...any)
}

// New returns a Migrator with the built-in chain.
func New() Migrator {
	return Migrator{Steps: Steps(), Now: time.Now, Logf: log.Printf}
}

// Version reads only the version field of a stored document. A missing,
// non-numeric or non-positive version is reported as 1.
func Version(data []byte) (int, error) {
	var header struct {
		Version json.RawMessage `json:"version"`
	}
	if err := json.Unmarshal(data, &header); err != nil {
		return 0, fmt.Errorf("decode document header: %w", err)
	}
	var version float64
	if len(header.Version) == 0 || json.Unmarshal(header.Version, &version) != nil {
		return 1, nil
	}
	if version <= 0 || version != math.Trunc(version) {
		return 1, nil
	}
	return int(version), nil
}

// Decode turns a stored value into a current document. Only malformed JSON
// is an error; every well-formed object yields a usable document.
func (m Migrator) Decode(data []byte) (Result, error) {
	version, err := Version(data)
	if err != nil {
		return Result{}, err
	}

	raw := map[string]any{}
	decoder := json.NewDecoder(bytes.NewReader(data))
	decoder.UseNumber()
	if err := decoder.Decode(&raw); err != nil {
		return Result{}, fmt.Errorf("decode document: %w", err)
	}
	if raw == nil {
		raw = map[string]any{}
	}

	result := Result{FromVersion: version}
	switch {
	case version < document.CurrentVersion:
		raw["version"] = version
		m.run(raw, version)
		result.Migrated = true
	case version > document.CurrentVersion:
		m.logf("migrate: document version=%d is newer than current=%d, decoding as-is", version, document.CurrentVersion)
	}

	doc, err := decodeFields(raw, m.logf)
	if err != nil {
		return Result{}, err
	}
	if version < document.CurrentVersion {
		doc.Version = document.CurrentVersion
	} else {
		doc.Version = version
	}
	doc.Normalize()
	result.Document = doc
	return result, nil
}

func (m Migrator) run(raw map[string]any, from int) {
	now := time.Now
	if m.Now != nil {
		now = m.Now
	}
	for version := from; version < document.CurrentVersion; version++ {
		step, ok := m.step(version)
		if !ok {
			m.logf("migrate: no step from version=%d, stamping version=%d", version, version+1)
		} else {
			m.apply(step, raw, now().UTC())
		}
		raw["version"] = version + 1
	}
}

func (m Migrator) step(from int) (Step, bool) {
	for _, step := range m.Steps {
		if step.From == from {
			return step, true
		}
	}
	return Step{}, false
}

func (m Migrator) apply(step Step, raw map[string]any, now time.Time) {
	defer func() {
		if r := recover(); r != nil {
			m.logf("migrate: step from=%d panicked, using defaults: %v", step.From, r)
			if step.Fallback != nil {
				step.Fallback(raw)
			}
		}
	}()
	if step.Apply == nil {
		return
	}
	if err := step.Apply(raw, now); err != nil {
		m.logf("migrate: step from=%d failed, using defaults: %v", step.From, err)
		if step.Fallback != nil {
			step.Fallback(raw)
		}
	}
}

func (m Migrator) logf(format string, args ...any) {
	if m.Logf != nil {
		m.Logf(format, args...)
	}
}
