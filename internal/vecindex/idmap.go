package vecindex

import (
	"encoding/json"
	"fmt"
	"os"
)

const idMapVersion = 1

// identifierMap translates between the compact internal uint32 IDs used by
// index structures and the external string IDs callers work with. Internal
// IDs are assigned from a monotonically increasing counter and never reused,
// even after removal or re-binding. The map is not safe for concurrent use;
// the owning backend serializes access.
type identifierMap struct {
	nextInternal uint32
	toExternal   map[uint32]string
	toInternal   map[string]uint32
}

func newIdentifierMap() *identifierMap {
	return &identifierMap{
		toExternal: make(map[uint32]string),
		toInternal: make(map[string]uint32),
	}
}

// Reserve advances the counter by n and returns the first reserved internal
// ID. Reservation happens before any per-entry work so that a mid-batch
// failure never causes an ID to be handed out twice.
func (m *identifierMap) Reserve(n int) uint32 {
	first := m.nextInternal
	m.nextInternal += uint32(n)
	return first
}

// Bind associates an internal ID with an external ID. Re-binding an external
// ID that already exists follows last-write-wins: the previous internal ID
// becomes dangling and its stored vector unreachable.
func (m *identifierMap) Bind(internal uint32, external string) {
	if old, ok := m.toInternal[external]; ok {
		delete(m.toExternal, old)
	}
	m.toExternal[internal] = external
	m.toInternal[external] = internal
}

// External resolves an internal ID. The second return is false for IDs that
// were never bound or have been removed.
func (m *identifierMap) External(internal uint32) (string, bool) {
	ext, ok := m.toExternal[internal]
	return ext, ok
}

// Remove unbinds an external ID. Unknown IDs are a no-op and report false.
func (m *identifierMap) Remove(external string) (uint32, bool) {
	internal, ok := m.toInternal[external]
	if !ok {
		return 0, false
	}
	delete(m.toInternal, external)
	delete(m.toExternal, internal)
	return internal, true
}

// Len returns the number of live bindings.
func (m *identifierMap) Len() int {
	return len(m.toExternal)
}

// Clear drops all bindings but keeps the internal counter so IDs stay unique
// across the lifetime of the map.
func (m *identifierMap) Clear() {
	m.toExternal = make(map[uint32]string)
	m.toInternal = make(map[string]uint32)
}

type idMapEntry struct {
	Internal uint32 `json:"internal"`
	External string `json:"external"`
}

type idMapFile struct {
	Version      int          `json:"version"`
	NextInternal uint32       `json:"next_internal"`
	Entries      []idMapEntry `json:"entries"`
}

// Save writes the mapping and counter as versioned JSON.
func (m *identifierMap) Save(path string) error {
	file := idMapFile{
		Version:      idMapVersion,
		NextInternal: m.nextInternal,
		Entries:      make([]idMapEntry, 0, len(m.toExternal)),
	}
	for internal, external := range m.toExternal {
		file.Entries = append(file.Entries, idMapEntry{Internal: internal, External: external})
	}

	data, err := json.Marshal(file)
	if err != nil {
		return fmt.Errorf("failed to marshal ID map: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write ID map file: %w", err)
	}
	return nil
}

// Load replaces the mapping with the contents of a previously saved file.
// A version mismatch fails loudly instead of guessing at the schema.
func (m *identifierMap) Load(path string) error {
	data, err := os.ReadFile(path) //nolint:gosec // path is from trusted config
	if err != nil {
		return fmt.Errorf("failed to read ID map file: %w", err)
	}

	var file idMapFile
	if err := json.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("failed to unmarshal ID map: %w", err)
	}
	if file.Version != idMapVersion {
		return fmt.Errorf("unsupported ID map version %d (expected %d)", file.Version, idMapVersion)
	}

	m.nextInternal = file.NextInternal
	m.toExternal = make(map[uint32]string, len(file.Entries))
	m.toInternal = make(map[string]uint32, len(file.Entries))
	for _, e := range file.Entries {
		m.toExternal[e.Internal] = e.External
		m.toInternal[e.External] = e.Internal
	}
	return nil
}
