package candb

import "sync"

// Database is a collection of message layouts, the nodes that exchange
// them, and attribute metadata. The zero value is usable; lookup indexes
// are built lazily and rebuilt by Refresh after mutation.
type Database struct {
	// Version is a free-form database version string.
	Version string

	// Nodes lists the bus participants.
	Nodes []Node

	// Messages lists the frame layouts, in definition order.
	Messages []Message

	// Attributes lists the attribute definitions with their defaults.
	Attributes []AttributeDef

	mu      sync.RWMutex
	byID    map[uint32]*Message
	byName  map[string]*Message
	bySig   map[string]signalRef
	indexed bool
}

type signalRef struct {
	msg *Message
	sig *Signal
}

// idKey folds the extended flag into the lookup key so a standard and an
// extended frame with the same numeric identifier stay distinct.
func idKey(id uint32, extended bool) uint32 {
	key := id & MaxExtendedID
	if extended {
		key |= 1 << 31
	}
	return key
}

// Refresh rebuilds the lookup indexes. Call after mutating Messages.
// Duplicate identifiers or names are not an error here; the last
// definition wins, and Validator reports the duplication.
func (db *Database) Refresh() {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.buildIndex()
}

func (db *Database) buildIndex() {
	db.byID = make(map[uint32]*Message, len(db.Messages))
	db.byName = make(map[string]*Message, len(db.Messages))
	db.bySig = make(map[string]signalRef)

	for i := range db.Messages {
		m := &db.Messages[i]
		db.byID[idKey(m.FrameID, m.Extended)] = m
		db.byName[m.Name] = m
		for j := range m.Signals {
			db.bySig[m.Signals[j].Name] = signalRef{msg: m, sig: &m.Signals[j]}
		}
	}
	db.indexed = true
}

func (db *Database) ensureIndex() {
	db.mu.RLock()
	ok := db.indexed
	db.mu.RUnlock()
	if ok {
		return
	}
	db.Refresh()
}

// MessageByFrameID returns the message with the given identifier.
func (db *Database) MessageByFrameID(id uint32, extended bool) (*Message, bool) {
	db.ensureIndex()
	db.mu.RLock()
	defer db.mu.RUnlock()
	m, ok := db.byID[idKey(id, extended)]
	return m, ok
}

// MessageByName returns the message with the given name.
func (db *Database) MessageByName(name string) (*Message, bool) {
	db.ensureIndex()
	db.mu.RLock()
	defer db.mu.RUnlock()
	m, ok := db.byName[name]
	return m, ok
}

// SignalByName returns a signal and its containing message. Signal names
// are unique across the database in practice (the generator prefixes them
// with the message name); with duplicates the last definition wins.
func (db *Database) SignalByName(name string) (*Message, *Signal, bool) {
	db.ensureIndex()
	db.mu.RLock()
	defer db.mu.RUnlock()
	ref, ok := db.bySig[name]
	if !ok {
		return nil, nil, false
	}
	return ref.msg, ref.sig, true
}

// Node returns the node with the given name.
func (db *Database) Node(name string) (*Node, bool) {
	for i := range db.Nodes {
		if db.Nodes[i].Name == name {
			return &db.Nodes[i], true
		}
	}
	return nil, false
}

// Attribute returns the attribute definition with the given name.
func (db *Database) Attribute(name string) (*AttributeDef, bool) {
	for i := range db.Attributes {
		if db.Attributes[i].Name == name {
			return &db.Attributes[i], true
		}
	}
	return nil, false
}

// MessageAttribute resolves an attribute value for a message: the
// per-message override when present, otherwise the database default.
// Returns false if the attribute is not defined.
func (db *Database) MessageAttribute(m *Message, name string) (any, bool) {
	def, ok := db.Attribute(name)
	if !ok {
		return nil, false
	}
	if v, ok := m.Attributes[name]; ok {
		return v, true
	}
	return def.Default, true
}
