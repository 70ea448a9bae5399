package candb

import (
	"fmt"
	"math"
)

// ValidationIssue describes one problem found during database validation.
type ValidationIssue struct {
	// Code is a stable machine-readable identifier for the check.
	Code string

	// Message is the human-readable description.
	Message string

	// Context names the message or signal the issue applies to.
	Context string
}

func (e ValidationIssue) Error() string {
	if e.Context != "" {
		return fmt.Sprintf("%s: %s: %s", e.Context, e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// ValidationResult contains the results of database validation.
type ValidationResult struct {
	// Valid is true if the database passed all validation checks.
	Valid bool

	// Errors contains all validation errors.
	Errors []ValidationIssue

	// Warnings contains non-fatal issues.
	Warnings []ValidationIssue
}

// AddError adds a validation error.
func (r *ValidationResult) AddError(code, context, format string, args ...any) {
	r.Errors = append(r.Errors, ValidationIssue{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Context: context,
	})
	r.Valid = false
}

// AddWarning adds a validation warning.
func (r *ValidationResult) AddWarning(code, context, format string, args ...any) {
	r.Warnings = append(r.Warnings, ValidationIssue{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Context: context,
	})
}

// Validator checks a database against its integrity constraints.
type Validator struct {
	// Strict additionally requires every signal to declare a receiver and
	// every cyclic message to declare a cycle time.
	Strict bool
}

// NewValidator creates a new database validator.
func NewValidator() *Validator {
	return &Validator{
		Strict: false,
	}
}

// Validate validates a database.
func (v *Validator) Validate(db *Database) *ValidationResult {
	result := &ValidationResult{Valid: true}

	nodes := v.checkNodes(db, result)
	v.checkAttributeDefs(db, result)

	seenID := make(map[uint32]string)
	seenName := make(map[string]bool)

	for i := range db.Messages {
		m := &db.Messages[i]

		if other, dup := seenID[idKey(m.FrameID, m.Extended)]; dup {
			result.AddError("MSG_DUP_ID", m.Name,
				"frame ID 0x%X already used by %s", m.FrameID, other)
		}
		seenID[idKey(m.FrameID, m.Extended)] = m.Name

		if seenName[m.Name] {
			result.AddError("MSG_DUP_NAME", m.Name, "duplicate message name")
		}
		seenName[m.Name] = true

		v.checkMessage(db, m, nodes, result)
	}

	return result
}

// checkNodes reports duplicate node names and returns the node name set.
func (v *Validator) checkNodes(db *Database, result *ValidationResult) map[string]bool {
	nodes := make(map[string]bool, len(db.Nodes))
	for _, n := range db.Nodes {
		if n.Name == "" {
			result.AddError("NODE_NAME", "", "node with empty name")
			continue
		}
		if nodes[n.Name] {
			result.AddError("NODE_DUP", n.Name, "duplicate node name")
		}
		nodes[n.Name] = true
	}
	return nodes
}

func (v *Validator) checkAttributeDefs(db *Database, result *ValidationResult) {
	seen := make(map[string]bool, len(db.Attributes))
	for _, def := range db.Attributes {
		if seen[def.Name] {
			result.AddError("ATTR_DUP", def.Name, "duplicate attribute definition")
		}
		seen[def.Name] = true

		if def.Default != nil && !attributeValueMatches(def.Kind, def.Default) {
			result.AddError("ATTR_TYPE", def.Name,
				"default %v does not match kind %s", def.Default, def.Kind)
		}
	}
}

func (v *Validator) checkMessage(db *Database, m *Message, nodes map[string]bool, result *ValidationResult) {
	if m.Extended {
		if m.FrameID > MaxExtendedID {
			result.AddError("MSG_ID", m.Name, "frame ID 0x%X exceeds 29 bits", m.FrameID)
		}
	} else if m.FrameID > MaxStandardID {
		result.AddError("MSG_ID", m.Name, "frame ID 0x%X exceeds 11 bits (message not marked extended)", m.FrameID)
	}

	if m.Length < 1 || m.Length > 8 {
		result.AddError("MSG_LEN", m.Name, "length %d bytes outside 1..8", m.Length)
	}

	if m.Sender != "" && !nodes[m.Sender] {
		result.AddError("MSG_SENDER", m.Name, "sender %q is not a declared node", m.Sender)
	}

	if v.Strict && m.SendType == "cyclic" && m.CycleTime <= 0 {
		result.AddError("MSG_CYCLE", m.Name, "cyclic message without cycle time")
	}

	for name := range m.Attributes {
		def, ok := db.Attribute(name)
		if !ok {
			result.AddError("ATTR_UNDEF", m.Name,
				"attribute override %q has no definition", name)
			continue
		}
		if !attributeValueMatches(def.Kind, m.Attributes[name]) {
			result.AddError("ATTR_TYPE", m.Name,
				"attribute %q override %v does not match kind %s",
				name, m.Attributes[name], def.Kind)
		}
	}

	v.checkSignals(m, nodes, result)
}

func (v *Validator) checkSignals(m *Message, nodes map[string]bool, result *ValidationResult) {
	span := m.Length * 8
	occupied := make(map[int]string, span)
	seen := make(map[string]bool, len(m.Signals))

	for i := range m.Signals {
		s := &m.Signals[i]
		ctx := m.Name + "." + s.Name

		if seen[s.Name] {
			result.AddError("SIG_DUP", ctx, "duplicate signal name")
		}
		seen[s.Name] = true

		positions := s.BitPositions()
		if positions == nil {
			result.AddError("SIG_SPAN", ctx,
				"invalid layout (start %d, length %d)", s.Start, s.Length)
			continue
		}

		for _, pos := range positions {
			if pos >= span {
				result.AddError("SIG_SPAN", ctx,
					"bit %d outside the %d-byte payload", pos, m.Length)
				continue
			}
			if other, taken := occupied[pos]; taken {
				result.AddError("SIG_OVERLAP", ctx,
					"bit %d already used by %s", pos, other)
				continue
			}
			occupied[pos] = s.Name
		}

		if s.Scale == 0 {
			result.AddError("SIG_SCALE", ctx, "scale must be non-zero")
		}
		if s.Min > s.Max {
			result.AddError("SIG_RANGE", ctx, "min %g greater than max %g", s.Min, s.Max)
		}

		for _, recv := range s.Receivers {
			if !nodes[recv] {
				result.AddError("SIG_NODE", ctx, "receiver %q is not a declared node", recv)
			}
		}
		if v.Strict && len(s.Receivers) == 0 {
			result.AddError("SIG_RECV", ctx, "signal declares no receivers")
		}

		lo, hi := s.RawRange()
		for raw := range s.Choices {
			if raw < lo || raw > hi {
				result.AddWarning("SIG_CHOICE", ctx,
					"value table entry %d outside raw range [%d, %d]", raw, lo, hi)
			}
		}
	}
}

func attributeValueMatches(kind AttributeKind, value any) bool {
	switch kind {
	case AttributeInt:
		_, ok := value.(int)
		return ok
	case AttributeFloat:
		f, ok := value.(float64)
		return ok && !math.IsNaN(f)
	case AttributeString:
		_, ok := value.(string)
		return ok
	default:
		return false
	}
}
