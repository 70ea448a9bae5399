// Package candb defines the CAN signal database model for celltrace.
//
// A Database describes the messages carried on the bus: frame identifiers,
// byte lengths, sending nodes, and the bit-level layout of every signal
// (start bit, length, byte order, signedness, linear scaling). Databases are
// defined in Go code and validated in-process; see the bmsdb subpackage for
// the battery pack database used by the celltrace tools.
//
// # Validation
//
// Databases are configuration artifacts with integrity constraints: signal
// bit ranges must not overlap within a message, referenced node names must
// exist, and attribute overrides must reference a defined attribute. Use
// Validator to check a database before putting it on a bus:
//
//	result := candb.NewValidator().Validate(db)
//	if !result.Valid {
//	    for _, e := range result.Errors {
//	        fmt.Println(e)
//	    }
//	}
//
// # Conversions
//
// Signals carry a linear conversion between raw bus values and physical
// quantities: physical = raw*Scale + Offset. Signal.Physical and Signal.Raw
// apply the conversion in each direction. The frame package uses the layout
// information here to extract and insert raw values in frame payloads.
package candb
