package bridge

import (
	"errors"
	"fmt"

	"github.com/fxamacker/cbor/v2"

	"github.com/celltrace/celltrace-go/pkg/capture"
)

// ProtocolVersion is the bridge wire protocol version.
const ProtocolVersion = 1

// MessageType identifies the envelope payload.
type MessageType uint8

// Bridge message types.
const (
	TypeHello MessageType = iota + 1
	TypeChallenge
	TypeAuth
	TypeAuthResult
	TypeEvent
	TypePing
	TypePong
)

// String returns the message type name.
func (t MessageType) String() string {
	switch t {
	case TypeHello:
		return "HELLO"
	case TypeChallenge:
		return "CHALLENGE"
	case TypeAuth:
		return "AUTH"
	case TypeAuthResult:
		return "AUTH_RESULT"
	case TypeEvent:
		return "EVENT"
	case TypePing:
		return "PING"
	case TypePong:
		return "PONG"
	default:
		return "UNKNOWN"
	}
}

// Envelope is the bridge wire message. Exactly one payload field is set,
// matching Type.
type Envelope struct {
	Type     MessageType `cbor:"1,keyasint"`
	Sequence uint32      `cbor:"2,keyasint,omitempty"`

	Hello      *Hello         `cbor:"10,keyasint,omitempty"`
	Challenge  *Challenge     `cbor:"11,keyasint,omitempty"`
	Auth       *Auth          `cbor:"12,keyasint,omitempty"`
	AuthResult *AuthResult    `cbor:"13,keyasint,omitempty"`
	Event      *capture.Event `cbor:"14,keyasint,omitempty"`
}

// Hello is the client's opening message.
type Hello struct {
	// Version is the client's protocol version.
	Version uint8 `cbor:"1,keyasint"`

	// Name identifies the client, e.g. a hostname.
	Name string `cbor:"2,keyasint,omitempty"`
}

// Challenge carries the server's authentication challenge.
type Challenge struct {
	// Salt feeds the passphrase key derivation.
	Salt []byte `cbor:"1,keyasint"`

	// Nonce is the value the client must prove over.
	Nonce []byte `cbor:"2,keyasint"`
}

// Auth carries the client's proof over the challenge nonce.
type Auth struct {
	Proof []byte `cbor:"1,keyasint"`
}

// AuthResult reports whether authentication succeeded.
type AuthResult struct {
	OK     bool   `cbor:"1,keyasint"`
	Reason string `cbor:"2,keyasint,omitempty"`
}

// ErrBadEnvelope indicates a structurally invalid bridge message.
var ErrBadEnvelope = errors.New("bad bridge envelope")

// CBOR encoding/decoding modes, configured once at package init.
var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	encOpts := cbor.EncOptions{
		Sort:          cbor.SortCanonical,
		IndefLength:   cbor.IndefLengthForbidden,
		NilContainers: cbor.NilContainerAsNull,
		Time:          cbor.TimeRFC3339Nano,
	}
	var err error
	encMode, err = encOpts.EncMode()
	if err != nil {
		panic(fmt.Sprintf("bridge: invalid CBOR encode options: %v", err))
	}

	decOpts := cbor.DecOptions{
		DupMapKey:   cbor.DupMapKeyQuiet,
		IndefLength: cbor.IndefLengthForbidden,
	}
	decMode, err = decOpts.DecMode()
	if err != nil {
		panic(fmt.Sprintf("bridge: invalid CBOR decode options: %v", err))
	}
}

// EncodeEnvelope serializes an envelope to CBOR.
func EncodeEnvelope(e *Envelope) ([]byte, error) {
	if e.Type == 0 {
		return nil, fmt.Errorf("%w: missing type", ErrBadEnvelope)
	}
	return encMode.Marshal(e)
}

// DecodeEnvelope parses a CBOR envelope.
func DecodeEnvelope(data []byte) (*Envelope, error) {
	e := &Envelope{}
	if err := decMode.Unmarshal(data, e); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadEnvelope, err)
	}
	if e.Type == 0 {
		return nil, fmt.Errorf("%w: missing type", ErrBadEnvelope)
	}
	return e, nil
}
