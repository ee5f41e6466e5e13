// Package errs implements the closed error taxonomy shared by every layer
// of jhchat: a tagged (source, kind) pair with optional human context,
// serializable to the wire as "<Source>-<Kind>: <context>" so a server-side
// fault can be reported back to a client without either side sharing a
// type definition.
package errs

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// Source identifies which tier of the system raised an Error.
type Source string

const (
	SourceClient   Source = "Client"
	SourceServer   Source = "Server"
	SourceExternal Source = "External"
)

// Kind is one member of the closed per-source enumeration in spec §7.
type Kind string

// Client kinds.
const (
	ReceiverNotExist          Kind = "ReceiverNotExist"
	EncryptKeyGeneration      Kind = "EncryptKeyGeneration"
	EncryptKeyPersistence     Kind = "EncryptKeyPersistence"
	Encryption                Kind = "Encryption"
	Decryption                Kind = "Decryption"
	CannotEstablishConnection Kind = "CannotEstablishConnection"
	AuthenticationFailed      Kind = "AuthenticationFailed"
	ServerDisconnected        Kind = "ServerDisconnected"
)

// Server kinds.
const (
	UserDisconnect  Kind = "UserDisconnect"
	DuplicatedAuth  Kind = "DuplicatedAuth"
	UnexpectedFrame Kind = "UnexpectedFrame"
)

// External kinds.
const (
	Initialize       Kind = "Initialize"
	ListenPort       Kind = "ListenPort"
	IO               Kind = "IO"
	Concurrent       Kind = "Concurrent"
	DeserializeToml  Kind = "DeserializeToml"
	SerializeToml    Kind = "SerializeToml"
	DeserializeFrame Kind = "DeserializeFrame"
	SerializeFrame   Kind = "SerializeFrame"
	Channel          Kind = "Channel"
)

// Unknown is valid under every Source; it is what an unrecognized kind
// round-trips to when parsed back off the wire.
const Unknown Kind = "Unknown"

// kindsBySource is the single table spec §9 calls for in place of a
// macro-derived enum: it is consulted both when formatting (to catch
// programmer error) and when parsing untrusted wire text.
var kindsBySource = map[Source]map[Kind]bool{
	SourceClient: {
		ReceiverNotExist:          true,
		EncryptKeyGeneration:      true,
		EncryptKeyPersistence:     true,
		Encryption:                true,
		Decryption:                true,
		CannotEstablishConnection: true,
		AuthenticationFailed:      true,
		ServerDisconnected:        true,
		Unknown:                   true,
	},
	SourceServer: {
		UserDisconnect:  true,
		DuplicatedAuth:  true,
		UnexpectedFrame: true,
		Unknown:         true,
	},
	SourceExternal: {
		Initialize:       true,
		ListenPort:       true,
		IO:               true,
		Concurrent:       true,
		DeserializeToml:  true,
		SerializeToml:    true,
		DeserializeFrame: true,
		SerializeFrame:   true,
		Channel:          true,
		Unknown:          true,
	},
}

// Error is the tagged sum type propagated across client, server, and
// external tiers. Context is optional human-readable detail; cause, when
// set, is never serialized onto the wire but is reachable via Unwrap for
// local error-chain inspection.
type Error struct {
	Source  Source
	Kind    Kind
	Context string
	cause   error
}

func (e *Error) Error() string {
	if e.Context == "" {
		return fmt.Sprintf("%s-%s", e.Source, e.Kind)
	}
	return fmt.Sprintf("%s-%s: %s", e.Source, e.Kind, e.Context)
}

// Unwrap exposes the wrapped cause, if any, to errors.Is / errors.As.
func (e *Error) Unwrap() error { return e.cause }

// New builds an Error carrying an optional human context string.
func New(source Source, kind Kind, context string) *Error {
	return &Error{Source: source, Kind: kind, Context: context}
}

// Wrap attaches kind to an underlying cause, using pkg/errors to preserve a
// stack trace on the cause for local diagnostics; only cause.Error() ever
// crosses the wire.
func Wrap(source Source, kind Kind, cause error) *Error {
	return &Error{Source: source, Kind: kind, Context: cause.Error(), cause: errors.WithStack(cause)}
}

// Client, Server, and External are convenience constructors for the three
// fixed sources.
func Client(kind Kind, context string) *Error   { return New(SourceClient, kind, context) }
func Server(kind Kind, context string) *Error   { return New(SourceServer, kind, context) }
func External(kind Kind, context string) *Error { return New(SourceExternal, kind, context) }

// Marshal serializes e as "<Source>-<Kind>: <context>" for cross-process
// propagation, per spec §7.
func Marshal(e *Error) string { return e.Error() }

// Parse decodes the wire form produced by Marshal. An unrecognized source
// falls back to Client, and an unrecognized kind for that source falls back
// to Unknown — string serialization is allowed to lose unknown kinds, per
// spec §9, but never loses the context.
func Parse(s string) *Error {
	source, rest, ok := strings.Cut(s, "-")
	if !ok {
		return &Error{Source: SourceClient, Kind: Unknown, Context: s}
	}

	kindPart, context := rest, ""
	if idx := strings.Index(rest, ": "); idx >= 0 {
		kindPart, context = rest[:idx], rest[idx+2:]
	}

	src := Source(source)
	kinds, ok := kindsBySource[src]
	if !ok {
		return &Error{Source: SourceClient, Kind: Unknown, Context: s}
	}

	kind := Kind(kindPart)
	if !kinds[kind] {
		kind = Unknown
	}
	return &Error{Source: src, Kind: kind, Context: context}
}

// Is reports whether err is an *Error of the given kind, looking through
// any pkg/errors wrapping.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}
