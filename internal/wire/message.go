package wire

import "strings"

// reservedBytes are the wire delimiters that sender, receiver, and the
// command tag must never contain (spec §3 invariant).
const reservedBytes = "#|,$"

// Message is a record of one frame: who sent it, who it is for, what kind
// of frame it is, and its opaque payload. The codec never interprets
// Content; callers are responsible for giving it meaning per Command.
type Message struct {
	Sender   string
	Receiver string
	Command  Command
	Content  []byte
}

// ServerUID is the receiver/sender used for control frames addressed to,
// or originating from, the server itself rather than another client.
const ServerUID = "Server"

// HasReservedByte reports whether s contains one of the four wire
// delimiters, disqualifying it from sender, receiver, or a raw command tag.
func HasReservedByte(s string) bool {
	return strings.ContainsAny(s, reservedBytes)
}

// HelpMessage is the server's reply to a Help frame, which is also what an
// unrecognized command tag decodes to.
func HelpMessage() Message {
	return Message{Sender: ServerUID, Receiver: "", Command: CommandHelp, Content: nil}
}

// LoginMessage is what a client sends to authenticate as uid.
func LoginMessage(uid string) Message {
	return Message{Sender: uid, Receiver: ServerUID, Command: CommandLogin}
}

// GetPubKeyMessage requests to's public key via the server.
func GetPubKeyMessage(to string) Message {
	return Message{Receiver: to, Command: CommandGetPubKey}
}

// SendPubKeyMessage answers a GetPubKey request with a PEM-encoded key.
func SendPubKeyMessage(to string, pemBytes []byte) Message {
	return Message{Receiver: to, Command: CommandSendPubKey, Content: pemBytes}
}

// SendTextMessage carries content addressed to to. The client puts
// ciphertext here; the codec and server treat it as opaque bytes.
func SendTextMessage(to string, content []byte) Message {
	return Message{Receiver: to, Command: CommandSendMsg, Content: content}
}

// OnlineListMessage is the server's snapshot reply to an OnlineList request.
func OnlineListMessage(content string) Message {
	return Message{Sender: ServerUID, Command: CommandOnlineList, Content: []byte(content)}
}

// WithSender returns a copy of m stamped with sender — used by the server
// to overwrite a client-supplied sender with the authenticated uid.
func (m Message) WithSender(sender string) Message {
	m.Sender = sender
	return m
}

// WithReceiver returns a copy of m addressed to receiver.
func (m Message) WithReceiver(receiver string) Message {
	m.Receiver = receiver
	return m
}
