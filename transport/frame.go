// Copyright 2026 The Patchbay Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"fmt"

	"github.com/patchbay-collective/patchbay/document"
	"github.com/patchbay-collective/patchbay/lib/codec"
	"github.com/patchbay-collective/patchbay/lib/ref"
)

// FrameKind identifies a frame.
type FrameKind uint8

const (
	// FrameHello opens a session: client to relay. Carries Session,
	// Token and the client's Vector.
	FrameHello FrameKind = iota + 1

	// FrameWelcome accepts a hello: relay to client. Carries Session
	// and the User id assigned to the client.
	FrameWelcome

	// FrameTransaction carries one document transaction, in either
	// direction.
	FrameTransaction

	// FrameUsers lists the users connected to the session: relay to
	// client, on every join and leave.
	FrameUsers

	// FrameError reports a refused hello or a protocol violation. The
	// sender closes the link after it.
	FrameError
)

func (k FrameKind) String() string {
	switch k {
	case FrameHello:
		return "hello"
	case FrameWelcome:
		return "welcome"
	case FrameTransaction:
		return "transaction"
	case FrameUsers:
		return "users"
	case FrameError:
		return "error"
	default:
		return fmt.Sprintf("frame(%d)", uint8(k))
	}
}

// Frame is the unit exchanged over a Link. Which fields are set depends
// on Kind.
type Frame struct {
	Kind        FrameKind              `cbor:"1,keyasint"`
	Session     ref.SessionID          `cbor:"2,keyasint,omitempty"`
	User        ref.UserID             `cbor:"3,keyasint,omitempty"`
	Token       string                 `cbor:"4,keyasint,omitempty"`
	Vector      document.VersionVector `cbor:"5,keyasint,omitempty"`
	Transaction *document.Transaction  `cbor:"6,keyasint,omitempty"`
	Users       []ref.UserID           `cbor:"7,keyasint,omitempty"`
	Message     string                 `cbor:"8,keyasint,omitempty"`

	// Denied marks an error frame refusing the hello's credentials.
	Denied bool `cbor:"9,keyasint,omitempty"`
}

// Hello builds a hello frame.
func Hello(session ref.SessionID, token string, vector document.VersionVector) Frame {
	return Frame{Kind: FrameHello, Session: session, Token: token, Vector: vector}
}

// Welcome builds a welcome frame.
func Welcome(session ref.SessionID, user ref.UserID) Frame {
	return Frame{Kind: FrameWelcome, Session: session, User: user}
}

// TransactionFrame wraps a transaction.
func TransactionFrame(txn *document.Transaction) Frame {
	return Frame{Kind: FrameTransaction, Transaction: txn}
}

// UsersFrame lists connected users.
func UsersFrame(users []ref.UserID) Frame {
	return Frame{Kind: FrameUsers, Users: users}
}

// ErrorFrame reports a failure to the peer.
func ErrorFrame(format string, args ...any) Frame {
	return Frame{Kind: FrameError, Message: fmt.Sprintf(format, args...)}
}

// DeniedFrame refuses a hello whose token is unknown or expired.
func DeniedFrame(format string, args ...any) Frame {
	frame := ErrorFrame(format, args...)
	frame.Denied = true
	return frame
}

// EncodeFrame returns the wire form of frame.
func EncodeFrame(frame Frame) ([]byte, error) {
	data, err := codec.Marshal(frame)
	if err != nil {
		return nil, fmt.Errorf("transport: encoding %s frame: %w", frame.Kind, err)
	}
	return data, nil
}

// DecodeFrame parses and validates a wire frame.
func DecodeFrame(data []byte) (Frame, error) {
	var frame Frame
	if err := codec.Unmarshal(data, &frame); err != nil {
		return Frame{}, fmt.Errorf("transport: decoding frame: %w", err)
	}
	switch frame.Kind {
	case FrameHello, FrameWelcome, FrameUsers, FrameError:
	case FrameTransaction:
		if frame.Transaction == nil {
			return Frame{}, fmt.Errorf("transport: transaction frame without transaction")
		}
		txn := frame.Transaction
		if txn.Replica == 0 || txn.Seq == 0 || txn.Lamport == 0 {
			return Frame{}, fmt.Errorf("transport: transaction %s has zero identity", txn.ID())
		}
	default:
		return Frame{}, fmt.Errorf("transport: unknown frame kind %d", uint8(frame.Kind))
	}
	return frame, nil
}
