// Package transport carries an encrypted inference session between a client,
// which owns the keys, and a server, which owns the model.
//
// A session is: Setup (client) -> Ready (server) -> any number of
// Query (client) / Result (server) pairs -> Done. Either side may send Error
// instead of its next message.
package transport

import (
	"encoding/gob"
	"fmt"
	"io"

	"github.com/dhuynh95/cryptotree/utils"

	"github.com/tuneinsight/lattigo/v6/core/rlwe"
	"github.com/tuneinsight/lattigo/v6/schemes/ckks"
)

func init() {
	gob.Register(SetupPayload{})
	gob.Register(ReadyPayload{})
	gob.Register(QueryPayload{})
	gob.Register(ResultPayload{})
}

// MessageType defines message types of the inference protocol
type MessageType int

const (
	MsgSetup MessageType = iota
	MsgReady
	MsgQuery
	MsgResult
	MsgDone
	MsgError
)

func (t MessageType) String() string {
	switch t {
	case MsgSetup:
		return "setup"
	case MsgReady:
		return "ready"
	case MsgQuery:
		return "query"
	case MsgResult:
		return "result"
	case MsgDone:
		return "done"
	case MsgError:
		return "error"
	}
	return fmt.Sprintf("MessageType(%d)", int(t))
}

// Message is one protocol frame.
type Message struct {
	Type    MessageType
	Payload interface{}
}

// SetupPayload carries the client's public material.
type SetupPayload struct {
	Params   []byte // ckks.Parameters as JSON
	EvalKeys []byte // rlwe.MemEvaluationKeySet binary
	Digest   string // model the client was built for
}

// ReadyPayload acknowledges a setup.
type ReadyPayload struct {
	Digest   string
	NClasses int
	Reduced  bool // results already summed into slot 0
}

// QueryPayload is one encrypted, featurized sample.
type QueryPayload struct {
	ID         int
	Ciphertext []byte
}

// ResultPayload holds one ciphertext per class.
type ResultPayload struct {
	ID      int
	Classes [][]byte
}

// Protocol handles framing over a reader and a writer.
type Protocol struct {
	encoder *gob.Encoder
	decoder *gob.Decoder
}

// NewProtocol creates a new protocol handler
func NewProtocol(r io.Reader, w io.Writer) *Protocol {
	p := &Protocol{}
	if w != nil {
		p.encoder = gob.NewEncoder(w)
	}
	if r != nil {
		p.decoder = gob.NewDecoder(r)
	}
	return p
}

// Send sends a message
func (p *Protocol) Send(msg *Message) error {
	if p.encoder == nil {
		return fmt.Errorf("send %s: protocol has no writer: %w", msg.Type, utils.ErrPrecondition)
	}
	return p.encoder.Encode(msg)
}

// Receive receives a message
func (p *Protocol) Receive() (*Message, error) {
	if p.decoder == nil {
		return nil, fmt.Errorf("receive: protocol has no reader: %w", utils.ErrPrecondition)
	}
	var msg Message
	if err := p.decoder.Decode(&msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// receive reads the next message and checks it is of type want. Done maps
// to io.EOF and Error to a remote error.
func (p *Protocol) receive(want MessageType) (*Message, error) {
	msg, err := p.Receive()
	if err != nil {
		return nil, err
	}
	switch msg.Type {
	case want:
		return msg, nil
	case MsgDone:
		return nil, io.EOF
	case MsgError:
		return nil, fmt.Errorf("remote error: %v", msg.Payload)
	}
	return nil, fmt.Errorf("expected %s message, got %s", want, msg.Type)
}

// SendSetup serializes params and evk.
func (p *Protocol) SendSetup(params ckks.Parameters, evk *rlwe.MemEvaluationKeySet, digest string) error {
	pb, err := params.MarshalJSON()
	if err != nil {
		return fmt.Errorf("marshal parameters: %w", err)
	}
	kb, err := evk.MarshalBinary()
	if err != nil {
		return fmt.Errorf("marshal evaluation keys: %w", err)
	}
	return p.Send(&Message{Type: MsgSetup, Payload: SetupPayload{Params: pb, EvalKeys: kb, Digest: digest}})
}

// ReceiveSetup returns the client's parameters, keys and model digest.
func (p *Protocol) ReceiveSetup() (ckks.Parameters, *rlwe.MemEvaluationKeySet, string, error) {
	var params ckks.Parameters
	msg, err := p.receive(MsgSetup)
	if err != nil {
		return params, nil, "", err
	}
	payload, ok := msg.Payload.(SetupPayload)
	if !ok {
		return params, nil, "", fmt.Errorf("invalid setup payload type %T", msg.Payload)
	}
	if err := params.UnmarshalJSON(payload.Params); err != nil {
		return params, nil, "", fmt.Errorf("unmarshal parameters: %w", err)
	}
	evk := new(rlwe.MemEvaluationKeySet)
	if err := evk.UnmarshalBinary(payload.EvalKeys); err != nil {
		return params, nil, "", fmt.Errorf("unmarshal evaluation keys: %w", err)
	}
	return params, evk, payload.Digest, nil
}

// SendReady acknowledges a setup.
func (p *Protocol) SendReady(r ReadyPayload) error {
	return p.Send(&Message{Type: MsgReady, Payload: r})
}

// ReceiveReady waits for the server's acknowledgement.
func (p *Protocol) ReceiveReady() (*ReadyPayload, error) {
	msg, err := p.receive(MsgReady)
	if err != nil {
		return nil, err
	}
	payload, ok := msg.Payload.(ReadyPayload)
	if !ok {
		return nil, fmt.Errorf("invalid ready payload type %T", msg.Payload)
	}
	return &payload, nil
}

// SendQuery sends one encrypted sample.
func (p *Protocol) SendQuery(id int, ct *rlwe.Ciphertext) error {
	b, err := ct.MarshalBinary()
	if err != nil {
		return fmt.Errorf("query %d: %w", id, err)
	}
	return p.Send(&Message{Type: MsgQuery, Payload: QueryPayload{ID: id, Ciphertext: b}})
}

// ReceiveQuery returns the next sample, or io.EOF once the client is done.
func (p *Protocol) ReceiveQuery() (int, *rlwe.Ciphertext, error) {
	msg, err := p.receive(MsgQuery)
	if err != nil {
		return 0, nil, err
	}
	payload, ok := msg.Payload.(QueryPayload)
	if !ok {
		return 0, nil, fmt.Errorf("invalid query payload type %T", msg.Payload)
	}
	ct := new(rlwe.Ciphertext)
	if err := ct.UnmarshalBinary(payload.Ciphertext); err != nil {
		return 0, nil, fmt.Errorf("query %d: %w", payload.ID, err)
	}
	return payload.ID, ct, nil
}

// SendResult sends the per-class ciphertexts of query id.
func (p *Protocol) SendResult(id int, cts []*rlwe.Ciphertext) error {
	payload := ResultPayload{ID: id, Classes: make([][]byte, len(cts))}
	for c, ct := range cts {
		b, err := ct.MarshalBinary()
		if err != nil {
			return fmt.Errorf("result %d class %d: %w", id, c, err)
		}
		payload.Classes[c] = b
	}
	return p.Send(&Message{Type: MsgResult, Payload: payload})
}

// ReceiveResult returns the per-class ciphertexts of one query.
func (p *Protocol) ReceiveResult() (int, []*rlwe.Ciphertext, error) {
	msg, err := p.receive(MsgResult)
	if err != nil {
		return 0, nil, err
	}
	payload, ok := msg.Payload.(ResultPayload)
	if !ok {
		return 0, nil, fmt.Errorf("invalid result payload type %T", msg.Payload)
	}
	cts := make([]*rlwe.Ciphertext, len(payload.Classes))
	for c, b := range payload.Classes {
		cts[c] = new(rlwe.Ciphertext)
		if err := cts[c].UnmarshalBinary(b); err != nil {
			return 0, nil, fmt.Errorf("result %d class %d: %w", payload.ID, c, err)
		}
	}
	return payload.ID, cts, nil
}

// SendDone signals completion
func (p *Protocol) SendDone() error {
	return p.Send(&Message{Type: MsgDone})
}

// SendError sends an error message
func (p *Protocol) SendError(err error) error {
	return p.Send(&Message{
		Type:    MsgError,
		Payload: err.Error(),
	})
}
