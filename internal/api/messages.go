package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/tidwall/gjson"

	"github.com/ppiankov/supaspectre/internal/models"
)

// ErrUnknownMessage is returned for an envelope whose type is not handled
var ErrUnknownMessage = errors.New("unknown message type")

// ErrMalformedMessage is returned for bodies that are not a valid envelope
var ErrMalformedMessage = errors.New("malformed message")

// Envelope is the wire form of an inbound message
type Envelope struct {
	Type    models.MessageType `json:"type"`
	Payload json.RawMessage    `json:"payload,omitempty"`
}

// payloadTypes maps each message type to a decoder for its payload
var payloadTypes = map[models.MessageType]func([]byte) (models.Message, error){
	models.MsgSupabaseRequest:        decodeAs[models.SupabaseRequest],
	models.MsgAssetBody:              decodeAs[models.AssetBody],
	models.MsgRegisterAssetDetection: decodeAs[models.RegisterAssetDetection],
	models.MsgRegisterLeak:           decodeAs[models.RegisterLeak],
	models.MsgApplyConnection:        decodeAs[models.ApplyConnection],
	models.MsgTabUpdated:             decodeAs[models.TabUpdated],
	models.MsgTabRemoved:             decodeAs[models.TabRemoved],
	models.MsgOpenSidePanel:          decodeAs[models.OpenSidePanel],
	models.MsgCloseOverlay:           decodeAs[models.CloseOverlay],
	models.MsgConsent:                decodeAs[models.Consent],
	models.MsgCreateReport:           decodeAs[models.CreateReport],
}

// DecodeMessage parses and validates one envelope. Unknown payload fields
// are rejected.
func DecodeMessage(data []byte) (models.Message, error) {
	if !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("%w: body is not valid JSON", ErrMalformedMessage)
	}
	root := gjson.ParseBytes(data)
	if !root.IsObject() {
		return nil, fmt.Errorf("%w: expected an object", ErrMalformedMessage)
	}
	typ := root.Get("type")
	if typ.Type != gjson.String || typ.String() == "" {
		return nil, fmt.Errorf("%w: type is required", ErrMalformedMessage)
	}

	decode, ok := payloadTypes[models.MessageType(typ.String())]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownMessage, typ.String())
	}

	payload := root.Get("payload")
	raw := []byte("{}")
	if payload.Exists() && payload.Type != gjson.Null {
		if !payload.IsObject() {
			return nil, fmt.Errorf("%w: payload must be an object", ErrMalformedMessage)
		}
		raw = []byte(payload.Raw)
	}

	msg, err := decode(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %s payload: %v", ErrMalformedMessage, typ.String(), err)
	}
	if err := ValidateMessage(msg); err != nil {
		return nil, err
	}
	return msg, nil
}

// EncodeMessage wraps msg in an envelope
func EncodeMessage(msg models.Message) ([]byte, error) {
	payload, err := json.Marshal(msg)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Type: msg.Type(), Payload: payload})
}

func decodeAs[T models.Message](raw []byte) (models.Message, error) {
	var v T
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	return v, nil
}
