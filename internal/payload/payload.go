// Copyright (c) 2017 Uber Technologies, Inc.
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in
// all copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
// THE SOFTWARE.

// Package payload carries opaque data across the wire and through history,
// following Design Notes §9: "Dynamic-typed payloads must be carried as
// opaque bytes plus a content-type tag at transport, and decoded at the
// edges with schema versioning."
//
// The shape mirrors the teacher's DataConverter/PayloadConverter split
// (internal/encoded.go), minus the protobuf Payloads wrapper: we don't
// generate gRPC wire types here (see DESIGN.md), so a Payload is just
// {ContentType, SchemaVersion, Data}.
package payload

import (
	"encoding/json"
	"errors"
	"fmt"
)

const (
	EncodingRaw  = "raw"
	EncodingJSON = "json"
)

// Payload is the opaque, wire-safe carrier for workflow input/result,
// activity input/result, and signal bodies (spec §3: input/result are
// "opaque byte payload").
type Payload struct {
	ContentType   string `json:"content_type"`
	SchemaVersion int    `json:"schema_version"`
	Data          []byte `json:"data"`
}

// MaxWorkflowInputBytes enforces the spec §3 ≤256 KiB bound on workflow input.
const MaxWorkflowInputBytes = 256 * 1024

var ErrTooLarge = errors.New("payload: exceeds maximum size")

// Converter turns Go values into Payloads and back. Workflows and activities
// never see the wire format directly; they call Converter.Encode/Decode (or,
// within a workflow, the Context's embedded converter) at the edges.
type Converter interface {
	Encode(value any) (Payload, error)
	Decode(p Payload, valuePtr any) error
}

// JSONConverter is the default Converter: raw []byte passes through
// untouched (EncodingRaw), everything else is JSON-encoded, exactly as the
// teacher's defaultPayloadConverter distinguishes []byte from structured
// data.
type JSONConverter struct{ SchemaVersion int }

var Default Converter = JSONConverter{SchemaVersion: 1}

func (c JSONConverter) Encode(value any) (Payload, error) {
	if value == nil {
		return Payload{ContentType: EncodingRaw, SchemaVersion: c.SchemaVersion}, nil
	}
	if raw, ok := value.([]byte); ok {
		return Payload{ContentType: EncodingRaw, SchemaVersion: c.SchemaVersion, Data: raw}, nil
	}
	data, err := json.Marshal(value)
	if err != nil {
		return Payload{}, fmt.Errorf("payload: encode json: %w", err)
	}
	if len(data) > MaxWorkflowInputBytes {
		return Payload{}, ErrTooLarge
	}
	return Payload{ContentType: EncodingJSON, SchemaVersion: c.SchemaVersion, Data: data}, nil
}

func (c JSONConverter) Decode(p Payload, valuePtr any) error {
	if len(p.Data) == 0 {
		return nil
	}
	switch p.ContentType {
	case EncodingRaw:
		dst, ok := valuePtr.(*[]byte)
		if !ok {
			return errors.New("payload: destination is not *[]byte for raw encoding")
		}
		*dst = append([]byte(nil), p.Data...)
		return nil
	case EncodingJSON, "":
		if err := json.Unmarshal(p.Data, valuePtr); err != nil {
			return fmt.Errorf("payload: decode json: %w", err)
		}
		return nil
	default:
		return fmt.Errorf("payload: unsupported content type %q", p.ContentType)
	}
}

// Encode is a package-level convenience using the Default converter.
func Encode(value any) (Payload, error) { return Default.Encode(value) }

// Decode is a package-level convenience using the Default converter.
func Decode(p Payload, valuePtr any) error { return Default.Decode(p, valuePtr) }
