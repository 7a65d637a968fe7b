// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Punchcard Contributors

// Package codec is the binary encoding used for sealed on-disk payloads.
package codec

import (
	"reflect"

	"github.com/fxamacker/cbor/v2"
)

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error

	// Core Deterministic Encoding, except floats keep their declared width
	// so a float32 vector always costs five bytes per component.
	encOptions := cbor.CoreDetEncOptions()
	encOptions.ShortestFloat = cbor.ShortestFloatNone
	encOptions.NaNConvert = cbor.NaNConvertNone
	encOptions.InfConvert = cbor.InfConvertNone
	encMode, err = encOptions.EncMode()
	if err != nil {
		panic("codec: CBOR encoder initialization failed: " + err.Error())
	}

	decMode, err = cbor.DecOptions{
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
	}.DecMode()
	if err != nil {
		panic("codec: CBOR decoder initialization failed: " + err.Error())
	}
}

// Marshal encodes v deterministically: equal values give equal bytes.
func Marshal(v any) ([]byte, error) {
	return encMode.Marshal(v)
}

func Unmarshal(data []byte, v any) error {
	return decMode.Unmarshal(data, v)
}

