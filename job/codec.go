// Copyright (c) 2023 Tulir Asokan
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package job

import "encoding/json"

// Codec is the pluggable JSON boundary. The default
// is encoding/json; a caller embedding this library in a size-constrained
// environment can swap in another implementation without touching Job.
type Codec interface {
	Encode(v any) ([]byte, error)
	Decode(data []byte, v any) error
}

// DefaultCodec wraps the standard library's encoding/json.
type DefaultCodec struct{}

func (DefaultCodec) Encode(v any) ([]byte, error) { return json.Marshal(v) }
func (DefaultCodec) Decode(data []byte, v any) error {
	return json.Unmarshal(data, v)
}
