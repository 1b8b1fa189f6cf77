// Copyright (C) 2020 Markus L. Noga
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.


package pipeline

import (
	"errors"
	"fmt"
	"github.com/mlnoga/brackets/internal/codec"
)

// Returned together with an empty Result when the stack holds no images
var ErrEmptyStack=errors.New("empty stack: no images to fuse")

// An input buffer could not be decoded
type DecodeError struct {
	Index int
	Err   error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decoding image %d: %v", e.Index, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// An image does not match the reference's width, height or channel count
type DimensionMismatchError struct {
	Index int
	Want  string
	Got   string
}

func (e *DimensionMismatchError) Error() string {
	return fmt.Sprintf("image %d has dimensions %s, reference has %s", e.Index, e.Got, e.Want)
}

// The fused result could not be encoded
type EncodeError struct {
	Format codec.Format
	Err    error
}

func (e *EncodeError) Error() string {
	return fmt.Sprintf("encoding %s: %v", e.Format, e.Err)
}

func (e *EncodeError) Unwrap() error { return e.Err }

// The settings are out of range
type ConfigError struct {
	Err error
}

func (e *ConfigError) Error() string {
	return "invalid config: "+e.Err.Error()
}

func (e *ConfigError) Unwrap() error { return e.Err }
