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


package post

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"github.com/mlnoga/brackets/internal/ops"
)

// Builds the post-processing chain in its fixed order: gamma, then local contrast, then saturation.
// Nil or inactive steps are skipped
func NewOpPostProcess(opGamma *OpGamma, opLocalContrast *OpLocalContrast, opSaturation *OpSaturation) *ops.OpSequence {
	seq:=ops.NewOpSequence()
	if opGamma!=nil         && opGamma.Active         { seq.Append(opGamma) }
	if opLocalContrast!=nil && opLocalContrast.Active { seq.Append(opLocalContrast) }
	if opSaturation!=nil    && opSaturation.Active    { seq.Append(opSaturation) }
	seq.Active=len(seq.Steps)>0
	return seq
}


// Short form of an operator setting in a config file: a number, a keyword or a boolean.
// Objects are decoded field by field instead
type shorthand struct {
	isObject bool
	isNumber bool
	number   float64
	active   bool
	auto     bool
}

// Classifies a generically decoded JSON or YAML value
func parseShorthand(raw interface{}) (s shorthand, err error) {
	switch v:=raw.(type) {
	case nil:
		return s, nil
	case map[string]interface{}, map[interface{}]interface{}:
		s.isObject=true
	case bool:
		s.active=v
	case float64:
		s.isNumber, s.number, s.active=true, v, true
	case int:
		s.isNumber, s.number, s.active=true, float64(v), true
	case int64:
		s.isNumber, s.number, s.active=true, float64(v), true
	case uint64:
		s.isNumber, s.number, s.active=true, float64(v), true
	case string:
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "off", "none", "false", "no", "":
		case "on", "true", "yes":
			s.active=true
		case "auto":
			s.active, s.auto=true, true
		default:
			n, err:=strconv.ParseFloat(strings.TrimSpace(v), 64)
			if err!=nil { return s, errors.New(fmt.Sprintf("invalid setting '%s'", v)) }
			s.isNumber, s.number, s.active=true, n, true
		}
	default:
		return s, errors.New(fmt.Sprintf("invalid setting of type %T", raw))
	}
	return s, nil
}
