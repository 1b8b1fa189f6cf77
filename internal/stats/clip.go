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


package stats

import (
	"fmt"
)

// Fractions of shadow- and highlight-clipped samples
type Clipping struct {
	Low   float32   // Fraction of samples at or below the low threshold
	High  float32   // Fraction of samples at or above the high threshold
}

func (c Clipping) Total() float32 {
	return c.Low+c.High
}

func (c Clipping) String() string {
	return fmt.Sprintf("clipped low %.2f%% high %.2f%%", c.Low*100, c.High*100)
}

// Calculates the fractions of samples at or below low, and at or above high
func ClippedFraction(data []float32, low, high float32) Clipping {
	if len(data)==0 { return Clipping{} }
	numLow, numHigh:=0, 0
	for _, d:=range data {
		if d<=low {
			numLow++
		} else if d>=high {
			numHigh++
		}
	}
	n:=float32(len(data))
	return Clipping{Low: float32(numLow)/n, High: float32(numHigh)/n}
}

