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
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"gopkg.in/yaml.v2"
	"github.com/mlnoga/brackets/internal/align"
	"github.com/mlnoga/brackets/internal/codec"
	"github.com/mlnoga/brackets/internal/fuse"
	"github.com/mlnoga/brackets/internal/post"
	"github.com/mlnoga/brackets/internal/warp"
)

// Settings for one fusion job. Missing entries in JSON or YAML keep their defaults
type Config struct {
	Align    align.Config        `json:"align"   yaml:"align"`
	Warp     WarpConfig          `json:"warp"    yaml:"warp"`
	Weights  fuse.WeightParams   `json:"weights" yaml:"weights"`
	Pyramid  fuse.PyramidParams  `json:"pyramid" yaml:"pyramid"`
	Post     PostConfig          `json:"post"    yaml:"post"`
	Output   OutputConfig        `json:"output"  yaml:"output"`
}

type WarpConfig struct {
	Interpolation warp.Interpolation `json:"interpolation" yaml:"interpolation"`
	Border        warp.Border        `json:"border"        yaml:"border"`
}

// Post-processing steps. They always run in the order gamma, local contrast, saturation
type PostConfig struct {
	Gamma         *post.OpGamma         `json:"gamma"         yaml:"gamma"`
	LocalContrast *post.OpLocalContrast `json:"localContrast" yaml:"localContrast"`
	Saturation    *post.OpSaturation    `json:"saturation"    yaml:"saturation"`
}

type OutputConfig struct {
	Format           codec.Format `json:"format"           yaml:"format"`
	CompressionLevel int          `json:"compressionLevel" yaml:"compressionLevel"` // 0..9
}

func NewConfigDefault() *Config {
	return &Config{
		Align   : align.NewConfigDefault(),
		Warp    : WarpConfig{Interpolation: warp.Bilinear, Border: warp.Replicate},
		Weights : fuse.NewWeightParamsDefault(),
		Pyramid : fuse.NewPyramidParamsDefault(),
		Post    : PostConfig{
			Gamma        : post.NewOpGammaDefault(),
			LocalContrast: post.NewOpLocalContrastDefault(),
			Saturation   : post.NewOpSaturationDefault(),
		},
		Output  : OutputConfig{Format: codec.FormatPNG, CompressionLevel: 5},
	}
}

// Unmarshal the type from JSON with default values for missing entries.
// Also accepts the flat option names, e.g. alignment_mode
func (c *Config) UnmarshalJSON(data []byte) error {
	type defaults Config
	def:=defaults(*NewConfigDefault())
	if err:=json.Unmarshal(data, &def); err!=nil { return err }
	flat:=flatOptions{}
	if err:=json.Unmarshal(data, &flat); err!=nil { return err }
	*c=Config(def)
	flat.applyTo(c)
	return c.Validate()
}

// Unmarshal the type from YAML with default values for missing entries
func (c *Config) UnmarshalYAML(unmarshal func(interface{}) error) error {
	type defaults Config
	def:=defaults(*NewConfigDefault())
	if err:=unmarshal(&def); err!=nil { return err }
	flat:=flatOptions{}
	if err:=unmarshal(&flat); err!=nil { return err }
	*c=Config(def)
	flat.applyTo(c)
	return c.Validate()
}

// Checks value ranges
func (c *Config) Validate() error {
	a:=&c.Align
	if a.MaxIterations<1      { return errors.New(fmt.Sprintf("alignment max iterations %d must be positive", a.MaxIterations)) }
	if a.Epsilon<0            { return errors.New(fmt.Sprintf("alignment epsilon %g must not be negative", a.Epsilon)) }
	if a.MaxShiftBits<0 || a.MaxShiftBits>12 { return errors.New(fmt.Sprintf("alignment shift bits %d out of range 0..12", a.MaxShiftBits)) }
	w:=&c.Weights
	if w.Contrast<0 || w.Saturation<0 || w.Exposedness<0 {
		return errors.New(fmt.Sprintf("weight exponents %s must not be negative", w))
	}
	if !(w.Sigma>0)           { return errors.New(fmt.Sprintf("exposedness sigma %g must be positive", w.Sigma)) }
	if c.Pyramid.MaxLevels<1 || c.Pyramid.MinSize<1 {
		return errors.New(fmt.Sprintf("pyramid levels %d and min size %d must be positive", c.Pyramid.MaxLevels, c.Pyramid.MinSize))
	}
	if f:=c.Output.Format; f!=codec.FormatPNG && f!=codec.FormatTIFF {
		return errors.New(fmt.Sprintf("unknown output format %d", int(f)))
	}
	if c.Output.CompressionLevel<0 || c.Output.CompressionLevel>9 {
		return errors.New(fmt.Sprintf("compression level %d out of range 0..9", c.Output.CompressionLevel))
	}
	if g:=c.Post.Gamma; g!=nil && g.Active && (g.Gamma<0 || (g.Gamma==0 && !(g.Target>0 && g.Target<1))) {
		return errors.New(fmt.Sprintf("gamma %g with target %g is invalid", g.Gamma, g.Target))
	}
	return nil
}

// Parses a config from JSON or YAML. The format is chosen by file extension, defaulting to JSON
func ParseConfig(data []byte, fileName string) (*Config, error) {
	c:=NewConfigDefault()
	switch strings.ToLower(filepath.Ext(fileName)) {
	case ".yaml", ".yml":
		if err:=yaml.Unmarshal(data, c); err!=nil { return nil, err }
	default:
		if err:=json.Unmarshal(data, c); err!=nil { return nil, err }
	}
	return c, nil
}

// Loads a config from a .json, .yaml or .yml file
func LoadConfig(fileName string) (*Config, error) {
	data, err:=os.ReadFile(fileName)
	if err!=nil { return nil, err }
	c, err:=ParseConfig(data, fileName)
	if err!=nil { return nil, errors.New(fmt.Sprintf("config %s: %s", fileName, err.Error())) }
	return c, nil
}

func (c *Config) String() string {
	bs, err:=json.Marshal(c)
	if err!=nil { return err.Error() }
	return string(bs)
}


// Flat option names of the configuration record
type flatOptions struct {
	AlignmentMode             *align.Mode           `json:"alignment_mode"              yaml:"alignment_mode"`
	AlignmentMaxIterations    *int                  `json:"alignment_max_iterations"    yaml:"alignment_max_iterations"`
	AlignmentEpsilon          *float64              `json:"alignment_epsilon"           yaml:"alignment_epsilon"`
	WarpInterpolation         *warp.Interpolation   `json:"warp_interpolation"          yaml:"warp_interpolation"`
	WeightContrastExponent    *float32              `json:"weight_contrast_exponent"    yaml:"weight_contrast_exponent"`
	WeightSaturationExponent  *float32              `json:"weight_saturation_exponent"  yaml:"weight_saturation_exponent"`
	WeightExposednessExponent *float32              `json:"weight_exposedness_exponent" yaml:"weight_exposedness_exponent"`
	WeightExposednessSigma    *float32              `json:"weight_exposedness_sigma"    yaml:"weight_exposedness_sigma"`
	PostGamma                 *post.OpGamma         `json:"post_gamma"                  yaml:"post_gamma"`
	PostLocalContrast         *post.OpLocalContrast `json:"post_local_contrast"         yaml:"post_local_contrast"`
	PostSaturationBoost       *post.OpSaturation    `json:"post_saturation_boost"       yaml:"post_saturation_boost"`
	OutputFormat              *codec.Format         `json:"output_format"               yaml:"output_format"`
	OutputCompressionLevel    *int                  `json:"output_compression_level"    yaml:"output_compression_level"`
}

// Overrides config entries with the flat options that are present
func (f *flatOptions) applyTo(c *Config) {
	if f.AlignmentMode!=nil             { c.Align.Mode=*f.AlignmentMode }
	if f.AlignmentMaxIterations!=nil    { c.Align.MaxIterations=*f.AlignmentMaxIterations }
	if f.AlignmentEpsilon!=nil          { c.Align.Epsilon=*f.AlignmentEpsilon }
	if f.WarpInterpolation!=nil         { c.Warp.Interpolation=*f.WarpInterpolation }
	if f.WeightContrastExponent!=nil    { c.Weights.Contrast=*f.WeightContrastExponent }
	if f.WeightSaturationExponent!=nil  { c.Weights.Saturation=*f.WeightSaturationExponent }
	if f.WeightExposednessExponent!=nil { c.Weights.Exposedness=*f.WeightExposednessExponent }
	if f.WeightExposednessSigma!=nil    { c.Weights.Sigma=*f.WeightExposednessSigma }
	if f.PostGamma!=nil                 { c.Post.Gamma=f.PostGamma }
	if f.PostLocalContrast!=nil         { c.Post.LocalContrast=f.PostLocalContrast }
	if f.PostSaturationBoost!=nil       { c.Post.Saturation=f.PostSaturationBoost }
	if f.OutputFormat!=nil              { c.Output.Format=*f.OutputFormat }
	if f.OutputCompressionLevel!=nil    { c.Output.CompressionLevel=*f.OutputCompressionLevel }

	// null post-processing entries fall back to their inactive defaults
	if c.Post.Gamma==nil         { c.Post.Gamma=post.NewOpGammaDefault() }
	if c.Post.LocalContrast==nil { c.Post.LocalContrast=post.NewOpLocalContrastDefault() }
	if c.Post.Saturation==nil    { c.Post.Saturation=post.NewOpSaturationDefault() }
}
