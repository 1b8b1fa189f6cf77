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


package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"runtime/pprof"
	"strconv"
	"strings"
	"time"
	nl "github.com/mlnoga/brackets/internal"
	"github.com/mlnoga/brackets/internal/align"
	"github.com/mlnoga/brackets/internal/codec"
	"github.com/mlnoga/brackets/internal/ops"
	"github.com/mlnoga/brackets/internal/pipeline"
	"github.com/mlnoga/brackets/internal/rest"
	"github.com/mlnoga/brackets/internal/warp"
)

const version = "0.1.0"

var cpuprofile = flag.String("cpuprofile", "", "write cpu profile to `file`")
var memprofile = flag.String("memprofile", "", "write memory profile to `file`")

var config = flag.String("config", "", "load settings from JSON or YAML `file`. Flags given explicitly override it")
var out    = flag.String("out", "fused.png", "save output to `file`. If given, the suffix .tif or .tiff selects TIFF unless -format is given")
var log    = flag.String("log", "%auto", "save log output to `file`. `%auto` replaces suffix of output file with .log")

var alignMode = flag.String("align", "euclidean", "alignment mode: euclidean, translation, affine, homography, bitmap or none")
var alignIter = flag.Int("alignIter", 200, "maximum ECC iterations per image")
var alignEps  = flag.Float64("alignEps", 1e-6, "ECC convergence threshold on the parameter update")
var alignDim  = flag.Int("alignDim", 1024, "estimate alignment on images downscaled to at most this many pixels on the long side, 0=full size")
var alignBits = flag.Int("alignBits", 6, "bitmap alignment: pyramid levels, max shift is 2^bits pixels")

var interp = flag.String("interp", "bilinear", "warp interpolation: nearest, bilinear or high-order")
var border = flag.String("border", "replicate", "warp border: replicate or constant (black)")

var wContrast    = flag.Float64("wContrast", 1, "weight exponent for local contrast, 0=ignore")
var wSaturation  = flag.Float64("wSaturation", 1, "weight exponent for color saturation, 0=ignore")
var wExposedness = flag.Float64("wExposedness", 1, "weight exponent for well-exposedness, 0=ignore")
var wSigma       = flag.Float64("wSigma", 0.2, "width of the well-exposedness curve around 0.5")

var levels = flag.Int("levels", 12, "maximum number of pyramid levels")

var gamma      = flag.String("gamma", "off", "post-fusion gamma: off, auto or exponent, out=in^gamma")
var contrast   = flag.String("contrast", "off", "post-fusion local contrast: off, on or CLAHE clip limit")
var tiles      = flag.Int("tiles", 8, "local contrast tile grid, tiles per axis")
var saturation = flag.String("saturation", "off", "post-fusion saturation: off, on or HSV saturation factor")

var format = flag.String("format", "png", "output format: png or tiff")
var level  = flag.Int("level", 5, "output compression level 0..9")

var threads = flag.Int("threads", 0, "number of worker threads, 0=all logical cores")
var addr    = flag.String("addr", ":8080", "serve: listen address")
var chroot  = flag.String("chroot", "", "serve: change filesystem root to `dir` before serving (requires root)")
var setuid  = flag.Int("setuid", -1, "serve: switch to this user id before serving, -1=keep")

func main() {
	logWriter:=nl.LogWriter()
	start:=time.Now()
	flag.Usage=func(){
 	    fmt.Fprintf(logWriter, `Brackets Copyright (c) 2020 Markus L. Noga
This program comes with ABSOLUTELY NO WARRANTY.
This is free software, and you are welcome to redistribute it under certain conditions.
Refer to https://www.gnu.org/licenses/gpl-3.0.en.html for details.

Usage: %s [-flag value] (fuse|stats|serve|legal|version) (img0.jpg ... imgn.jpg)

Commands:
  fuse    Align and fuse an exposure bracket. The first image is the reference
  stats   Show clipping and exposure information for input images
  serve   Serve the upload page and the fusion API over HTTP
  legal   Show license and attribution information
  version Show version information

Flags:
`, os.Args[0])
	    flag.PrintDefaults()
	}
	flag.Parse()

	args:=flag.Args()
	if len(args)<1 {
		flag.Usage()
		return
	}

	// Initialize logging to file in addition to stdout, if selected
	if *log=="%auto" {
		if *out!="" && args[0]=="fuse" {
			*log=strings.TrimSuffix(*out, filepath.Ext(*out))+".log"
		} else {
			*log=""
		}
	}
	if *log!="" {
		err:=nl.LogAlsoToFile(*log)
		if err!=nil { nl.LogFatalf("Unable to open logfile '%s'\n", *log) }
	}

	// Enable CPU profiling if flagged
	if *cpuprofile != "" {
		f, err := os.Create(*cpuprofile)
		if err != nil {
			nl.LogFatal("Could not create CPU profile: ", err)
		}
		defer f.Close()
		if err := pprof.StartCPUProfile(f); err != nil {
			nl.LogFatal("Could not start CPU profile: ", err)
		}
		defer pprof.StopCPUProfile()
	}

	c:=ops.NewContext(logWriter)
	if *threads>0 { c.MaxThreads=*threads }

	var err error
	switch args[0] {
	case "fuse":
		err=cmdFuse(args[1:], c)

	case "stats":
		err=cmdStats(args[1:], logWriter)

	case "serve":
		err=cmdServe(c)

	case "legal":
		fmt.Fprint(logWriter, legal)

	case "version":
		nl.LogPrintf("Version %s\n", version)

	case "help", "?":
		flag.Usage()

	default:
		fmt.Fprintf(logWriter, "Unknown command '%s'\n\n", args[0])
		flag.Usage()
		return
	}

	fmt.Fprintf(logWriter, "\nDone after %v\n", time.Since(start))

	// Store memory profile if flagged
	if *memprofile != "" {
		f, err := os.Create(*memprofile)
		if err != nil {
			nl.LogFatal("Could not create memory profile: ", err)
		}
		defer f.Close()
		runtime.GC() // get up-to-date statistics
		if err := pprof.Lookup("allocs").WriteTo(f,0); err != nil {
			nl.LogFatal("Could not write allocation profile: ", err)
		}
	}

	if err!=nil {
		fmt.Fprintf(logWriter, "Error: %s\n", err.Error())
		nl.LogSync()
		os.Exit(-1)
	}
	nl.LogSync()
}

// Fuses the given files and writes the result to -out
func cmdFuse(args []string, c *ops.Context) error {
	cfg, err:=buildConfig(explicitFlags())
	if err!=nil { return err }
	fileNames, err:=globFilenames(args)
	if err!=nil { return err }
	fmt.Fprintf(c.Log, "%s\n\nFusing %d files with these settings:\n%s\n", c, len(fileNames), cfg)

	bufs:=make([][]byte, len(fileNames))
	for i, fileName:=range fileNames {
		if bufs[i], err=os.ReadFile(fileName); err!=nil { return &pipeline.DecodeError{Index: i, Err: err} }
		fmt.Fprintf(c.Log, "%d: Read %s, %d bytes\n", i, fileName, len(bufs[i]))
	}

	data, res, err:=pipeline.FuseBytes(bufs, cfg, c)
	if err!=nil { return err }
	failed:=0
	for _, a:=range res.Alignments {
		if a.Status.Failed() { failed++ }
	}
	if failed>0 { fmt.Fprintf(c.Log, "Warning: %d of %d images kept unaligned\n", failed, len(res.Alignments)) }

	if err:=os.WriteFile(*out, data, 0666); err!=nil { return err }
	fmt.Fprintf(c.Log, "Wrote %s to %s\n", res.Image.DimensionsToString(), *out)
	return nil
}

// Prints dimensions, exposure metadata and clipping fractions of the given files
func cmdStats(args []string, logWriter io.Writer) error {
	fileNames, err:=globFilenames(args)
	if err!=nil { return err }
	for i, fileName:=range fileNames {
		f, data, err:=codec.DecodeFile(fileName, i)
		if err!=nil { return &pipeline.DecodeError{Index: i, Err: err} }
		fi, hasInfo:=codec.ReadFrameInfo(data)
		info:="no exposure metadata"
		if hasInfo { info=fmt.Sprintf("%s, EV %.2f", fi, fi.EV()) }
		fmt.Fprintf(logWriter, "%d: %s %s, %s, mean luminance %.3f, clipped %v\n",
		            i, fileName, f.DimensionsToString(), info, f.MeanLuminance(), codec.ClipReport(codec.FromRaster(f)))
	}
	return nil
}

// Serves the upload page and fusion API until the listener fails
func cmdServe(c *ops.Context) error {
	cfg, err:=buildConfig(explicitFlags())
	if err!=nil { return err }
	if err:=rest.MakeSandbox(c.Log, *chroot, *setuid); err!=nil { return err }
	fmt.Fprintf(c.Log, "%s\n", c)
	return rest.NewServer(cfg, c).Serve(*addr)
}

// Expands wildcards in the given file names. Keeps the argument order, which determines the reference frame
func globFilenames(args []string) ([]string, error) {
	var fileNames []string
	for _, arg:=range args {
		matches, err:=filepath.Glob(arg)
		if err!=nil { return nil, err }
		if len(matches)==0 { return nil, errors.New(fmt.Sprintf("no files match %s", arg)) }
		fileNames=append(fileNames, matches...)
	}
	if len(fileNames)==0 { return nil, pipeline.ErrEmptyStack }
	return fileNames, nil
}

// Returns the names of the flags given on the command line
func explicitFlags() map[string]bool {
	set:=map[string]bool{}
	flag.Visit(func(f *flag.Flag) { set[f.Name]=true })
	return set
}

// Loads the -config file if given, then applies the flags named in set
func buildConfig(set map[string]bool) (cfg *pipeline.Config, err error) {
	cfg=pipeline.NewConfigDefault()
	if *config!="" {
		if cfg, err=pipeline.LoadConfig(*config); err!=nil { return nil, err }
	}
	if !set["format"] && set["out"] { set["format"], *format=true, codec.FormatFromFileName(*out).String() }

	for name:=range set {
		switch name {
		case "align":        cfg.Align.Mode, err=align.ParseMode(*alignMode)
		case "alignIter":    cfg.Align.MaxIterations=*alignIter
		case "alignEps":     cfg.Align.Epsilon=*alignEps
		case "alignDim":     cfg.Align.MaxDimension=*alignDim
		case "alignBits":    cfg.Align.MaxShiftBits=*alignBits
		case "interp":       cfg.Warp.Interpolation, err=warp.ParseInterpolation(*interp)
		case "border":       cfg.Warp.Border, err=warp.ParseBorder(*border)
		case "wContrast":    cfg.Weights.Contrast=float32(*wContrast)
		case "wSaturation":  cfg.Weights.Saturation=float32(*wSaturation)
		case "wExposedness": cfg.Weights.Exposedness=float32(*wExposedness)
		case "wSigma":       cfg.Weights.Sigma=float32(*wSigma)
		case "levels":       cfg.Pyramid.MaxLevels=*levels
		case "gamma":        err=unmarshalShorthand(*gamma, cfg.Post.Gamma)
		case "contrast":     err=unmarshalShorthand(*contrast, cfg.Post.LocalContrast)
		case "tiles":        cfg.Post.LocalContrast.TileGrid=*tiles
		case "saturation":   err=unmarshalShorthand(*saturation, cfg.Post.Saturation)
		case "format":       cfg.Output.Format, err=codec.ParseFormat(*format)
		case "level":        cfg.Output.CompressionLevel=*level
		}
		if err!=nil { return nil, errors.New(fmt.Sprintf("flag -%s: %s", name, err.Error())) }
	}
	// tiles applies on top of the contrast shorthand, which resets it
	if set["tiles"] { cfg.Post.LocalContrast.TileGrid=*tiles }
	if err:=cfg.Validate(); err!=nil { return nil, &pipeline.ConfigError{Err: err} }
	return cfg, nil
}

// Parses a flag value like "off", "auto" or "2.2" with the JSON shorthand of the given post-processing step
func unmarshalShorthand(value string, op json.Unmarshaler) error {
	return op.UnmarshalJSON([]byte(strconv.Quote(value)))
}
