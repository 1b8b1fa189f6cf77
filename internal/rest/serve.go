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


package rest

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"github.com/gin-gonic/gin"
	"github.com/mlnoga/brackets/internal/ops"
	"github.com/mlnoga/brackets/internal/pipeline"
	"github.com/mlnoga/brackets/web"
)

// An HTTP service fusing uploaded exposure stacks
type Server struct {
	Config      *pipeline.Config  // settings for requests without a config field
	Context     *ops.Context      // shared resources. Its log receives one block per request
	MinImages   int
	MaxImages   int
	MaxUploadMB int64
}

func NewServer(cfg *pipeline.Config, c *ops.Context) *Server {
	if cfg==nil { cfg=pipeline.NewConfigDefault() }
	return &Server{Config: cfg, Context: ops.EnsureLog(c), MinImages: 1, MaxImages: 16, MaxUploadMB: 64}
}

func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.LoggerWithWriter(s.Context.Log), gin.Recovery())
	r.MaxMultipartMemory=s.MaxUploadMB<<20
	r.GET("/", getIndex)
	api := r.Group("/api")
	{
		v1 := api.Group("/v1")
		{
			v1.GET ("/ping", getPing)
			v1.POST("/fuse", s.postFuse)
		}
	}
	return r
}

// Listens and serves on the given address, e.g. ":8080"
func (s *Server) Serve(addr string) error {
	fmt.Fprintf(s.Context.Log, "Serving on %s, accepting %d to %d images per request\n", addr, s.MinImages, s.MaxImages)
	return s.Router().Run(addr)
}

func getIndex(c *gin.Context) {
	c.Data(http.StatusOK, "text/html; charset=utf-8", web.IndexHTML)
}

func getPing(c *gin.Context) {
	c.JSON(200, gin.H{
		"message": "pong",
	})
}

func printArgs(logWriter io.Writer, prefix, suffix string, args interface{}) error {
	m,err:=json.MarshalIndent(args, "", "  ")
	if err!=nil { return err }
	fmt.Fprintf(logWriter, "%s%s%s", prefix, string(m), suffix)
	return nil
}

// Fuses the multipart field "images" in upload order. An optional field "config" holds JSON settings
func (s *Server) postFuse(c *gin.Context) {
	form, err:=c.MultipartForm()
	if err!=nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "expecting multipart form: "+err.Error()})
		return
	}
	files:=form.File["images"]
	if len(files)==0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": pipeline.ErrEmptyStack.Error()})
		return
	}
	if len(files)<s.MinImages || len(files)>s.MaxImages {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("got %d images, expecting %d to %d", len(files), s.MinImages, s.MaxImages)})
		return
	}

	cfg:=s.Config
	if vals:=form.Value["config"]; len(vals)>0 && strings.TrimSpace(vals[0])!="" {
		if cfg, err=pipeline.ParseConfig([]byte(vals[0]), "config.json"); err!=nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid config: "+err.Error()})
			return
		}
	}

	bufs:=make([][]byte, len(files))
	for i, fh:=range files {
		if bufs[i], err=readUpload(fh); err!=nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": (&pipeline.DecodeError{Index: i, Err: err}).Error()})
			return
		}
	}

	// buffer the log so concurrent requests don't interleave
	reqLog:=bytes.Buffer{}
	ctx:=*s.Context
	ctx.Log=&reqLog
	fmt.Fprintf(&reqLog, "Request from %s with %d images\n", c.ClientIP(), len(files))
	printArgs(&reqLog, "Settings:\n", "\n", cfg)
	out, res, err:=pipeline.FuseBytes(bufs, cfg, &ctx)
	if err!=nil { fmt.Fprintf(&reqLog, "Error: %s\n", err.Error()) }
	s.Context.Log.Write(reqLog.Bytes())
	if err!=nil {
		c.JSON(statusOf(err), gin.H{"error": err.Error()})
		return
	}

	statuses:=make([]string, len(res.Alignments))
	for i, a:=range res.Alignments { statuses[i]=a.Status.String() }
	c.Header("X-Fused-Width",  strconv.Itoa(res.Width))
	c.Header("X-Fused-Height", strconv.Itoa(res.Height))
	c.Header("X-Alignment",    strings.Join(statuses, ","))
	c.Header("Content-Disposition", "attachment; filename=\"fused"+cfg.Output.Format.Extension()+"\"")
	c.Data(http.StatusOK, cfg.Output.Format.MIMEType(), out)
}

func readUpload(fh *multipart.FileHeader) ([]byte, error) {
	f, err:=fh.Open()
	if err!=nil { return nil, err }
	defer f.Close()
	return io.ReadAll(f)
}

// Maps fusion errors onto HTTP status codes. Bad input is the client's fault, everything else ours
func statusOf(err error) int {
	var de *pipeline.DecodeError
	var dm *pipeline.DimensionMismatchError
	var ce *pipeline.ConfigError
	switch {
	case errors.Is(err, pipeline.ErrEmptyStack), errors.As(err, &de), errors.As(err, &dm), errors.As(err, &ce):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
