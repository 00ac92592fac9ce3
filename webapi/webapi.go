// Package webapi exposes media browsing over HTTP.
package webapi

import (
	"context"
	"errors"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/anacrolix/log"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/anacrolix/mediabrowse/dlna"
	"github.com/anacrolix/mediabrowse/dlna/dms"
	"github.com/anacrolix/mediabrowse/localsource"
	"github.com/anacrolix/mediabrowse/mediasource"
)

// Searcher triggers an SSDP search, such as ssdp.Scanner.
type Searcher interface {
	Search(st string) error
}

type Server struct {
	Manager *mediasource.Manager
	// Optional.
	Registry *dms.Registry
	Local    *localsource.Source
	Searcher Searcher
	// Applied to browse results when the request asks for filter=renderer.
	RendererFilter mediasource.ContentFilter
	// Bounds each browse and resolve.
	RequestTimeout time.Duration
	Logger         log.Logger
}

// Status for an error from a media source operation.
func errorStatus(err error) int {
	switch {
	case errors.Is(err, dms.ErrDeviceConnection) && !errors.Is(err, dms.ErrAction):
		return http.StatusServiceUnavailable
	case mediasource.IsBrowseError(err), mediasource.IsUnresolvable(err):
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}

func (me *Server) abort(c *gin.Context, err error) {
	status := errorStatus(err)
	if status == http.StatusInternalServerError {
		me.Logger.Levelf(log.Error, "%s %s: %v", c.Request.Method, c.Request.URL, err)
	}
	c.AbortWithStatusJSON(status, gin.H{
		"message": err.Error(),
	})
}

func (me *Server) requestContext(c *gin.Context) (context.Context, context.CancelFunc) {
	if me.RequestTimeout > 0 {
		return context.WithTimeout(c.Request.Context(), me.RequestTimeout)
	}
	return context.WithCancel(c.Request.Context())
}

func (me *Server) filter(name string) (mediasource.ContentFilter, bool) {
	switch name {
	case "":
		return nil, true
	case "renderer":
		return me.RendererFilter, true
	case "playable":
		return mediasource.PlayableOnly, true
	}
	return nil, false
}

// Handler returns the router with every route installed.
func (me *Server) Handler() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/ping", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"message": "pong",
		})
	})

	router.GET("/browse", func(c *gin.Context) {
		filter, ok := me.filter(c.Query("filter"))
		if !ok {
			c.JSON(400, gin.H{
				"message": "Unknown filter",
			})
			return
		}
		ctx, cancel := me.requestContext(c)
		defer cancel()
		node, err := me.Manager.Browse(ctx, c.Query("uri"), filter)
		if err != nil {
			me.abort(c, err)
			return
		}
		c.JSON(200, node)
	})

	router.GET("/resolve", func(c *gin.Context) {
		ctx, cancel := me.requestContext(c)
		defer cancel()
		pm, err := me.Manager.Resolve(ctx, c.Query("uri"))
		if err != nil {
			me.abort(c, err)
			return
		}
		c.JSON(200, pm)
	})

	router.GET("/sources", func(c *gin.Context) {
		c.JSON(200, me.sources())
	})

	router.POST("/ssdp/search", func(c *gin.Context) {
		if me.Searcher == nil {
			c.JSON(503, gin.H{
				"message": "Discovery is disabled",
			})
			return
		}
		if err := me.Searcher.Search(c.Query("st")); err != nil {
			c.JSON(503, gin.H{
				"message": err.Error(),
			})
			return
		}
		c.JSON(202, gin.H{
			"message": "Searching",
		})
	})

	router.GET("/media/:source/*path", me.serveMedia)
	router.GET("/thumbnail/:source/*path", me.serveThumbnail)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	return router
}

type sourceStatus struct {
	Domain string `json:"domain"`
	Name   string `json:"name"`
}

type dlnaStatus struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Location  string `json:"location"`
	UDN       string `json:"udn,omitempty"`
	Connected bool   `json:"connected"`
	Available bool   `json:"available"`
}

func (me *Server) sources() gin.H {
	domains := []sourceStatus{}
	for _, src := range me.Manager.Sources() {
		domains = append(domains, sourceStatus{Domain: src.Domain(), Name: src.Name()})
	}
	servers := []dlnaStatus{}
	if me.Registry != nil {
		for _, src := range me.Registry.Sources() {
			servers = append(servers, dlnaStatus{
				ID:        src.SourceID(),
				Name:      src.Name(),
				Location:  src.Location(),
				UDN:       src.UDN(),
				Connected: src.Connected(),
				Available: src.Available(),
			})
		}
	}
	return gin.H{
		"media_sources": domains,
		"dlna_servers":  servers,
	}
}

func (me *Server) serveMedia(c *gin.Context) {
	if me.Local == nil {
		c.JSON(404, gin.H{
			"message": "Local media is disabled",
		})
		return
	}
	file, err := me.Local.Open(c.Param("source"), c.Param("path"))
	if err != nil {
		me.abort(c, err)
		return
	}
	f, err := os.Open(file.Path)
	if err != nil {
		me.abort(c, err)
		return
	}
	defer f.Close()
	c.Header("Content-Type", file.MimeType)
	c.Header(dlna.ContentFeaturesDomain, dlna.ContentFeatures{SupportRange: true}.String())
	c.Header(dlna.TransferModeDomain, "Streaming")
	http.ServeContent(c.Writer, c.Request, file.Info.Name(), file.Info.ModTime(), f)
}

func queryUint(c *gin.Context, key string) (uint, error) {
	s := c.Query(key)
	if s == "" {
		return 0, nil
	}
	u, err := strconv.ParseUint(s, 10, 16)
	return uint(u), err
}

func (me *Server) serveThumbnail(c *gin.Context) {
	if me.Local == nil {
		c.JSON(404, gin.H{
			"message": "Local media is disabled",
		})
		return
	}
	w, err := queryUint(c, "w")
	if err != nil {
		c.JSON(400, gin.H{"message": "Invalid width"})
		return
	}
	h, err := queryUint(c, "h")
	if err != nil {
		c.JSON(400, gin.H{"message": "Invalid height"})
		return
	}
	th, err := me.Local.Thumbnail(c.Param("source"), c.Param("path"), w, h)
	if err != nil {
		me.abort(c, err)
		return
	}
	c.Data(200, th.MimeType, th.Data)
}

// Run serves on addr until ctx is done.
func (me *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           me.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errc := make(chan error, 1)
	go func() {
		errc <- srv.ListenAndServe()
	}()
	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
