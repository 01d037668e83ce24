package api

import (
	"errors"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ericogr/temprec/pkg/store"
)

// SensorStatus is one entry of the /api/status response.
type SensorStatus struct {
	ID           string             `json:"id"`
	Ordinal      int                `json:"ordinal"`
	Measurements int                `json:"measurements"`
	Last         *store.Measurement `json:"last,omitempty"`
}

// StatusResponse is the /api/status body.
type StatusResponse struct {
	Sensors []SensorStatus `json:"sensors"`
	Uptime  string         `json:"uptime"`
}

// handleListSensors returns the sensor ids, one per line.
func (s *Server) handleListSensors(c *gin.Context) {
	c.String(http.StatusOK, strings.Join(s.registry.IDs(), "\n"))
}

// handleGetFull returns the whole series of a sensor given by id or ordinal.
func (s *Server) handleGetFull(c *gin.Context) {
	st, err := s.registry.Lookup(c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.String(http.StatusOK, st.Dump())
}

// handleGetFrom returns the measurements taken after :from.
func (s *Server) handleGetFrom(c *gin.Context) {
	st, err := s.registry.Lookup(c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	from, err := store.ParseTime(c.Param("from"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.String(http.StatusOK, st.DumpFrom(from))
}

// handleRemove deletes the measurements taken at :time and returns what is
// left.
func (s *Server) handleRemove(c *gin.Context) {
	st, err := s.registry.Get(c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	t, err := store.ParseTime(c.Param("time"))
	if err != nil {
		s.fail(c, err)
		return
	}
	_, remaining, err := st.Remove(t)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.String(http.StatusOK, remaining)
}

func (s *Server) handleStatus(c *gin.Context) {
	resp := StatusResponse{
		Sensors: make([]SensorStatus, 0, s.registry.Len()),
		Uptime:  time.Since(s.startTime).Round(time.Second).String(),
	}
	for i, id := range s.registry.IDs() {
		st, err := s.registry.Get(id)
		if err != nil {
			continue
		}
		ss := SensorStatus{ID: id, Ordinal: i, Measurements: st.Len()}
		if m, ok := st.Last(); ok {
			ss.Last = &m
		}
		resp.Sensors = append(resp.Sensors, ss)
	}
	c.JSON(http.StatusOK, resp)
}

// handleStatic serves files below the content directory; "/" serves
// index.html.
func (s *Server) handleStatic(c *gin.Context) {
	if c.Request.Method != http.MethodGet && c.Request.Method != http.MethodHead {
		c.String(http.StatusNotFound, "not found")
		return
	}
	name := path.Clean("/" + c.Request.URL.Path)
	f, err := s.content.Open(name)
	if err != nil {
		c.String(http.StatusNotFound, "not found")
		return
	}
	_ = f.Close()
	c.FileFromFS(name, s.content)
}

// fail maps store errors to HTTP status codes.
func (s *Server) fail(c *gin.Context, err error) {
	var (
		perr *store.TimeParseError
		cerr *store.PersistCompactError
	)
	switch {
	case errors.Is(err, store.ErrNotFound):
		c.String(http.StatusNotFound, err.Error())
	case errors.As(err, &perr):
		c.String(http.StatusBadRequest, err.Error())
	case errors.As(err, &cerr):
		s.logger.Error("removal failed", "err", err)
		c.String(http.StatusInternalServerError, err.Error())
	default:
		s.logger.Error("request failed", "path", c.Request.URL.Path, "err", err)
		c.String(http.StatusInternalServerError, err.Error())
	}
}
