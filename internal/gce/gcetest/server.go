// Package gcetest provides an in-process fake of the Compute Engine API for
// tests: enough of the instances and operations surface to exercise the
// client, the provisioner and the guard against realistic wire behavior.
package gcetest

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"regexp"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/avkline/enginevm/internal/gce"
)

// Server is a fake compute API backed by an in-memory instance table.
// Operations complete immediately; mutations are acknowledged synchronously.
type Server struct {
	mu        sync.Mutex
	instances map[string]*gce.Instance // key: project/zone/name
	deletes   map[string]int
	quotaErr  bool

	srv *httptest.Server
}

// NewServer starts the fake. Callers must Close it.
func NewServer() *Server {
	s := &Server{
		instances: make(map[string]*gce.Instance),
		deletes:   make(map[string]int),
	}

	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(s.requireAuth)

	r.POST("/projects/:project/zones/:zone/instances", s.insert)
	r.GET("/projects/:project/zones/:zone/instances", s.list)
	r.GET("/projects/:project/zones/:zone/instances/:name", s.get)
	r.DELETE("/projects/:project/zones/:zone/instances/:name", s.delete)
	r.POST("/projects/:project/zones/:zone/instances/:name/stop", s.stop)
	r.GET("/projects/:project/zones/:zone/operations/:op", s.getOperation)

	s.srv = httptest.NewServer(r)
	return s
}

// URL returns the fake's API base.
func (s *Server) URL() string {
	return s.srv.URL
}

func (s *Server) Close() {
	s.srv.Close()
}

// SetQuotaExceeded makes subsequent inserts fail with a quota error.
func (s *Server) SetQuotaExceeded(on bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.quotaErr = on
}

// Instance returns the stored instance, or nil.
func (s *Server) Instance(project, zone, name string) *gce.Instance {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.instances[key(project, zone, name)]
}

// InstanceCount returns the number of stored instances.
func (s *Server) InstanceCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.instances)
}

// DeleteCount returns how many delete requests the named instance received.
func (s *Server) DeleteCount(project, zone, name string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deletes[key(project, zone, name)]
}

// --- handlers ---

func (s *Server) requireAuth(c *gin.Context) {
	if c.GetHeader("Authorization") == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, apiErrorBody(401, "required", "Login Required"))
		return
	}
	c.Next()
}

func (s *Server) insert(c *gin.Context) {
	var inst gce.Instance
	if err := c.ShouldBindJSON(&inst); err != nil {
		c.JSON(http.StatusBadRequest, apiErrorBody(400, "invalid", err.Error()))
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.quotaErr {
		c.JSON(http.StatusForbidden, apiErrorBody(403, "quotaExceeded", "Quota 'GPUS_ALL_REGIONS' exceeded"))
		return
	}
	if inst.Name == "" || inst.MachineType == "" {
		c.JSON(http.StatusBadRequest, apiErrorBody(400, "invalid", "Required field 'machineType' not specified"))
		return
	}

	k := key(c.Param("project"), c.Param("zone"), inst.Name)
	if _, exists := s.instances[k]; exists {
		c.JSON(http.StatusConflict, apiErrorBody(409, "alreadyExists",
			fmt.Sprintf("The resource '%s' already exists", inst.Name)))
		return
	}

	inst.Status = "RUNNING"
	inst.CreationTimestamp = time.Now().Format(time.RFC3339)
	if len(inst.NetworkInterfaces) > 0 && len(inst.NetworkInterfaces[0].AccessConfigs) > 0 {
		inst.NetworkInterfaces[0].AccessConfigs[0].NatIP = "203.0.113.10"
	}
	s.instances[k] = &inst

	c.JSON(http.StatusOK, doneOperation())
}

func (s *Server) list(c *gin.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	prefix := c.Param("project") + "/" + c.Param("zone") + "/"
	nameFilter := parseNameFilter(c.Query("filter"))

	items := []gce.Instance{}
	for k, inst := range s.instances {
		if len(k) < len(prefix) || k[:len(prefix)] != prefix {
			continue
		}
		if nameFilter != "" && inst.Name != nameFilter {
			continue
		}
		items = append(items, *inst)
	}

	c.JSON(http.StatusOK, gin.H{"items": items})
}

func (s *Server) get(c *gin.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	inst, ok := s.instances[key(c.Param("project"), c.Param("zone"), c.Param("name"))]
	if !ok {
		c.JSON(http.StatusNotFound, apiErrorBody(404, "notFound", "The resource was not found"))
		return
	}
	c.JSON(http.StatusOK, inst)
}

func (s *Server) delete(c *gin.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := key(c.Param("project"), c.Param("zone"), c.Param("name"))
	s.deletes[k]++
	if _, ok := s.instances[k]; !ok {
		c.JSON(http.StatusNotFound, apiErrorBody(404, "notFound", "The resource was not found"))
		return
	}
	delete(s.instances, k)

	c.JSON(http.StatusOK, doneOperation())
}

func (s *Server) stop(c *gin.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	inst, ok := s.instances[key(c.Param("project"), c.Param("zone"), c.Param("name"))]
	if !ok {
		c.JSON(http.StatusNotFound, apiErrorBody(404, "notFound", "The resource was not found"))
		return
	}
	inst.Status = "TERMINATED"

	c.JSON(http.StatusOK, doneOperation())
}

func (s *Server) getOperation(c *gin.Context) {
	// All fake operations complete synchronously.
	c.JSON(http.StatusOK, gin.H{"name": c.Param("op"), "status": "DONE"})
}

// --- helpers ---

func key(project, zone, name string) string {
	return project + "/" + zone + "/" + name
}

func doneOperation() gin.H {
	return gin.H{"name": "operation-" + uuid.New().String(), "status": "DONE"}
}

func apiErrorBody(code int, reason, message string) gin.H {
	return gin.H{"error": gin.H{
		"code":    code,
		"message": message,
		"errors":  []gin.H{{"reason": reason, "message": message}},
	}}
}

var nameFilterRe = regexp.MustCompile(`name\s*=\s*"?([a-z0-9-]+)"?`)

// parseNameFilter understands the single filter shape this system emits,
// `name = "<value>"`.
func parseNameFilter(filter string) string {
	m := nameFilterRe.FindStringSubmatch(filter)
	if m == nil {
		return ""
	}
	return m[1]
}
