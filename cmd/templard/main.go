// templard serves the template engine over HTTP for the extraction pipeline.
//
// Environment (loaded from .env when present):
//
//	TEMPLAR_ADDR           Listen address (default ":8080")
//	TEMPLAR_STORE          Store directory (default "./templates")
//	TEMPLAR_MAX_TEMPLATES  Capacity bound (default 1000)
//
// Endpoints:
//
//	POST   /api/v1/learn           Learn from an observation
//	POST   /api/v1/match           Match an observation against the store
//	POST   /api/v1/apply           Apply a template's regions to text blocks
//	GET    /api/v1/stats           Template store statistics
//	GET    /api/v1/templates       List stored templates
//	GET    /api/v1/templates/:id   Fetch one template
//	DELETE /api/v1/templates/:id   Remove one template
//
// Observations are accepted per language: pass ?lang=ar to address the
// Arabic template store; the default store is "en".
package main

import (
	"log"
	"net/http"
	"os"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"github.com/qistas/templar/pkg/invoice"
	"github.com/qistas/templar/pkg/template"
)

type server struct {
	registry *template.Registry
}

// engineFor picks the per-language engine for a request.
func (s *server) engineFor(c *gin.Context) *template.Engine {
	lang := c.DefaultQuery("lang", "en")
	return s.registry.Get(lang)
}

// handleLearn learns from one observation and flushes the store.
func (s *server) handleLearn(c *gin.Context) {
	var raw interface{}
	if err := c.ShouldBindJSON(&raw); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid JSON body"})
		return
	}

	obs, err := invoice.ParseExtractionResult(raw)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	engine := s.engineFor(c)
	id, learned := engine.Learn(obs)
	if !learned {
		// No stable key is not an error; report it as an empty result
		c.JSON(http.StatusOK, gin.H{"learned": false})
		return
	}

	if err := engine.Flush(); err != nil {
		log.Printf("Failed to persist templates after learn: %v", err)
	}
	c.JSON(http.StatusOK, gin.H{"learned": true, "template_id": id})
}

// handleMatch resolves an observation to a known template.
func (s *server) handleMatch(c *gin.Context) {
	var raw interface{}
	if err := c.ShouldBindJSON(&raw); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid JSON body"})
		return
	}

	obs, err := invoice.ParseExtractionResult(raw)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	match := s.engineFor(c).FindMatchingTemplate(obs)
	if !match.Matched() {
		c.JSON(http.StatusOK, gin.H{"matched": false})
		return
	}
	c.JSON(http.StatusOK, gin.H{"matched": true, "match": match})
}

type applyRequest struct {
	TemplateID string              `json:"template_id" binding:"required"`
	Blocks     []invoice.TextBlock `json:"blocks"`
}

// handleApply pairs text blocks with a template's expected regions.
func (s *server) handleApply(c *gin.Context) {
	var req applyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid JSON body"})
		return
	}

	hints, ok := s.engineFor(c).ApplyTemplate(req.Blocks, req.TemplateID)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown template id"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"hints": hints})
}

func (s *server) handleStats(c *gin.Context) {
	c.JSON(http.StatusOK, s.engineFor(c).Stats())
}

func (s *server) handleListTemplates(c *gin.Context) {
	c.JSON(http.StatusOK, s.engineFor(c).Templates())
}

func (s *server) handleGetTemplate(c *gin.Context) {
	tpl, ok := s.engineFor(c).Template(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown template id"})
		return
	}
	c.JSON(http.StatusOK, tpl)
}

func (s *server) handleDeleteTemplate(c *gin.Context) {
	engine := s.engineFor(c)
	if !engine.RemoveTemplate(c.Param("id")) {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown template id"})
		return
	}
	if err := engine.Flush(); err != nil {
		log.Printf("Failed to persist templates after delete: %v", err)
	}
	c.JSON(http.StatusOK, gin.H{"deleted": true})
}

// newRouter wires the API routes onto a gin engine.
func newRouter(s *server) *gin.Engine {
	router := gin.Default()
	api := router.Group("/api/v1")
	{
		api.POST("/learn", s.handleLearn)
		api.POST("/match", s.handleMatch)
		api.POST("/apply", s.handleApply)
		api.GET("/stats", s.handleStats)
		api.GET("/templates", s.handleListTemplates)
		api.GET("/templates/:id", s.handleGetTemplate)
		api.DELETE("/templates/:id", s.handleDeleteTemplate)
	}
	return router
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func main() {
	// Load environment variables from a .env file when present
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment")
	}

	maxTemplates := 1000
	if raw := os.Getenv("TEMPLAR_MAX_TEMPLATES"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			log.Fatalf("Invalid TEMPLAR_MAX_TEMPLATES: %v", err)
		}
		maxTemplates = parsed
	}

	cfg := template.DefaultConfig(envOr("TEMPLAR_STORE", "./templates"))
	cfg.MaxTemplates = maxTemplates
	cfg.Logger = os.Stderr

	s := &server{registry: template.NewRegistry(cfg)}
	defer func() {
		if err := s.registry.Close(); err != nil {
			log.Printf("Failed to close template registry: %v", err)
		}
	}()

	router := newRouter(s)

	addr := envOr("TEMPLAR_ADDR", ":8080")
	log.Println("templard listening on", addr)
	if err := router.Run(addr); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
}
