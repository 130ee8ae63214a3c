package controlhttp

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

func TestNormalizeValidationPath(t *testing.T) {
	testCases := []struct {
		name     string
		basePath string
		path     string
		want     string
	}{
		{name: "strip prefix", basePath: "/api/v1", path: "/api/v1/entities", want: "/entities"},
		{name: "root path", basePath: "/api/v1", path: "/api/v1", want: "/"},
		{name: "no match", basePath: "/api/v1", path: "/health", want: "/health"},
		{name: "empty base", basePath: "", path: "/entities", want: "/entities"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got := normalizeValidationPath(normalizeBasePath(tc.basePath), tc.path)
			if got != tc.want {
				t.Fatalf("normalizeValidationPath mismatch: got %q want %q", got, tc.want)
			}
		})
	}
}

func TestOpenAPIValidatorRejectsInvalidSpawnRequest(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(MustOpenAPIValidator("/api/v1"))
	router.POST("/api/v1/entities", func(c *gin.Context) {
		c.JSON(http.StatusAccepted, gin.H{"entity_id": "e-1"})
	})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/entities", bytes.NewBufferString(`{}`))
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for invalid spawn body, got %d", resp.Code)
	}
}

func TestOpenAPIValidatorAcceptsValidSpawnRequest(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(MustOpenAPIValidator("/api/v1"))
	router.POST("/api/v1/entities", func(c *gin.Context) {
		c.JSON(http.StatusAccepted, gin.H{"entity_id": "e-1"})
	})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/entities", bytes.NewBufferString(`{"prefab":"tree"}`))
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusAccepted {
		t.Fatalf("expected 202 for valid spawn body, got %d, body=%s", resp.Code, resp.Body.String())
	}
}

func TestOpenAPIValidatorRejectsInvalidSnapshotExportRequest(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(MustOpenAPIValidator("/api/v1"))
	router.POST("/api/v1/snapshots", func(c *gin.Context) {
		c.JSON(http.StatusAccepted, gin.H{"name": "snap"})
	})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/snapshots", bytes.NewBufferString(`{}`))
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for invalid snapshot export body, got %d", resp.Code)
	}
}

func TestOpenAPIValidatorPassesThroughUnmatchedRoutes(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(MustOpenAPIValidator("/api/v1"))
	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 for unmatched route pass-through, got %d", resp.Code)
	}
}
