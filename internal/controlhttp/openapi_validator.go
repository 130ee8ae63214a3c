package controlhttp

import (
	_ "embed"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/getkin/kin-openapi/openapi3"
	"github.com/getkin/kin-openapi/openapi3filter"
	"github.com/getkin/kin-openapi/routers/gorillamux"
)

//go:embed openapi.yaml
var openAPISpec []byte

// MustOpenAPIValidator builds the request-validation middleware from the
// embedded control-surface document. basePath is stripped from the incoming
// request path before matching against the document (the document itself
// has no server prefix). Panics if the embedded document fails to load or
// is invalid — a build-time defect, not a runtime one.
func MustOpenAPIValidator(basePath string) gin.HandlerFunc {
	loader := openapi3.NewLoader()
	doc, err := loader.LoadFromData(openAPISpec)
	if err != nil {
		panic(fmt.Sprintf("controlhttp: load embedded openapi document: %v", err))
	}
	if err := doc.Validate(loader.Context); err != nil {
		panic(fmt.Sprintf("controlhttp: embedded openapi document is invalid: %v", err))
	}

	router, err := gorillamux.NewRouter(doc)
	if err != nil {
		panic(fmt.Sprintf("controlhttp: build openapi router: %v", err))
	}

	prefix := normalizeBasePath(basePath)

	return func(c *gin.Context) {
		req := c.Request.Clone(c.Request.Context())
		req.URL.Path = normalizeValidationPath(prefix, req.URL.Path)

		route, pathParams, err := router.FindRoute(req)
		if err != nil {
			// Unmatched routes are not this middleware's concern — let gin's
			// own routing 404 handle them.
			c.Next()
			return
		}

		input := &openapi3filter.RequestValidationInput{
			Request:    req,
			PathParams: pathParams,
			Route:      route,
		}
		if err := openapi3filter.ValidateRequest(req.Context(), input); err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"code":    "INVALID_REQUEST",
				"message": err.Error(),
			})
			return
		}

		c.Next()
	}
}

func normalizeBasePath(basePath string) string {
	p := strings.TrimSuffix(basePath, "/")
	if p != "" && !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return p
}

func normalizeValidationPath(basePath, path string) string {
	if basePath == "" {
		return path
	}
	if path == basePath {
		return "/"
	}
	if trimmed := strings.TrimPrefix(path, basePath); trimmed != path {
		if !strings.HasPrefix(trimmed, "/") {
			trimmed = "/" + trimmed
		}
		return trimmed
	}
	return path
}
