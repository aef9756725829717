package gateway

import (
	"context"
	_ "embed"
	"net/http"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/getkin/kin-openapi/openapi3filter"
	"github.com/getkin/kin-openapi/routers"
	legacyrouter "github.com/getkin/kin-openapi/routers/legacy"
)

//go:embed openapi.yaml
var openapiSpec []byte

// newAPIRouter loads the embedded contract once, at startup. A broken spec
// is a programming error and panics.
func newAPIRouter() routers.Router {
	loader := openapi3.NewLoader()
	doc, err := loader.LoadFromData(openapiSpec)
	if err != nil {
		panic("gateway: embedded openapi spec unreadable: " + err.Error())
	}
	if err := doc.Validate(loader.Context); err != nil {
		panic("gateway: embedded openapi spec invalid: " + err.Error())
	}
	router, err := legacyrouter.NewRouter(doc)
	if err != nil {
		panic("gateway: failed to build api router: " + err.Error())
	}
	return router
}

// validationMiddleware rejects requests whose shape violates the API
// contract before any handler runs. SSE streams and unknown paths pass
// through untouched.
func (s *Server) validationMiddleware(next http.Handler) http.Handler {
	apiRouter := newAPIRouter()

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/events") {
			next.ServeHTTP(w, r)
			return
		}

		route, pathParams, err := apiRouter.FindRoute(r)
		if err != nil {
			// Not in the contract; the mux produces the 404.
			next.ServeHTTP(w, r)
			return
		}

		input := &openapi3filter.RequestValidationInput{
			Request:    r,
			PathParams: pathParams,
			Route:      route,
		}
		if err := openapi3filter.ValidateRequest(context.Background(), input); err != nil {
			s.logger.Warn("request failed contract validation",
				"path", r.URL.Path, "method", r.Method, "error", err)
			writeError(w, http.StatusBadRequest, "request validation failed: "+err.Error())
			return
		}

		next.ServeHTTP(w, r)
	})
}
