package server

import (
	"net/http"
	"slices"
)

// BasicRouter dispatches method-qualified patterns ("GET /path") through an [http.ServeMux].
//
// Requests for a known path with the wrong method get a 405 from the mux.
type BasicRouter struct {
	mux    *http.ServeMux
	stack  []Middleware
	routes []string
}

// NewBasicRouter creates an empty [BasicRouter].
func NewBasicRouter() *BasicRouter {
	return &BasicRouter{mux: http.NewServeMux()}
}

// Use appends middleware to the stack. The first middleware added is the outermost.
//
// Only routes registered after the call are wrapped.
func (r *BasicRouter) Use(middleware ...Middleware) {
	r.stack = append(r.stack, middleware...)
}

// Handle registers handler for method and path behind the current middleware stack.
func (r *BasicRouter) Handle(method, path string, handler http.Handler) {
	r.register(r.Apply(handler), method+" "+path)
}

// Handler registers h for every pattern in [Handler.Routes], sharing one middleware chain.
func (r *BasicRouter) Handler(h Handler) {
	r.register(r.Apply(h), h.Routes()...)
}

func (r *BasicRouter) register(h http.Handler, patterns ...string) {
	for _, p := range patterns {
		r.mux.Handle(p, h)
		r.routes = append(r.routes, p)
	}
}

// Routes lists the registered patterns in registration order.
func (r *BasicRouter) Routes() []string {
	return slices.Clone(r.routes)
}

func (r *BasicRouter) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mux.ServeHTTP(w, req)
}

// Apply wraps handler with the middleware stack.
func (r *BasicRouter) Apply(handler http.Handler) http.Handler {
	for i := len(r.stack) - 1; i >= 0; i-- {
		handler = r.stack[i](handler)
	}
	return handler
}
