// Package server provides the HTTP API for submitting and tracking playlist conversions.
//
// # Router Infrastructure
//
// The [Router] interface defines HTTP routing with middleware support.
//
// [Middleware] wraps handlers in reverse order (last added executes first), following the standard Go pattern.
//
// The [BasicRouter] implementation uses [http.ServeMux] method patterns ("POST /path/{id}"), so
// method mismatches answer 405 and path values are read with [http.Request.PathValue].
//
// # Handler Interface
//
// Custom handlers implement the [Handler] interface, which wraps the stdlib handler interface and adds routes,
// allowing handlers to register multiple routes to encapsulate route definitions within the implementation.
// [ConversionHandler] serves every /api/playlist route this way.
//
// # Responses
//
// Every JSON response uses the [Response] envelope. Errors from the orchestrator map onto status codes
// in [StatusFor]: validation 400, not found 404, capacity and upstream outages 503, persistence 500.
//
// # Middleware
//
//   - [RequestLogger] logs each request and counts it in Prometheus
//   - [Recoverer] turns handler panics into a 500 envelope
//   - [RateLimit] limits conversion submissions per client address
package server
