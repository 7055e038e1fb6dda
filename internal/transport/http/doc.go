// Package http contains the HTTP transport: chi routers and handlers that
// expose the session and license services to the local frontend. Handlers
// bind and validate requests, delegate to the service layer and render
// typed API errors.
package http
