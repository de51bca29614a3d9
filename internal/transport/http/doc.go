// Package http implements HTTP request handlers for the analyzer web
// service. It provides a thin layer between HTTP transport and business
// logic: handlers parse and validate requests, delegate to the service
// layer, and transform service errors into RFC 7807 problem responses.
//
// A typical request flows through these layers:
//
//	HTTP Request → Chi Router → Middleware → Handler → Service
//	                                              ↓
//	HTTP Response ← Handler ← Service Response ←─┘
//
// Handlers never hold analysis state; sessions live in the service
// layer's store and are addressed by ID.
package http
