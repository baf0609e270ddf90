// Package handler contains the HTTP handlers of the API.
//
// HANDLER RESPONSIBILITIES:
//  1. Parse the request (path params, query, JSON body with `validate` tags)
//  2. Call exactly one service method with the caller's user id
//  3. Write the response through writeJSON or writeError
//
// Handlers hold no business rules. Who may do what, and what happens as a
// side effect, is decided by internal/service, which the realtime channel and
// the tests share.
package handler
