// Package httpapi exposes a memory image over HTTP.
//
// Mutations and queries are addressed by their registered type name and
// decoded from the request body with the codec selected by Content-Type.
// Results are encoded with the codec negotiated from Accept. Failures are
// answered with a plain-text body carrying the failure message and a status
// derived from the failure code.
package httpapi
