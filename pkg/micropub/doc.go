// Package micropub implements the server side of the Micropub publishing
// protocol with pluggable host hooks for storage.
//
// An Endpoint normalizes incoming requests, authenticates them through a
// TokenVerifier, discovers the post type and hands the result to the host's
// create, update and delete hooks. Configuration queries (q=config and
// friends) are answered from an EndpointConfig merged over protocol defaults.
// A separate MediaEndpoint accepts file uploads and moves them into a
// MediaStore under a random directory token.
//
// Reference collaborators live in subpackages: token verifiers under auth,
// media stores under storage, a post store with memory, Postgres and SQLite
// repositories under store, and the HTTP surface under api.
//
// Properties
//
// Post properties follow the microformats2 shape where every property is a
// list of values. Form-encoded values are strings; JSON values keep their
// decoded type, so a value may also be a bool, a float64 or a nested object
// such as {"html": "..."} or {"url": "...", "alt": "..."}.
package micropub
