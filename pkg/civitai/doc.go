// Package civitai talks to the civitai tRPC API.
//
// Every procedure is a GET on {base}/{procedure} with a single "input"
// query parameter holding a JSON envelope:
//
//	{"json":{...payload...},"meta":{"values":{"cursor":["undefined"]}}}
//
// The meta block is present only while the payload has no cursor. Responses
// are unwrapped from result.data.json by Decode and returned as gjson
// values so that callers see object keys in document order.
//
// Client owns the HTTP transport, headers and credentials. API layers typed
// procedure calls on top of any Caller.
package civitai
