// Package auth provides API-key authentication for mncserver.
//
// APIKeyInterceptor and APIKeyStreamInterceptor validate the key carried in
// the named gRPC metadata header. RequireKey does the same for mutating REST
// requests (PUT, DELETE, POST); reads pass through.
//
// When mode != "apikey" or key == "", every call passes through, which is
// what local development with auth disabled wants. When the key is incorrect
// or absent, gRPC calls fail with codes.Unauthenticated and HTTP requests
// with 401.
package auth
