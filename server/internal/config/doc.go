// Package config loads the mncserver configuration file.
//
// Sections:
//   - server.grpc_port     port of the gRPC health service (default 50051)
//   - server.http_port     port of the REST API and WebSocket hub (default 8080)
//   - server.auth          "apikey" or "none"; key_env names the variable holding the key
//   - server.board         prefix and TTL of the monitor-point cache (default /mon/, 10m)
//   - server.status        which /mon/status/<num> verdict to serve, and when it goes stale
//   - server.alerts        threshold rules over monitor points, plus webhook targets
//   - etcd                 cluster endpoints, same fields as etcdConfig.yml
//   - cnf                  remote subsystem configuration and an optional keys file
//   - log                  level, format and optional rotated file
//
// Load(path) applies defaults before unmarshalling, then validates.
package config
