package store

import (
	"fmt"
	"strings"
)

// Top-level namespaces shared with every subsystem.
const (
	MonPrefix = "/mon/"
	CmdPrefix = "/cmd/"
	CnfPrefix = "/cnf/"
)

// MonKey returns /mon/<subsystem>/<id>.
func MonKey(subsystem string, id any) string {
	return fmt.Sprintf("%s%s/%v", MonPrefix, subsystem, id)
}

// CmdKey returns /cmd/<subsystem>/<id>. By convention id 0 addresses every
// instance of the subsystem.
func CmdKey(subsystem string, id any) string {
	return fmt.Sprintf("%s%s/%v", CmdPrefix, subsystem, id)
}

// CnfKey returns /cnf/<subsystem>.
func CnfKey(subsystem string) string {
	return CnfPrefix + subsystem
}

// StatusKey returns /mon/status/<id>, where the health monitor publishes.
func StatusKey(id int) string {
	return MonKey("status", id)
}

// SplitKey breaks a namespaced key into namespace, subsystem and id.
// id is empty for /cnf keys.
func SplitKey(key string) (namespace, subsystem, id string, ok bool) {
	parts := strings.SplitN(strings.TrimPrefix(key, "/"), "/", 3)
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return "", "", "", false
	}
	namespace, subsystem = parts[0], parts[1]
	if len(parts) == 3 {
		id = parts[2]
	}
	return namespace, subsystem, id, true
}
