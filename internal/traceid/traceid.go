// Package traceid mints crank/delivery correlation ids used to group log
// records produced during a single dispatch call (spec.md §4.4, §7).
// Grounded on the teacher's uniqueid_fast.go/uniqueid_reflect.go scheme (a
// process-stable unique token per object), generalized from "identify one
// in-memory object across debugger sessions" to "identify one crank
// across log lines", and using github.com/google/uuid rather than the
// teacher's pointer-address trick since crank ids must remain stable and
// comparable across process restarts when replayed from a delivery log.
package traceid

import "github.com/google/uuid"

// New mints a fresh correlation id.
func New() string {
	return uuid.NewString()
}
