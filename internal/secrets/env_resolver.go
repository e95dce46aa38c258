package secrets

import "os"

// EnvResolver answers the Orchestrator's preflight question — "is this
// provider's credential resolvable?" — by environment variable name only,
// per spec §4.6: "verify provider secrets are resolvable (by environment
// variable name only — never read contents into lineage)". It never
// returns the variable's value, only whether it is set.
type EnvResolver struct{}

// NewEnvResolver constructs an EnvResolver.
func NewEnvResolver() EnvResolver { return EnvResolver{} }

// Resolvable reports whether envVarName is set, without reading its value
// into any return path a caller might log.
func (EnvResolver) Resolvable(envVarName string) bool {
	_, ok := os.LookupEnv(envVarName)
	return ok
}
