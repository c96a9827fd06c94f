package provisioning

import (
	"fmt"
	"strings"
)

// DatabaseName derives the per-service database name for a tenant. The
// function is pure: identical (environment, service, tenant) inputs always
// yield the identical lower-cased name, which is what makes repeated
// provisioning runs converge.
func DatabaseName(environment, serviceName, tenant string) string {
	return strings.ToLower(fmt.Sprintf("db_svc_%s__%s__%s", serviceName, tenant, environment))
}

// SecretName derives the secret-store key holding the connection string for
// a tenant's per-service database. Pure and deterministic like DatabaseName.
func SecretName(environment, serviceName, tenant string) string {
	return strings.ToLower(fmt.Sprintf("kv-conn-svc-%s-%s-%s", serviceName, tenant, environment))
}
