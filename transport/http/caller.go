package http

import (
	"net/http"

	"github.com/agentgraph/engine/runtime/graph"
)

// callerFromRequest reads the caller identity the request arrives with.
// Authentication itself (verifying a cookie or bearer token) is outside the
// core per spec §6.2; this only trusts headers a fronting auth layer is
// expected to set after verification.
func callerFromRequest(r *http.Request) graph.Caller {
	return graph.Caller{
		UserID: r.Header.Get("X-User-Id"),
		Role:   roleFromHeader(r.Header.Get("X-User-Role")),
	}
}

func roleFromHeader(v string) graph.Role {
	switch v {
	case "viewer":
		return graph.RoleViewer
	case "editor":
		return graph.RoleEditor
	case "deployer":
		return graph.RoleDeployer
	case "owner":
		return graph.RoleOwner
	default:
		return graph.RoleNone
	}
}
