package graph

// Role is a caller's resolved workspace role on a graph's workspace. The
// engine never computes roles itself: the caller arrives with a role
// already resolved by whatever owns authentication and membership, per the
// boundary the engine treats as "caller identity + resolved permission on a
// resource".
type Role int

const (
	RoleNone Role = iota
	RoleViewer
	RoleEditor
	RoleDeployer
	RoleOwner
)

// Caller is the identity and resolved permission a GraphResolver call, or a
// deployment-version operation, is authorized against.
type Caller struct {
	UserID string
	Role   Role
}

// CanView reports whether the caller may read a graph owned by ownerID: the
// caller is the owner outright, or holds at least viewer on the workspace.
func (c Caller) CanView(ownerID string) bool {
	return c.UserID == ownerID || c.Role >= RoleViewer
}

// CanDeploy reports whether the caller may deploy, undeploy, activate,
// revert, or delete a version of a graph owned by ownerID.
func (c Caller) CanDeploy(ownerID string) bool {
	return c.UserID == ownerID || c.Role >= RoleDeployer
}
