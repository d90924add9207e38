package types

// RepositoryInfo contains repository coordinates for a task
type RepositoryInfo struct {
	Owner  string `json:"owner"`
	Name   string `json:"name"`
	Path   string `json:"path"`
	Remote string `json:"remote"`
	Trunk  string `json:"trunk"`
}

// RemoteTrunk returns the remote-tracking ref of the integration branch.
func (r RepositoryInfo) RemoteTrunk() string {
	return r.Remote + "/" + r.Trunk
}
