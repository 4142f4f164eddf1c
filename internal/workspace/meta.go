package workspace

import "time"

// Meta is the authoritative on-disk record at <workspace>/meta.json (§6). Its
// schema must stay forward-compatible — unknown fields are ignored on
// decode, which encoding/json already does for us as long as we never fail
// on unrecognized keys.
type Meta struct {
	ID        string            `json:"id"`
	Mode      string            `json:"mode"`
	Status    string            `json:"status"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
	ImageRef  string            `json:"image_ref,omitempty"`
	Outputs   map[string]string `json:"outputs,omitempty"`
	LastError string            `json:"last_error,omitempty"`

	Namespace   string            `json:"namespace,omitempty"`
	RepoURL     string            `json:"repo_url,omitempty"`
	Replicas    int               `json:"replicas,omitempty"`
	Domain      string            `json:"domain,omitempty"`
	EnvVars     map[string]string `json:"env_vars,omitempty"`
	SourceCommit string           `json:"source_commit,omitempty"`
	EC2KeyName  string            `json:"ec2_key_name,omitempty"`
}
