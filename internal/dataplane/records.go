package dataplane

// Raw configuration records as returned by the HAProxy Data Plane API.
// Every field the collector reads is optional on the wire; a missing field
// decodes to a nil pointer and is never treated as an error.

// Backend is one element of the backends listing
type Backend struct {
	Name *string `json:"name,omitempty"`
	Mode *string `json:"mode,omitempty"`
}

// Frontend is one element of the frontends listing
type Frontend struct {
	Name           *string `json:"name,omitempty"`
	Mode           *string `json:"mode,omitempty"`
	DefaultBackend *string `json:"default_backend,omitempty"`
}

// Server is one element of a backend's server listing
type Server struct {
	Name    *string `json:"name,omitempty"`
	Address *string `json:"address,omitempty"`
	Port    *int    `json:"port,omitempty"`
}

// HTTPRequestRule is one element of a backend's http_request_rules listing
type HTTPRequestRule struct {
	Type      *string `json:"type,omitempty"`
	HdrName   *string `json:"hdr_name,omitempty"`
	HdrFormat *string `json:"hdr_format,omitempty"`
	Cond      *string `json:"cond,omitempty"`
	CondTest  *string `json:"cond_test,omitempty"`
}

// ACL is one element of a frontend's acls listing
type ACL struct {
	ACLName   *string `json:"acl_name,omitempty"`
	Criterion *string `json:"criterion,omitempty"`
	Value     *string `json:"value,omitempty"`
}

// BackendSwitchingRule is one element of a frontend's
// backend_switching_rules listing. Name is the target backend.
type BackendSwitchingRule struct {
	Name     *string `json:"name,omitempty"`
	Cond     *string `json:"cond,omitempty"`
	CondTest *string `json:"cond_test,omitempty"`
}
