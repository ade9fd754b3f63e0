package delphi

import (
	"fmt"
	"net/url"
	"strings"
)

// Scope identifies the tenant, project and ACL entry attached to every
// editing API request. Derived from a CMS URL or from discrete config
// fields; URL-derived values win when both are present.
type Scope struct {
	TenantID   string
	ProjectID  string
	ACLEntryID string
}

// ParseCMSURL extracts the scope from a CMS URL of the form
//
//	https://xxx.askdelphi.example/cms/tenant/{TENANT}/project/{PROJECT}/acl/{ACL}/...
//
// The tenant/project/acl segments must appear contiguously and in that
// order. The three IDs are opaque non-empty path segments; no stricter
// format is enforced. Returns ErrConfig when the pattern is absent.
func ParseCMSURL(raw string) (Scope, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return Scope{}, fmt.Errorf("%w: parsing CMS URL %q: %v", ErrConfig, raw, err)
	}

	segments := strings.Split(strings.Trim(u.Path, "/"), "/")

	for i := 0; i+5 < len(segments); i++ {
		if !strings.EqualFold(segments[i], "tenant") ||
			!strings.EqualFold(segments[i+2], "project") ||
			!strings.EqualFold(segments[i+4], "acl") {
			continue
		}

		scope := Scope{
			TenantID:   segments[i+1],
			ProjectID:  segments[i+3],
			ACLEntryID: segments[i+5],
		}

		if scope.TenantID == "" || scope.ProjectID == "" || scope.ACLEntryID == "" {
			continue
		}

		return scope, nil
	}

	return Scope{}, fmt.Errorf(
		"%w: could not parse CMS URL %q; expected .../tenant/{id}/project/{id}/acl/{id}/...",
		ErrConfig, raw)
}
