package tenant

// CookieName caches the resolved tenant id client-side so later requests
// skip the domain lookup.
const CookieName = "tenantId"

// Source records how a request's tenant binding was established.
type Source string

const (
	SourceCookie       Source = "cookie"
	SourceDomainLookup Source = "domain-lookup"
)

// Binding is the per-request association between an inbound request and a
// tenant. Exactly one binding is attached per request; requests whose tenant
// cannot be resolved never reach a page handler.
type Binding struct {
	TenantID string `json:"tenantId"`
	Domain   string `json:"domain"`
	Source   Source `json:"source"`
}
