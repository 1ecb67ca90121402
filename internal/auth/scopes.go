package auth

// Known OAuth scopes used by the query surface.
const (
	ScopePlansRead    = "plans:read"
	ScopeOverlapsRead = "overlaps:read"
)
