package auth

// OAuth scopes accepted by the study streak API.
const (
	ScopeStudyWrite = "study:write"
	ScopeStudyRead  = "study:read"
)
