package auth

// Scopes checked by the HTTP handlers.
const (
	ScopeActivitiesWrite = "activities:write"
	ScopeActivitiesRead  = "activities:read"
	ScopeChallengesWrite = "challenges:write"
	ScopeChallengesRead  = "challenges:read"
)
