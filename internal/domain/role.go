package domain

// Role names issued by the auth layer inside the access token.
const (
	RoleAdmin = "admin"
	RoleUser  = "user"
)
