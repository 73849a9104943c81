package storage

// Profile is the last-known user profile cached next to the bearer token.
type Profile struct {
	ID        string
	Name      string
	Email     string
	AvatarURL string
}

// Keys names the two entries owned by the session manager.
type Keys struct {
	Token   string
	Profile string
}

// DefaultKeys matches the keys used by the web client.
var DefaultKeys = Keys{
	Token:   "auth_token",
	Profile: "user",
}
