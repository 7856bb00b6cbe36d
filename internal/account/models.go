package account

// Account is the local identity record a Discord login maps onto. At most one
// account exists per Discord ID; the store's uniqueness guarantee on that
// column is the authoritative guard against concurrent first logins.
type Account struct {
	ID            string
	Username      string
	Email         string
	DiscordID     string
	DiscordAvatar string
	Locale        string
	Roles         []string
}

// DefaultRoles is assigned at account creation. The login flow never mutates
// roles afterwards; role management belongs to a separate admin surface.
func DefaultRoles() []string {
	return []string{"member"}
}
