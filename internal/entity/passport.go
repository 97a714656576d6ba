// Structure of the Passport Model in Berserk.

package entity

// Passport is the session identity handed out by the server on login.
// The token inside it authenticates both REST calls and the global channel.
type Passport struct {
	ID           int    `json:"id"`
	Token        string `json:"token"`
	DisplayName  string `json:"display_name"`
	AvatarURL    string `json:"avatar_url,omitempty"`
	Bio          string `json:"bio,omitempty"`
	DiscordID    string `json:"discord_id,omitempty"`
	ContactEmail string `json:"contact_email,omitempty"`
	Instagram    string `json:"instagram,omitempty"`
	Facebook     string `json:"facebook,omitempty"`
}
