// Structure of the Notification Model in Berserk.

package entity

// Notification is one persisted entry behind the notification bell.
// The server's DB assigns the authoritative id and timestamp, which is why
// the notification store refreshes over REST instead of trusting socket payloads.
type Notification struct {
	ID        int    `json:"id"`
	BrawlerID int    `json:"brawler_id"`
	Type      string `json:"type"`
	Content   string `json:"content"`
	RelatedID int    `json:"related_id,omitempty"`
	IsRead    bool   `json:"is_read"`
	CreatedAt string `json:"created_at"`
}
