// Structure of mission chat and private message Models in Berserk.

package entity

// MissionComment is the server-assigned record for one message in a mission room.
type MissionComment struct {
	ID                 int    `json:"id"`
	MissionID          int    `json:"mission_id"`
	BrawlerID          int    `json:"brawler_id"`
	BrawlerDisplayName string `json:"brawler_display_name"`
	BrawlerAvatarURL   string `json:"brawler_avatar_url"`
	Content            string `json:"content"`
	CreatedAt          string `json:"created_at"`
}

// PrivateMessage is the server-assigned record for one direct message between two brawlers.
type PrivateMessage struct {
	ID         int    `json:"id"`
	SenderID   int    `json:"sender_id"`
	ReceiverID int    `json:"receiver_id"`
	Content    string `json:"content"`
	CreatedAt  string `json:"created_at"`
}

// AddComment is the request payload for posting a message to a mission room.
type AddComment struct {
	Content string `json:"content" valid:"required,type(string),stringlength(1|1000)~content:Message must be between 1 and 1000 characters"`
}

// AddPrivateMessage is the request payload for sending a direct message.
type AddPrivateMessage struct {
	ReceiverID int    `json:"receiver_id" valid:"required~receiver_id:Receiver is mandatory"`
	Content    string `json:"content" valid:"required,type(string),stringlength(1|1000)~content:Message must be between 1 and 1000 characters"`
}
