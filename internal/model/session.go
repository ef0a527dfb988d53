package model

import "time"

// Session backs one signed-in device on the cloud service. Refresh tokens
// carry the session id, so deleting the row signs the device out.
type Session struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	ExpiresAt time.Time `json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
}
