package live

import "time"

// Stream is a live stream merged with its owner's user record.
type Stream struct {
	UserID          string    `json:"user_id"`
	UserLogin       string    `json:"user_login"`
	UserName        string    `json:"user_name"`
	Title           string    `json:"title"`
	GameName        string    `json:"game_name"`
	ViewerCount     int       `json:"viewer_count"`
	StartedAt       time.Time `json:"started_at"`
	ThumbnailURL    string    `json:"thumbnail_url"`
	ProfileImageURL string    `json:"profile_image_url"`
}
