// Package notify renders live-stream notifications and delivers them to
// chat transports.
package notify

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/onnwee/streamwatch/live"
)

// TwitchPurple is the embed accent color.
const TwitchPurple = 0x6441A4

const (
	thumbWidth  = "320"
	thumbHeight = "180"
	footerText  = "Twitch Stream Notification"
)

// Field is one labelled value of a notification.
type Field struct {
	Name   string
	Value  string
	Inline bool
}

// Message is a rendered notification, independent of any transport.
type Message struct {
	Title        string
	URL          string
	ThumbnailURL string
	ImageURL     string
	Fields       []Field
	Color        int
	Footer       string
	Timestamp    time.Time
}

// Render builds the notification for a live stream.
func Render(s live.Stream) Message {
	title := s.Title
	if title == "" {
		title = "No title"
	}
	game := s.GameName
	if game == "" {
		game = "Not specified"
	}
	image := ""
	if s.ThumbnailURL != "" {
		image = strings.NewReplacer("{width}", thumbWidth, "{height}", thumbHeight).Replace(s.ThumbnailURL)
	}
	return Message{
		Title:        fmt.Sprintf("Hey, %s is live!", s.UserName),
		URL:          "https://twitch.tv/" + s.UserLogin,
		ThumbnailURL: s.ProfileImageURL,
		ImageURL:     image,
		Fields: []Field{
			{Name: "Stream Title", Value: title},
			{Name: "Playing", Value: game, Inline: true},
			{Name: "Viewers", Value: strconv.Itoa(s.ViewerCount), Inline: true},
		},
		Color:     TwitchPurple,
		Footer:    footerText,
		Timestamp: s.StartedAt,
	}
}

// Text flattens the message to a single line for plain-text transports such as IRC.
func (m Message) Text() string {
	var b strings.Builder
	b.WriteString(m.Title)
	for _, f := range m.Fields {
		b.WriteString(" | ")
		b.WriteString(f.Name)
		b.WriteString(": ")
		b.WriteString(f.Value)
	}
	if m.URL != "" {
		b.WriteString(" | ")
		b.WriteString(m.URL)
	}
	return b.String()
}
