package notify

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/onnwee/streamwatch/live"
)

// rewriteTransport sends every request to the test server, keeping the path.
type rewriteTransport struct{ target *url.URL }

func (rt rewriteTransport) RoundTrip(r *http.Request) (*http.Response, error) {
	r = r.Clone(r.Context())
	r.URL.Scheme = rt.target.Scheme
	r.URL.Host = rt.target.Host
	r.Host = ""
	return http.DefaultTransport.RoundTrip(r)
}

func newWebhook(t *testing.T, handler http.HandlerFunc) *DiscordWebhook {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	u, _ := url.Parse(srv.URL)
	d, err := NewDiscordWebhook("https://discord.com/api/webhooks/123/secret-token", &http.Client{Transport: rewriteTransport{target: u}})
	if err != nil {
		t.Fatalf("NewDiscordWebhook() error = %v", err)
	}
	return d
}

func TestDiscordWebhook_PostsEmbed(t *testing.T) {
	var got struct {
		Embeds []*discordgo.MessageEmbed `json:"embeds"`
	}
	d := newWebhook(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s", r.Method)
		}
		if !strings.HasSuffix(r.URL.Path, "/webhooks/123/secret-token") {
			t.Errorf("path = %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("bad body: %v", err)
		}
		w.WriteHeader(http.StatusNoContent)
	})

	started := time.Date(2024, 5, 1, 18, 0, 0, 0, time.UTC)
	msg := Render(live.Stream{UserLogin: "alice", UserName: "Alice", StartedAt: started, ThumbnailURL: "t-{width}-{height}", ProfileImageURL: "p"})
	if err := d.Deliver(context.Background(), msg); err != nil {
		t.Fatalf("Deliver() error = %v", err)
	}

	if len(got.Embeds) != 1 {
		t.Fatalf("embeds = %d", len(got.Embeds))
	}
	e := got.Embeds[0]
	if e.Title != "Hey, Alice is live!" || e.Color != TwitchPurple {
		t.Errorf("embed = %+v", e)
	}
	if e.Image == nil || e.Image.URL != "t-320-180" {
		t.Errorf("image = %+v", e.Image)
	}
	if e.Thumbnail == nil || e.Thumbnail.URL != "p" {
		t.Errorf("thumbnail = %+v", e.Thumbnail)
	}
	if e.Timestamp != "2024-05-01T18:00:00Z" {
		t.Errorf("timestamp = %q", e.Timestamp)
	}
	if len(e.Fields) != 3 || !e.Fields[1].Inline || e.Fields[0].Inline {
		t.Errorf("fields = %+v", e.Fields)
	}
}

func TestDiscordWebhook_ErrorStatus(t *testing.T) {
	d := newWebhook(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"code": 50006, "message": "Cannot send an empty message"}`))
	})

	err := d.Deliver(context.Background(), Message{Title: "x"})
	var de *DeliveryError
	if !errors.As(err, &de) {
		t.Fatalf("error = %v, want *DeliveryError", err)
	}
	if de.Target != "discord-webhook" {
		t.Errorf("Target = %q", de.Target)
	}
	var rest *discordgo.RESTError
	if !errors.As(err, &rest) || rest.Response.StatusCode != http.StatusBadRequest {
		t.Errorf("cause = %v, want 400 RESTError", err)
	}
}

func TestParseWebhookURL(t *testing.T) {
	tests := []struct {
		raw       string
		id, token string
		wantErr   bool
	}{
		{raw: "https://discord.com/api/webhooks/1/abc", id: "1", token: "abc"},
		{raw: "https://discord.com/api/v10/webhooks/42/tok/", id: "42", token: "tok"},
		{raw: "https://discord.com/api/webhooks/1", wantErr: true},
		{raw: "https://example.com/hook", wantErr: true},
	}
	for _, tt := range tests {
		id, token, err := parseWebhookURL(tt.raw)
		if (err != nil) != tt.wantErr {
			t.Errorf("parseWebhookURL(%q) error = %v, wantErr %v", tt.raw, err, tt.wantErr)
			continue
		}
		if id != tt.id || token != tt.token {
			t.Errorf("parseWebhookURL(%q) = %q, %q", tt.raw, id, token)
		}
	}
}

type fakeDiscord struct {
	channel string
	sent    []*discordgo.MessageEmbed
	edits   []*discordgo.WebhookEdit
	err     error
}

func (f *fakeDiscord) ChannelMessageSendEmbed(channelID string, embed *discordgo.MessageEmbed, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.channel = channelID
	f.sent = append(f.sent, embed)
	return &discordgo.Message{}, nil
}

func (f *fakeDiscord) InteractionResponseEdit(_ *discordgo.Interaction, edit *discordgo.WebhookEdit, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.edits = append(f.edits, edit)
	return &discordgo.Message{}, nil
}

func TestDiscordChannelAndInteraction(t *testing.T) {
	fd := &fakeDiscord{}
	msg := Message{Title: "Hey, A is live!", Color: TwitchPurple}

	if err := (&DiscordChannel{Session: fd, ChannelID: "c1"}).Deliver(context.Background(), msg); err != nil {
		t.Fatalf("DiscordChannel: %v", err)
	}
	if fd.channel != "c1" || len(fd.sent) != 1 || fd.sent[0].Title != msg.Title {
		t.Errorf("channel send = %q %+v", fd.channel, fd.sent)
	}

	in := &discordgo.Interaction{ID: "i1"}
	if err := (&DiscordInteraction{Session: fd, Interaction: in}).Deliver(context.Background(), msg); err != nil {
		t.Fatalf("DiscordInteraction: %v", err)
	}
	if len(fd.edits) != 1 || fd.edits[0].Embeds == nil || (*fd.edits[0].Embeds)[0].Title != msg.Title {
		t.Errorf("interaction edits = %+v", fd.edits)
	}

	if err := (&DiscordChannel{Session: fd}).Deliver(context.Background(), msg); err == nil {
		t.Error("expected error without a channel id")
	}
	fd.err = errors.New("gateway down")
	var de *DeliveryError
	if err := (&DiscordInteraction{Session: fd, Interaction: in}).Deliver(context.Background(), msg); !errors.As(err, &de) {
		t.Errorf("interaction error = %v, want *DeliveryError", err)
	}
}
