package fcm

import (
	"time"

	"github.com/ibrahimkhan7059/Edubazaar/internal/domain"
)

const (
	// bodyMaxLength is a hard contract: longer message text never reaches
	// the gateway verbatim.
	bodyMaxLength = 100

	placeholderBody = "New message"
	eventType       = "message_inserted"

	androidChannelID   = "edubazaar_messages"
	androidClickAction = "FLUTTER_NOTIFICATION_CLICK"
	androidIcon        = "@mipmap/ic_launcher"
	androidColor       = "#6366f1"
)

// SendRequest is the FCM HTTP v1 request envelope.
type SendRequest struct {
	Message Message `json:"message"`
}

// Message is the FCM HTTP v1 wire message for a single device token.
type Message struct {
	Token        string            `json:"token"`
	Notification Notification      `json:"notification"`
	Data         map[string]string `json:"data"`
	Android      AndroidConfig     `json:"android"`
	APNS         APNSConfig        `json:"apns"`
}

type Notification struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

type AndroidConfig struct {
	Priority     string              `json:"priority"`
	Notification AndroidNotification `json:"notification"`
}

type AndroidNotification struct {
	Sound       string `json:"sound"`
	ClickAction string `json:"click_action"`
	ChannelID   string `json:"channel_id"`
	Icon        string `json:"icon"`
	Color       string `json:"color"`
}

type APNSConfig struct {
	Payload APNSPayload `json:"payload"`
}

type APNSPayload struct {
	Aps Aps `json:"aps"`
}

type Aps struct {
	Sound            string `json:"sound"`
	Badge            int    `json:"badge"`
	ContentAvailable int    `json:"content-available"`
}

// BuildMessage maps one chat notification onto the wire message for one
// device token. Pure function, no I/O; the timestamp is generated at build
// time.
func BuildMessage(n *domain.PendingNotification, token string) *Message {
	senderName := n.SenderName
	if senderName == "" {
		senderName = "Someone"
	}

	body := n.MessageText
	if body == "" {
		body = placeholderBody
	}
	if runes := []rune(body); len(runes) > bodyMaxLength {
		body = string(runes[:bodyMaxLength])
	}

	return &Message{
		Token: token,
		Notification: Notification{
			Title: "New message from " + senderName,
			Body:  body,
		},
		Data: map[string]string{
			"type":           eventType,
			"conversationId": n.ConversationID,
			"messageId":      n.MessageID,
			"senderId":       n.SenderID,
			"senderName":     n.SenderName,
			"timestamp":      time.Now().UTC().Format(time.RFC3339),
		},
		Android: AndroidConfig{
			Priority: "high",
			Notification: AndroidNotification{
				Sound:       "default",
				ClickAction: androidClickAction,
				ChannelID:   androidChannelID,
				Icon:        androidIcon,
				Color:       androidColor,
			},
		},
		APNS: APNSConfig{
			Payload: APNSPayload{
				Aps: Aps{
					Sound:            "default",
					Badge:            1,
					ContentAvailable: 1,
				},
			},
		},
	}
}
