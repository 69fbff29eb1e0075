// Package orders is the order service catalogue: resource types, the query
// endpoints with the tags they provide, the mutations with the tags they
// invalidate, and the push handler for live order updates.
package orders

import (
	"strings"
	"time"
)

type User struct {
	ID        string `json:"_id"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Email     string `json:"email"`
}

// Status is an order's progress through video generation.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

type Order struct {
	ID             string    `json:"_id"`
	ProductName    string    `json:"productName"`
	Description    string    `json:"description"`
	AvatarID       string    `json:"avatarId"`
	VoiceID        string    `json:"voiceId"`
	ScriptLanguage string    `json:"scriptLanguage"`
	ScriptLength   int       `json:"scriptLength"`
	Emotion        string    `json:"emotion"`
	Images         []string  `json:"images,omitempty"`
	Status         Status    `json:"orderStatus"`
	VideoURL       string    `json:"video_url,omitempty"`
	ThumbnailURL   string    `json:"thumbnail_url,omitempty"`
	RetryCount     int       `json:"retryCount,omitempty"`
	RetryLimit     int       `json:"retryLimit,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
}

// Product is one generated script/image pair of an order.
type Product struct {
	ID     string `json:"_id"`
	Order  string `json:"order,omitempty"`
	Name   string `json:"name"`
	Script string `json:"script"`
	Image  string `json:"image"`
}

type Avatar struct {
	ID       string `json:"_id"`
	Name     string `json:"avatar_name"`
	Preview  string `json:"preview_image_url"`
	Gender   string `json:"gender"`
	AvatarID string `json:"avatar_id,omitempty"`
}

type Voice struct {
	ID           string `json:"_id"`
	Name         string `json:"name"`
	Gender       string `json:"gender"`
	Language     string `json:"language"`
	PreviewAudio string `json:"preview_audio"`
}

// VoicesForLanguage keeps the voices that speak lang (case-insensitive).
func VoicesForLanguage(voices []Voice, lang string) []Voice {
	var out []Voice
	for _, v := range voices {
		if strings.EqualFold(v.Language, lang) {
			out = append(out, v)
		}
	}
	return out
}

// ScriptLength is the requested length of a generated script.
type ScriptLength string

const (
	ScriptShort  ScriptLength = "Short"
	ScriptMedium ScriptLength = "Medium"
	ScriptLong   ScriptLength = "Long"
)

// Words is the word budget sent to the server. "" counts as Short.
func (l ScriptLength) Words() (int, bool) {
	switch l {
	case "", ScriptShort:
		return 150, true
	case ScriptMedium:
		return 250, true
	case ScriptLong:
		return 350, true
	default:
		return 0, false
	}
}
