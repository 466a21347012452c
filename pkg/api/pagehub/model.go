package pagehub

import (
	"errors"
	"fmt"
	"time"

	"github.com/relaydesk/backend/pkg/api"
)

// ErrUnauthenticated tags a 401 answer: the token was rejected upstream.
var ErrUnauthenticated = errors.New("pagehub rejected the access token")

// ErrNotFound tags a 404 answer for a specific object.
var ErrNotFound = errors.New("pagehub object not found")

// ErrUnavailable tags network failures and 5xx answers.
var ErrUnavailable = errors.New("pagehub unavailable")

// RateLimitedError tags a 429 answer with the provider-declared delay.
type RateLimitedError struct {
	RetryAfter time.Duration
}

func (e RateLimitedError) Error() string {
	return fmt.Sprintf("pagehub rate limited, retry after %s", e.RetryAfter)
}

type Page struct {
	ID             string `json:"id"`
	Title          string `json:"title"`
	Icon           string `json:"icon"`
	URL            string `json:"url"`
	CollectionID   string `json:"collection_id,omitempty"`
	LastEditedTime string `json:"last_edited_time,omitempty"`
}

type Collection struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	Icon  string `json:"icon"`
	URL   string `json:"url"`
}

type Member struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Email     string `json:"email,omitempty"`
	AvatarURL string `json:"avatar_url,omitempty"`
	Kind      string `json:"kind"`
}

// parsePage normalizes one raw search/query result of kind page. Title and
// icon live in provider-specific nested structures; their absence decodes to
// an empty string, never an error.
func parsePage(obj api.JSON) Page {
	id, _ := obj.GetString("id")
	url, _ := obj.GetString("url")
	collectionID, _ := obj.GetString("parent.collection_id")
	lastEdited, _ := obj.GetString("last_edited_time")

	return Page{
		ID:             id,
		Title:          extractTitle(obj),
		Icon:           extractIcon(obj),
		URL:            url,
		CollectionID:   collectionID,
		LastEditedTime: lastEdited,
	}
}

func parseCollection(obj api.JSON) Collection {
	id, _ := obj.GetString("id")
	url, _ := obj.GetString("url")

	return Collection{
		ID:    id,
		Title: extractTitle(obj),
		Icon:  extractIcon(obj),
		URL:   url,
	}
}

func parseMember(obj api.JSON) Member {
	id, _ := obj.GetString("id")
	name, _ := obj.GetString("name")
	email, _ := obj.GetString("person.email")
	avatar, _ := obj.GetString("avatar_url")
	kind, _ := obj.GetString("type")

	return Member{
		ID:        id,
		Name:      name,
		Email:     email,
		AvatarURL: avatar,
		Kind:      kind,
	}
}

// extractTitle walks the places Pagehub has kept titles across API
// revisions: a bare "title" rich-text list on collections, and a title
// property inside "properties" on pages.
func extractTitle(obj api.JSON) string {
	if title, err := richText(obj, "title"); err == nil && title != "" {
		return title
	}

	properties, err := obj.GetJSON("properties")
	if err != nil || properties == nil {
		return ""
	}

	for name := range properties {
		property, err := properties.GetJSON(name)
		if err != nil || property == nil {
			continue
		}

		kind, _ := property.GetString("type")
		if kind != "title" {
			continue
		}

		if title, err := richText(property, "title"); err == nil {
			return title
		}
	}

	return ""
}

// richText concatenates the plain_text fragments of a rich-text list.
func richText(obj api.JSON, key string) (string, error) {
	fragments, err := obj.GetArray(key)
	if err != nil {
		return "", err
	}

	var text string
	for _, fragment := range fragments {
		m, ok := fragment.(map[string]any)
		if !ok {
			continue
		}

		plain, _ := api.JSON(m).GetString("plain_text")
		text += plain
	}

	return text, nil
}

// extractIcon prefers an emoji icon, then an external or hosted file URL.
func extractIcon(obj api.JSON) string {
	icon, err := obj.GetJSON("icon")
	if err != nil || icon == nil {
		return ""
	}

	if emoji, err := icon.GetString("emoji"); err == nil && emoji != "" {
		return emoji
	}

	if url, err := icon.GetString("external.url"); err == nil && url != "" {
		return url
	}

	if url, err := icon.GetString("file.url"); err == nil && url != "" {
		return url
	}

	return ""
}
