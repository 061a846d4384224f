package httpapi

import (
	"time"

	"github.com/patidost/listing-service/internal/chat"
	"github.com/patidost/listing-service/internal/listing/cache"
	"github.com/patidost/listing-service/internal/listing/domain"
	"github.com/patidost/listing-service/internal/session"
)

type listingResponse struct {
	ID            int64     `json:"id"`
	OwnerID       string    `json:"user_id"`
	Name          string    `json:"name"`
	Species       string    `json:"species"`
	Breed         string    `json:"breed"`
	Age           int       `json:"age"`
	Purpose       string    `json:"purpose"`
	Description   string    `json:"description"`
	Location      string    `json:"location"`
	ImageURL      string    `json:"image_url"`
	Gallery       []string  `json:"gallery"`
	OwnerName     string    `json:"owner_name"`
	OwnerPhotoURL string    `json:"owner_photo_url,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

func toListingResponse(l *domain.Listing) listingResponse {
	gallery := l.Gallery
	if gallery == nil {
		gallery = []string{}
	}
	return listingResponse{
		ID:            l.ID,
		OwnerID:       l.OwnerID,
		Name:          l.Name,
		Species:       string(l.Species),
		Breed:         l.Breed,
		Age:           l.Age,
		Purpose:       string(l.Purpose),
		Description:   l.Description,
		Location:      l.Location,
		ImageURL:      l.ImageURL,
		Gallery:       gallery,
		OwnerName:     l.DisplayOwner(),
		OwnerPhotoURL: l.OwnerPhotoURL,
		CreatedAt:     l.CreatedAt,
	}
}

func toListingResponses(listings []*domain.Listing) []listingResponse {
	out := make([]listingResponse, 0, len(listings))
	for _, l := range listings {
		out = append(out, toListingResponse(l))
	}
	return out
}

type sessionResponse struct {
	UserID      string    `json:"user_id"`
	Email       string    `json:"email"`
	AccessToken string    `json:"access_token,omitempty"`
	ExpiresAt   time.Time `json:"expires_at,omitempty"`
	DisplayName string    `json:"display_name"`
	PhotoURL    string    `json:"photo_url,omitempty"`
	City        string    `json:"city,omitempty"`
}

// withToken is only set on login and register responses.
func toSessionResponse(id *session.Identity, withToken bool) sessionResponse {
	resp := sessionResponse{
		UserID:      id.UserID,
		Email:       id.Email,
		ExpiresAt:   id.ExpiresAt,
		DisplayName: id.Profile.DisplayName,
		PhotoURL:    id.Profile.PhotoURL,
		City:        id.Profile.City,
	}
	if withToken {
		resp.AccessToken = id.AccessToken
	}
	return resp
}

type credentialsRequest struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	DisplayName string `json:"display_name"`
}

type chatResponse struct {
	ID            string    `json:"id"`
	Users         []string  `json:"users"`
	LastMessage   string    `json:"last_message"`
	LastTimestamp time.Time `json:"last_timestamp"`
	Unread        int       `json:"unread"`
}

func toChatResponse(c *chat.Chat, userID string) chatResponse {
	return chatResponse{
		ID:            c.ID,
		Users:         c.Users,
		LastMessage:   c.LastMessage,
		LastTimestamp: c.LastTimestamp,
		Unread:        c.UnreadFor(userID),
	}
}

type messageResponse struct {
	ID        string    `json:"id"`
	ChatID    string    `json:"chat_id"`
	SenderID  string    `json:"sender_id"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

func toMessageResponse(m *chat.Message) messageResponse {
	return messageResponse{ID: m.ID, ChatID: m.ChatID, SenderID: m.SenderID, Text: m.Text, CreatedAt: m.CreatedAt}
}

type sendMessageRequest struct {
	Text string `json:"text"`
}

type alertResponse struct {
	Error string    `json:"error"`
	At    time.Time `json:"at"`
}

func toAlertResponses(alerts []cache.Alert) []alertResponse {
	out := make([]alertResponse, 0, len(alerts))
	for _, a := range alerts {
		out = append(out, alertResponse{Error: a.Err.Error(), At: a.At})
	}
	return out
}
