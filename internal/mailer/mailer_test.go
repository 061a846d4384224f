package mailer

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestListingCreatedMessage(t *testing.T) {
	msg := listingCreatedMessage("noreply@patidost.app", "owner@example.com", "Luna")

	assert.Equal(t, []string{"noreply@patidost.app"}, msg.GetHeader("From"))
	assert.Equal(t, []string{"owner@example.com"}, msg.GetHeader("To"))
	assert.Equal(t, []string{"Your listing is live"}, msg.GetHeader("Subject"))
}

func TestSendListingCreatedEmail_EmptyRecipient(t *testing.T) {
	m := NewSMTPMailer(Config{Host: "localhost", Port: 2525, From: "noreply@patidost.app"})

	err := m.SendListingCreatedEmail("", "Luna")

	assert.Error(t, err)
}
