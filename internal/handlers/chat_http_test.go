package handlers

import (
	"testing"

	"github.com/medivuno/medivuno-backend/internal/models"
)

func TestSendMessageRequestValidation(t *testing.T) {
	cases := []struct {
		name string
		req  sendMessageRequest
		want bool
	}{
		{"text only", sendMessageRequest{RecipientID: "doctor-1", Text: "hello"}, true},
		{"file only", sendMessageRequest{RecipientID: "doctor-1", File: &models.FileRef{URL: "https://example.com/scan.pdf"}}, true},
		{"text and file", sendMessageRequest{RecipientID: "doctor-1", Text: "see attached", File: &models.FileRef{URL: "https://example.com/scan.pdf"}}, true},
		{"missing recipient", sendMessageRequest{Text: "hello"}, false},
		{"empty body", sendMessageRequest{}, false},
		{"no content", sendMessageRequest{RecipientID: "doctor-1"}, false},
		{"file without url", sendMessageRequest{RecipientID: "doctor-1", File: &models.FileRef{Name: "scan.pdf"}}, false},
	}
	for _, c := range cases {
		if got := c.req.valid(); got != c.want {
			t.Errorf("%s: valid() = %v, want %v", c.name, got, c.want)
		}
	}
}

func TestExtractBearerToken(t *testing.T) {
	cases := []struct {
		header string
		want   string
	}{
		{"Bearer abc123", "abc123"},
		{"bearer abc123", "abc123"},
		{"Bearer  abc123 ", "abc123"},
		{"Basic abc123", ""},
		{"abc123", ""},
		{"", ""},
	}
	for _, c := range cases {
		if got := extractBearerToken(c.header); got != c.want {
			t.Errorf("extractBearerToken(%q) = %q, want %q", c.header, got, c.want)
		}
	}
}
