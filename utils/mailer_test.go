package utils

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMailer_ComposeDetectsHTML(t *testing.T) {
	m := NewMailer("smtp.example.com", 587, "user", "pass", "crm@example.com", "Fitness CRM")

	tests := []struct {
		name        string
		body        string
		contentType string
	}{
		{name: "plain", body: "Your membership ends soon", contentType: "text/plain"},
		{name: "html", body: "<p>Your membership ends soon</p>", contentType: "text/html"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := m.compose("member@example.com", "Reminder", tt.body)

			require.Equal(t, []string{"Reminder"}, msg.GetHeader("Subject"))
			require.Equal(t, []string{"member@example.com"}, msg.GetHeader("To"))

			var buf bytes.Buffer
			_, err := msg.WriteTo(&buf)
			require.NoError(t, err)
			require.Contains(t, buf.String(), "Content-Type: "+tt.contentType)
		})
	}
}
