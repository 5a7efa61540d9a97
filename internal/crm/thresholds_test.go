package crm

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsConnected(t *testing.T) {
	tests := []struct {
		duration int
		want     bool
	}{
		{0, false},
		{89, false},
		{90, false},
		{91, true},
		{3600, true},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, IsConnected(tt.duration),
			"IsConnected(%d)", tt.duration)
	}
}

func TestIsAutomatedEmail(t *testing.T) {
	phrases := AutomatedEmailPhrases

	t.Run("four of five matches", func(t *testing.T) {
		body := strings.Join(phrases[:4], "\n")
		assert.True(t, IsAutomatedEmail(body))
	})

	t.Run("all five in upper case", func(t *testing.T) {
		body := strings.ToUpper(strings.Join(phrases[:], " "))
		assert.True(t, IsAutomatedEmail(body))
	})

	t.Run("three matches is genuine", func(t *testing.T) {
		body := "Hi Ana, " + strings.Join(phrases[1:4], ". ")
		assert.False(t, IsAutomatedEmail(body))
	})

	t.Run("empty body", func(t *testing.T) {
		assert.False(t, IsAutomatedEmail(""))
	})
}

func TestIsPlaceholder(t *testing.T) {
	for _, v := range []string{"", "-", "NA", "na", "N/A", "n/a"} {
		assert.True(t, IsPlaceholder(v), "%q", v)
	}
	for _, v := range []string{"Na", "North America", " ", "none"} {
		assert.False(t, IsPlaceholder(v), "%q", v)
	}
}

func TestContactIsActive(t *testing.T) {
	var c Contact
	assert.False(t, c.IsActive())

	c.Analytics.IncomingEmails = 1
	assert.True(t, c.IsActive())

	c.Analytics = Analytics{ConnectedCalls: 1, OutgoingEmails: 4}
	assert.True(t, c.IsActive())
}

func TestConversationCallDuration(t *testing.T) {
	conv := Conversation{Type: ConversationPhone}
	assert.Equal(t, 0, conv.CallDuration())

	d := 120
	conv.Duration = &d
	assert.Equal(t, 120, conv.CallDuration())
	assert.True(t, conv.IsOutgoingCall())

	conv.Direction = "Incoming"
	assert.False(t, conv.IsOutgoingCall())
}
