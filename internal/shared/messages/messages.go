package messages

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
)

type MessageText struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

type Messages struct {
	ConnectionRevoked MessageText `json:"connection_revoked"`
	ConnectionExpired MessageText `json:"connection_expired"`
	ConnectionError   MessageText `json:"connection_error"`
	DonationCompleted MessageText `json:"donation_completed"`
	DonationFailed    MessageText `json:"donation_failed"`
}

var (
	loaded   Messages
	loadOnce sync.Once
	loadErr  error
)

// Load reads the notifications JSON file and caches the result.
// Safe to call from multiple goroutines.
func Load(path string) (*Messages, error) {
	loadOnce.Do(func() {
		data, err := os.ReadFile(path)
		if err != nil {
			loadErr = fmt.Errorf("failed to read messages file: %w", err)
			return
		}
		if err := json.Unmarshal(data, &loaded); err != nil {
			loadErr = fmt.Errorf("failed to parse messages file: %w", err)
		}
	})
	if loadErr != nil {
		return nil, loadErr
	}
	return &loaded, nil
}

// Default returns built-in message texts, used when no messages file is
// configured or it fails to load.
func Default() *Messages {
	return &Messages{
		ConnectionRevoked: MessageText{
			Title: "Bank connection disconnected",
			Body:  "Access to your bank account was revoked. Reconnect to keep rounding up.",
		},
		ConnectionExpired: MessageText{
			Title: "Bank consent expired",
			Body:  "Your bank access consent expired. Reconnect to keep rounding up.",
		},
		ConnectionError: MessageText{
			Title: "Bank connection needs attention",
			Body:  "We could not refresh your bank connection. Please sign in again.",
		},
		DonationCompleted: MessageText{
			Title: "Donation sent",
			Body:  "Your round-ups were donated to your chosen cause. Thank you!",
		},
		DonationFailed: MessageText{
			Title: "Donation payment failed",
			Body:  "We could not process your round-up donation. We'll retry on the next cycle.",
		},
	}
}
