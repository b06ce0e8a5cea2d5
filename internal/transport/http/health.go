package http

import (
	"net/http"
	"time"
)

// GatewayInfo is the health view of the gateway configuration. Credentials
// are reported as presence booleans only.
type GatewayInfo struct {
	AccountID        string
	ChannelID        int
	HasAuthToken     bool
	HasWebhookSecret bool
	CallbackURL      string
}

type healthResponse struct {
	Status    string          `json:"status"`
	Timestamp time.Time       `json:"timestamp"`
	Gateway   gatewayInfoBody `json:"gateway"`
}

type gatewayInfoBody struct {
	AccountID        string `json:"account_id"`
	ChannelID        int    `json:"channel_id"`
	HasAuthToken     bool   `json:"has_auth_token"`
	HasWebhookSecret bool   `json:"has_webhook_secret"`
	CallbackURL      string `json:"callback_url"`
}

// HealthHandler reports liveness plus which gateway settings are configured,
// so a misconfigured deployment is visible without leaking any secret.
func HealthHandler(info GatewayInfo) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, healthResponse{
			Status:    "healthy",
			Timestamp: time.Now().UTC(),
			Gateway: gatewayInfoBody{
				AccountID:        info.AccountID,
				ChannelID:        info.ChannelID,
				HasAuthToken:     info.HasAuthToken,
				HasWebhookSecret: info.HasWebhookSecret,
				CallbackURL:      info.CallbackURL,
			},
		})
	}
}
