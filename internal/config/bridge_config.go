package config

// BridgeConfig exposes the deployment-specific values of the Telegram bridge.
type BridgeConfig interface {
	GetBotUsername() string
	GetWebhookSecret() string
	GetMagicLinkSigningKey() []byte
	GetRedirectPath() string
}

type Bridge struct{}

var _ BridgeConfig = Bridge{}

// GetBotUsername returns the Telegram bot the hand-off deep link points at
func (Bridge) GetBotUsername() string {
	return GetEnv("TELEGRAM_BOT_USERNAME", "auth_bridge_bot")
}

// GetWebhookSecret returns the pre-shared secret the bot must present on its
// completion callback. Empty means the callback is disabled.
func (Bridge) GetWebhookSecret() string {
	return GetEnv("WEBHOOK_SECRET", "")
}

// GetMagicLinkSigningKey returns the HMAC key magic links are signed with
func (Bridge) GetMagicLinkSigningKey() []byte {
	return []byte(GetEnv("MAGIC_LINK_KEY", ""))
}

// GetRedirectPath returns the path appended to the initiating origin when
// composing the post-login redirect. Must match the frontend's expectation.
func (Bridge) GetRedirectPath() string {
	return GetEnv("REDIRECT_PATH", "/profile")
}
