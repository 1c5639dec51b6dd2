package config

// MailConfig configures outgoing notification mail. Mail is disabled when
// SMTP_HOST is empty.
type MailConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	AppURL   string
}

func LoadMailConfig() MailConfig {
	return MailConfig{
		Host:     envStr("SMTP_HOST", ""),
		Port:     envInt("SMTP_PORT", 587),
		Username: envStr("SMTP_USERNAME", ""),
		Password: envStr("SMTP_PASSWORD", ""),
		From:     envStr("SMTP_FROM", "no-reply@petcare.local"),
		AppURL:   envStr("APP_URL", "http://localhost:5173"),
	}
}

// Enabled reports whether mail can be sent.
func (m MailConfig) Enabled() bool { return m.Host != "" }
