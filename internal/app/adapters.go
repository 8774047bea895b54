package app

import (
	"strings"

	"github.com/charlesng35/loandesk/internal/auth"
	"github.com/charlesng35/loandesk/internal/cache"
	"github.com/charlesng35/loandesk/pkg/mail"
)

const defaultIssuer = "loandesk"

// JWTServiceConfig maps the auth section onto the token service. Desk tokens
// fall back to the default issuer and TTL when the section leaves them blank.
func (c AuthConfig) JWTServiceConfig() auth.JWTConfig {
	out := auth.JWTConfig{
		Secret:         c.JWT.Secret,
		Issuer:         strings.TrimSpace(c.JWT.Issuer),
		AccessTokenTTL: c.JWT.TTL,
	}
	if out.Issuer == "" {
		out.Issuer = defaultIssuer
	}
	if out.AccessTokenTTL <= 0 {
		out.AccessTokenTTL = auth.DefaultAccessTokenTTL
	}
	return out
}

// SMTPSettings feeds the email notification channel.
func (c EmailConfig) SMTPSettings() mail.SMTPSettings {
	smtp := c.SMTP
	return mail.SMTPSettings{
		Enabled:  smtp.Enabled,
		Host:     strings.TrimSpace(smtp.Host),
		Port:     smtp.Port,
		Username: smtp.Username,
		Password: smtp.Password,
		From:     strings.TrimSpace(smtp.From),
		UseTLS:   smtp.UseTLS,
		Timeout:  smtp.Timeout,
	}
}

// RedisClientConfig describes the Redis instance holding the sweep lease.
func (c CacheConfig) RedisClientConfig() cache.RedisConfig {
	redis := c.Redis
	return cache.RedisConfig{
		Address:  strings.TrimSpace(redis.Address),
		Username: strings.TrimSpace(redis.Username),
		Password: redis.Password,
		DB:       redis.DB,
		TLS:      redis.TLS,
		Timeout:  redis.Timeout,
	}
}
