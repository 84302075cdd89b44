// internal/app/bootstrap/appconfig.go
package bootstrap

import "time"

// AppConfig holds service-specific configuration for this WAFFLE app.
//
// These values come from environment variables, configuration files, or
// command-line flags (loaded in LoadConfig). They represent *app-level*
// configuration, not WAFFLE core configuration.
//
// WAFFLE's CoreConfig handles framework-level settings like:
//   - HTTP/HTTPS ports and TLS configuration
//   - Logging level and format
//   - CORS settings
//   - Request body size limits
//   - Database connection timeouts
//
// AppConfig is where everything specific to TrackHub lives: the Mongo
// connection, token signing, OAuth credentials, SMTP settings, and the
// knobs for audit logging and the notification outbox.
type AppConfig struct {
	// MongoDB connection configuration
	MongoURI         string // MongoDB connection string (e.g., mongodb://localhost:27017)
	MongoDatabase    string // Database name within MongoDB
	MongoMaxPoolSize uint64 // Max connection pool size
	MongoMinPoolSize uint64 // Min connection pool size

	// Bearer token configuration
	JWTSecret string        // Secret for signing API tokens (must be strong in production)
	JWTTTL    time.Duration // Token lifetime (default: 24h)

	// Base URL for links in email (password reset, bug assignment)
	BaseURL string // e.g., "https://trackhub.example.com" or "http://localhost:8080"

	// SiteName is the display name used in outbound email.
	SiteName string

	// Google OAuth configuration
	GoogleClientID     string
	GoogleClientSecret string
	OAuthStateKey      string // Secret for signing the OAuth state cookie

	// Email/SMTP configuration
	MailSMTPHost string // SMTP server host (e.g., localhost for Mailpit, email-smtp.us-east-1.amazonaws.com for SES)
	MailSMTPPort int    // SMTP server port (e.g., 1025 for Mailpit, 587 for SES)
	MailSMTPUser string // SMTP username (empty for Mailpit)
	MailSMTPPass string // SMTP password
	MailFrom     string // From email address (e.g., noreply@trackhub.example.com)
	MailFromName string // From display name (e.g., TrackHub)

	// Audit logging settings
	AuditLogAuth     string // Auth event logging: 'all' (db+log), 'db', 'log', or 'off'
	AuditLogActivity string // Project/bug event logging: 'all' (db+log), 'db', 'log', or 'off'

	// Notification outbox settings
	OutboxInterval  time.Duration // How often the dispatcher polls for pending email
	OutboxRetention time.Duration // How long sent events are kept before purging
}
