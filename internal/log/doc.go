// Package log provides slog loggers that sanitize sensitive information.
//
// The SecureHandler masks:
//   - HTTP headers such as Authorization, Cookie, Set-Cookie and X-Api-Key
//   - values that look like secrets (bearer and basic credentials, JWTs,
//     long API keys, private key blocks)
//   - the password part of URLs, for example a seed URL with user info or
//     a Redis address
//
// Site cookies and headers come from the user's config file and often carry
// session credentials, so they are masked even in verbose mode.
//
// # Usage
//
//	logger := log.NewSecureLogger(os.Stderr, slog.LevelInfo)
//	logger.Info("fetching", "url", "http://www.example.com/", "cookie", "sid=abc")
//	// cookie is written as ***REDACTED***
package log
