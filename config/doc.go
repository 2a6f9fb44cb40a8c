// Package config reads relay settings from flags and the environment and
// builds the process logger.
//
// Every flag has an environment variable source, so the relay can be driven
// entirely by a .env file:
//
//	PORT=3000
//	LOG_LEVEL=debug
//	LOG_FORMAT=json
//	STRICT_HOST=true
//	NGROK_ENABLED=true
//	NGROK_AUTHTOKEN=...
//
// Logs are written with zerolog, either human readable (console) or as one
// JSON object per line (json).
package config
