// Package log provides logging for the webmark client with automatic
// masking of credential-bearing attributes, built on the standard slog
// package.
//
// The annotation service authenticates with a stored username/password
// pair that is attached to most outgoing requests, so request-level
// debug logging is one typo away from writing a password to disk. The
// MaskingHandler intercepts every record and masks attribute values
// whose key or shape indicates a credential before the record reaches
// the underlying handler.
//
// # Usage
//
//	logger := log.NewLogger(os.Stderr, true) // verbose=true
//	logger.Debug("login request",
//	    "username", "ann",
//	    "password", "hunter2", // written as ***MASKED***
//	)
//
// The handler wraps any slog.Handler, so text and JSON sinks get the
// same protection.
package log
