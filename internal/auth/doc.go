// Package auth validates operator and device bearer tokens.
package auth
