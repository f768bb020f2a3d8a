package services

import "errors"

var (
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrSessionExpired     = errors.New("session expired")
	ErrUserInactive       = errors.New("user is inactive")
	ErrForbidden          = errors.New("permission denied")
	ErrWeakPassword       = errors.New("password must be at least 8 characters")
	ErrCampaignState      = errors.New("campaign cannot change from its current status")
	ErrChannelUnavailable = errors.New("message channel is not configured")
	ErrProductUnavailable = errors.New("product is not available for this customer")
	ErrInvalidRange       = errors.New("from must not be after to")
)
