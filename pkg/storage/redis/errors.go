package redis

import "errors"

var (
	ErrFailedToParseConnString = errors.New("failed to parse redis connection string")
	ErrRedisNotReady           = errors.New("redis did not become ready within the given time period")
	ErrHealthcheckFailed       = errors.New("redis healthcheck failed")
	ErrIncrementFailed         = errors.New("failed to increment windowed counter")
)
