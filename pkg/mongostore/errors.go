package mongostore

import "errors"

var (
	ErrFailedToConnect   = errors.New("failed to connect to mongo")
	ErrHealthcheckFailed = errors.New("mongo healthcheck failed")
	ErrMalformedDocument = errors.New("malformed document in mongo collection")
)
