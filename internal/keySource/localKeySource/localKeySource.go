package localKeySource

import (
	"context"
	"errors"
)

// LocalKeySource serves a key supplied directly in configuration.
type LocalKeySource struct {
	secret string
}

func NewLocalKeySource(secret string) *LocalKeySource {
	return &LocalKeySource{secret: secret}
}

func (l *LocalKeySource) Name() string {
	return "local"
}

func (l *LocalKeySource) LoadSigningKey(_ context.Context) (string, error) {
	if l.secret == "" {
		return "", errors.New("signing key is not configured")
	}
	return l.secret, nil
}
