// Package redis shares sessions and auth events between server instances
// through Redis.
package redis

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const (
	sessionKeyPrefix = "raices:session:"
	eventChannelBase = "raices:auth:"
)

// Connect parses a redis:// URL and checks that the server answers.
func Connect(ctx context.Context, url string) (*redis.Client, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opt)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

func sessionKey(tokenHash string) string { return sessionKeyPrefix + tokenHash }

func eventChannel(sessionID string) string { return eventChannelBase + sessionID }
