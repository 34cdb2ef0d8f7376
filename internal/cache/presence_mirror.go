package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"groupchat-service/internal/config"
	"groupchat-service/internal/logging"
)

// PresenceMirror publishes announced presence to Redis: a set of online user
// ids and a pub/sub channel carrying each transition. Each instance owns its
// own set, listed in {prefix}:presence:instances, so restarting one instance
// never clears users held by another.
type PresenceMirror struct {
	client   *redis.Client
	prefix   string
	instance string
}

type presenceMessage struct {
	UserID   int  `json:"userId"`
	IsOnline bool `json:"isOnline"`
}

// NewPresenceMirror connects to Redis. An empty address returns nil, nil:
// the caller runs without a mirror.
func NewPresenceMirror(ctx context.Context, cfg config.RedisConfig) (*PresenceMirror, error) {
	if cfg.Address == "" {
		logging.L().Info().Msg("redis disabled, presence mirror off")
		return nil, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	prefix := cfg.Prefix
	if prefix == "" {
		prefix = "chat"
	}
	return &PresenceMirror{client: client, prefix: prefix, instance: instanceID(cfg.InstanceID)}, nil
}

func instanceID(configured string) string {
	if configured != "" {
		return configured
	}
	if host, err := os.Hostname(); err == nil && host != "" {
		return host
	}
	return uuid.NewString()
}

func (m *PresenceMirror) onlineKey() string {
	return m.onlinePrefix() + m.instance
}

func (m *PresenceMirror) onlinePrefix() string {
	return m.prefix + ":presence:online:"
}

func (m *PresenceMirror) instancesKey() string {
	return m.prefix + ":presence:instances"
}

func (m *PresenceMirror) channel() string {
	return m.prefix + ":presence"
}

// SetOnline updates the online set and publishes the transition.
func (m *PresenceMirror) SetOnline(ctx context.Context, userID int, online bool) error {
	member := strconv.Itoa(userID)
	body, err := json.Marshal(presenceMessage{UserID: userID, IsOnline: online})
	if err != nil {
		return err
	}

	pipe := m.client.TxPipeline()
	if online {
		pipe.SAdd(ctx, m.instancesKey(), m.instance)
		pipe.SAdd(ctx, m.onlineKey(), member)
	} else {
		pipe.SRem(ctx, m.onlineKey(), member)
	}
	pipe.Publish(ctx, m.channel(), body)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to mirror presence: %w", err)
	}
	return nil
}

// OnlineUsers returns the users online on any registered instance.
func (m *PresenceMirror) OnlineUsers(ctx context.Context) ([]int, error) {
	instances, err := m.client.SMembers(ctx, m.instancesKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read instances: %w", err)
	}
	if len(instances) == 0 {
		return []int{}, nil
	}
	keys := make([]string, 0, len(instances))
	for _, instance := range instances {
		keys = append(keys, m.onlinePrefix()+instance)
	}
	members, err := m.client.SUnion(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read presence: %w", err)
	}
	ids := make([]int, 0, len(members))
	for _, member := range members {
		id, err := strconv.Atoi(member)
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids, nil
}

// Reset clears the set left by a previous run of this instance and registers
// the instance. Other instances' sets are untouched.
func (m *PresenceMirror) Reset(ctx context.Context) error {
	pipe := m.client.TxPipeline()
	pipe.Del(ctx, m.onlineKey())
	pipe.SAdd(ctx, m.instancesKey(), m.instance)
	_, err := pipe.Exec(ctx)
	return err
}

// Close withdraws this instance's users and closes the client.
func (m *PresenceMirror) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	pipe := m.client.TxPipeline()
	pipe.Del(ctx, m.onlineKey())
	pipe.SRem(ctx, m.instancesKey(), m.instance)
	if _, err := pipe.Exec(ctx); err != nil {
		logging.L().Warn().Err(err).Str("instance", m.instance).Msg("presence mirror cleanup failed")
	}
	return m.client.Close()
}
