// Package redis stores task records shared with the other platform services.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bsm/redislock"
	"github.com/go-redis/redis/v8"
	"github.com/kelseyhightower/envconfig"
	"text2phenotype.com/ner/utils/maps"
)

type DB int
type ReleaseLock func() error

var ErrNotFound = errors.New("record not found")

type Client struct {
	client         redis.UniversalClient
	lockExpiration time.Duration
	lockRetries    int
}

type Config struct {
	LockExpirationSeconds   int     `envconfig:"MDL_COMN_REDIS_LOCK_EXPIRATION" default:"3"`
	LockRetries             int     `envconfig:"NER_REDIS_LOCK_RETRIES" default:"20"`
	Host                    string  `envconfig:"MDL_COMN_REDIS_HOST" required:"true"`
	Port                    string  `envconfig:"MDL_COMN_REDIS_PORT" required:"true"`
	HASentinelPort          string  `envconfig:"MDL_COMN_REDIS_HA_SENTINEL_PORT" default:"26379"`
	HASentinelMasterName    string  `envconfig:"MDL_COMN_REDIS_HA_MASTER_NAME" default:"mymaster"`
	Password                string  `envconfig:"MDL_COMN_REDIS_AUTH_PASSWORD" default:"0"`
	AuthRequired            bool    `envconfig:"MDL_COMN_REDIS_AUTH_REQUIRED" default:"false"`
	HAMode                  bool    `envconfig:"MDL_COMN_REDIS_HA_MODE" default:"false"`
	HASentinelSocketTimeout float32 `envconfig:"MDL_COMN_REDIS_SOCKET_TIMEOUT" default:"0.5"`
}

// NewClient connects to database db, through sentinels when MDL_COMN_REDIS_HA_MODE is set.
func NewClient(db DB) (Client, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return Client{}, err
	}
	var client redis.UniversalClient
	if cfg.HAMode {
		client = redis.NewFailoverClusterClient(failoverOptions(cfg, db))
	} else {
		client = redis.NewClient(options(cfg, db))
	}
	return NewClientFrom(client, time.Duration(cfg.LockExpirationSeconds)*time.Second, cfg.LockRetries), nil
}

// NewClientFrom wraps an existing connection.
func NewClientFrom(client redis.UniversalClient, lockExpiration time.Duration, lockRetries int) Client {
	return Client{client: client, lockExpiration: lockExpiration, lockRetries: lockRetries}
}

func failoverOptions(cfg Config, db DB) *redis.FailoverOptions {
	timeout := time.Duration(float64(cfg.HASentinelSocketTimeout) * float64(time.Second))
	options := redis.FailoverOptions{
		SentinelAddrs: []string{fmt.Sprintf("%s:%s", cfg.Host, cfg.HASentinelPort)},
		ReadTimeout:   timeout,
		WriteTimeout:  timeout,
		MaxRetries:    6,
		DB:            int(db),
		MasterName:    cfg.HASentinelMasterName,
	}
	if cfg.AuthRequired {
		options.Password = cfg.Password
	}
	return &options
}

func options(cfg Config, db DB) *redis.Options {
	options := redis.Options{
		Addr:       fmt.Sprintf("%s:%s", cfg.Host, cfg.Port),
		MaxRetries: 6,
		DB:         int(db),
	}
	if cfg.AuthRequired {
		options.Password = cfg.Password
	}
	return &options
}

// GetPartialDocument reads the record under redisKey into doc. A missing key is ErrNotFound.
func (client *Client) GetPartialDocument(ctx context.Context, redisKey string, doc maps.PartialDocument) error {
	b, err := client.client.Get(ctx, redisKey).Bytes()
	if errors.Is(err, redis.Nil) {
		return fmt.Errorf("%w: %s", ErrNotFound, redisKey)
	}
	if err != nil {
		return err
	}
	if err := maps.FillFromJSON(doc, b); err != nil {
		return fmt.Errorf("record %s: %w", redisKey, err)
	}
	return nil
}

// UpdatePartialDocument reads, updates and saves the record under redisKey while holding its lock.
func (client *Client) UpdatePartialDocument(ctx context.Context, redisKey string, doc maps.PartialDocument, update func()) (err error) {
	releaseLock, err := client.Lock(ctx, redisKey)
	if err != nil {
		return err
	}
	defer func() {
		if releaseErr := releaseLock(); err == nil {
			err = releaseErr
		}
	}()
	if err = client.GetPartialDocument(ctx, redisKey, doc); err != nil {
		return err
	}
	if err = maps.ApplyUpdates(doc, update); err != nil {
		return err
	}
	return client.SaveDoc(ctx, redisKey, doc)
}

// Lock takes the "lock:<redisKey>" lock shared with the other services, retrying once a second.
func (client *Client) Lock(ctx context.Context, redisKey string) (ReleaseLock, error) {
	locker := redislock.New(client.client)
	strategy := redislock.LimitRetry(redislock.LinearBackoff(time.Second), client.lockRetries)
	lock, err := locker.Obtain(ctx, "lock:"+redisKey, client.lockExpiration, &redislock.Options{RetryStrategy: strategy})
	if err != nil {
		return nil, fmt.Errorf("lock %s: %w", redisKey, err)
	}
	return func() error {
		return lock.Release(ctx)
	}, nil
}

func (client *Client) SaveDoc(ctx context.Context, redisKey string, document maps.PartialDocument) error {
	b, err := maps.Marshal(document)
	if err != nil {
		return err
	}
	return client.client.Set(ctx, redisKey, b, 0).Err()
}

func (client *Client) Close() error {
	return client.client.Close()
}
