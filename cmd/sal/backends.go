package main

import (
	"context"
	"fmt"
	"io"

	"github.com/FairForge/sal/internal/audit"
	"github.com/FairForge/sal/internal/config"
	"github.com/FairForge/sal/internal/drivers"
	"github.com/FairForge/sal/internal/engine"
	"go.uber.org/zap"
)

type closeFunc func(context.Context) error

// buildBackend creates the driver for one configured provider, wrapped
// with retries when configured. The returned close func may be nil.
func buildBackend(ctx context.Context, pc config.ProviderConfig, logger *zap.Logger) (engine.Backend, closeFunc, error) {
	b, closer, err := buildDriver(ctx, pc, logger)
	if err != nil || pc.Retry.MaxAttempts <= 1 {
		return b, closer, err
	}

	policy := drivers.DefaultRetryPolicy()
	policy.MaxAttempts = pc.Retry.MaxAttempts
	if pc.Retry.InitialDelay > 0 {
		policy.InitialDelay = pc.Retry.InitialDelay
	}
	if pc.Retry.MaxDelay > 0 {
		policy.MaxDelay = pc.Retry.MaxDelay
	}
	return drivers.NewRetryBackend(b, policy, logger.With(zap.String("provider", pc.Name))), closer, nil
}

func buildDriver(ctx context.Context, pc config.ProviderConfig, logger *zap.Logger) (engine.Backend, closeFunc, error) {
	if pc.Driver == "memory" {
		return drivers.NewMemoryDriver(), nil, nil
	}

	ptype, err := engine.ParseProviderType(pc.Type)
	if err != nil {
		return nil, nil, err
	}

	switch ptype {
	case engine.ProviderLocal:
		d, err := drivers.NewLocalDriver(pc.Local.Path, logger)
		return d, nil, err

	case engine.ProviderS3:
		d, err := drivers.NewS3Driver(ctx, drivers.S3Config{
			Endpoint:  pc.S3.Endpoint,
			Region:    pc.S3.Region,
			Bucket:    pc.S3.Bucket,
			Prefix:    pc.S3.Prefix,
			AccessKey: pc.S3.AccessKey,
			SecretKey: pc.S3.SecretKey,
			PathStyle: pc.S3.PathStyle,
		}, logger)
		return d, nil, err

	case engine.ProviderLOB:
		d, err := drivers.NewLOBDriver(drivers.LOBConfig{
			Endpoint:          pc.LOB.Endpoint,
			Token:             pc.LOB.Token,
			Channel:           pc.LOB.Channel,
			RequestsPerSecond: pc.LOB.RequestsPerSecond,
			Burst:             pc.LOB.Burst,
			MaxObjectSize:     pc.LOB.MaxObjectSize,
			Timeout:           pc.LOB.Timeout,
		}, logger)
		return d, nil, err

	case engine.ProviderRedis:
		d, err := drivers.NewRedisDriver(drivers.RedisConfig{
			Addr:      pc.Redis.Addr,
			Password:  pc.Redis.Password,
			DB:        pc.Redis.DB,
			KeyPrefix: pc.Redis.KeyPrefix,
			TTL:       pc.Redis.TTL,
		}, logger)
		if err != nil {
			return nil, nil, err
		}
		return d, func(context.Context) error { return d.Close() }, nil

	case engine.ProviderMongo:
		d, err := drivers.NewMongoDriver(ctx, drivers.MongoConfig{
			URI:            pc.Mongo.URI,
			Database:       pc.Mongo.Database,
			Collection:     pc.Mongo.Collection,
			ConnectTimeout: pc.Mongo.ConnectTimeout,
		}, logger)
		if err != nil {
			return nil, nil, err
		}
		return d, d.Close, nil
	}
	return nil, nil, fmt.Errorf("no driver for provider type %s", ptype)
}

// buildArchiver returns the sink for events evicted from the audit trail
func buildArchiver(cfg config.AuditConfig) (audit.Archiver, io.Closer, error) {
	switch cfg.Archive {
	case "file":
		a, err := audit.NewFileArchiver(cfg.ArchivePath)
		return a, nil, err
	case "sqlite":
		a, err := audit.OpenSQLiteArchiver(cfg.ArchivePath)
		if err != nil {
			return nil, nil, err
		}
		return a, a, nil
	default:
		return nil, nil, nil
	}
}
