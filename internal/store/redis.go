package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"deepscribe/internal/engine"
)

const (
	reportKeyPrefix = "deepscribe:report:"
	reportIndexKey  = "deepscribe:reports"
)

// Redis stores reports as JSON values with a sorted-set index by creation
// time. Intended for deployments without Postgres.
type Redis struct {
	Client *redis.Client
}

// NewRedis connects and verifies the connection.
func NewRedis(ctx context.Context, addr, password string, db int, timeout time.Duration) (*Redis, error) {
	client := redis.NewClient(&redis.Options{
		Addr:        addr,
		Password:    password,
		DB:          db,
		DialTimeout: timeout,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("pinging redis: %w", err)
	}
	return &Redis{Client: client}, nil
}

func (r *Redis) SaveReport(ctx context.Context, res engine.RunResult) error {
	rec := ReportRecord{
		ID:        res.RunID,
		Query:     res.Query,
		Title:     res.Title,
		Report:    res.Report,
		Topics:    res.Topics,
		Sources:   len(res.Sources),
		CreatedAt: res.CreatedAt,
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	pipe := r.Client.TxPipeline()
	pipe.Set(ctx, reportKeyPrefix+rec.ID, data, 0)
	pipe.ZAdd(ctx, reportIndexKey, redis.Z{Score: float64(rec.CreatedAt.UnixNano()), Member: rec.ID})
	_, err = pipe.Exec(ctx)
	return err
}

func (r *Redis) GetReport(ctx context.Context, id string) (ReportRecord, error) {
	data, err := r.Client.Get(ctx, reportKeyPrefix+id).Bytes()
	if err == redis.Nil {
		return ReportRecord{}, ErrNotFound
	}
	if err != nil {
		return ReportRecord{}, err
	}
	var rec ReportRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return ReportRecord{}, err
	}
	return rec, nil
}

func (r *Redis) ListReports(ctx context.Context, limit int) ([]ReportRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	ids, err := r.Client.ZRevRange(ctx, reportIndexKey, 0, int64(limit-1)).Result()
	if err != nil {
		return nil, err
	}
	var out []ReportRecord
	for _, id := range ids {
		rec, err := r.GetReport(ctx, id)
		if err == ErrNotFound {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

func (r *Redis) Ping(ctx context.Context) error { return r.Client.Ping(ctx).Err() }
func (r *Redis) Close() error                   { return r.Client.Close() }
