// Copyright (c) 2016-2019 Uber Technologies, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
package services

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/gomodule/redigo/redis"

	"github.com/seedarr/seedarr/core"
)

// ErrCacheMiss is returned when no valid cache entry exists.
var ErrCacheMiss = errors.New("tmdb cache miss")

// TmdbCache stores fetched movie metadata with a TTL.
type TmdbCache interface {
	Get(tmdbID int) (core.MovieMetadata, error)
	Set(m core.MovieMetadata) error
}

// TmdbCacheConfig defines RedisTmdbCache configuration.
type TmdbCacheConfig struct {
	Addr            string        `yaml:"addr"`
	TTLDays         int           `yaml:"ttl_days"`
	DialTimeout     time.Duration `yaml:"dial_timeout"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	MaxActiveConns  int           `yaml:"max_active_conns"`
	IdleConnTimeout time.Duration `yaml:"idle_conn_timeout"`
}

func (c TmdbCacheConfig) applyDefaults() TmdbCacheConfig {
	if c.TTLDays == 0 {
		c.TTLDays = 30
	}
	if c.DialTimeout == 0 {
		c.DialTimeout = 5 * time.Second
	}
	if c.ReadTimeout == 0 {
		c.ReadTimeout = 5 * time.Second
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = 5 * time.Second
	}
	if c.MaxIdleConns == 0 {
		c.MaxIdleConns = 4
	}
	if c.MaxActiveConns == 0 {
		c.MaxActiveConns = 16
	}
	if c.IdleConnTimeout == 0 {
		c.IdleConnTimeout = 5 * time.Minute
	}
	return c
}

// RedisTmdbCache is a TmdbCache backed by Redis.
type RedisTmdbCache struct {
	config TmdbCacheConfig
	pool   *redis.Pool
}

// NewRedisTmdbCache creates a new RedisTmdbCache.
func NewRedisTmdbCache(config TmdbCacheConfig) (*RedisTmdbCache, error) {
	config = config.applyDefaults()
	if config.Addr == "" {
		return nil, errors.New("invalid config: missing addr")
	}
	c := &RedisTmdbCache{
		config: config,
		pool: &redis.Pool{
			Dial: func() (redis.Conn, error) {
				return redis.Dial(
					"tcp",
					config.Addr,
					redis.DialConnectTimeout(config.DialTimeout),
					redis.DialReadTimeout(config.ReadTimeout),
					redis.DialWriteTimeout(config.WriteTimeout))
			},
			MaxIdle:     config.MaxIdleConns,
			MaxActive:   config.MaxActiveConns,
			IdleTimeout: config.IdleConnTimeout,
			Wait:        true,
		},
	}
	conn, err := c.pool.Dial()
	if err != nil {
		return nil, fmt.Errorf("dial redis: %s", err)
	}
	conn.Close()
	return c, nil
}

func tmdbKey(tmdbID int) string {
	return fmt.Sprintf("tmdb:movie:%d", tmdbID)
}

// Get returns the cached metadata for tmdbID, or ErrCacheMiss if absent or
// expired.
func (c *RedisTmdbCache) Get(tmdbID int) (core.MovieMetadata, error) {
	conn := c.pool.Get()
	defer conn.Close()

	data, err := redis.Bytes(conn.Do("GET", tmdbKey(tmdbID)))
	if err == redis.ErrNil {
		return core.MovieMetadata{}, ErrCacheMiss
	}
	if err != nil {
		return core.MovieMetadata{}, err
	}
	var m core.MovieMetadata
	if err := json.Unmarshal(data, &m); err != nil {
		return core.MovieMetadata{}, fmt.Errorf("unmarshal cached metadata: %s", err)
	}
	return m, nil
}

// Set upserts metadata with the configured TTL.
func (c *RedisTmdbCache) Set(m core.MovieMetadata) error {
	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("marshal metadata: %s", err)
	}
	conn := c.pool.Get()
	defer conn.Close()

	ttl := time.Duration(c.config.TTLDays) * 24 * time.Hour
	_, err = conn.Do("SETEX", tmdbKey(m.TmdbID), int(ttl.Seconds()), data)
	return err
}
