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
package trackers

import (
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/seedarr/seedarr/lib/ratelimit"
	"github.com/seedarr/seedarr/lib/services"
)

// ErrTrackerNotFound is returned when a tracker slug is unknown.
var ErrTrackerNotFound = errors.New("tracker not found")

// StoredConfig is a persisted tracker schema with its runtime-mutable
// credentials and enabled flag.
type StoredConfig struct {
	Slug      string    `db:"slug"`
	Name      string    `db:"name"`
	Enabled   bool      `db:"enabled"`
	Schema    []byte    `db:"schema"`
	APIKey    string    `db:"api_key"`
	Passkey   string    `db:"passkey"`
	UpdatedAt time.Time `db:"updated_at"`
}

// Store persists tracker configuration.
type Store struct {
	db *sqlx.DB
}

// NewStore creates a new Store.
func NewStore(db *sqlx.DB) *Store {
	return &Store{db}
}

// Upsert validates and saves a tracker schema with credentials. The slug
// and name come from the schema document itself.
func (s *Store) Upsert(schemaDoc []byte, creds Credentials, enabled bool) (*Schema, error) {
	schema, err := ParseSchema(schemaDoc)
	if err != nil {
		return nil, err
	}
	_, err = s.db.Exec(`
		INSERT INTO tracker_config (slug, name, enabled, schema, api_key, passkey)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(slug) DO UPDATE SET
			name = excluded.name,
			enabled = excluded.enabled,
			schema = excluded.schema,
			api_key = excluded.api_key,
			passkey = excluded.passkey,
			updated_at = CURRENT_TIMESTAMP
	`, schema.Tracker.Slug, schema.Tracker.Name, enabled, schemaDoc,
		creds.APIKey, creds.Passkey)
	if err != nil {
		return nil, err
	}
	return schema, nil
}

// Get returns the stored config for slug.
func (s *Store) Get(slug string) (*StoredConfig, error) {
	var c StoredConfig
	err := s.db.Get(&c, `
		SELECT slug, name, enabled, schema, api_key, passkey, updated_at
		FROM tracker_config WHERE slug=?
	`, slug)
	if err == sql.ErrNoRows {
		return nil, ErrTrackerNotFound
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// SetEnabled flips the enabled flag for slug.
func (s *Store) SetEnabled(slug string, enabled bool) error {
	res, err := s.db.Exec(`
		UPDATE tracker_config
		SET enabled=?, updated_at=CURRENT_TIMESTAMP
		WHERE slug=?
	`, enabled, slug)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err != nil {
		panic("driver does not support RowsAffected")
	} else if n == 0 {
		return ErrTrackerNotFound
	}
	return nil
}

// ListEnabled returns all enabled tracker configs.
func (s *Store) ListEnabled() ([]*StoredConfig, error) {
	var configs []*StoredConfig
	err := s.db.Select(&configs, `
		SELECT slug, name, enabled, schema, api_key, passkey, updated_at
		FROM tracker_config
		WHERE enabled=1
		ORDER BY slug
	`)
	return configs, err
}

// BuildAdapters constructs an Adapter per enabled tracker.
func (s *Store) BuildAdapters(
	limits *ratelimit.Registry,
	cloudflare services.CloudflareBypass) ([]*Adapter, error) {

	configs, err := s.ListEnabled()
	if err != nil {
		return nil, err
	}
	adapters := make([]*Adapter, 0, len(configs))
	for _, c := range configs {
		schema, err := ParseSchema(c.Schema)
		if err != nil {
			return nil, err
		}
		adapter, err := NewAdapter(
			schema,
			Credentials{APIKey: c.APIKey, Passkey: c.Passkey},
			limits,
			cloudflare)
		if err != nil {
			return nil, err
		}
		adapters = append(adapters, adapter)
	}
	return adapters, nil
}
