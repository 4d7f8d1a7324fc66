// Copyright (c) 2017 Uber Technologies, Inc.
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in
// all copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
// THE SOFTWARE.

package metadata

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Schema is the DDL for the metadata table; applied once at startup
// alongside internal/orchestrator.Schema.
const Schema = `
CREATE TABLE IF NOT EXISTS document_metadata (
	tenant_id   TEXT NOT NULL,
	document_id TEXT NOT NULL,
	status      TEXT NOT NULL,
	fields      JSONB NOT NULL DEFAULT '{}',
	updated_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (tenant_id, document_id)
);
`

// PGStore is the production Store, backed by Postgres via pgx/v5.
type PGStore struct {
	pool *pgxpool.Pool
}

func NewPGStore(pool *pgxpool.Pool) *PGStore { return &PGStore{pool: pool} }

func (s *PGStore) Update(ctx context.Context, rec Record) error {
	fields, err := json.Marshal(rec.Fields)
	if err != nil {
		return fmt.Errorf("metadata: encode fields: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO document_metadata (tenant_id, document_id, status, fields, updated_at)
		VALUES ($1, $2, $3, $4, now())
		ON CONFLICT (tenant_id, document_id)
		DO UPDATE SET status = EXCLUDED.status, fields = EXCLUDED.fields, updated_at = now()
	`, rec.TenantID, rec.DocumentID, rec.Status, fields)
	if err != nil {
		return fmt.Errorf("metadata: upsert %s/%s: %w", rec.TenantID, rec.DocumentID, err)
	}
	return nil
}

func (s *PGStore) Get(ctx context.Context, tenantID, documentID string) (Record, bool, error) {
	var rec Record
	var fields []byte
	rec.TenantID = tenantID
	rec.DocumentID = documentID
	err := s.pool.QueryRow(ctx, `
		SELECT status, fields FROM document_metadata WHERE tenant_id = $1 AND document_id = $2
	`, tenantID, documentID).Scan(&rec.Status, &fields)
	if errors.Is(err, pgx.ErrNoRows) {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, fmt.Errorf("metadata: get %s/%s: %w", tenantID, documentID, err)
	}
	if err := json.Unmarshal(fields, &rec.Fields); err != nil {
		return Record{}, false, fmt.Errorf("metadata: decode fields: %w", err)
	}
	return rec, true, nil
}
