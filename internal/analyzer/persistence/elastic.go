// Copyright 2025 Esteban Alvarez. All Rights Reserved.
//
// Created: October 2025
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

package persistence

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"

	elasticsearch "github.com/elastic/go-elasticsearch/v8"
)

// ElasticBulker abstracts the bulk-ingest surface we need from an
// Elasticsearch client. Implementations must treat document-create conflicts
// (HTTP 409) as success: a conflict means the record id was already indexed.
type ElasticBulker interface {
	Bulk(ctx context.Context, index string, body io.Reader) error
}

// ElasticSink indexes results into Elasticsearch with the bulk API.
// Each record becomes one document with _id = name:version under the "create"
// op type, so re-indexing an already-stored version is rejected by the engine
// and swallowed by the client wrapper.
type ElasticSink struct {
	client ElasticBulker
	index  string
}

func NewElasticSink(client ElasticBulker, index string) *ElasticSink {
	return &ElasticSink{client: client, index: index}
}

func (e *ElasticSink) WriteBatch(ctx context.Context, records []ResultRecord) error {
	if len(records) == 0 {
		return nil
	}
	var buf bytes.Buffer
	for _, rec := range records {
		meta := map[string]interface{}{
			"create": map[string]interface{}{"_id": rec.RecordID()},
		}
		metaJSON, err := json.Marshal(meta)
		if err != nil {
			return fmt.Errorf("error marshaling meta to bulk index: %w", err)
		}
		buf.Write(metaJSON)
		buf.WriteByte('\n')

		docJSON, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("error marshaling record to bulk index: %w", err)
		}
		buf.Write(docJSON)
		buf.WriteByte('\n')
	}
	if err := e.client.Bulk(ctx, e.index, bytes.NewReader(buf.Bytes())); err != nil {
		return fmt.Errorf("failed to bulk index results: %w", err)
	}
	return nil
}

// GoElasticBulker is a production client wrapper implementing ElasticBulker
// on top of github.com/elastic/go-elasticsearch/v8.
type GoElasticBulker struct{ es *elasticsearch.Client }

// NewGoElasticBulker constructs a wrapper for the given addresses.
func NewGoElasticBulker(addresses []string) (*GoElasticBulker, error) {
	es, err := elasticsearch.NewClient(elasticsearch.Config{Addresses: addresses})
	if err != nil {
		return nil, fmt.Errorf("elasticsearch client: %w", err)
	}
	return &GoElasticBulker{es: es}, nil
}

// bulkResponse is the subset of the bulk API response we inspect.
type bulkResponse struct {
	Errors bool `json:"errors"`
	Items  []map[string]struct {
		Status int `json:"status"`
	} `json:"items"`
}

func (g *GoElasticBulker) Bulk(ctx context.Context, index string, body io.Reader) error {
	res, err := g.es.Bulk(
		body,
		g.es.Bulk.WithIndex(index),
		g.es.Bulk.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("failed to index in Elasticsearch: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return fmt.Errorf("bulk index error: %s", res.String())
	}
	var parsed bulkResponse
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return fmt.Errorf("decode bulk response: %w", err)
	}
	if !parsed.Errors {
		return nil
	}
	for _, item := range parsed.Items {
		for op, st := range item {
			// 409 on create means the document already exists; that is the
			// idempotent success path.
			if st.Status >= 300 && st.Status != 409 {
				return fmt.Errorf("bulk %s item failed with status %d", op, st.Status)
			}
		}
	}
	return nil
}
