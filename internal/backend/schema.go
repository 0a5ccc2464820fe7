/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package backend

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	gojsonschema "github.com/xeipuuv/gojsonschema"

	"mangawizard/internal/domain"
)

//go:embed storyboard.schema.json
var storyboardSchemaJSON []byte

var (
	schemaOnce sync.Once
	schema     *gojsonschema.Schema
	schemaErr  error
)

func storyboardSchema() (*gojsonschema.Schema, error) {
	schemaOnce.Do(func() {
		schema, schemaErr = gojsonschema.NewSchema(gojsonschema.NewBytesLoader(storyboardSchemaJSON))
	})
	return schema, schemaErr
}

// SchemaError lists the validation failures of a storyboard document.
type SchemaError struct {
	Problems []string
}

func (e *SchemaError) Error() string {
	return "invalid storyboard: " + strings.Join(e.Problems, "; ")
}

// ParseStoryboard validates raw JSON against the storyboard schema and decodes it.
// TotalPages is corrected to the number of pages when the service omits it.
func ParseStoryboard(raw []byte) (*domain.Storyboard, error) {
	if len(raw) == 0 {
		return nil, &SchemaError{Problems: []string{"empty document"}}
	}
	s, err := storyboardSchema()
	if err != nil {
		return nil, fmt.Errorf("load storyboard schema: %w", err)
	}
	res, err := s.Validate(gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return nil, fmt.Errorf("validate storyboard: %w", err)
	}
	if !res.Valid() {
		se := &SchemaError{}
		for _, e := range res.Errors() {
			se.Problems = append(se.Problems, e.String())
		}
		return nil, se
	}
	var sb domain.Storyboard
	if err := json.Unmarshal(raw, &sb); err != nil {
		return nil, fmt.Errorf("decode storyboard: %w", err)
	}
	if err := sb.Validate(); err != nil {
		return nil, &SchemaError{Problems: []string{err.Error()}}
	}
	if sb.TotalPages == 0 {
		sb.TotalPages = len(sb.Pages)
	}
	return &sb, nil
}
