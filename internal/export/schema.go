/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package export

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"showroom/internal/domain"
)

// batchSchema guards the batch render payload against malformed settings
// leaking into an export (empty ids, out-of-range scale). The bounds mirror
// the server's clamps.
const batchSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["items", "fmt"],
  "properties": {
    "fmt": {"type": "string", "enum": ["jpg", "png"]},
    "items": {
      "type": "array",
      "minItems": 1,
      "items": {
        "type": "object",
        "required": ["image_id", "bg_id", "rotate", "scale", "x", "y", "shadow", "snap"],
        "properties": {
          "image_id": {"type": "string", "minLength": 1},
          "bg_id": {"type": "string", "minLength": 1},
          "rotate": {"type": "number"},
          "scale": {"type": "number", "minimum": 0.5, "maximum": 2.0},
          "x": {"type": "number"},
          "y": {"type": "number"},
          "shadow": {"type": "boolean"},
          "snap": {"type": "boolean"}
        }
      }
    }
  }
}`

var batchSchemaLoader = gojsonschema.NewStringLoader(batchSchema)

// validateBatch checks the exact JSON document the zip endpoint will receive.
func validateBatch(items []domain.RenderSpec, format string) error {
	payload, err := json.Marshal(map[string]any{"items": items, "fmt": format})
	if err != nil {
		return err
	}
	result, err := gojsonschema.Validate(batchSchemaLoader, gojsonschema.NewBytesLoader(payload))
	if err != nil {
		return err
	}
	if result.Valid() {
		return nil
	}
	var msgs []string
	for _, e := range result.Errors() {
		msgs = append(msgs, e.String())
	}
	return fmt.Errorf("%s", strings.Join(msgs, "; "))
}
