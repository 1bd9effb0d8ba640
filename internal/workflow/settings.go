/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package workflow

import "showroom/internal/domain"

// SettingsStore owns the per-image edit records, indexed by image index.
// Records are created lazily on first access, never eagerly for all images.
// Only a full workflow reset removes records.
type SettingsStore struct {
	records map[int]domain.EditSettings
}

// NewSettingsStore returns an empty store.
func NewSettingsStore() *SettingsStore {
	return &SettingsStore{records: make(map[int]domain.EditSettings)}
}

// EnsureDefault creates the default record for index if absent. Idempotent:
// an existing record is never touched, even if backgroundID differs.
func (st *SettingsStore) EnsureDefault(index int, backgroundID string) {
	if _, ok := st.records[index]; ok {
		return
	}
	st.records[index] = domain.DefaultSettings(backgroundID)
}

// Load returns a copy of the record for index. The second result is false
// when the index was never visited.
func (st *SettingsStore) Load(index int) (domain.EditSettings, bool) {
	s, ok := st.records[index]
	return s, ok
}

// Save writes the given edit parameters back into the record for index.
// Always called before any index or background change that would otherwise
// discard unsaved edits.
func (st *SettingsStore) Save(index int, s domain.EditSettings) {
	st.records[index] = s
}

// Has reports whether a record exists for index.
func (st *SettingsStore) Has(index int) bool {
	_, ok := st.records[index]
	return ok
}

// Len reports the number of visited images.
func (st *SettingsStore) Len() int { return len(st.records) }

// Reset drops every record; part of the full workflow reset only.
func (st *SettingsStore) Reset() {
	st.records = make(map[int]domain.EditSettings)
}
