/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

// Package identity manages the opaque client token that scopes every backend
// call. The token is generated exactly once per user profile and persisted in
// the OS keychain; it is never regenerated while present.
package identity

import (
	"fmt"

	"github.com/google/uuid"

	"showroom/internal/config"
)

// Ensure returns the existing client token, generating and persisting a fresh
// UUID-v4 one only when none is stored yet.
func Ensure() (string, error) {
	tok, err := config.LoadToken()
	if err != nil {
		return "", fmt.Errorf("load client token: %w", err)
	}
	if tok != "" {
		return tok, nil
	}
	tok = uuid.NewString()
	if err := config.StoreToken(tok); err != nil {
		return "", fmt.Errorf("store client token: %w", err)
	}
	return tok, nil
}
