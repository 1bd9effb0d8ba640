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

// Screen identifies the active editing step. Exactly one is active at a time;
// navigation is explicit except the Upload→Processing→Background chain driven
// by the reconciliation loop.
type Screen int

const (
	ScreenUpload Screen = iota
	ScreenProcessing
	ScreenBackground
	ScreenPosition
	ScreenDownload
)

func (s Screen) String() string {
	switch s {
	case ScreenUpload:
		return "upload"
	case ScreenProcessing:
		return "processing"
	case ScreenBackground:
		return "background"
	case ScreenPosition:
		return "position"
	case ScreenDownload:
		return "download"
	default:
		return "unknown"
	}
}
