// SPDX-FileCopyrightText: © 2025 DSLab - Fondazione Bruno Kessler
//
// SPDX-License-Identifier: Apache-2.0

package utils

import (
	"strings"

	"github.com/google/uuid"
)

// UUIDv4NoDash returns a random id for handles and coordinators.
func UUIDv4NoDash() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}
