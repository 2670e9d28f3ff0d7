// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"errors"
	"fmt"
)

// ErrInvalidParams is wrapped by Params.Validate.
var ErrInvalidParams = errors.New("invalid generation parameters")

// Limits accepted by Validate.
const (
	MinTemperature = 0.0
	MaxTemperature = 2.0
	MinMaxTokens   = 1
)

// Params are sampling settings for one generation.
type Params struct {
	Temperature float64 `toml:"temperature" json:"temperature"`
	MaxTokens   int     `toml:"max_tokens" json:"max_tokens"`
}

// DefaultParams returns the settings used when nothing is configured.
func DefaultParams() Params {
	return Params{
		Temperature: 0.7,
		MaxTokens:   512,
	}
}

// Validate checks that the settings are usable.
func (p Params) Validate() error {
	if p.Temperature < MinTemperature || p.Temperature > MaxTemperature {
		return fmt.Errorf("%w: temperature %.2f outside [%.0f, %.0f]",
			ErrInvalidParams, p.Temperature, MinTemperature, MaxTemperature)
	}
	if p.MaxTokens < MinMaxTokens {
		return fmt.Errorf("%w: max tokens %d must be at least %d",
			ErrInvalidParams, p.MaxTokens, MinMaxTokens)
	}
	return nil
}
