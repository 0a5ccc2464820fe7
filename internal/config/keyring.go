/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package config

import (
	"errors"
	"strings"

	"github.com/zalando/go-keyring"
)

// Service/keys for OS keyring.
const (
	keyringService = "MangaWizard"
	keyringToken   = "backend_token"
	keyringAPIKey  = "generation_api_key"
)

// ErrNoSecret is returned when the keyring holds no value for a key.
var ErrNoSecret = errors.New("no secret stored")

// TokenStore abstracts the keyring, so we can stub in tests.
type TokenStore interface {
	Get(service, key string) (string, error)
	Set(service, key, value string) error
	Delete(service, key string) error
}

var tokenStore TokenStore = osKeyring{}

// SetTokenStore swaps the secret store and returns the previous one.
func SetTokenStore(s TokenStore) TokenStore {
	prev := tokenStore
	tokenStore = s
	return prev
}

// osKeyring implements TokenStore using the OS keyring via github.com/zalando/go-keyring.
type osKeyring struct{}

func (osKeyring) Get(service, key string) (string, error) {
	v, err := keyring.Get(service, key)
	if errors.Is(err, keyring.ErrNotFound) {
		return "", ErrNoSecret
	}
	return v, err
}

func (osKeyring) Set(service, key, value string) error { return keyring.Set(service, key, value) }

func (osKeyring) Delete(service, key string) error {
	err := keyring.Delete(service, key)
	if errors.Is(err, keyring.ErrNotFound) {
		return nil
	}
	return err
}

// APIKeys caches the generation API key the user registered with the backend,
// so it can be re-registered when the backend forgets it (e.g. after a restart).
type APIKeys struct{}

// Load returns the cached API key or ErrNoSecret.
func (APIKeys) Load() (string, error) {
	v, err := tokenStore.Get(keyringService, keyringAPIKey)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(v) == "" {
		return "", ErrNoSecret
	}
	return v, nil
}

// Save stores the API key in the OS keyring.
func (APIKeys) Save(key string) error {
	return tokenStore.Set(keyringService, keyringAPIKey, strings.TrimSpace(key))
}

// Forget removes the cached API key.
func (APIKeys) Forget() error { return tokenStore.Delete(keyringService, keyringAPIKey) }
