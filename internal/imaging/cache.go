/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package imaging

import (
	"crypto/sha256"
	"encoding/hex"
	"image"
	"time"

	"github.com/patrickmn/go-cache"
	"golang.org/x/sync/singleflight"
)

// Cache keeps decoded page images so repeated renders of the same base64
// payload decode once. Concurrent lookups of one key share a single decode.
type Cache struct {
	c  *cache.Cache
	sf singleflight.Group
}

// NewCache creates a cache with the given expiry; zero uses 30 minutes.
func NewCache(ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &Cache{c: cache.New(ttl, 2*ttl)}
}

func cacheKey(b64 string) string {
	sum := sha256.Sum256([]byte(b64))
	return hex.EncodeToString(sum[:])
}

// Get returns the decoded image for a base64 payload.
func (c *Cache) Get(b64 string) (image.Image, error) {
	key := cacheKey(b64)
	if v, ok := c.c.Get(key); ok {
		return v.(image.Image), nil
	}
	v, err, _ := c.sf.Do(key, func() (any, error) {
		img, _, err := DecodeBase64(b64)
		if err != nil {
			return nil, err
		}
		c.c.SetDefault(key, img)
		return img, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(image.Image), nil
}

// Len returns the number of cached images.
func (c *Cache) Len() int { return c.c.ItemCount() }

// Flush drops every cached image.
func (c *Cache) Flush() { c.c.Flush() }
