package services

import (
	"encoding/json"
	"fmt"

	"github.com/desertthunder/mixtape/internal/cache"
)

// lookup decodes the cached response for key into out, calling fetch and caching its JSON form on a miss.
//
// Fetch errors are returned untouched so adapters can classify them. A failed autosave is returned as-is.
func lookup(c *cache.Cache[[]byte], key string, fetch func() (any, error), out any) error {
	if c != nil {
		if raw, ok := c.Read(key); ok {
			if err := json.Unmarshal(raw, out); err == nil {
				return nil
			}
			c.Delete(key)
		}
	}

	v, err := fetch()
	if err != nil {
		return err
	}

	raw, ok := v.([]byte)
	if !ok {
		raw, err = json.Marshal(v)
		if err != nil {
			return fmt.Errorf("failed to encode response for %s: %w", key, err)
		}
	}

	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("failed to decode response for %s: %w", key, err)
	}

	if c != nil {
		if _, err := c.Write(key, raw); err != nil {
			return err
		}
	}
	return nil
}
