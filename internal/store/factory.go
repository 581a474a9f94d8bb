package store

import (
	"fmt"
	"strings"
)

// SupportedDrivers lists all available store drivers.
var SupportedDrivers = []string{"bbolt", "json", "memory", "redis"}

// NewStore creates a new Store instance based on the specified driver.
// Supported drivers:
//   - "bbolt": BoltDB-backed persistent storage (recommended for single hosts)
//   - "json": JSON file-backed storage (suitable for testing and small deployments)
//   - "memory": process-local storage, lost on exit
//   - "redis": a Redis server shared by every process recording runs
//
// location is the file path for bbolt and json, and a redis:// URL for redis.
func NewStore(driver, location string) (Store, error) {
	driver = strings.ToLower(strings.TrimSpace(driver))

	if location == "" && driver != "memory" {
		return nil, fmt.Errorf("store location is required for driver %q", driver)
	}

	var (
		s   Store
		err error
	)
	switch driver {
	case "bbolt":
		s, err = NewBoltStore(location)
	case "json":
		s, err = NewJSONStore(location)
	case "memory":
		s = NewMemoryStore()
	case "redis":
		s, err = NewRedisStore(location)
	default:
		return nil, fmt.Errorf("unsupported store driver: %s (supported: %v)", driver, SupportedDrivers)
	}
	if err != nil {
		return nil, err
	}
	return s, nil
}
