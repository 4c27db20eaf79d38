package images

import (
	units "github.com/docker/go-units"
)

// humanSize formats a byte count with decimal units, e.g. "84.3kB".
func humanSize(size int64) string {
	return units.HumanSizeWithPrecision(float64(size), 3)
}
