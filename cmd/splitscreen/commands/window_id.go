package commands

import (
	"fmt"
	"strconv"
)

// parseWindowID accepts decimal or 0x-prefixed hex; "" is 0
func parseWindowID(s string) (uint32, error) {
	if s == "" {
		return 0, nil
	}
	id, err := strconv.ParseUint(s, 0, 32)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("invalid window id: %s", s)
	}
	return uint32(id), nil
}
