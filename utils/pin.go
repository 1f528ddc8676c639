package utils

import (
	"github.com/sethvargo/go-password/password"
)

// GeneratePIN returns a 6-digit pairing PIN for the TV frontend.
func GeneratePIN() (string, error) {
	return password.Generate(6, 6, 0, false, true)
}
