//go:build !linux

package main

import (
	"fmt"

	"github.com/Paul1365972/wooting-analog-midi/analog"
)

func openEvdev(string) (analog.Source, error) {
	return nil, fmt.Errorf("the evdev fallback source requires linux")
}
