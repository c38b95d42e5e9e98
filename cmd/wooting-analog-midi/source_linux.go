//go:build linux

package main

import "github.com/Paul1365972/wooting-analog-midi/analog"

func openEvdev(path string) (analog.Source, error) {
	return analog.OpenEvdev(path)
}
