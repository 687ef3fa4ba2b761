package main

import (
	"ration-kiosk/cmd"

	_ "go.uber.org/automaxprocs"
)

func main() {
	cmd.Start()
}
