package main

import (
	"tv-alert-mirror/internal/cli"
)

func main() {
	cli.Execute()
}
