package main

import "github.com/vidpulse/vidpulse/internal/cli"

func main() {
	cli.Execute()
}
