package main

import "noir-registry/internal/cli"

func main() {
	cli.Execute()
}
