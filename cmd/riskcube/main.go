package main

import "github.com/rustyeddy/riskcube/internal/cli"

func main() {
	cli.Execute()
}
