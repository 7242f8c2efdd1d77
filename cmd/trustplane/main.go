package main

import "github.com/symphony-fin/trustplane/internal/cli"

func main() {
	cli.Execute()
}
