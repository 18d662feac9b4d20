package main

import "github.com/dkeye/bounce/internal/cli"

func main() {
	cli.Execute(cli.NewClientCommand())
}
