package main

import "github.com/fenrik/clickseq/internal/cli"

func main() {
	cli.Execute()
}
