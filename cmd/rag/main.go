package main

import "docrag/internal/cli"

func main() {
	cli.Execute()
}
