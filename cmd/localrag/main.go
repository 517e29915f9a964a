package main

import "localrag/internal/cli"

func main() {
	cli.Execute()
}
