package main

import "libreshelf/internal/cli"

func main() {
	cli.Execute()
}
