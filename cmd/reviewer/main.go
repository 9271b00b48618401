package main

import "github.com/vietddude/reviewer/internal/cli"

func main() {
	cli.Execute()
}
