package main

import (
	"github.com/zefrenchwan/txl.git/cmd/txl"
)

func main() {
	txl.Execute()
}
