package main

import (
	"github.com/BertoldVdb/qereclaim/cmd"
)

func main() {
	cmd.Execute()
}
