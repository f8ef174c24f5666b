package main

import (
	"os"

	"github.com/quillpress/quill/internal/cmd"
)

func main() {
	os.Exit(cmd.Main(os.Args))
}
