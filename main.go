package main

import "github.com/audiolibrelab/whispernote/cmd"

func main() {
	cmd.Execute()
}
