package main

import "github.com/KaramelBytes/blendlab/cmd"

func main() {
	cmd.Execute()
}
