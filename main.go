package main

import "github.com/renderforge/render-gateway/cmd"

func main() {
	cmd.Execute()
}
