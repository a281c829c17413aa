package main

import "github.com/semantic-router/router/cmd"

func main() {
	cmd.Execute()
}
