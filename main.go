package main

import "github.com/UT07/keysense-app-sub002/cmd"

func main() {
	cmd.Execute()
}
