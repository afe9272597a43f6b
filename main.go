package main

import "github.com/teamtasks/apiserver/cmd"

func main() {
	cmd.Execute()
}
