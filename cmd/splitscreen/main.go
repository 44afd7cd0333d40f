package main

import "github.com/bryanchriswhite/SplitScreen/cmd/splitscreen/commands"

func main() {
	commands.Execute()
}
