package main

import "github.com/bryanchriswhite/TileShot/cmd/tileshot/commands"

func main() {
	commands.Execute()
}
