package main

import "github.com/MeKo-Tech/tilepyramid/internal/cmd"

func main() {
	cmd.Execute()
}
