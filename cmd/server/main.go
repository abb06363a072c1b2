// Regulation Buddy server.
package main

import "github.com/ashureev/regbuddy/internal/cli"

func main() {
	cli.Execute()
}
