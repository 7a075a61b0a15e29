package main

import "github.com/storefront-dev/storefront/cmd/storefront/cmd"

func main() {
	cmd.Execute()
}
